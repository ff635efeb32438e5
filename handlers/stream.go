package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const (
	audioContentType = "audio/mpeg"
	streamBufferSize = 64 * 1024
)

// streamFile writes the file at path as the response body. It returns once
// the last byte has been flushed, or with an error if the client went away or
// a write failed.
func streamFile(c echo.Context, path, downloadName string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open converted file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat converted file: %w", err)
	}

	res := c.Response()
	h := res.Header()
	h.Set(echo.HeaderContentType, audioContentType)
	h.Set(echo.HeaderContentLength, strconv.FormatInt(info.Size(), 10))
	h.Set(echo.HeaderContentDisposition, contentDisposition(downloadName))
	res.WriteHeader(http.StatusOK)

	buf := make([]byte, streamBufferSize)
	n, err := io.CopyBuffer(res, struct{ io.Reader }{f}, buf)
	if err != nil {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, info.Size(), err)
	}
	if n != info.Size() {
		return fmt.Errorf("wrote %d of %d bytes: %w", n, info.Size(), io.ErrShortWrite)
	}
	if err := http.NewResponseController(res.Writer).Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return fmt.Errorf("flush: %w", err)
	}
	if err := c.Request().Context().Err(); err != nil {
		return fmt.Errorf("client went away: %w", err)
	}
	log.Debugf("streamed %s (%s) as %q", path, humanSize(n), downloadName)
	return nil
}

// contentDisposition builds an attachment header whose quoted filename
// cannot break out of the quotes. Names outside ASCII also get an RFC 5987
// filename* parameter.
func contentDisposition(name string) string {
	var b strings.Builder
	ascii := true
	for _, r := range name {
		switch {
		case r == '"' || r == '\\' || r < 0x20 || r == 0x7f:
			b.WriteRune('_')
		case r > 0x7e:
			ascii = false
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	v := fmt.Sprintf("attachment; filename=\"%s\"", b.String())
	if !ascii {
		v += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return v
}
