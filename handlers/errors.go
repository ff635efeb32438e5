package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"mp4converter/uploads"
)

const (
	msgNoFile           = "No file uploaded"
	msgInvalidFormat    = "Only MP4 and MKV files are allowed!"
	msgConversionFailed = "Conversion failed"
)

type errorBody struct {
	Error string `json:"error"`
}

// errorResponse maps err onto the JSON error body sent to the client. Only
// validation errors are described; everything else is a failed conversion.
func (a *API) errorResponse(c echo.Context, err error) error {
	status, msg := http.StatusInternalServerError, msgConversionFailed
	switch {
	case errors.Is(err, uploads.ErrMissingInput):
		status, msg = http.StatusBadRequest, msgNoFile
	case errors.Is(err, uploads.ErrInvalidFormat):
		status, msg = http.StatusBadRequest, msgInvalidFormat
	case errors.Is(err, uploads.ErrPayloadTooLarge):
		status, msg = http.StatusBadRequest, tooLargeMessage(a.receiver.MaxBytes())
	default:
		log.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
	}
	if c.Response().Committed {
		log.Warnf("response already started, dropping error %q", msg)
		return nil
	}
	return c.JSON(status, errorBody{Error: msg})
}

func tooLargeMessage(maxBytes int64) string {
	const MiB = 1024 * 1024
	limit := humanSize(maxBytes)
	if maxBytes >= MiB && maxBytes%MiB == 0 {
		limit = fmt.Sprintf("%d MiB", maxBytes/MiB)
	}
	return "File too large, maximum size is " + limit
}
