package handlers

import (
	"errors"
	"fmt"

	"github.com/labstack/echo/v4"

	"mp4converter/conversions"
)

// ConvertPost receives a video in the "file" field, converts it to MP3 and
// streams the result back as an attachment.
func (a *API) ConvertPost(c echo.Context) error {
	a.inflight.Add(1)
	defer a.inflight.Done()

	input, err := a.receiver.Receive(c.Request())
	if err != nil {
		return a.errorResponse(c, err)
	}
	log.Infof("received %q (%s, %s)", input.Filename, input.ContentType, humanSize(input.Size))

	_, err = a.service.Process(c.Request().Context(), input, func(job *conversions.Job) error {
		return streamFile(c, job.OutputPath, job.DownloadName())
	})
	if errors.Is(err, conversions.ErrStreamFailed) && c.Response().Committed {
		// status and part of the body are already out
		return nil
	}
	if err != nil {
		return a.errorResponse(c, err)
	}
	return nil
}

func humanSize(bytes int64) string {
	const (
		KiB = 1024
		MiB = 1024 * KiB
		GiB = 1024 * MiB
	)

	if bytes >= GiB {
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(GiB))
	} else if bytes >= MiB {
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(MiB))
	} else if bytes >= KiB {
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(KiB))
	}
	return fmt.Sprintf("%d bytes", bytes)
}
