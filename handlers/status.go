package handlers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

type statusBody struct {
	Ffmpeg    string    `json:"ffmpeg"`
	Free      string    `json:"freeMiB"`
	Used      string    `json:"usedMiB"`
	TempFiles int       `json:"tempFiles"`
	Build     BuildInfo `json:"build"`
}

// StatusGet reports the transcoder version and the state of the temp
// directories.
func (a *API) StatusGet(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	body := statusBody{Build: MakeBuildInfo()}

	version, err := a.versioner.Version(ctx)
	if err != nil {
		log.Errorln(err)
	}
	body.Ffmpeg = version

	free, err := a.store.FreeSpace()
	if err != nil {
		log.Errorln(err)
	}
	files, used, err := a.store.Usage()
	if err != nil {
		log.Errorln(err)
	}

	body.Free = mib(int64(free))
	body.Used = mib(used)
	body.TempFiles = files
	return c.JSON(http.StatusOK, body)
}

func mib(bytes int64) string {
	return fmt.Sprintf("%.2f", float64(bytes)/1024/1024)
}
