// Package handlers exposes the converter over HTTP.
package handlers

import (
	"context"
	"sync"

	"github.com/labstack/echo/v4"

	"mp4converter/conversions"
	"mp4converter/tempstore"
	"mp4converter/uploads"
)

// Versioner reports the version banner of the transcoder binary.
type Versioner interface {
	Version(ctx context.Context) (string, error)
}

type API struct {
	receiver  *uploads.Receiver
	service   *conversions.Service
	store     *tempstore.Store
	versioner Versioner

	inflight sync.WaitGroup
}

func NewAPI(receiver *uploads.Receiver, service *conversions.Service, store *tempstore.Store, versioner Versioner) *API {
	return &API{
		receiver:  receiver,
		service:   service,
		store:     store,
		versioner: versioner,
	}
}

func (a *API) Register(e *echo.Echo) {
	g := e.Group("/api")
	g.POST("/convert", a.ConvertPost)
	g.GET("/status", a.StatusGet)
}

// Wait blocks until every conversion request being handled has returned.
// Uploads still being received are included, so their partial files are
// gone too.
func (a *API) Wait() {
	a.inflight.Wait()
}
