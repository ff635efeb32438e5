package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"mp4converter/config"
	"mp4converter/conversions"
	"mp4converter/database"
	"mp4converter/ffmpeg"
	"mp4converter/handlers"
	"mp4converter/records"
	"mp4converter/tempstore"
	"mp4converter/uploads"
)

// openSink connects the configured record store. The returned func releases
// it.
func openSink(ctx context.Context) (records.Sink, func(), error) {
	switch store := config.GetRecordStore(); store {
	case "sqlite", "postgres":
		db, err := database.Open(store, config.GetDatabaseDSN())
		if err != nil {
			return nil, nil, err
		}
		database.Init(db, log)
		sink, err := records.NewGormSink(database.Get())
		if err != nil {
			database.Fini()
			return nil, nil, err
		}
		log.Infof("recording conversions in %s", store)
		return sink, database.Fini, nil
	case "mongodb":
		cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		sink, err := records.NewMongoSink(cctx, config.GetMongoURI(), config.GetMongoDatabase())
		if err != nil {
			return nil, nil, err
		}
		log.Infof("recording conversions in mongodb database %s", config.GetMongoDatabase())
		return sink, func() {
			dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := sink.Close(dctx); err != nil {
				log.Errorf("error disconnecting from mongodb: %v", err)
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown record store %q", store)
	}
}

func main() {

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "error loading .env: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(os.Stdout, config.GetLogLevel(), config.GetLogFormat())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error configuring logging: %v\n", err)
		os.Exit(1)
	}
	log = logger

	log.Infof("GitSHA: %s", config.GetGitSHA())
	log.Infof("BuildDate: %s", config.GetBuildDate())

	tempstore.Init(log)
	uploads.Init(log)
	ffmpeg.Init(log)
	records.Init(log)
	conversions.Init(log)
	handlers.Init(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sink, closeSink, err := openSink(ctx)
	if err != nil {
		log.Panicf("failed to open record store: %v", err)
	}
	defer closeSink()

	store := tempstore.New(config.GetUploadDir(), config.GetConvertedDir())
	if free, err := store.FreeSpace(); err != nil {
		log.Warnln(err)
	} else {
		log.Infof("%.2f MiB free for temporary files", float64(free)/1024/1024)
	}
	go store.SweepPeriodically(ctx, time.Hour, config.GetStaleAfter())

	transcoder := ffmpeg.NewTranscoder(config.GetFfmpeg(), config.GetFfprobe())
	if version, err := transcoder.Version(ctx); err != nil {
		log.Errorln(err)
	} else {
		log.Infoln(version)
	}

	service := conversions.NewService(store, transcoder, sink, conversions.Options{
		MaxConcurrent: config.GetMaxConcurrent(),
		Timeout:       config.GetConversionTimeout(),
	})
	receiver := uploads.NewReceiver(store, config.GetMaxUploadBytes())
	log.Infof("max upload size %d bytes, max concurrent conversions %d, conversion timeout %s",
		receiver.MaxBytes(), config.GetMaxConcurrent(), config.GetConversionTimeout())

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  config.GetCORSOrigins(),
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		ExposeHeaders: []string{echo.HeaderContentDisposition, echo.HeaderContentLength},
	}))

	// request contexts outlive e.Shutdown until cancelRequests is called
	reqCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	e.Server.BaseContext = func(net.Listener) context.Context { return reqCtx }

	// Routes
	api := handlers.NewAPI(receiver, service, store, transcoder)
	api.Register(e)

	// Start server
	go func() {
		if err := e.Start(":" + config.GetPort()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("server stopped: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Infoln("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	shutdown(sctx, e.Server, cancelRequests, api, service)
}

// shutdown stops accepting requests and lets running ones finish until ctx
// is done. Requests still running then are cancelled, and shutdown returns
// only once they have cleaned up their temp files.
func shutdown(ctx context.Context, srv *http.Server, cancelRequests context.CancelFunc, api *handlers.API, service *conversions.Service) {
	if err := srv.Shutdown(ctx); err != nil {
		log.Warnf("requests still running at shutdown deadline, cancelling them: %v", err)
	}
	cancelRequests()
	api.Wait()
	service.Wait()
	log.Infoln("all requests finished")
}
