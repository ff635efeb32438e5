package main

import (
	"bytes"
	"context"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mp4converter/conversions"
	"mp4converter/ffmpeg"
	"mp4converter/handlers"
	"mp4converter/tempstore"
	"mp4converter/uploads"
)

// stuckTranscoder never finishes on its own; it returns only when its
// context is cancelled.
type stuckTranscoder struct {
	started   chan struct{}
	cancelled chan struct{}
}

func (s *stuckTranscoder) Transcode(ctx context.Context, req ffmpeg.Request) error {
	if err := os.WriteFile(req.OutputPath, []byte("partial"), 0600); err != nil {
		return err
	}
	close(s.started)
	<-ctx.Done()
	close(s.cancelled)
	return ctx.Err()
}

func (s *stuckTranscoder) Version(ctx context.Context) (string, error) {
	return "ffmpeg version test", nil
}

func tempFiles(t *testing.T, store *tempstore.Store) []string {
	t.Helper()
	var names []string
	for _, dir := range []string{store.UploadDir(), store.ConvertedDir()} {
		entries, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		require.NoError(t, err)
		for _, e := range entries {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestShutdownCancelsAndCleansRunningConversions(t *testing.T) {
	root := t.TempDir()
	store := tempstore.New(filepath.Join(root, "uploads"), filepath.Join(root, "converted"))
	tr := &stuckTranscoder{started: make(chan struct{}), cancelled: make(chan struct{})}
	service := conversions.NewService(store, tr, nil, conversions.Options{})
	api := handlers.NewAPI(uploads.NewReceiver(store, 1<<20), service, store, tr)

	e := echo.New()
	api.Register(e)
	reqCtx, cancelRequests := context.WithCancel(context.Background())
	defer cancelRequests()
	srv := httptest.NewUnstartedServer(e)
	srv.Config.BaseContext = func(net.Listener) context.Context { return reqCtx }
	srv.Start()
	defer srv.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="a.mp4"`)
	h.Set("Content-Type", "video/mp4")
	w, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = w.Write([]byte("\x00\x00\x00\x20ftypisom\x00\x00\x02\x00isomiso2avc1mp41 frames"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	go func() {
		res, err := http.Post(srv.URL+"/api/convert", mw.FormDataContentType(), &body)
		if err == nil {
			res.Body.Close()
		}
	}()

	select {
	case <-tr.started:
	case <-time.After(5 * time.Second):
		t.Fatal("conversion did not start")
	}
	require.NotEmpty(t, tempFiles(t, store))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	shutdown(ctx, srv.Config, cancelRequests, api, service)

	select {
	case <-tr.cancelled:
	default:
		t.Fatal("running conversion was not cancelled")
	}
	assert.Empty(t, tempFiles(t, store), "temp files left after shutdown")
}
