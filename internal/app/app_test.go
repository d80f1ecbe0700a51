package app_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidharvest/internal/app"
	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/download"
	"vidharvest/internal/extractor"
	"vidharvest/internal/logging"
	"vidharvest/internal/media/ffprobe"
	"vidharvest/internal/objectstore"
	"vidharvest/internal/services"
	"vidharvest/internal/testsupport"
)

type scriptedSession struct {
	src    string
	closed bool
}

func (s *scriptedSession) Navigate(context.Context, string) error { return nil }

func (s *scriptedSession) ClickVisible(context.Context, string) (bool, error) { return true, nil }

func (s *scriptedSession) EnterFrame(context.Context, string) (bool, error) { return true, nil }

func (s *scriptedSession) Eval(context.Context, string) error { return nil }

func (s *scriptedSession) MediaSource(context.Context, string) (string, error) { return s.src, nil }

func (s *scriptedSession) ResetFrame(context.Context) error { return nil }

type staticProber struct{}

func (staticProber) Inspect(context.Context, string) (ffprobe.Result, error) {
	return staticProber{}.InspectReader(context.Background(), nil)
}

func (staticProber) InspectReader(context.Context, []byte) (ffprobe.Result, error) {
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", Height: 720}},
		Format:  ffprobe.Format{Duration: "1800"},
	}, nil
}

func openApp(t *testing.T, cfg *config.Config, opts ...app.Option) *app.App {
	t.Helper()
	opts = append([]app.Option{app.WithLogger(logging.NewNop()), app.WithGateway(objectstore.NewMemory())}, opts...)
	a, err := app.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestOpenRegistersBuiltinSites(t *testing.T) {
	a := openApp(t, testsupport.NewConfig(t))

	if _, err := a.Adapter("JavCT"); err != nil {
		t.Fatalf("expected javct adapter: %v", err)
	}
	_, err := a.Adapter("missing")
	if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "javct") {
		t.Fatalf("expected validation error listing sites, got %v", err)
	}
	if a.Ingest == nil || a.Metrics == nil {
		t.Fatal("expected ingest service and metrics")
	}
}

func TestOpenRejectsUnknownEnabledSite(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Sites.Enabled = []string{"nowhere"}
	if _, err := app.Open(cfg, app.WithLogger(logging.NewNop()), app.WithGateway(objectstore.NewMemory())); err == nil {
		t.Fatal("expected error for unknown enabled site")
	}
}

func TestReconcilerRequiresFeedEndpoint(t *testing.T) {
	a := openApp(t, testsupport.NewConfig(t))
	if _, err := a.Reconciler(); err == nil {
		t.Fatal("expected error without feed endpoint")
	}

	b := openApp(t, testsupport.NewConfig(t, testsupport.WithFeedEndpoint("http://feed.test/rows")))
	if _, err := b.Reconciler(); err != nil {
		t.Fatalf("Reconciler: %v", err)
	}
}

func TestHandlerFactoryAcquiresThroughSession(t *testing.T) {
	media := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(testsupport.Payload(4096, 7))
	}))
	t.Cleanup(media.Close)

	session := &scriptedSession{src: media.URL + "/clip.mp4"}
	opener := func(context.Context, config.Browser) (extractor.Session, func() error, error) {
		return session, func() error { session.closed = true; return nil }, nil
	}

	cfg := testsupport.NewConfig(t)
	a := openApp(t, cfg,
		app.WithSessionOpener(opener),
		app.WithDownloadOptions(download.WithProber(staticProber{}), download.WithTempDir(t.TempDir())),
	)
	entry := testsupport.MustParsedEntry(t, a.Store, "javct", "ABC-123")

	ctx := context.Background()
	handler, err := a.HandlerFactory()(ctx, 0)
	if err != nil {
		t.Fatalf("HandlerFactory: %v", err)
	}
	if health := handler.HealthCheck(ctx); !health.Ready {
		t.Fatalf("expected ready handler, got %+v", health)
	}

	processed, err := a.Workflow().RunOnce(ctx, handler, 0)
	if err != nil || processed != 1 {
		t.Fatalf("RunOnce = %d, %v", processed, err)
	}
	updated, err := a.Store.GetByID(ctx, entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != catalog.StatusDownloaded {
		t.Fatalf("expected downloaded, got %s (%s)", updated.Status, updated.ErrorMessage)
	}
	if updated.RuntimeMinutes == nil || *updated.RuntimeMinutes != 30 {
		t.Fatalf("expected runtime 30, got %v", updated.RuntimeMinutes)
	}

	if closer, ok := handler.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}
	if !session.closed {
		t.Fatal("expected session closed with handler")
	}
}

func TestHandlerFactoryReportsSessionFailure(t *testing.T) {
	opener := func(context.Context, config.Browser) (extractor.Session, func() error, error) {
		return nil, nil, errors.New("no browser")
	}
	a := openApp(t, testsupport.NewConfig(t), app.WithSessionOpener(opener))
	if _, err := a.HandlerFactory()(context.Background(), 2); err == nil || !strings.Contains(err.Error(), "worker 2") {
		t.Fatalf("expected worker session error, got %v", err)
	}
}
