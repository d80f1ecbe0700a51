package daemon_test

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"vidharvest/internal/catalog"
	"vidharvest/internal/daemon"
	"vidharvest/internal/logging"
	"vidharvest/internal/metrics"
	"vidharvest/internal/reconcile"
	"vidharvest/internal/stage"
	"vidharvest/internal/testsupport"
	"vidharvest/internal/workflow"
)

type noopStage struct{}

func (noopStage) Prepare(context.Context, *catalog.Entry) error { return nil }
func (noopStage) Execute(context.Context, *catalog.Entry) error { return nil }
func (noopStage) HealthCheck(context.Context) stage.Health {
	return stage.Healthy("noop")
}

type countingReconciler struct {
	runs atomic.Int32
}

func (r *countingReconciler) RunIncremental(context.Context) (reconcile.Summary, error) {
	r.runs.Add(1)
	return reconcile.Summary{Mode: reconcile.ModeIncremental, FeedRows: 3, Deleted: 1}, nil
}

func TestDaemonStartStop(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.QueuePollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	factory := func(context.Context, int) (stage.Handler, error) { return noopStage{}, nil }
	mgr := workflow.NewManager(cfg, store, factory, nil, logging.NewNop())
	reconciler := &countingReconciler{}

	d, err := daemon.New(cfg, store, mgr, reconciler, metrics.New(), logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := d.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	status := d.Status(ctx)
	if !status.Running || !status.Workflow.Running {
		t.Fatal("expected daemon and workflow to report running")
	}
	if status.MetricsAddr == "" {
		t.Fatal("expected metrics listener address")
	}

	resp, err := http.Get("http://" + status.MetricsAddr + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "ok") {
		t.Fatalf("unexpected healthz response %d %s", resp.StatusCode, body)
	}

	deadline := time.Now().Add(2 * time.Second)
	for reconciler.runs.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if reconciler.runs.Load() == 0 {
		t.Fatal("expected an immediate reconcile run on start")
	}

	if err := d.Start(ctx); err == nil {
		t.Fatal("expected second start to fail")
	}

	second, err := daemon.New(cfg, store, workflow.NewManager(cfg, store, factory, nil, logging.NewNop()), nil, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(ctx); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("expected lock contention error, got %v", err)
	}

	d.Stop()
	status = d.Status(ctx)
	if status.Running {
		t.Fatal("expected daemon to be stopped")
	}
	if status.LastReconcile == nil || status.LastReconcile.Deleted != 1 {
		t.Fatalf("expected last reconcile summary, got %+v", status.LastReconcile)
	}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := daemon.New(nil, nil, nil, nil, nil, nil); err == nil {
		t.Fatal("expected error for missing dependencies")
	}
}
