package workflow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"vidharvest/internal/catalog"
	"vidharvest/internal/config"
	"vidharvest/internal/logging"
	"vidharvest/internal/services"
	"vidharvest/internal/stage"
	"vidharvest/internal/testsupport"
	"vidharvest/internal/workflow"
)

type stubStage struct {
	mu          sync.Mutex
	executed    []int64
	prepareErr  error
	executeErr  error
	executeHook func(context.Context, *catalog.Entry)
	health      stage.Health
	closed      bool
}

func newStubStage() *stubStage {
	return &stubStage{health: stage.Healthy("acquire")}
}

func (s *stubStage) Prepare(context.Context, *catalog.Entry) error {
	return s.prepareErr
}

func (s *stubStage) Execute(ctx context.Context, entry *catalog.Entry) error {
	if s.executeHook != nil {
		s.executeHook(ctx, entry)
	}
	s.mu.Lock()
	s.executed = append(s.executed, entry.ID)
	s.mu.Unlock()
	return s.executeErr
}

func (s *stubStage) HealthCheck(context.Context) stage.Health {
	return s.health
}

func (s *stubStage) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubStage) executedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.executed...)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.Workers = 1
	cfg.Workflow.QueuePollInterval = 1
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 60
	cfg.Workflow.MaxAttempts = 2
	cfg.Workflow.RetryDelay = 0
	return cfg
}

func newManager(t *testing.T, cfg *config.Config, store *catalog.Store, handler stage.Handler) *workflow.Manager {
	t.Helper()
	factory := func(context.Context, int) (stage.Handler, error) { return handler, nil }
	return workflow.NewManager(cfg, store, factory, nil, logging.NewNop())
}

func TestRunOnceMarksEntriesDownloaded(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	first := testsupport.MustParsedEntry(t, store, "javct", "ABC-001")
	second := testsupport.MustParsedEntry(t, store, "javct", "ABC-002")

	handler := newStubStage()
	mgr := newManager(t, cfg, store, handler)

	processed, err := mgr.RunOnce(context.Background(), handler, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected 2 entries processed, got %d", processed)
	}
	if got := handler.executedIDs(); len(got) != 2 || got[0] != first.ID || got[1] != second.ID {
		t.Fatalf("expected entries in id order, got %v", got)
	}
	for _, id := range []int64{first.ID, second.ID} {
		entry, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if entry.Status != catalog.StatusDownloaded || entry.Attempts != 1 {
			t.Fatalf("entry %d: status %s attempts %d", id, entry.Status, entry.Attempts)
		}
	}
	if status := mgr.Status(context.Background()); status.LastEntry == nil || status.LastEntry.ID != second.ID {
		t.Fatalf("expected last entry %d, got %+v", second.ID, status.LastEntry)
	}
}

func TestRunOnceHonorsLimit(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustParsedEntry(t, store, "javct", "ABC-001")
	testsupport.MustParsedEntry(t, store, "javct", "ABC-002")

	handler := newStubStage()
	processed, err := newManager(t, cfg, store, handler).RunOnce(context.Background(), handler, 1)
	if err != nil || processed != 1 {
		t.Fatalf("RunOnce = %d, %v; want 1, nil", processed, err)
	}
	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[catalog.StatusParsed] != 1 || stats[catalog.StatusDownloaded] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

func TestStageFailureRetriesUntilAttemptsExhausted(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-001")

	handler := newStubStage()
	handler.executeErr = services.Wrap(services.ErrTransfer, "acquire", "download", "Media endpoint returned 503", nil)
	mgr := newManager(t, cfg, store, handler)

	// Attempt one fails, attempt two is the retry, then the budget is spent.
	processed, err := mgr.RunOnce(context.Background(), handler, 0)
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if processed != 2 {
		t.Fatalf("expected two attempts, got %d", processed)
	}
	got, err := store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != catalog.StatusFailed || got.Attempts != 2 {
		t.Fatalf("expected failed after 2 attempts, got %s/%d", got.Status, got.Attempts)
	}
	if !strings.Contains(got.ErrorMessage, "503") {
		t.Fatalf("expected failure message recorded, got %q", got.ErrorMessage)
	}
	if status := mgr.Status(context.Background()); !strings.Contains(status.LastError, "transfer failed") {
		t.Fatalf("expected last error, got %q", status.LastError)
	}

	if _, err := store.RetryFailed(context.Background(), entry.ID); err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	handler.executeErr = nil
	if processed, err := mgr.RunOnce(context.Background(), handler, 0); err != nil || processed != 1 {
		t.Fatalf("RunOnce after retry = %d, %v", processed, err)
	}
}

func TestValidationFailureIsNotRetried(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.MaxAttempts = 5
	store := testsupport.MustOpenStore(t, cfg)
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-001")

	handler := newStubStage()
	handler.prepareErr = services.Wrap(services.ErrValidation, "acquire", "prepare", "Entry page link is not an absolute http(s) URL", nil)

	processed, err := newManager(t, cfg, store, handler).RunOnce(context.Background(), handler, 0)
	if err != nil || processed != 1 {
		t.Fatalf("RunOnce = %d, %v; want 1, nil", processed, err)
	}
	if len(handler.executedIDs()) != 0 {
		t.Fatal("execute should not run after prepare fails")
	}
	got, err := store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != catalog.StatusFailed || got.Attempts != 5 {
		t.Fatalf("expected failed with exhausted attempts, got %s/%d", got.Status, got.Attempts)
	}
}

func TestFatalFailureStopsRunOnce(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.MustParsedEntry(t, store, "javct", "ABC-001")
	testsupport.MustParsedEntry(t, store, "javct", "ABC-002")

	handler := newStubStage()
	handler.executeErr = services.Wrap(services.ErrConnectivity, "acquire", "upload", "Object store unreachable", nil)

	processed, err := newManager(t, cfg, store, handler).RunOnce(context.Background(), handler, 0)
	if !errors.Is(err, services.ErrConnectivity) {
		t.Fatalf("expected connectivity error, got %v", err)
	}
	if processed != 1 {
		t.Fatalf("expected run to stop after first entry, got %d", processed)
	}
}

func TestReclaimedEntryDoesNotStallWorker(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-001")

	handler := newStubStage()
	var once sync.Once
	handler.executeHook = func(ctx context.Context, claimed *catalog.Entry) {
		once.Do(func() {
			if _, err := store.SetStatus(ctx, claimed.ID, catalog.StatusFailed, "heartbeat expired"); err != nil {
				t.Errorf("SetStatus: %v", err)
			}
		})
	}

	processed, err := newManager(t, cfg, store, handler).RunOnce(context.Background(), handler, 1)
	if err != nil || processed != 1 {
		t.Fatalf("RunOnce = %d, %v; want 1, nil", processed, err)
	}
	updated, err := store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if updated.Status != catalog.StatusFailed || updated.ErrorMessage != "heartbeat expired" {
		t.Fatalf("expected reclaimed status kept, got %s (%s)", updated.Status, updated.ErrorMessage)
	}
}

func TestHeartbeatMonitorReclaimsStaleEntries(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	entry := testsupport.MustParsedEntry(t, store, "javct", "ABC-001")

	claimed, err := store.ClaimNext(context.Background(), 3, 0)
	if err != nil || claimed == nil || claimed.ID != entry.ID {
		t.Fatalf("ClaimNext = %+v, %v", claimed, err)
	}

	fresh := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Hour)
	if err := fresh.ReclaimStale(context.Background(), logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	if got, _ := store.GetByID(context.Background(), entry.ID); got.Status != catalog.StatusDownloading {
		t.Fatalf("fresh heartbeat should not be reclaimed, got %s", got.Status)
	}

	time.Sleep(5 * time.Millisecond)
	stale := workflow.NewHeartbeatMonitor(store, logging.NewNop(), time.Second, time.Millisecond)
	if err := stale.ReclaimStale(context.Background(), logging.NewNop()); err != nil {
		t.Fatalf("ReclaimStale: %v", err)
	}
	got, err := store.GetByID(context.Background(), entry.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != catalog.StatusFailed || got.ErrorMessage != catalog.ReclaimedMessage {
		t.Fatalf("expected reclaimed entry, got %s %q", got.Status, got.ErrorMessage)
	}
}

func TestManagerStartStopProcessesWithWorkers(t *testing.T) {
	cfg := testConfig(t)
	cfg.Workflow.Workers = 2
	store := testsupport.MustOpenStore(t, cfg)
	for _, code := range []string{"ABC-001", "ABC-002", "ABC-003"} {
		testsupport.MustParsedEntry(t, store, "javct", code)
	}

	var (
		mu       sync.Mutex
		handlers []*stubStage
	)
	done := make(chan struct{}, 3)
	factory := func(context.Context, int) (stage.Handler, error) {
		handler := newStubStage()
		handler.executeHook = func(context.Context, *catalog.Entry) { done <- struct{}{} }
		mu.Lock()
		handlers = append(handlers, handler)
		mu.Unlock()
		return handler, nil
	}
	mgr := workflow.NewManager(cfg, store, factory, nil, logging.NewNop())

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("expected second Start to fail")
	}
	for range 3 {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for workers")
		}
	}

	status := mgr.Status(context.Background())
	if !status.Running {
		t.Fatal("expected running status")
	}
	if len(status.StageHealth) != 2 || !status.StageHealth["worker-0"].Ready {
		t.Fatalf("unexpected stage health: %+v", status.StageHealth)
	}
	mgr.Stop()

	stats, err := store.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats[catalog.StatusDownloaded] != 3 {
		t.Fatalf("expected 3 downloaded entries, got %v", stats)
	}
	mu.Lock()
	defer mu.Unlock()
	for i, handler := range handlers {
		handler.mu.Lock()
		closed := handler.closed
		handler.mu.Unlock()
		if !closed {
			t.Fatalf("handler %d was not closed", i)
		}
	}
	if mgr.Status(context.Background()).Running {
		t.Fatal("expected stopped status")
	}
}

func TestStartReportsFactoryFailure(t *testing.T) {
	cfg := testConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	factory := func(context.Context, int) (stage.Handler, error) {
		return nil, errors.New("browser unavailable")
	}
	mgr := workflow.NewManager(cfg, store, factory, nil, logging.NewNop())
	if err := mgr.Start(context.Background()); err == nil || !strings.Contains(err.Error(), "browser unavailable") {
		t.Fatalf("expected factory error, got %v", err)
	}
	if mgr.Status(context.Background()).Running {
		t.Fatal("manager should not be running after a failed start")
	}
}
