package extractor_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vidharvest/internal/extractor"
	"vidharvest/internal/logging"
)

// fakeClock advances its own time whenever a timer is requested.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

type fakeSession struct {
	navigateErr  error
	triggerAfter int
	outerFrame   bool
	playVisible  bool
	innerFrame   bool
	srcAfter     int
	src          string
	blockOn      string
	clicks       map[string]int
	frames       []string
	sourcePolls  int
	evals        int
	resets       int
	undeadlined  int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		outerFrame:  true,
		playVisible: true,
		innerFrame:  true,
		src:         "https://cdn.example.com/media/abc.mp4",
		clicks:      map[string]int{},
	}
}

func (s *fakeSession) Navigate(context.Context, string) error { return s.navigateErr }

func (s *fakeSession) ClickVisible(ctx context.Context, selector string) (bool, error) {
	s.clicks[selector]++
	if _, ok := ctx.Deadline(); !ok {
		s.undeadlined++
	}
	if selector == s.blockOn {
		// Stands in for a click that keeps retrying while an overlay covers
		// the element.
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(3 * time.Second):
			return false, errors.New("click never gave up")
		}
	}
	switch selector {
	case "button.stream":
		return s.clicks[selector] > s.triggerAfter, nil
	case "button.play":
		return s.playVisible, nil
	}
	return false, nil
}

func (s *fakeSession) EnterFrame(_ context.Context, selector string) (bool, error) {
	ok := (selector == "iframe.outer" && s.outerFrame) || (selector == "iframe.inner" && s.innerFrame)
	if ok {
		s.frames = append(s.frames, selector)
	}
	return ok, nil
}

func (s *fakeSession) Eval(context.Context, string) error {
	s.evals++
	return nil
}

func (s *fakeSession) MediaSource(context.Context, string) (string, error) {
	s.sourcePolls++
	if s.sourcePolls <= s.srcAfter {
		return "", nil
	}
	return s.src, nil
}

func (s *fakeSession) ResetFrame(context.Context) error {
	s.resets++
	s.frames = nil
	return nil
}

func testSettings() extractor.Settings {
	return extractor.Settings{
		TriggerSelector: "button.stream",
		OuterFrame:      "iframe.outer",
		PlaySelector:    "button.play",
		InnerFrame:      "iframe.inner",
		MediaSelector:   "video",
		PlaybackScript:  "document.querySelector('video').play()",
		TriggerTimeout:  time.Second,
		FrameTimeout:    time.Second,
		AdDwell:         3 * time.Second,
		PollInterval:    100 * time.Millisecond,
		SourceDeadline:  2 * time.Second,
	}
}

func newExtractor(session extractor.Session, clock extractor.Clock) *extractor.Extractor {
	return extractor.New(session, testSettings(), logging.NewNop(), extractor.WithClock(clock))
}

func TestExtractFindsSource(t *testing.T) {
	session := newFakeSession()
	session.triggerAfter = 2
	session.srcAfter = 3
	clock := newFakeClock()
	start := clock.Now()

	outcome, err := newExtractor(session, clock).Extract(context.Background(), "https://site.test/v/abc-123")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if outcome.URL != session.src || outcome.State != extractor.StateFound {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	want := []extractor.State{
		extractor.StateIdle,
		extractor.StateTriggerClicked,
		extractor.StateFrame1Entered,
		extractor.StatePlayTriggered,
		extractor.StateAdWindow,
		extractor.StateFrame2Entered,
		extractor.StatePollingForSrc,
		extractor.StateFound,
	}
	if len(outcome.Trace) != len(want) {
		t.Fatalf("unexpected trace: %v", outcome.Trace)
	}
	for i := range want {
		if outcome.Trace[i] != want[i] {
			t.Fatalf("trace[%d] = %s, want %s", i, outcome.Trace[i], want[i])
		}
	}
	if session.resets != 1 || len(session.frames) != 0 {
		t.Fatalf("expected session reset to top frame, resets=%d frames=%v", session.resets, session.frames)
	}
	if session.evals != 4 {
		t.Fatalf("expected playback script once per poll, got %d", session.evals)
	}
	if elapsed := clock.Now().Sub(start); elapsed < 3*time.Second {
		t.Fatalf("expected ad dwell to elapse, got %s", elapsed)
	}
}

func TestExtractResolvesRelativeSource(t *testing.T) {
	session := newFakeSession()
	session.src = "/media/abc.mp4?token=1"

	outcome, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc-123")
	if err != nil {
		t.Fatalf("Extract returned error: %v", err)
	}
	if outcome.URL != "https://site.test/media/abc.mp4?token=1" {
		t.Fatalf("unexpected resolved url: %q", outcome.URL)
	}
}

func TestExtractNoStreamTrigger(t *testing.T) {
	session := newFakeSession()
	session.triggerAfter = 1000

	outcome, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrNoStreamTrigger) {
		t.Fatalf("expected ErrNoStreamTrigger, got %v", err)
	}
	if outcome.State != extractor.StateIdle {
		t.Fatalf("expected idle state, got %s", outcome.State)
	}
	// 1s timeout at 100ms intervals: the initial attempt plus ten retries.
	if got := session.clicks["button.stream"]; got != 11 {
		t.Fatalf("expected 11 trigger attempts, got %d", got)
	}
	if session.resets != 1 {
		t.Fatalf("expected reset on failure, got %d", session.resets)
	}
}

func TestExtractOuterFrameMissing(t *testing.T) {
	session := newFakeSession()
	session.outerFrame = false

	outcome, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrFrameNotFound) {
		t.Fatalf("expected ErrFrameNotFound, got %v", err)
	}
	if outcome.State != extractor.StateTriggerClicked {
		t.Fatalf("unexpected state: %s", outcome.State)
	}
	if session.resets != 1 {
		t.Fatalf("expected reset on failure, got %d", session.resets)
	}
}

func TestExtractInnerFrameMissing(t *testing.T) {
	session := newFakeSession()
	session.innerFrame = false

	outcome, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrFrameNotFound) {
		t.Fatalf("expected ErrFrameNotFound, got %v", err)
	}
	if outcome.State != extractor.StateAdWindow {
		t.Fatalf("unexpected state: %s", outcome.State)
	}
	if session.resets != 1 || len(session.frames) != 0 {
		t.Fatalf("expected frames cleared, resets=%d frames=%v", session.resets, session.frames)
	}
}

func TestExtractTimesOutWithoutSource(t *testing.T) {
	session := newFakeSession()
	session.src = ""

	outcome, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrSourceTimeout) {
		t.Fatalf("expected ErrSourceTimeout, got %v", err)
	}
	if outcome.State != extractor.StateTimedOut || outcome.URL != "" {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if session.resets != 1 {
		t.Fatalf("expected reset on timeout, got %d", session.resets)
	}
}

func TestExtractIgnoresBlobSources(t *testing.T) {
	session := newFakeSession()
	session.src = "blob:https://site.test/1234"

	_, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrSourceTimeout) {
		t.Fatalf("expected blob source to be ignored, got %v", err)
	}
}

func TestExtractNavigationFailure(t *testing.T) {
	session := newFakeSession()
	session.navigateErr = errors.New("net::ERR_NAME_NOT_RESOLVED")

	_, err := newExtractor(session, newFakeClock()).Extract(context.Background(), "https://site.test/v/abc")
	if !errors.Is(err, extractor.ErrNavigation) {
		t.Fatalf("expected ErrNavigation, got %v", err)
	}
	if session.resets != 1 {
		t.Fatalf("expected reset after navigation failure, got %d", session.resets)
	}
}

func TestExtractCancelledBeforeStart(t *testing.T) {
	session := newFakeSession()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newExtractor(session, newFakeClock()).Extract(ctx, "https://site.test/v/abc"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(session.clicks) != 0 {
		t.Fatalf("expected no interaction, got %v", session.clicks)
	}
}

func TestExtractBoundsBlockedSessionCalls(t *testing.T) {
	session := newFakeSession()
	session.blockOn = "button.stream"
	settings := testSettings()
	settings.TriggerTimeout = 50 * time.Millisecond
	settings.PollInterval = 20 * time.Millisecond
	ext := extractor.New(session, settings, logging.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := ext.Extract(ctx, "https://site.test/v/abc")
	elapsed := time.Since(start)

	if !errors.Is(err, extractor.ErrNoStreamTrigger) {
		t.Fatalf("expected ErrNoStreamTrigger, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the attempt deadline in the chain, got %v", err)
	}
	if elapsed >= time.Second {
		t.Fatalf("expected the trigger step to end near its timeout, took %s", elapsed)
	}
	if session.undeadlined != 0 {
		t.Fatalf("expected every click to carry a deadline, %d did not", session.undeadlined)
	}
	if session.resets != 1 {
		t.Fatalf("expected reset after blocked step, got %d", session.resets)
	}
}
