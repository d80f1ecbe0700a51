package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"vidharvest/internal/config"
	"vidharvest/internal/logging"
)

// State names a step of the extraction funnel.
type State string

const (
	StateIdle           State = "idle"
	StateTriggerClicked State = "trigger_clicked"
	StateFrame1Entered  State = "frame1_entered"
	StatePlayTriggered  State = "play_triggered"
	StateAdWindow       State = "ad_window"
	StateFrame2Entered  State = "frame2_entered"
	StatePollingForSrc  State = "polling_for_src"
	StateFound          State = "found"
	StateTimedOut       State = "timed_out"
)

var (
	ErrNavigation      = errors.New("page navigation failed")
	ErrNoStreamTrigger = errors.New("no stream trigger visible")
	ErrFrameNotFound   = errors.New("player frame not found")
	ErrSourceTimeout   = errors.New("media source not assigned before deadline")
)

// Settings bounds every step of the funnel.
type Settings struct {
	TriggerSelector string
	OuterFrame      string
	PlaySelector    string
	InnerFrame      string
	MediaSelector   string
	PlaybackScript  string
	NavigateTimeout time.Duration
	TriggerTimeout  time.Duration
	FrameTimeout    time.Duration
	AdDwell         time.Duration
	PollInterval    time.Duration
	SourceDeadline  time.Duration
}

// SettingsFromConfig converts browser configuration into extractor settings.
func SettingsFromConfig(cfg config.Browser) Settings {
	return Settings{
		TriggerSelector: cfg.TriggerSelector,
		OuterFrame:      cfg.OuterFrame,
		PlaySelector:    cfg.PlaySelector,
		InnerFrame:      cfg.InnerFrame,
		MediaSelector:   cfg.MediaSelector,
		PlaybackScript:  cfg.PlaybackScript,
		NavigateTimeout: time.Duration(cfg.NavigateTimeout) * time.Second,
		TriggerTimeout:  time.Duration(cfg.TriggerTimeoutMS) * time.Millisecond,
		FrameTimeout:    time.Duration(cfg.FrameTimeoutMS) * time.Millisecond,
		AdDwell:         time.Duration(cfg.AdDwellMS) * time.Millisecond,
		PollInterval:    time.Duration(cfg.PollIntervalMS) * time.Millisecond,
		SourceDeadline:  time.Duration(cfg.SourceDeadlineMS) * time.Millisecond,
	}
}

// Outcome describes how far an extraction got.
type Outcome struct {
	URL   string
	State State
	Trace []State
}

// Extractor runs the funnel against one Session.
type Extractor struct {
	session  Session
	settings Settings
	clock    Clock
	logger   *slog.Logger
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithClock replaces the real clock.
func WithClock(clock Clock) Option {
	return func(e *Extractor) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New builds an extractor bound to session.
func New(session Session, settings Settings, logger *slog.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		session:  session,
		settings: settings,
		clock:    RealClock(),
		logger:   logging.NewComponentLogger(logger, "extractor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.settings.PollInterval <= 0 {
		e.settings.PollInterval = 250 * time.Millisecond
	}
	if e.settings.NavigateTimeout <= 0 {
		e.settings.NavigateTimeout = 60 * time.Second
	}
	return e
}

// Extract walks pageURL through the funnel and returns the absolute media URL.
// Cancelling ctx stops a run before it starts; once started, steps are bounded
// only by their own timeouts, and every session call carries a deadline.
func (e *Extractor) Extract(ctx context.Context, pageURL string) (outcome Outcome, err error) {
	if err := ctx.Err(); err != nil {
		return Outcome{State: StateIdle}, err
	}
	stepCtx := context.WithoutCancel(ctx)
	logger := logging.WithContext(ctx, e.logger).With(slog.String("page", pageURL))

	outcome = Outcome{State: StateIdle, Trace: []State{StateIdle}}
	advance := func(state State) {
		outcome.State = state
		outcome.Trace = append(outcome.Trace, state)
		logger.Debug("extraction state", slog.String("state", string(state)))
	}

	defer func() {
		resetCtx, cancel := e.attemptContext(stepCtx, e.clock.Now().Add(e.settings.FrameTimeout))
		defer cancel()
		if resetErr := e.session.ResetFrame(resetCtx); resetErr != nil {
			logger.Warn("failed to reset browsing context",
				logging.Error(resetErr),
				logging.String(logging.FieldEventType, "session_reset_failed"),
				logging.String(logging.FieldErrorHint, "restart the browser session if later extractions fail"),
			)
		}
	}()

	navCtx, cancelNav := context.WithTimeout(stepCtx, e.settings.NavigateTimeout)
	err = e.session.Navigate(navCtx, pageURL)
	cancelNav()
	if err != nil {
		return outcome, fmt.Errorf("%w: %w", ErrNavigation, err)
	}

	found, err := e.waitFor(stepCtx, e.settings.TriggerTimeout, func(ctx context.Context) (bool, error) {
		return e.session.ClickVisible(ctx, e.settings.TriggerSelector)
	})
	if !found {
		return outcome, stepError(ErrNoStreamTrigger, err)
	}
	advance(StateTriggerClicked)

	found, err = e.waitFor(stepCtx, e.settings.FrameTimeout, func(ctx context.Context) (bool, error) {
		return e.session.EnterFrame(ctx, e.settings.OuterFrame)
	})
	if !found {
		return outcome, stepError(ErrFrameNotFound, err)
	}
	advance(StateFrame1Entered)

	found, err = e.waitFor(stepCtx, e.settings.FrameTimeout, func(ctx context.Context) (bool, error) {
		return e.session.ClickVisible(ctx, e.settings.PlaySelector)
	})
	if !found {
		return outcome, stepError(ErrFrameNotFound, err)
	}
	advance(StatePlayTriggered)

	advance(StateAdWindow)
	<-e.clock.After(e.settings.AdDwell)

	found, err = e.waitFor(stepCtx, e.settings.FrameTimeout, func(ctx context.Context) (bool, error) {
		return e.session.EnterFrame(ctx, e.settings.InnerFrame)
	})
	if !found {
		return outcome, stepError(ErrFrameNotFound, err)
	}
	advance(StateFrame2Entered)

	advance(StatePollingForSrc)
	src, err := e.pollSource(stepCtx, logger)
	if src == "" {
		advance(StateTimedOut)
		return outcome, stepError(ErrSourceTimeout, err)
	}
	resolved, err := resolveURL(pageURL, src)
	if err != nil {
		advance(StateTimedOut)
		return outcome, fmt.Errorf("%w: %w", ErrSourceTimeout, err)
	}
	outcome.URL = resolved
	advance(StateFound)
	return outcome, nil
}

// waitFor retries attempt every poll interval until it reports true or the
// timeout elapses. Each attempt runs on a context that expires with the step.
// The last attempt error is returned for context.
func (e *Extractor) waitFor(ctx context.Context, timeout time.Duration, attempt func(context.Context) (bool, error)) (bool, error) {
	deadline := e.clock.Now().Add(timeout)
	var lastErr error
	for {
		attemptCtx, cancel := e.attemptContext(ctx, deadline)
		ok, err := attempt(attemptCtx)
		cancel()
		if ok {
			return true, nil
		}
		if err != nil {
			lastErr = err
		}
		if !e.clock.Now().Before(deadline) {
			return false, lastErr
		}
		<-e.clock.After(e.settings.PollInterval)
	}
}

func (e *Extractor) pollSource(ctx context.Context, logger *slog.Logger) (string, error) {
	deadline := e.clock.Now().Add(e.settings.SourceDeadline)
	var lastErr error
	for {
		src, err := e.readSource(ctx, deadline, logger)
		if err != nil {
			lastErr = err
		}
		src = strings.TrimSpace(src)
		if src != "" && !strings.HasPrefix(src, "blob:") {
			return src, nil
		}
		if !e.clock.Now().Before(deadline) {
			return "", lastErr
		}
		<-e.clock.After(e.settings.PollInterval)
	}
}

func (e *Extractor) readSource(ctx context.Context, deadline time.Time, logger *slog.Logger) (string, error) {
	attemptCtx, cancel := e.attemptContext(ctx, deadline)
	defer cancel()
	if script := strings.TrimSpace(e.settings.PlaybackScript); script != "" {
		if err := e.session.Eval(attemptCtx, script); err != nil {
			logger.Debug("playback script failed", logging.Error(err))
		}
	}
	return e.session.MediaSource(attemptCtx, e.settings.MediaSelector)
}

// attemptContext bounds one session call by the time left before deadline,
// never less than one poll interval.
func (e *Extractor) attemptContext(ctx context.Context, deadline time.Time) (context.Context, context.CancelFunc) {
	remaining := deadline.Sub(e.clock.Now())
	if remaining < e.settings.PollInterval {
		remaining = e.settings.PollInterval
	}
	return context.WithTimeout(ctx, remaining)
}

func stepError(marker, cause error) error {
	if cause == nil {
		return marker
	}
	return fmt.Errorf("%w: %w", marker, cause)
}

func resolveURL(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse media url %q: %w", ref, err)
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse page url %q: %w", base, err)
	}
	return baseURL.ResolveReference(refURL).String(), nil
}
