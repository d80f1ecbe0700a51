// Package rodsession implements extractor.Session on a Chromium instance
// driven over the DevTools protocol.
package rodsession

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"vidharvest/internal/config"
	"vidharvest/internal/services"
)

// Session is a single browser tab plus the stack of frames entered so far.
type Session struct {
	mu              sync.Mutex
	browser         *rod.Browser
	root            *rod.Page
	frames          []*rod.Page
	launched        *launcher.Launcher
	navigateTimeout time.Duration
	callTimeout     time.Duration
}

// Open connects to cfg.ControlURL, or launches a local browser when unset,
// and opens one blank tab.
func Open(ctx context.Context, cfg config.Browser) (*Session, error) {
	controlURL := strings.TrimSpace(cfg.ControlURL)
	var launched *launcher.Launcher
	if controlURL == "" {
		launched = launcher.New().Headless(cfg.Headless).Context(ctx)
		u, err := launched.Launch()
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "extract", "launch browser", "Unable to start a Chromium instance", err)
		}
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		if launched != nil {
			launched.Kill()
		}
		return nil, services.Wrap(services.ErrConnectivity, "extract", "connect browser", "Unable to connect to the browser control endpoint", err)
	}
	// Detach from ctx so later calls are bounded per operation.
	browser = browser.Context(context.Background())

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		if launched != nil {
			launched.Kill()
		}
		return nil, services.Wrap(services.ErrExternalTool, "extract", "open tab", "Unable to open a browser tab", err)
	}

	timeout := time.Duration(cfg.NavigateTimeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Session{
		browser:         browser,
		root:            page,
		launched:        launched,
		navigateTimeout: timeout,
		callTimeout:     callTimeout(cfg),
	}, nil
}

// callTimeout caps a single query or click at the longest configured step.
func callTimeout(cfg config.Browser) time.Duration {
	longest := max(cfg.TriggerTimeoutMS, cfg.FrameTimeoutMS, cfg.SourceDeadlineMS)
	if longest <= 0 {
		return 30 * time.Second
	}
	return time.Duration(longest) * time.Millisecond
}

// Close shuts the tab and the browser connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	var firstErr error
	if s.root != nil {
		if err := s.root.Close(); err != nil {
			firstErr = err
		}
	}
	if s.browser != nil {
		if err := s.browser.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if s.launched != nil {
		s.launched.Kill()
	}
	return firstErr
}

// Navigate loads url in the top-level frame and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	page := s.root.Context(ctx).Timeout(s.navigateTimeout)
	defer page.CancelTimeout()
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load %s: %w", url, err)
	}
	return nil
}

// ClickVisible clicks the first visible match of selector in the current frame.
func (s *Session) ClickVisible(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.scoped(ctx)
	defer page.CancelTimeout()
	el, err := firstVisible(page, selector)
	if err != nil || el == nil {
		return false, err
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return false, fmt.Errorf("click %s: %w", selector, err)
	}
	return true, nil
}

// EnterFrame pushes the document of the first frame matching selector.
func (s *Session) EnterFrame(ctx context.Context, selector string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.scoped(ctx)
	defer page.CancelTimeout()
	elements, err := page.Elements(selector)
	if err != nil {
		return false, fmt.Errorf("query %s: %w", selector, err)
	}
	if elements.Empty() {
		return false, nil
	}
	frame, err := elements.First().Frame()
	if err != nil {
		// Not yet attached; the caller polls again.
		return false, nil
	}
	s.frames = append(s.frames, frame)
	return true, nil
}

// Eval runs script, given as a JavaScript function expression, in the
// current frame.
func (s *Session) Eval(ctx context.Context, script string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.scoped(ctx)
	defer page.CancelTimeout()
	if _, err := page.Eval(asFunction(script)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

// MediaSource reports currentSrc, falling back to src, of the first match.
func (s *Session) MediaSource(ctx context.Context, selector string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.scoped(ctx)
	defer page.CancelTimeout()
	elements, err := page.Elements(selector)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", selector, err)
	}
	if elements.Empty() {
		return "", nil
	}
	result, err := elements.First().Eval(`() => this.currentSrc || this.src || ''`)
	if err != nil {
		return "", fmt.Errorf("read media source: %w", err)
	}
	return result.Value.Str(), nil
}

// ResetFrame drops every entered frame.
func (s *Session) ResetFrame(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
	return nil
}

func (s *Session) current() *rod.Page {
	if n := len(s.frames); n > 0 {
		return s.frames[n-1]
	}
	return s.root
}

// scoped binds the current frame to ctx and the per-call timeout. Elements
// queried from it inherit both.
func (s *Session) scoped(ctx context.Context) *rod.Page {
	return s.current().Context(ctx).Timeout(s.callTimeout)
}

func firstVisible(page *rod.Page, selector string) (*rod.Element, error) {
	elements, err := page.Elements(selector)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	for _, el := range elements {
		visible, err := el.Visible()
		if err != nil {
			continue
		}
		if visible {
			return el, nil
		}
	}
	return nil, nil
}

func asFunction(script string) string {
	trimmed := strings.TrimSpace(script)
	if strings.HasPrefix(trimmed, "()") || strings.HasPrefix(trimmed, "function") {
		return trimmed
	}
	return "() => { " + trimmed + " }"
}
