package extractor

import (
	"context"
	"time"
)

// Session is one stateful browser tab. Each method makes a single attempt and
// reports whether it found what it was asked for; retries and timeouts belong
// to the Extractor.
type Session interface {
	// Navigate loads url in the top-level frame.
	Navigate(ctx context.Context, url string) error
	// ClickVisible clicks the first visible element matching selector.
	ClickVisible(ctx context.Context, selector string) (bool, error)
	// EnterFrame switches into the first frame element matching selector
	// inside the current browsing context.
	EnterFrame(ctx context.Context, selector string) (bool, error)
	// Eval runs a script in the current browsing context.
	Eval(ctx context.Context, script string) error
	// MediaSource returns the current source of the first element matching
	// selector, or "" when absent or not yet assigned.
	MediaSource(ctx context.Context, selector string) (string, error)
	// ResetFrame returns to the top-level frame.
	ResetFrame(ctx context.Context) error
}

// Clock abstracts the timers used by the state machine.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock returns a Clock backed by the time package.
func RealClock() Clock { return realClock{} }
