// Package httpx builds the HTTP clients used for site pages, posters and the
// distribution feed: a rotating User-Agent, optional proxy, and bounded
// retries for replayable requests.
package httpx

import (
	"errors"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultRetryMax = 2
)

// Transport sets a random User-Agent per request and retries GET and HEAD
// requests without a body on transport errors.
type Transport struct {
	Base *http.Transport
	// RetryMax excludes the first attempt.
	RetryMax int
	// DisableKeepAlives also marks each request Close.
	DisableKeepAlives bool
	UserAgents        []string
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	replayable := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	retries := max(t.RetryMax, 0)
	if !replayable {
		retries = 0
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		clone := req.Clone(req.Context())
		if clone.Header.Get("User-Agent") == "" {
			clone.Header.Set("User-Agent", t.userAgent())
		}
		if t.DisableKeepAlives {
			clone.Close = true
		}
		resp, err := t.Base.RoundTrip(clone)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (t *Transport) userAgent() string {
	pool := t.UserAgents
	if len(pool) == 0 {
		pool = defaultUserAgents
	}
	return pool[rand.IntN(len(pool))]
}

var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_4) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

// Options configure NewClient.
type Options struct {
	ProxyURL string
	Timeout  time.Duration
	RetryMax int
}

// NewClient returns a client with the rotating transport. A proxy forces a
// fresh connection per request so rotating proxy pools see distinct clients.
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		MaxIdleConnsPerHost:   10,
	}
	disableKeepAlives := false
	if proxy := strings.TrimSpace(opts.ProxyURL); proxy != "" {
		u, err := url.Parse(proxy)
		if err != nil {
			return nil, err
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	retries := opts.RetryMax
	if retries == 0 {
		retries = defaultRetryMax
	}
	return &http.Client{
		Transport: &Transport{
			Base:              base,
			RetryMax:          retries,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}
