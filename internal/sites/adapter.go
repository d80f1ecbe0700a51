// Package sites defines the contract between catalog ingestion and the
// per-site page parsers, and the registry that selects a parser by name.
package sites

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// PageRange selects listing pages, inclusive. End zero means Start only.
type PageRange struct {
	Start int
	End   int
}

// Pages expands the range into page numbers.
func (r PageRange) Pages() []int {
	start := max(r.Start, 1)
	end := r.End
	if end < start {
		end = start
	}
	pages := make([]int, 0, end-start+1)
	for page := start; page <= end; page++ {
		pages = append(pages, page)
	}
	return pages
}

// RawListing is one item scraped from a listing page.
type RawListing struct {
	CodeHint     string
	PageLink     string
	Title        string
	ThumbnailURL string
}

// DetailRecord carries fields parsed from a content page.
type DetailRecord struct {
	Code           string
	Title          string
	ThumbnailURL   string
	ReleaseDate    string
	RuntimeMinutes *int
	Uncensored     bool
	Categories     []string
	Tags           []string
	People         []string
	Studio         string
}

// Adapter is implemented once per source site.
type Adapter interface {
	SiteName() string
	ListRawEntries(ctx context.Context, pages PageRange) ([]RawListing, error)
	// FetchDetail returns nil without error when the page no longer exists.
	FetchDetail(ctx context.Context, listing RawListing) (*DetailRecord, error)
}

// ReferenceSource is implemented by adapters that publish their own category
// or tag index.
type ReferenceSource interface {
	Categories(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
}

// HTTPStatusError reports a non-success status from a site.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	return fmt.Sprintf("GET %s: HTTP %d", e.URL, e.StatusCode)
}

// IsNotFound reports whether err is an HTTP 404 or 410.
func IsNotFound(err error) bool {
	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusNotFound || statusErr.StatusCode == http.StatusGone
	}
	return false
}

// FetchHTML GETs pageURL and returns the body of a 2xx response.
func FetchHTML(ctx context.Context, client *http.Client, pageURL string) ([]byte, error) {
	if client == nil {
		return nil, errors.New("http client is required")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", pageURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &HTTPStatusError{URL: pageURL, StatusCode: resp.StatusCode}
	}
	if len(body) == 0 {
		return nil, fmt.Errorf("read %s: empty response body", pageURL)
	}
	return body, nil
}

// NormalizeLink trims whitespace, fragments and trailing slashes so the same
// page is never stored under two spellings.
func NormalizeLink(link string) string {
	link = strings.TrimSpace(link)
	if idx := strings.IndexByte(link, '#'); idx >= 0 {
		link = link[:idx]
	}
	for len(link) > 1 && strings.HasSuffix(link, "/") && !strings.HasSuffix(link, "://") {
		link = strings.TrimSuffix(link, "/")
	}
	return link
}
