// Package javct parses javct.net listing, detail and category pages.
package javct

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"vidharvest/internal/sites"
)

// DefaultBaseURL is the production site root.
const DefaultBaseURL = "https://javct.net"

// Adapter implements sites.Adapter and sites.ReferenceSource.
type Adapter struct {
	baseURL string
	client  *http.Client
}

// New returns an adapter rooted at baseURL, or DefaultBaseURL when empty.
func New(baseURL string, client *http.Client) *Adapter {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Adapter{baseURL: baseURL, client: client}
}

// SiteName implements sites.Adapter.
func (a *Adapter) SiteName() string { return "javct" }

// ListRawEntries scrapes every card from the requested listing pages.
func (a *Adapter) ListRawEntries(ctx context.Context, pages sites.PageRange) ([]sites.RawListing, error) {
	var listings []sites.RawListing
	for _, page := range pages.Pages() {
		if err := ctx.Err(); err != nil {
			return listings, err
		}
		pageURL := fmt.Sprintf("%s/videos?page=%d", a.baseURL, page)
		body, err := sites.FetchHTML(ctx, a.client, pageURL)
		if err != nil {
			return listings, err
		}
		parsed, err := ParseListing(body, pageURL)
		if err != nil {
			return listings, fmt.Errorf("parse listing page %d: %w", page, err)
		}
		listings = append(listings, parsed...)
	}
	return listings, nil
}

// FetchDetail loads the content page of listing.
func (a *Adapter) FetchDetail(ctx context.Context, listing sites.RawListing) (*sites.DetailRecord, error) {
	pageURL := strings.TrimSpace(listing.PageLink)
	if pageURL == "" {
		if listing.CodeHint == "" {
			return nil, errors.New("listing has neither page link nor code")
		}
		pageURL = a.baseURL + "/v/" + strings.ToLower(listing.CodeHint)
	}
	body, err := sites.FetchHTML(ctx, a.client, pageURL)
	if err != nil {
		if sites.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return ParseDetail(body, pageURL)
}

// Categories returns the names on the site's category index.
func (a *Adapter) Categories(ctx context.Context) ([]string, error) {
	pageURL := a.baseURL + "/categories"
	body, err := sites.FetchHTML(ctx, a.client, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	var names []string
	doc.Find("div.card__content h3.card__title a").Each(func(_ int, s *goquery.Selection) {
		names = append(names, normSpace(s.Text()))
	})
	return normList(names), nil
}

// Tags returns nothing: the site publishes no tag index.
func (a *Adapter) Tags(context.Context) ([]string, error) {
	return nil, nil
}

// ParseListing extracts cards from a listing page.
func ParseListing(html []byte, pageURL string) ([]sites.RawListing, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	var listings []sites.RawListing
	doc.Find("div.card").Each(func(_ int, card *goquery.Selection) {
		anchor := card.Find("h3.card__title a").First()
		href, ok := anchor.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		link := sites.NormalizeLink(resolveURL(pageURL, href))
		listings = append(listings, sites.RawListing{
			CodeHint:     codeFromLink(link),
			PageLink:     link,
			Title:        normSpace(anchor.Text()),
			ThumbnailURL: imageURL(card.Find("img").First(), pageURL),
		})
	})
	return listings, nil
}

// ParseDetail extracts a DetailRecord. It returns nil when the page is a
// not-found placeholder.
func ParseDetail(html []byte, pageURL string) (*sites.DetailRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}
	if strings.Contains(doc.Find("h1").First().Text(), "404") || doc.Find("div.card__content").Length() == 0 {
		return nil, nil
	}

	meta := metaFields(doc)
	code := strings.ToUpper(meta.text("Code"))
	if code == "" {
		code = codeFromLink(pageURL)
	}
	title := normSpace(doc.Find("div.card__content h1").First().Text())
	if code != "" && len(title) > len(code) && strings.EqualFold(title[:len(code)], code) {
		title = strings.TrimSpace(title[len(code):])
	}

	record := &sites.DetailRecord{
		Code:         code,
		Title:        title,
		ThumbnailURL: imageURL(doc.Find("div.card__cover img").First(), pageURL),
		ReleaseDate:  meta.text("Release Date"),
		Studio:       firstOf(meta.names("Studio")),
		Categories:   meta.names("Categories"),
		Tags:         meta.names("Tags"),
		People:       normList(append(meta.names("Actress"), meta.names("Cast")...)),
	}
	if minutes, ok := firstInt(meta.text("Runtime")); ok {
		record.RuntimeMinutes = &minutes
	}
	for _, name := range record.Categories {
		if strings.EqualFold(name, "uncensored") {
			record.Uncensored = true
			break
		}
	}
	return record, nil
}

// metaRow is one "Label: values" item of the card__meta list.
type metaRow struct {
	value string
	names []string
}

type metaTable map[string]metaRow

func metaFields(doc *goquery.Document) metaTable {
	table := metaTable{}
	doc.Find("ul.card__meta li").Each(func(_ int, li *goquery.Selection) {
		label := normSpace(li.Find("span").First().Text())
		label = strings.TrimSuffix(label, ":")
		if label == "" {
			return
		}
		var names []string
		li.Find("a").Each(func(_ int, a *goquery.Selection) {
			name, _ := a.Attr("title")
			if strings.TrimSpace(name) == "" {
				name = a.Text()
			}
			names = append(names, normSpace(name))
		})
		value := normSpace(strings.TrimPrefix(normSpace(li.Text()), normSpace(li.Find("span").First().Text())))
		table[strings.ToLower(label)] = metaRow{value: value, names: normList(names)}
	})
	return table
}

func (t metaTable) text(label string) string {
	return t[strings.ToLower(label)].value
}

func (t metaTable) names(label string) []string {
	row := t[strings.ToLower(label)]
	if len(row.names) > 0 {
		return row.names
	}
	if row.value == "" {
		return nil
	}
	return normList(strings.Split(row.value, ","))
}

func codeFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	dir, slug := path.Split(strings.TrimRight(u.Path, "/"))
	if !strings.HasSuffix(dir, "/v/") || slug == "" {
		return ""
	}
	return strings.ToUpper(slug)
}

func imageURL(img *goquery.Selection, pageURL string) string {
	for _, attr := range []string{"data-src", "src"} {
		if value, ok := img.Attr(attr); ok && strings.TrimSpace(value) != "" && !strings.HasPrefix(value, "data:") {
			return resolveURL(pageURL, value)
		}
	}
	return ""
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return href
	}
	return baseURL.ResolveReference(ref).String()
}

func firstInt(value string) (int, bool) {
	start := strings.IndexAny(value, "0123456789")
	if start < 0 {
		return 0, false
	}
	end := start
	for end < len(value) && value[end] >= '0' && value[end] <= '9' {
		end++
	}
	n, err := strconv.Atoi(value[start:end])
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func firstOf(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func normSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normList(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = normSpace(value)
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
