// Package musicaldown extracts direct video links via musicaldown.com.
package musicaldown

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/extract"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

const (
	// Name identifies this extractor in records and logs.
	Name = "musicaldown"

	// DefaultBaseURL is the production site.
	DefaultBaseURL = "https://musicaldown.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0"
)

// Extractor drives musicaldown.com: the /en page serves a form whose input
// names are randomized per session, so both the URL field name and the
// hidden token are scraped before posting.
type Extractor struct {
	baseURL string
	client  *http.Client
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBaseURL points the extractor at a different host, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(e *Extractor) {
		e.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the template client (transport, timeout). Each
// extraction still runs on its own cookie jar.
func WithHTTPClient(client *http.Client) Option {
	return func(e *Extractor) {
		e.client = client
	}
}

// New creates a musicaldown extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		baseURL: DefaultBaseURL,
		client:  &http.Client{Timeout: 45 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements tikgrab.Extractor.
func (e *Extractor) Name() string { return Name }

// Extract implements tikgrab.Extractor.
func (e *Extractor) Extract(ctx context.Context, post tiktok.Post, sourceURL string) (*tikgrab.ExtractedLink, error) {
	client, err := extract.NewBrowserClient(e.client)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "session", Err: err}
	}
	header := e.headers()

	doc, err := extract.RequestDocument(ctx, client, http.MethodGet, e.baseURL+"/en", header, nil)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "tokens", Err: err}
	}

	linkInput := doc.Find("input#link_url").First()
	urlField, ok := linkInput.Attr("name")
	if !ok || urlField == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "tokens", Err: errors.New("link_url input not found")}
	}

	// The session token is the input that follows link_url in the form.
	tokenInput := linkInput.NextAllFiltered("input").First()
	tokenField, okName := tokenInput.Attr("name")
	tokenValue, okValue := tokenInput.Attr("value")
	if !okName || !okValue || tokenField == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "tokens", Err: errors.New("session token input not found")}
	}

	form := url.Values{
		urlField:   {sourceURL},
		tokenField: {tokenValue},
		"verify":   {"1"},
	}
	result, err := extract.RequestDocument(ctx, client, http.MethodPost, e.baseURL+"/download", header, form)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "download", Err: err}
	}

	link := downloadLink(result)
	if link == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "links", Err: tikgrab.ErrNoDownloadLink}
	}

	return &tikgrab.ExtractedLink{URL: link, Provider: Name, Headers: header}, nil
}

// downloadLink picks the video link out of the results page: first any
// download button inside the result rows, then any .mp4 anchor at all.
func downloadLink(doc *goquery.Document) string {
	var link string
	doc.Find("div.row a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if ok && href != "" && strings.Contains(s.Text(), "Download") {
			link = href
			return false
		}
		return true
	})
	if link == "" {
		link = extract.FirstHref(doc, `a[href*=".mp4"]`)
	}
	return link
}

func (e *Extractor) headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Sec-Fetch-Site", "same-origin")
	h.Set("Origin", e.baseURL)
	h.Set("Connection", "keep-alive")
	h.Set("Referer", e.baseURL+"/en?ref=more")
	return h
}
