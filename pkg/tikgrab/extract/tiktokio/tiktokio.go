// Package tiktokio extracts direct video links via tiktokio.com.
package tiktokio

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/extract"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

const (
	// Name identifies this extractor in records and logs.
	Name = "tiktokio"

	// DefaultBaseURL is the production site.
	DefaultBaseURL = "https://tiktokio.com"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:131.0) Gecko/20100101 Firefox/131.0"
)

// Extractor drives tiktokio.com. The site is htmx-based: the landing page
// carries a prefix token, and the search endpoint answers form posts that
// look like htmx requests with an HTML fragment of download links.
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

// New creates a tiktokio extractor.
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

	doc, err := extract.RequestDocument(ctx, client, http.MethodGet, e.baseURL+"/", header, nil)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "prefix", Err: err}
	}

	prefix := doc.Find(`input[name="prefix"]`).AttrOr("value", "")
	if prefix == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "prefix", Err: errors.New("prefix input not found")}
	}

	form := url.Values{
		"prefix": {prefix},
		"vid":    {sourceURL},
	}
	result, err := extract.RequestDocument(ctx, client, http.MethodPost, e.baseURL+"/api/v1/tk-htmx", header, form)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "search", Err: err}
	}

	// First link is the no-watermark version.
	link := extract.FirstHref(result, "div.tk-down-link a")
	if link == "" {
		link = extract.FirstHref(result, `a[href*=".mp4"]`)
	}
	if link == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "links", Err: tikgrab.ErrNoDownloadLink}
	}

	return &tikgrab.ExtractedLink{URL: link, Provider: Name, Headers: header}, nil
}

func (e *Extractor) headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Accept", "*/*")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("HX-Request", "true")
	h.Set("HX-Trigger", "search-btn")
	h.Set("HX-Target", "tiktok-parse-result")
	h.Set("HX-Current-URL", e.baseURL+"/")
	h.Set("Origin", e.baseURL)
	h.Set("Connection", "keep-alive")
	h.Set("Referer", e.baseURL+"/")
	return h
}
