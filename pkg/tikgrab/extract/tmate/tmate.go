// Package tmate extracts direct video links via tmate.cc.
package tmate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	Name = "tmate"

	// DefaultBaseURL is the production site.
	DefaultBaseURL = "https://tmate.cc"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:107.0) Gecko/20100101 Firefox/107.4"
)

// Extractor drives tmate.cc: the landing page carries a session token, and
// /action answers the form post with JSON whose data field is an HTML
// fragment holding the download buttons.
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

// New creates a tmate extractor.
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
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "token", Err: err}
	}

	token := doc.Find(`input[name="token"]`).AttrOr("value", "")
	if token == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "token", Err: errors.New("token input not found")}
	}

	form := url.Values{
		"url":   {sourceURL},
		"token": {token},
	}
	body, err := extract.Request(ctx, client, http.MethodPost, e.baseURL+"/action", header, form)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "action", Err: err}
	}

	var payload struct {
		Data string `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "action", Err: fmt.Errorf("invalid JSON response: %w", err)}
	}
	if payload.Data == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "action", Err: errors.New("response carried no data field")}
	}

	fragment, err := extract.ParseFragment(payload.Data)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "links", Err: err}
	}

	// First link is the no-watermark version.
	link := extract.FirstHref(fragment, ".downtmate-right.is-desktop-only.right a")
	if link == "" {
		return nil, &tikgrab.ExtractError{Provider: Name, Op: "links", Err: tikgrab.ErrNoDownloadLink}
	}

	return &tikgrab.ExtractedLink{URL: link, Provider: Name, Headers: header}, nil
}

func (e *Extractor) headers() http.Header {
	h := make(http.Header)
	h.Set("User-Agent", userAgent)
	h.Set("Origin", e.baseURL)
	h.Set("Connection", "keep-alive")
	h.Set("Referer", e.baseURL+"/")
	h.Set("Sec-Fetch-Site", "same-origin")
	return h
}
