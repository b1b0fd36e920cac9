// Package extract holds the shared plumbing for the extractor subpackages:
// cookie-jar HTTP sessions, form posting, HTML parsing helpers, and the
// production VideoFetcher.
//
// The download sites all follow the same dance: fetch a page that carries a
// per-session token, post the TikTok URL plus that token to a form endpoint,
// and scrape the direct video link out of the response. The token is bound
// to session cookies, so each extraction attempt runs on a client with a
// fresh jar.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"github.com/tikgrab/tikgrab/pkg/tikgrab"
	"github.com/tikgrab/tikgrab/pkg/tikgrab/tiktok"
)

// NewBrowserClient returns a copy of base with a fresh cookie jar. A nil
// base gets a plain client; Transport, Timeout and CheckRedirect carry over
// from base so callers can configure proxies or test transports once.
func NewBrowserClient(base *http.Client) (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	client := &http.Client{Jar: jar}
	if base != nil {
		client.Transport = base.Transport
		client.Timeout = base.Timeout
		client.CheckRedirect = base.CheckRedirect
	}
	return client, nil
}

// Request performs an HTTP request with the given headers and optional form
// body and returns the full response body. Any non-200 status is an error.
func Request(ctx context.Context, client *http.Client, method, rawURL string, header http.Header, form url.Values) ([]byte, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("request to %s failed with status %d", rawURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// RequestDocument performs Request and parses the body as HTML.
func RequestDocument(ctx context.Context, client *http.Client, method, rawURL string, header http.Header, form url.Values) (*goquery.Document, error) {
	body, err := Request(ctx, client, method, rawURL, header, form)
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(bytes.NewReader(body))
}

// ParseFragment parses an HTML fragment, such as one delivered inside a
// JSON payload.
func ParseFragment(fragment string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(fragment))
}

// FirstHref returns the href of the first anchor matched by selector that
// carries a non-empty href, or "" when none does.
func FirstHref(doc *goquery.Document, selector string) string {
	var href string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if h, ok := s.Attr("href"); ok && h != "" {
			href = h
			return false
		}
		return true
	})
	return href
}

// Fetcher is the production tikgrab.VideoFetcher. It streams the bytes
// behind an extracted link, presenting whatever headers the extractor
// attached since some CDNs check Referer.
type Fetcher struct {
	client *http.Client
}

// NewFetcher returns a Fetcher backed by client. A nil client gets a plain
// client without a timeout: video bodies can take minutes to stream, so
// cancellation is left to the request context.
func NewFetcher(client *http.Client) *Fetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &Fetcher{client: client}
}

// Fetch opens the video stream behind link. The caller owns the returned
// Body.
func (f *Fetcher) Fetch(ctx context.Context, link *tikgrab.ExtractedLink) (*tikgrab.VideoPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link.URL, nil)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: link.Provider, Op: "fetch", Err: err}
	}
	if len(link.Headers) > 0 {
		for k, vs := range link.Headers {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}
	} else {
		tiktok.SetBrowserHeaders(req.Header)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &tikgrab.ExtractError{Provider: link.Provider, Op: "fetch", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &tikgrab.ExtractError{
			Provider: link.Provider,
			Op:       "fetch",
			Err:      fmt.Errorf("video request failed with status %d", resp.StatusCode),
		}
	}

	return &tikgrab.VideoPayload{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
