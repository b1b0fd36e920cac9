// Package tiktok knows the shape of TikTok share URLs: how to pull the
// author and post ID out of a canonical link, how to recognize shortened
// share links (vm.tiktok.com, vt.tiktok.com), and how to expand those into
// the canonical form by following redirects.
//
// The package is deliberately free of any service concerns so it can be
// used from handlers, extractors, and tests alike.
package tiktok

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// Kind distinguishes the two post types TikTok serves under /@user/....
type Kind string

const (
	KindVideo Kind = "video"
	KindPhoto Kind = "photo"
)

// PlaceholderUsername is used when a URL carries a recognizable post ID but
// no @username segment (some shortened or embed-style links).
const PlaceholderUsername = "user"

// Post identifies a single TikTok post.
type Post struct {
	Username string
	ID       string
	Kind     Kind
}

// Parsing errors.
var (
	ErrUsernameNotFound = errors.New("could not extract username from URL")
	ErrVideoIDNotFound  = errors.New("could not extract video ID from URL")
	ErrResolveFailed    = errors.New("could not resolve shortened URL")
)

var (
	usernameRe = regexp.MustCompile(`@([A-Za-z0-9_.]+)`)
	contentRe  = regexp.MustCompile(`/(video|photo)/(\d+)`)

	// Post IDs are long digit runs; accept them even when the URL does not
	// follow the canonical /@user/video/<id> layout.
	looseIDRe = regexp.MustCompile(`[/=](\d{15,})`)
)

// Parse extracts the username, post ID and post kind from a canonical
// TikTok URL. URLs that lack the /@user/ or /video/<id> segments are still
// accepted when a long numeric ID can be found anywhere in the URL; such
// posts are assumed to be videos and get PlaceholderUsername unless the
// username was present.
func Parse(rawURL string) (Post, error) {
	userMatch := usernameRe.FindStringSubmatch(rawURL)
	contentMatch := contentRe.FindStringSubmatch(rawURL)

	if userMatch == nil || contentMatch == nil {
		if m := looseIDRe.FindStringSubmatch(rawURL); m != nil {
			post := Post{Username: PlaceholderUsername, ID: m[1], Kind: KindVideo}
			if userMatch != nil {
				post.Username = userMatch[1]
			}
			return post, nil
		}
	}
	if userMatch == nil {
		return Post{}, fmt.Errorf("%w: %s", ErrUsernameNotFound, rawURL)
	}
	if contentMatch == nil {
		return Post{}, fmt.Errorf("%w: %s", ErrVideoIDNotFound, rawURL)
	}

	return Post{
		Username: userMatch[1],
		ID:       contentMatch[2],
		Kind:     Kind(contentMatch[1]),
	}, nil
}

// IsShortLink reports whether rawURL is one of TikTok's shortened share
// domains, which redirect to the canonical post URL.
func IsShortLink(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return strings.Contains(rawURL, "vm.tiktok.com") || strings.Contains(rawURL, "vt.tiktok.com")
	}
	host := strings.TrimPrefix(u.Hostname(), "www.")
	return host == "vm.tiktok.com" || host == "vt.tiktok.com"
}

// Filename returns the attachment filename served for a downloaded post.
func Filename(id string) string {
	return fmt.Sprintf("tiktok_%s.mp4", id)
}

// Resolver expands shortened share links by following their redirect chain.
type Resolver struct {
	client *http.Client
}

// NewResolver returns a Resolver backed by client. A nil client gets a
// default with a 30s timeout; redirect following is left enabled since that
// is the whole point.
func NewResolver(client *http.Client) *Resolver {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Resolver{client: client}
}

// Resolve follows redirects from rawURL and returns the final URL. TikTok's
// short domains 301 through an intermediate hop before landing on the
// canonical /@user/video/<id> page, so the request is made with ordinary
// browser headers to avoid the bot interstitial.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolveFailed, err)
	}
	SetBrowserHeaders(req.Header)

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrResolveFailed, err)
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}

// SetBrowserHeaders stamps h with a desktop-Chrome header set. TikTok and
// the third-party download sites answer differently (or not at all) to
// clients that do not look like a browser.
func SetBrowserHeaders(h http.Header) {
	h.Set("User-Agent", BrowserUserAgent)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Cache-Control", "max-age=0")
}

// BrowserUserAgent is the User-Agent presented to TikTok and the extractor
// sites.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
