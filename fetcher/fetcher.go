// Package fetcher retrieves page content over HTTP for the cache to store.
package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/golang/glog"
	"golang.org/x/net/html/charset"

	"github.com/microcosm-cc/pagecache/cache"
	e "github.com/microcosm-cc/pagecache/errors"
)

// DefaultMaxBytes caps the size of a fetched body
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "pagecache/1.0"

// HTTPFetcher GETs a URL and returns its body converted to UTF-8
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

// New returns an HTTPFetcher whose requests time out after timeout
func New(timeout time.Duration, userAgent string, maxBytes int64) *HTTPFetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		Client:    &http.Client{Timeout: timeout},
		UserAgent: userAgent,
		MaxBytes:  maxBytes,
	}
}

// Fetch implements cache.Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	page, err := f.FetchPage(ctx, rawURL)
	if err != nil {
		return nil, err
	}
	return page.Content, nil
}

// FetchPage implements cache.PageFetcher. Transport failures, error statuses
// (>= 400) and bodies over MaxBytes are returned as *errors.FetchError.
// MaxBytes applies to the body as sent, before any charset conversion.
func (f *HTTPFetcher) FetchPage(ctx context.Context, rawURL string) (cache.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return cache.Page{}, &e.FetchError{Key: rawURL, Err: err}
	}
	req.Header.Set("User-Agent", f.UserAgent)

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return cache.Page{}, &e.FetchError{Key: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		// Drain a little so the connection can be reused
		io.CopyN(io.Discard, resp.Body, 4096)
		return cache.Page{}, &e.FetchError{
			Key:        rawURL,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	maxBytes := f.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return cache.Page{}, &e.FetchError{Key: rawURL, Err: err}
	}
	if int64(len(raw)) > maxBytes {
		return cache.Page{}, &e.FetchError{Key: rawURL, Err: e.ErrContentTooLarge}
	}

	contentType := resp.Header.Get("Content-Type")
	page := cache.Page{Content: raw, ContentType: contentType}

	// Text is decoded to UTF-8 using a BOM, the Content-Type charset or a
	// <meta> declaration. Anything else is returned byte for byte.
	if isText(contentType) {
		r, err := charset.NewReader(bytes.NewReader(raw), contentType)
		if err != nil {
			return cache.Page{}, &e.FetchError{Key: rawURL, Err: err}
		}
		page.Content, err = io.ReadAll(r)
		if err != nil {
			return cache.Page{}, &e.FetchError{Key: rawURL, Err: err}
		}
		page.ContentType = utf8ContentType(contentType)
	}

	if glog.V(2) {
		glog.Infof("Fetched %s: %d %d bytes", rawURL, resp.StatusCode, len(raw))
	}

	return page, nil
}

// utf8ContentType rewrites the charset of a text media type to utf-8, as
// that is what the decoded content now is
func utf8ContentType(contentType string) string {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "text/plain; charset=utf-8"
	}
	params["charset"] = "utf-8"
	return mime.FormatMediaType(mediaType, params)
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}

	switch {
	case strings.HasPrefix(mediaType, "text/"),
		mediaType == "application/xhtml+xml",
		mediaType == "application/xml",
		mediaType == "application/json",
		mediaType == "application/javascript":
		return true
	}
	return false
}
