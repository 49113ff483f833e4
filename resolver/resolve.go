// Package resolver turns the URL a caller asked for into the key the page is
// cached under, so that equivalent URLs share one entry and one counter.
package resolver

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"
	"github.com/golang/glog"
	"github.com/mccutchen/urlresolver"

	"github.com/microcosm-cc/pagecache/cache"
	e "github.com/microcosm-cc/pagecache/errors"
)

// Normalisations applied to every URL. Fragments never reach the server so
// they can never change the content.
const normalizeFlags = purell.FlagsSafe | purell.FlagRemoveFragment

// resolved URLs rarely change
const ttl = 24 * time.Hour

// Canonicalize validates rawURL as an absolute http(s) URL and returns its
// normalised form
func Canonicalize(rawURL string) (string, error) {
	if rawURL == "" {
		return "", e.ErrInvalidKey
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", e.New("Canonicalize", e.InvalidKey, err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", e.New("Canonicalize", e.InvalidKey, "only http and https URLs can be cached")
	}
	if u.Host == "" {
		return "", e.New("Canonicalize", e.InvalidKey, "URL must have a host")
	}

	return purell.NormalizeURL(u, normalizeFlags), nil
}

// Resolver canonicalises URLs and, if Follow is set, follows redirects so
// that short links and their destinations share a cache entry. Followed
// redirects are remembered in Store.
type Resolver struct {
	Follow bool
	Store  cache.Store

	resolver *urlresolver.Resolver
}

// New returns a Resolver. When follow is false no requests are made and store
// may be nil.
func New(follow bool, store cache.Store, timeout time.Duration) *Resolver {
	r := &Resolver{
		Follow: follow,
		Store:  store,
	}
	if follow {
		r.resolver = urlresolver.New(http.DefaultTransport, timeout)
	}
	return r
}

// Resolve returns the cache key for rawURL. Failing to follow redirects is
// not an error: the canonical form of rawURL is used instead.
func (r *Resolver) Resolve(ctx context.Context, rawURL string) (string, error) {
	canonical, err := Canonicalize(rawURL)
	if err != nil {
		return "", err
	}
	if !r.Follow || r.resolver == nil {
		return canonical, nil
	}

	key := "resolved:" + canonical
	if r.Store != nil {
		val, ok, err := r.Store.Get(ctx, key)
		if err != nil {
			glog.Warningf("Store.Get(%s) %+v", key, err)
		} else if ok {
			return string(val), nil
		}
	}

	result, err := r.resolver.Resolve(ctx, canonical)
	if err != nil {
		if glog.V(2) {
			glog.Infof("urlresolver.Resolve(%s) %+v", canonical, err)
		}
		return canonical, nil
	}

	resolved, err := Canonicalize(result.ResolvedURL)
	if err != nil {
		return canonical, nil
	}

	if r.Store != nil {
		err = r.Store.SetWithExpiry(ctx, key, []byte(resolved), ttl)
		if err != nil {
			glog.Warningf("Store.SetWithExpiry(%s) %+v", key, err)
		}
	}

	return resolved, nil
}
