package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/grafana/pyroscope-go"

	"github.com/microcosm-cc/pagecache/audit"
	"github.com/microcosm-cc/pagecache/cache"
	e "github.com/microcosm-cc/pagecache/errors"
	"github.com/microcosm-cc/pagecache/resolver"
)

// PagesController serves pages through the cache
type PagesController struct {
	Cache    *cache.Coordinator
	Resolver *resolver.Resolver

	// Recorder is optional
	Recorder *audit.Recorder
}

// Handler is a web handler
func (ctl *PagesController) Handler(w http.ResponseWriter, r *http.Request) {
	path := "/pages"
	pyroscope.TagWrapper(r.Context(), pyroscope.Labels("path", path), func(ctx context.Context) {
		c := MakeContext(r, w)

		method := c.GetHTTPMethod()
		switch method {
		case "OPTIONS":
			c.RespondWithOptions([]string{"OPTIONS", "GET", "HEAD", "DELETE"})
			return
		case "GET", "HEAD":
			pyroscope.TagWrapper(ctx, pyroscope.Labels("method", method), func(context.Context) {
				ctl.Read(c)
			})
		case "DELETE":
			pyroscope.TagWrapper(ctx, pyroscope.Labels("method", method), func(context.Context) {
				ctl.Delete(c)
			})
		default:
			c.RespondWithStatus(http.StatusMethodNotAllowed)
			return
		}
	})
}

// Read handles GET, returning the page content itself rather than JSON
func (ctl *PagesController) Read(c *Context) {
	query := c.Request.URL.Query()

	var ttl time.Duration
	if s := query.Get("ttl"); s != "" {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil || secs <= 0 {
			respondWithError(c, e.New("Read", e.InvalidTTL, "ttl must be a positive number of seconds"))
			return
		}
		ttl = time.Duration(secs) * time.Second
	}

	key, err := ctl.Resolver.Resolve(c.Request.Context(), query.Get("url"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	res, err := ctl.Cache.Lookup(c.Request.Context(), key, ttl)
	ctl.record(c, key, res, err)
	if err != nil {
		respondWithError(c, err)
		return
	}

	header := c.ResponseWriter.Header()
	if res.Hit {
		header.Set("X-Cache", "HIT")
	} else {
		header.Set("X-Cache", "MISS")
	}
	header.Set("X-Cache-Key", key)
	header.Set("X-Access-Count", strconv.FormatUint(res.Count, 10))
	contentType := res.ContentType
	if contentType == "" {
		contentType = http.DetectContentType(res.Content)
	}
	header.Set("Content-Type", contentType)
	header.Set("Content-Length", strconv.Itoa(len(res.Content)))

	c.WriteResponse(res.Content, http.StatusOK)
}

// Delete handles DELETE, purging the cached content for a URL
func (ctl *PagesController) Delete(c *Context) {
	key, err := ctl.Resolver.Resolve(c.Request.Context(), c.Request.URL.Query().Get("url"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	err = ctl.Cache.Invalidate(c.Request.Context(), key)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.RespondWithOK()
}

func (ctl *PagesController) record(c *Context, key string, res cache.Result, err error) {
	if ctl.Recorder == nil {
		return
	}

	outcome := audit.Miss
	switch {
	case err != nil:
		outcome = audit.Error
	case res.Hit:
		outcome = audit.Hit
	}

	ctl.Recorder.Record(audit.Access{
		URL:     key,
		Outcome: outcome,
		Seen:    c.StartTime,
		IP:      c.IP,
	})
}

// respondWithError chooses the status for err and includes the error code
// when there is one
func respondWithError(c *Context, err error) {
	status := e.HTTPStatus(err)

	var pe *e.PageCacheError
	if errors.As(err, &pe) {
		c.RespondWithErrorDetail(pe, status)
		return
	}

	c.RespondWithErrorMessage(err.Error(), status)
}
