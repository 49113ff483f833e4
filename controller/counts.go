package controller

import (
	"context"
	"net/http"

	"github.com/grafana/pyroscope-go"

	"github.com/microcosm-cc/pagecache/cache"
	"github.com/microcosm-cc/pagecache/resolver"
)

// CountType is the access count for a single URL
type CountType struct {
	URL   string `json:"url"`
	Count uint64 `json:"count"`
}

// CountsController reports access counts
type CountsController struct {
	Cache    *cache.Coordinator
	Resolver *resolver.Resolver
}

// Handler is a web handler
func (ctl *CountsController) Handler(w http.ResponseWriter, r *http.Request) {
	path := "/counts"
	pyroscope.TagWrapper(r.Context(), pyroscope.Labels("path", path), func(ctx context.Context) {
		c := MakeContext(r, w)

		switch c.GetHTTPMethod() {
		case "OPTIONS":
			c.RespondWithOptions([]string{"OPTIONS", "GET"})
			return
		case "GET":
			ctl.Read(c)
		default:
			c.RespondWithStatus(http.StatusMethodNotAllowed)
			return
		}
	})
}

// Read handles GET. Reading the count does not itself count as an access.
func (ctl *CountsController) Read(c *Context) {
	key, err := ctl.Resolver.Resolve(c.Request.Context(), c.Request.URL.Query().Get("url"))
	if err != nil {
		respondWithError(c, err)
		return
	}

	count, err := ctl.Cache.AccessCount(c.Request.Context(), key)
	if err != nil {
		respondWithError(c, err)
		return
	}

	c.RespondWithData(CountType{URL: key, Count: count})
}
