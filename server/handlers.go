package server

import (
	"net/http"

	"github.com/microcosm-cc/pagecache/controller"
)

// Handlers holds everything the router serves
type Handlers struct {
	Pages   *controller.PagesController
	Counts  *controller.CountsController
	Metrics http.Handler
}

func (hs Handlers) routes() map[string]http.HandlerFunc {
	routes := map[string]http.HandlerFunc{
		"/api/v1/pages":   hs.Pages.Handler,
		"/api/v1/counts":  hs.Counts.Handler,
		"/api/v1/version": controller.VersionHandler,
	}
	if hs.Metrics != nil {
		routes["/metrics"] = hs.Metrics.ServeHTTP
	}
	return routes
}
