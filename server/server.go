package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/mux"
	"github.com/robfig/cron"
)

// Server owns the http listener and the cron jobs
type Server struct {
	http *http.Server
	cron *cron.Cron
}

// NewRouter registers every handler
func NewRouter(hs Handlers) *mux.Router {
	r := mux.NewRouter()
	for url, handler := range hs.routes() {
		r.HandleFunc(url, handler)
	}
	return r
}

// New prepares a Server listening on port. Nothing runs until Start.
func New(port int64, hs Handlers, jobs Jobs) (*Server, error) {
	c := cron.New()
	for schedule, job := range jobs {
		err := c.AddFunc(schedule, job)
		if err != nil {
			return nil, fmt.Errorf("cron schedule %q: %w", schedule, err)
		}
	}

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           NewRouter(hs),
			ReadHeaderTimeout: 10 * time.Second,
		},
		cron: c,
	}, nil
}

// Start runs the cron jobs and serves HTTP until Shutdown is called
func (s *Server) Start() error {
	s.cron.Start()

	if glog.V(2) {
		glog.Infof("Starting server on %s", s.http.Addr)
	}

	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the cron jobs and waits for in-flight requests to finish
func (s *Server) Shutdown(ctx context.Context) error {
	s.cron.Stop()
	return s.http.Shutdown(ctx)
}
