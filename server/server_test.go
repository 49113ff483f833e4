package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/microcosm-cc/pagecache/cache"
	"github.com/microcosm-cc/pagecache/controller"
	"github.com/microcosm-cc/pagecache/resolver"
)

func testHandlers() Handlers {
	coord := cache.NewCoordinator(
		cache.NewMemoryStore(nil),
		cache.FetcherFunc(nil),
		cache.Options{},
	)
	res := resolver.New(false, nil, 0)

	return Handlers{
		Pages:  &controller.PagesController{Cache: coord, Resolver: res},
		Counts: &controller.CountsController{Cache: coord, Resolver: res},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
	}
}

func TestRouter(t *testing.T) {
	r := NewRouter(testHandlers())

	message := "GET %s status = %d should be %d"
	tests := []struct {
		path   string
		status int
	}{
		{"/api/v1/version", http.StatusOK},
		{"/api/v1/counts?url=http://example.com/", http.StatusOK},
		{"/api/v1/pages", http.StatusBadRequest},
		{"/metrics", http.StatusOK},
		{"/nothing/here", http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("GET", tt.path, nil))
		if rec.Code != tt.status {
			t.Errorf(message, tt.path, rec.Code, tt.status)
		}
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/version", nil))
	if !strings.Contains(rec.Body.String(), `"version":"development"`) {
		t.Errorf("version body = %s", rec.Body.String())
	}
}

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(0, testHandlers(), Jobs{"every tuesday": func() {}})
	if err == nil {
		t.Error("New() should reject an unparseable schedule")
	}

	_, err = New(0, testHandlers(), Jobs{EveryMinute: func() {}, EveryTenSeconds: func() {}})
	if err != nil {
		t.Errorf("New() %+v", err)
	}
}
