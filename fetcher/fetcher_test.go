package fetcher

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	e "github.com/microcosm-cc/pagecache/errors"
)

func TestFetch(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			if r.Header.Get("User-Agent") != "test-agent" {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Write([]byte("<html>hello</html>"))
		case "/latin1":
			w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
			w.Write([]byte{'c', 'a', 'f', 0xe9})
		case "/binary":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G', 0xe9})
		case "/big":
			w.Header().Set("Content-Type", "text/plain")
			w.Write(bytes.Repeat([]byte("a"), 2048))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	f := New(5*time.Second, "test-agent", 1024)
	ctx := context.Background()

	content, err := f.Fetch(ctx, ts.URL+"/ok")
	if err != nil {
		t.Fatalf("Fetch(/ok) %+v", err)
	}
	if string(content) != "<html>hello</html>" {
		t.Errorf("Fetch(/ok) = %q", content)
	}

	content, err = f.Fetch(ctx, ts.URL+"/latin1")
	if err != nil {
		t.Fatalf("Fetch(/latin1) %+v", err)
	}
	if string(content) != "café" {
		t.Errorf("Fetch(/latin1) = %q should be decoded to UTF-8", content)
	}

	content, err = f.Fetch(ctx, ts.URL+"/binary")
	if err != nil {
		t.Fatalf("Fetch(/binary) %+v", err)
	}
	if !bytes.Equal(content, []byte{0x89, 'P', 'N', 'G', 0xe9}) {
		t.Errorf("Fetch(/binary) = %v should be unchanged", content)
	}

	_, err = f.Fetch(ctx, ts.URL+"/missing")
	var fe *e.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Fetch(/missing) err = %v should be a FetchError", err)
	}
	if fe.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d should be %d", fe.StatusCode, http.StatusNotFound)
	}

	_, err = f.Fetch(ctx, ts.URL+"/big")
	if e.Code(err) != e.ContentTooLarge {
		t.Errorf("Fetch(/big) err = %v should have code ContentTooLarge", err)
	}
}

// The size limit applies to the bytes sent, not to the decoded text
func TestFetchLimitBeforeDecoding(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/utf16":
			// 1200 bytes sent, 600 once decoded
			w.Header().Set("Content-Type", "text/plain; charset=utf-16le")
			w.Write(bytes.Repeat([]byte{'a', 0}, 600))
		case "/latin1":
			// 1000 bytes sent, 2000 once decoded
			w.Header().Set("Content-Type", "text/plain; charset=iso-8859-1")
			w.Write(bytes.Repeat([]byte{0xe9}, 1000))
		}
	}))
	defer ts.Close()

	f := New(5*time.Second, "", 1024)
	ctx := context.Background()

	content, err := f.Fetch(ctx, ts.URL+"/utf16")
	if e.Code(err) != e.ContentTooLarge {
		t.Errorf("Fetch(/utf16) = %d bytes, %v should have code ContentTooLarge", len(content), err)
	}

	page, err := f.FetchPage(ctx, ts.URL+"/latin1")
	if err != nil {
		t.Fatalf("FetchPage(/latin1) %+v", err)
	}
	if string(page.Content) != strings.Repeat("é", 1000) {
		t.Errorf("FetchPage(/latin1) = %d bytes should be 1000 decoded characters", len(page.Content))
	}
	if page.ContentType != "text/plain; charset=utf-8" {
		t.Errorf("ContentType = %q should be text/plain; charset=utf-8", page.ContentType)
	}
}

func TestFetchPageContentType(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/json":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"a":1}`))
		case "/png":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		}
	}))
	defer ts.Close()

	f := New(5*time.Second, "", 0)
	ctx := context.Background()

	message := "FetchPage(%s).ContentType = %q should be %q"
	tests := []struct {
		path     string
		expected string
	}{
		{"/json", "application/json; charset=utf-8"},
		{"/png", "image/png"},
	}

	for _, tt := range tests {
		page, err := f.FetchPage(ctx, ts.URL+tt.path)
		if err != nil {
			t.Fatalf("FetchPage(%s) %+v", tt.path, err)
		}
		if page.ContentType != tt.expected {
			t.Errorf(message, tt.path, page.ContentType, tt.expected)
		}
	}
}

func TestFetchTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := New(time.Second, "", 0).Fetch(context.Background(), url)
	var fe *e.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v should be a FetchError", err)
	}
	if fe.StatusCode != 0 {
		t.Errorf("StatusCode = %d should be 0 for a transport failure", fe.StatusCode)
	}
}
