package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/ragdesk/internal/errs"
)

func TestFetch_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body><p>Fetched page text</p><script>ignored()</script></body></html>`)
	}))
	defer srv.Close()

	texts, err := NewFetcher(srv.Client()).Fetch(context.Background(), srv.URL+"/page")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(texts) != 1 || texts[0] != "Fetched page text" {
		t.Errorf("texts = %q", texts)
	}
}

func TestFetch_PlainText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprint(w, "raw notes")
	}))
	defer srv.Close()

	texts, err := NewFetcher(nil).Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(texts) != 1 || texts[0] != "raw notes" {
		t.Errorf("texts = %q", texts)
	}
}

func TestFetch_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, err := NewFetcher(nil).Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}
}

func TestFetch_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "ftp://example.com/x", "file:///etc/passwd", "not a url"} {
		_, err := NewFetcher(nil).Fetch(context.Background(), u)
		if !errors.Is(err, errs.ErrInvalidInput) {
			t.Errorf("Fetch(%q) err = %v, want ErrInvalidInput", u, err)
		}
	}
}

func TestFetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, strings.Repeat("a", 64))
	}))
	defer srv.Close()

	f := NewFetcher(nil)
	f.maxSize = 16
	_, err := f.Fetch(context.Background(), srv.URL)
	if !errors.Is(err, errs.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}
