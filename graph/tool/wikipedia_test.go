package tool

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func wikipediaServer(t *testing.T, search, extract string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing User-Agent")
		}
		w.Header().Set("Content-Type", "application/json")
		q := r.URL.Query()
		switch {
		case q.Get("list") == "search":
			if q.Get("srlimit") == "" || q.Get("srsearch") == "" {
				t.Errorf("unexpected search params: %v", q)
			}
			_, _ = io.WriteString(w, search)
		case q.Get("prop") == "extracts":
			_, _ = io.WriteString(w, extract)
		default:
			t.Errorf("unexpected request %s", r.URL)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWikipedia_Call(t *testing.T) {
	t.Run("formats page and summary", func(t *testing.T) {
		srv := wikipediaServer(t,
			`{"query":{"search":[{"title":"Go (programming language)"}]}}`,
			`{"query":{"pages":{"25039021":{"title":"Go (programming language)","extract":"Go is a statically typed, compiled language."}}}}`)

		w := NewWikipedia(Limits{}, WithWikipediaEndpoint(srv.URL))
		out, err := w.Call(context.Background(), map[string]interface{}{"query": "golang"})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		want := "Page: Go (programming language)\nSummary: Go is a statically typed, compiled language."
		if got := ResultText(out); got != want {
			t.Errorf("result = %q, want %q", got, want)
		}
	})

	t.Run("result is truncated", func(t *testing.T) {
		long := strings.Repeat("a", 2000)
		srv := wikipediaServer(t,
			`{"query":{"search":[{"title":"Long"}]}}`,
			`{"query":{"pages":{"1":{"title":"Long","extract":"`+long+`"}}}}`)

		w := NewWikipedia(Limits{MaxChars: 500}, WithWikipediaEndpoint(srv.URL))
		out, err := w.Call(context.Background(), map[string]interface{}{"query": "long"})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if n := len([]rune(ResultText(out))); n != 500 {
			t.Errorf("length = %d, want 500", n)
		}
	})

	t.Run("no hits", func(t *testing.T) {
		srv := wikipediaServer(t, `{"query":{"search":[]}}`, `{}`)
		w := NewWikipedia(Limits{}, WithWikipediaEndpoint(srv.URL))
		out, err := w.Call(context.Background(), map[string]interface{}{"query": "zzzz"})
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if ResultText(out) != noWikipediaResult {
			t.Errorf("result = %q", ResultText(out))
		}
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		w := NewWikipedia(Limits{}, WithWikipediaEndpoint(srv.URL))
		_, err := w.Call(context.Background(), map[string]interface{}{"query": "go"})
		var statusErr *StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable {
			t.Errorf("err = %v, want StatusError 503", err)
		}
	})

	t.Run("missing query", func(t *testing.T) {
		if _, err := NewWikipedia(Limits{}).Call(context.Background(), nil); !errors.Is(err, ErrMissingQuery) {
			t.Errorf("err = %v", err)
		}
	})
}
