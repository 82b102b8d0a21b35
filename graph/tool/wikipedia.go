package tool

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultWikipediaEndpoint is the English Wikipedia MediaWiki API.
const DefaultWikipediaEndpoint = "https://en.wikipedia.org/w/api.php"

const noWikipediaResult = "No good Wikipedia Search Result was found"

// Wikipedia searches Wikipedia and returns the intro of the best pages.
//
// The result reads
//
//	Page: <title>
//	Summary: <intro>
//
// with pages separated by a blank line, cut to Limits.MaxChars.
type Wikipedia struct {
	endpoint string
	limits   Limits
	http     httpFetcher
}

// WikipediaOption configures a Wikipedia tool.
type WikipediaOption func(*Wikipedia)

// WithWikipediaEndpoint points the tool at another MediaWiki API.
func WithWikipediaEndpoint(endpoint string) WikipediaOption {
	return func(w *Wikipedia) { w.endpoint = endpoint }
}

// WithWikipediaHTTPClient overrides the HTTP client.
func WithWikipediaHTTPClient(client *http.Client) WikipediaOption {
	return func(w *Wikipedia) { w.http = newHTTPFetcher(client) }
}

// NewWikipedia creates the wikipedia_search tool. Zero limits default to
// one page and 500 characters.
func NewWikipedia(limits Limits, opts ...WikipediaOption) *Wikipedia {
	w := &Wikipedia{
		endpoint: DefaultWikipediaEndpoint,
		limits:   limits.withDefaults(1, 500),
		http:     newHTTPFetcher(nil),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Name implements Tool.
func (w *Wikipedia) Name() string { return "wikipedia_search" }

// Description implements Describer.
func (w *Wikipedia) Description() string {
	return "A wrapper around Wikipedia. Useful for when you need to answer general questions about " +
		"people, places, companies, facts, historical events, or other subjects. Input should be a search query."
}

// Call implements Tool.
func (w *Wikipedia) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, err := QueryInput(input)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	titles, err := w.search(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("wikipedia search: %w", err)
	}
	if len(titles) == 0 {
		return result(noWikipediaResult), nil
	}

	summaries := make([]string, 0, len(titles))
	for _, title := range titles {
		extract, err := w.extract(ctx, title)
		if err != nil {
			return nil, fmt.Errorf("wikipedia page %q: %w", title, err)
		}
		if extract == "" {
			continue
		}
		summaries = append(summaries, fmt.Sprintf("Page: %s\nSummary: %s", title, extract))
	}
	if len(summaries) == 0 {
		return result(noWikipediaResult), nil
	}

	return result(truncate(strings.Join(summaries, "\n\n"), w.limits.MaxChars)), nil
}

func (w *Wikipedia) search(ctx context.Context, query string) ([]string, error) {
	params := url.Values{
		"action":   {"query"},
		"list":     {"search"},
		"srsearch": {query},
		"srlimit":  {strconv.Itoa(w.limits.TopK)},
		"format":   {"json"},
	}

	var resp struct {
		Query struct {
			Search []struct {
				Title string `json:"title"`
			} `json:"search"`
		} `json:"query"`
	}
	if err := w.http.getJSON(ctx, w.endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, err
	}

	titles := make([]string, 0, len(resp.Query.Search))
	for _, hit := range resp.Query.Search {
		titles = append(titles, hit.Title)
		if len(titles) >= w.limits.TopK {
			break
		}
	}
	return titles, nil
}

func (w *Wikipedia) extract(ctx context.Context, title string) (string, error) {
	params := url.Values{
		"action":      {"query"},
		"prop":        {"extracts"},
		"exintro":     {"1"},
		"explaintext": {"1"},
		"redirects":   {"1"},
		"titles":      {title},
		"format":      {"json"},
	}

	var resp struct {
		Query struct {
			Pages map[string]struct {
				Title   string `json:"title"`
				Extract string `json:"extract"`
			} `json:"pages"`
		} `json:"query"`
	}
	if err := w.http.getJSON(ctx, w.endpoint+"?"+params.Encode(), &resp); err != nil {
		return "", err
	}

	for _, page := range resp.Query.Pages {
		if page.Extract != "" {
			return strings.TrimSpace(page.Extract), nil
		}
	}
	return "", nil
}
