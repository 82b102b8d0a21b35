package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTavilyEndpoint is the Tavily search API.
const DefaultTavilyEndpoint = "https://api.tavily.com/search"

// ErrMissingTavilyKey is returned by Call when no API key is configured.
var ErrMissingTavilyKey = errors.New("tavily: API key is missing")

// Tavily calls the Tavily web search API.
//
// The result is a JSON array of {"url", "content"} objects, at most
// Limits.TopK long.
type Tavily struct {
	apiKey   string
	depth    string
	endpoint string
	limits   Limits
	http     httpFetcher
	backoff  time.Duration
	maxWait  time.Duration
}

// TavilyOption configures a Tavily tool.
type TavilyOption func(*Tavily)

// WithTavilyEndpoint overrides the API URL.
func WithTavilyEndpoint(endpoint string) TavilyOption {
	return func(t *Tavily) { t.endpoint = endpoint }
}

// WithTavilyHTTPClient overrides the HTTP client.
func WithTavilyHTTPClient(client *http.Client) TavilyOption {
	return func(t *Tavily) { t.http = newHTTPFetcher(client) }
}

// WithTavilyDepth sets the search depth ("basic" or "advanced").
func WithTavilyDepth(depth string) TavilyOption {
	return func(t *Tavily) { t.depth = depth }
}

// NewTavily creates the tavily_search tool. Zero limits default to five
// results with no character cap.
func NewTavily(apiKey string, limits Limits, opts ...TavilyOption) *Tavily {
	t := &Tavily{
		apiKey:   apiKey,
		depth:    "basic",
		endpoint: DefaultTavilyEndpoint,
		limits:   limits.withDefaults(5, 0),
		http:     newHTTPFetcher(nil),
		backoff:  time.Second,
		maxWait:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Name implements Tool.
func (t *Tavily) Name() string { return "tavily_search" }

// Description implements Describer.
func (t *Tavily) Description() string {
	return "A search engine optimized for comprehensive, accurate, and trusted results. " +
		"Useful for when you need to answer questions about current events. Input should be a search query."
}

type tavilyHit struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Call implements Tool.
func (t *Tavily) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, err := QueryInput(input)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(t.apiKey) == "" {
		return nil, ErrMissingTavilyKey
	}

	payload, err := json.Marshal(map[string]any{
		"api_key":      t.apiKey,
		"query":        query,
		"search_depth": t.depth,
		"max_results":  t.limits.TopK,
	})
	if err != nil {
		return nil, err
	}

	resp, err := t.post(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("tavily search: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{URL: t.endpoint, StatusCode: resp.StatusCode, Body: string(body)}
	}

	var decoded struct {
		Results []tavilyHit `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("tavily response: %w", err)
	}

	hits := make([]tavilyHit, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		r.Content = truncate(r.Content, t.limits.MaxChars)
		hits = append(hits, r)
		if len(hits) >= t.limits.TopK {
			break
		}
	}

	text, err := json.Marshal(hits)
	if err != nil {
		return nil, err
	}
	return result(string(text)), nil
}

// post sends the request, backing off on 429 with a doubling delay.
func (t *Tavily) post(ctx context.Context, payload []byte) (*http.Response, error) {
	delay := t.backoff
	for {
		resp, err := t.http.postJSON(ctx, t.endpoint, payload)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusTooManyRequests || delay > t.maxWait {
			return resp, nil
		}
		_ = resp.Body.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
