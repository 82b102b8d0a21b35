package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultUserAgent   = "multitool-chat/1.0 (+https://github.com/dshills/multitool-chat)"
	defaultHTTPTimeout = 15 * time.Second
	maxBodyBytes       = 4 << 20
)

// httpFetcher is the HTTP plumbing shared by the lookup tools.
// Timeouts come from both the client and the caller's context.
type httpFetcher struct {
	client    *http.Client
	userAgent string
}

func newHTTPFetcher(client *http.Client) httpFetcher {
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return httpFetcher{client: client, userAgent: defaultUserAgent}
}

// StatusError reports a non-2xx response from a backend.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d from %s: %s", e.StatusCode, e.URL, e.Body)
}

// get performs a GET and returns the body of a 2xx response.
func (f httpFetcher) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return f.do(req)
}

// getJSON performs a GET and decodes the JSON body into out.
func (f httpFetcher) getJSON(ctx context.Context, url string, out interface{}) error {
	body, err := f.get(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// postJSON sends payload as JSON and returns the raw response. The response
// is returned even for non-2xx codes so callers can inspect the status.
func (f httpFetcher) postJSON(ctx context.Context, url string, payload []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	return resp, nil
}

func (f httpFetcher) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: req.URL.String(), StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	return body, nil
}
