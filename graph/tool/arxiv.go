package tool

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// DefaultArxivEndpoint is the public arXiv export API.
const DefaultArxivEndpoint = "http://export.arxiv.org/api/query"

const noArxivResult = "No good Arxiv Result was found"

// Arxiv queries the arXiv API and returns paper metadata.
//
// Each paper is rendered as Published/Title/Authors/Summary lines, papers
// separated by a blank line, cut to Limits.MaxChars.
type Arxiv struct {
	endpoint string
	limits   Limits
	http     httpFetcher
}

// ArxivOption configures an Arxiv tool.
type ArxivOption func(*Arxiv)

// WithArxivEndpoint points the tool at another arXiv-compatible API.
func WithArxivEndpoint(endpoint string) ArxivOption {
	return func(a *Arxiv) { a.endpoint = endpoint }
}

// WithArxivHTTPClient overrides the HTTP client.
func WithArxivHTTPClient(client *http.Client) ArxivOption {
	return func(a *Arxiv) { a.http = newHTTPFetcher(client) }
}

// NewArxiv creates the arxiv_search tool. Zero limits default to two papers
// and 500 characters.
func NewArxiv(limits Limits, opts ...ArxivOption) *Arxiv {
	a := &Arxiv{
		endpoint: DefaultArxivEndpoint,
		limits:   limits.withDefaults(2, 500),
		http:     newHTTPFetcher(nil),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Name implements Tool.
func (a *Arxiv) Name() string { return "arxiv_search" }

// Description implements Describer.
func (a *Arxiv) Description() string { return "Query arxiv papers" }

type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	Title   string `xml:"title"`
	Summary string `xml:"summary"`
	Updated string `xml:"updated"`
	Authors []struct {
		Name string `xml:"name"`
	} `xml:"author"`
}

// Call implements Tool.
func (a *Arxiv) Call(ctx context.Context, input map[string]interface{}) (map[string]interface{}, error) {
	query, err := QueryInput(input)
	if err != nil {
		return nil, err
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	params := url.Values{
		"search_query": {"all:" + query},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(a.limits.TopK)},
	}
	body, err := a.http.get(ctx, a.endpoint+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("arxiv query: %w", err)
	}

	var feed arxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("arxiv feed: %w", err)
	}
	if len(feed.Entries) == 0 {
		return result(noArxivResult), nil
	}

	docs := make([]string, 0, len(feed.Entries))
	for i, entry := range feed.Entries {
		if i >= a.limits.TopK {
			break
		}
		docs = append(docs, formatArxivEntry(entry))
	}
	return result(truncate(strings.Join(docs, "\n\n"), a.limits.MaxChars)), nil
}

func formatArxivEntry(e arxivEntry) string {
	published := e.Updated
	if len(published) >= 10 {
		published = published[:10]
	}

	names := make([]string, 0, len(e.Authors))
	for _, author := range e.Authors {
		names = append(names, strings.TrimSpace(author.Name))
	}

	return fmt.Sprintf("Published: %s\nTitle: %s\nAuthors: %s\nSummary: %s",
		published,
		collapseSpace(e.Title),
		strings.Join(names, ", "),
		collapseSpace(e.Summary),
	)
}

// collapseSpace folds the hard-wrapped lines arXiv returns.
func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
