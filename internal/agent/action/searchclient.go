package action

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// SearchResult is one hit from an external search backend, before
// conversion to model.Chunk.
type SearchResult struct {
	Title   string
	URL     string
	Snippet string
	Thumb   string
}

// SearchClient abstracts a web-style search backend so web/academic/
// discussion search can share one HTTP calling convention while
// pointing at different backends and topics (spec.md §4.5: "analogous,
// different backends").
type SearchClient interface {
	Search(ctx context.Context, query string, topic string, maxResults int) ([]SearchResult, error)
}

// TavilyClient implements SearchClient against the Tavily search API.
type TavilyClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// DefaultTavilyBaseURL is Tavily's search endpoint.
const DefaultTavilyBaseURL = "https://api.tavily.com/search"

// NewTavilyClient creates a client authenticated with apiKey.
func NewTavilyClient(apiKey string) *TavilyClient {
	return &TavilyClient{
		apiKey:     apiKey,
		baseURL:    DefaultTavilyBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type tavilyResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search implements SearchClient.
func (c *TavilyClient) Search(ctx context.Context, query, topic string, maxResults int) ([]SearchResult, error) {
	if maxResults <= 0 {
		maxResults = 5
	}
	payload := map[string]interface{}{
		"api_key":     c.apiKey,
		"query":       query,
		"max_results": maxResults,
	}
	if topic != "" {
		payload["topic"] = topic
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("action: marshal tavily request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("action: build tavily request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("action: tavily request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("action: read tavily response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("action: tavily status %d: %s", resp.StatusCode, string(raw))
	}

	var tr tavilyResponse
	if err := json.Unmarshal(raw, &tr); err != nil {
		return nil, fmt.Errorf("action: parse tavily response: %w", err)
	}

	out := make([]SearchResult, 0, len(tr.Results))
	for _, r := range tr.Results {
		out = append(out, SearchResult{Title: r.Title, URL: r.URL, Snippet: r.Content})
	}
	return out, nil
}

// sanitizer strips any HTML markup search backends embed in snippets,
// leaving plain text safe to hand to the LLM and the client.
var sanitizer = bluemonday.StrictPolicy()

// cleanSnippet strips HTML tags from raw search-result content. Some
// backends return content as a tiny HTML fragment rather than plain
// text; goquery extracts the text nodes and bluemonday is the backstop
// against anything it misses.
func cleanSnippet(raw string) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(raw)))
	if err != nil {
		return sanitizer.Sanitize(raw)
	}
	return sanitizer.Sanitize(doc.Text())
}
