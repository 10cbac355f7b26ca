package review

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// EvidenceSource finds supporting material for a market question so the
// reviewer does not start from a blank page.
type EvidenceSource interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// SearchClient queries a JSON search API for evidence snippets. The endpoint
// is expected to answer GET {base}/search?q={query} with
// {"results": [{"title": ..., "url": ..., "snippet": ...}]}.
type SearchClient struct {
	baseURL    string
	maxResults int
	httpClient *http.Client
}

// NewSearchClient creates a SearchClient for the given base URL.
func NewSearchClient(baseURL string, maxResults int, timeout time.Duration) *SearchClient {
	if maxResults <= 0 {
		maxResults = 5
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SearchClient{
		baseURL:    baseURL,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type searchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Snippet string `json:"snippet"`
	} `json:"results"`
}

// Search returns up to maxResults formatted evidence lines for the query.
func (c *SearchClient) Search(ctx context.Context, query string) ([]string, error) {
	u := fmt.Sprintf("%s/search?q=%s", c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("review: create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("review: search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("review: search returned status %d", resp.StatusCode)
	}

	var parsed searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("review: decode search response: %w", err)
	}

	var lines []string
	for _, r := range parsed.Results {
		if len(lines) >= c.maxResults {
			break
		}
		lines = append(lines, fmt.Sprintf("%s (%s): %s", r.Title, r.URL, r.Snippet))
	}
	return lines, nil
}

// Compile-time interface check.
var _ EvidenceSource = (*SearchClient)(nil)
