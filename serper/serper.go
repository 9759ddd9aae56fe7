// Package serper wraps the Serper.dev search API: a site-scoped web search
// for Reddit discussions and a best-effort image search.
package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/apex/log"

	"honest-report-service/metrics"
)

const defaultBaseURL = "https://google.serper.dev"

const defaultTimeout = 15 * time.Second

// Result is one organic search hit.
type Result struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

// Client calls the Serper API.
type Client struct {
	apiKey     string
	maxResults int
	baseURL    string
	client     *http.Client
}

// NewClient creates a Serper client. maxResults caps the organic results
// requested per discussion search.
func NewClient(apiKey string, maxResults int) *Client {
	return NewClientWithBaseURL(apiKey, maxResults, defaultBaseURL)
}

// NewClientWithBaseURL is NewClient with an overridable endpoint, used by
// tests to point at a local fake.
func NewClientWithBaseURL(apiKey string, maxResults int, baseURL string) *Client {
	if maxResults <= 0 {
		maxResults = 10
	}
	return &Client{
		apiKey:     apiKey,
		maxResults: maxResults,
		baseURL:    strings.TrimRight(baseURL, "/"),
		client:     &http.Client{Timeout: defaultTimeout},
	}
}

type searchRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
	GL  string `json:"gl,omitempty"`
	HL  string `json:"hl,omitempty"`
}

type searchResponse struct {
	Organic []Result `json:"organic"`
}

// SearchDiscussions runs a Reddit-scoped search for the keyword and returns
// up to maxResults organic hits. An empty slice is a valid outcome meaning
// no discussion was found; transport and auth failures return an error.
func (c *Client) SearchDiscussions(ctx context.Context, kw string) ([]Result, error) {
	reqBody := searchRequest{
		Q:   fmt.Sprintf("site:reddit.com %s avis", kw),
		Num: c.maxResults,
		GL:  "fr",
		HL:  "fr",
	}

	body, err := c.post(ctx, "/search", reqBody)
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	return resp.Organic, nil
}

// imageItem covers the response shapes Serper has been observed returning
// for image results; which field carries the full-size URL varies.
type imageItem struct {
	ImageURL string `json:"imageUrl"`
	Original string `json:"original"`
	Link     string `json:"link"`
	URL      string `json:"url"`
}

type imageResponse struct {
	Images []imageItem `json:"images"`
}

// SearchImage looks for a product image and returns the first candidate URL
// that passes validation. It never returns an error: any failure, including
// network and auth errors, is logged and reported as not-found so that image
// enrichment can never break the main pipeline.
func (c *Client) SearchImage(ctx context.Context, query string) (string, bool) {
	reqBody := searchRequest{Q: query, Num: 10, GL: "fr"}

	body, err := c.post(ctx, "/images", reqBody)
	if err != nil {
		log.WithError(err).Warnf("Image search failed for %q", query)
		metrics.SearchRequestsTotal.WithLabelValues("image", "error").Inc()
		return "", false
	}

	var resp imageResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		log.WithError(err).Warnf("Failed to parse image response for %q", query)
		metrics.SearchRequestsTotal.WithLabelValues("image", "error").Inc()
		return "", false
	}

	for _, img := range resp.Images {
		for _, candidate := range []string{img.ImageURL, img.Original, img.URL, img.Link} {
			if isValidImageURL(candidate) {
				metrics.SearchRequestsTotal.WithLabelValues("image", "success").Inc()
				return candidate, true
			}
		}
	}
	metrics.SearchRequestsTotal.WithLabelValues("image", "miss").Inc()
	return "", false
}

// isValidImageURL rejects the URL patterns the vendor routinely returns
// that are not directly usable: redirect wrappers, thumbnail caches and
// inline data URIs.
func isValidImageURL(raw string) bool {
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return false
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	switch {
	case host == "google.com" || strings.HasSuffix(host, ".google.com"):
		return false
	case strings.HasSuffix(host, "gstatic.com"):
		return false
	case strings.HasSuffix(host, "googleusercontent.com"):
		return false
	}
	return true
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("serper api error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
