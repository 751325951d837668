// Package brave implements web search against the Brave Search REST API.
package brave

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deepscout/deepscout/internal/research"
)

const defaultBaseURL = "https://api.search.brave.com/res/v1"

// Config controls the search client.
type Config struct {
	APIKey string
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL    string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client implements research.SearchProvider.
type Client struct {
	apiKey  string
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a Brave search client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("brave search: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    cfg.HTTPClient,
		logger:  cfg.Logger,
	}, nil
}

var _ research.SearchProvider = (*Client)(nil)

type webSearchResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Search runs a web search and returns at most count results. An empty result
// set is not an error; transport and API failures wrap ErrSearchUnavailable.
func (c *Client) Search(ctx context.Context, query string, count int) ([]research.SearchResult, error) {
	if count <= 0 {
		count = 10
	}

	endpoint := fmt.Sprintf("%s/web/search?%s", c.baseURL, url.Values{
		"q":             {query},
		"count":         {strconv.Itoa(count)},
		"result_filter": {"web"},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", research.ErrSearchUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", research.ErrSearchUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: status %d: %s", research.ErrSearchUnavailable, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed webSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", research.ErrSearchUnavailable, err)
	}

	results := make([]research.SearchResult, 0, len(parsed.Web.Results))
	for _, r := range parsed.Web.Results {
		if len(results) == count {
			break
		}
		if r.URL == "" {
			continue
		}
		results = append(results, research.SearchResult{
			Title:   r.Title,
			URL:     r.URL,
			Snippet: r.Description,
		})
	}

	c.logger.Debug("brave search completed",
		zap.String("query", query),
		zap.Int("results", len(results)))
	return results, nil
}
