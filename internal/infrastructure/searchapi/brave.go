package searchapi

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

	"ResearchRadar/internal/ports"
)

const defaultResultCount = 10

// Client implements ports.SearchProvider against a Brave-compatible
// web-search API.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

var _ ports.SearchProvider = (*Client)(nil)

// NewClient builds a search client for the given endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Name identifies the provider in logs and findings metadata.
func (c *Client) Name() string { return "brave" }

type searchResponse struct {
	Web struct {
		Results []struct {
			URL         string `json:"url"`
			Title       string `json:"title"`
			Description string `json:"description"`
			PageAge     string `json:"page_age"`
			MetaURL     struct {
				Hostname string `json:"hostname"`
			} `json:"meta_url"`
		} `json:"results"`
	} `json:"web"`
}

// Search issues one query with domain operators folded into the query
// string and the freshness window mapped to the provider parameter.
func (c *Client) Search(ctx context.Context, query string, filters ports.SearchFilters) ([]ports.SearchResult, error) {
	params := url.Values{}
	params.Set("q", buildQuery(query, filters))
	params.Set("count", strconv.Itoa(resultCount(filters)))
	if f := freshnessParam(filters.Freshness); f != "" {
		params.Set("freshness", f)
	}
	if filters.Region != "" {
		params.Set("country", filters.Region)
	}
	if filters.Language != "" {
		params.Set("search_lang", filters.Language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("search %q: %w", query, ports.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("search error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	results := make([]ports.SearchResult, 0, len(decoded.Web.Results))
	for _, hit := range decoded.Web.Results {
		if hit.URL == "" {
			continue
		}
		result := ports.SearchResult{
			URL:         hit.URL,
			Title:       hit.Title,
			Description: hit.Description,
			Source:      hit.MetaURL.Hostname,
		}
		if hit.PageAge != "" {
			if ts, err := time.Parse(time.RFC3339, hit.PageAge); err == nil {
				result.PublishedAt = &ts
			}
		}
		results = append(results, result)
	}
	return results, nil
}

// buildQuery folds domain restrictions into the query string as
// site:/-site: operators.
func buildQuery(query string, filters ports.SearchFilters) string {
	var b strings.Builder
	b.WriteString(query)
	for _, domain := range filters.IncludeDomains {
		b.WriteString(" site:")
		b.WriteString(domain)
	}
	for _, domain := range filters.ExcludeDomains {
		b.WriteString(" -site:")
		b.WriteString(domain)
	}
	return b.String()
}

func resultCount(filters ports.SearchFilters) int {
	if filters.MaxResults > 0 {
		return filters.MaxResults
	}
	return defaultResultCount
}

func freshnessParam(f ports.Freshness) string {
	switch f {
	case ports.FreshnessDay:
		return "pd"
	case ports.FreshnessWeek:
		return "pw"
	case ports.FreshnessMonth:
		return "pm"
	case ports.FreshnessYear:
		return "py"
	default:
		return ""
	}
}
