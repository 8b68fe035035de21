// Package pelias provides a client for Pelias-compatible geocoding APIs,
// including the OpenRouteService /geocode endpoints.
package pelias

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/geocode"
	"github.com/saferoute/saferoute/internal/provider/resilience"
	"github.com/saferoute/saferoute/pkg/geo"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "pelias"

	// DefaultBaseURL is the OpenRouteService geocoding base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// APIKey is the provider API key (required).
	APIKey string

	// BaseURL is the API base URL (optional).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is a Pelias-compatible geocoding client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		rc := resilience.NewClient(clientCfg)
		resilience.GlobalRegistry.Register(ProviderName, rc)
		httpClient = rc
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// peliasResponse is the GeoJSON FeatureCollection returned by the search API.
type peliasResponse struct {
	Features []struct {
		Geometry struct {
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties struct {
			Name       string  `json:"name"`
			Label      string  `json:"label"`
			Confidence float64 `json:"confidence"`
		} `json:"properties"`
	} `json:"features"`
}

// Search resolves a free-text query to candidate places.
func (c *Client) Search(ctx context.Context, req geocode.SearchRequest) ([]geocode.Result, error) {
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("text", req.Query)
	params.Set("size", strconv.Itoa(maxResults))
	if req.Focus != nil {
		params.Set("focus.point.lat", strconv.FormatFloat(req.Focus.Lat, 'f', -1, 64))
		params.Set("focus.point.lon", strconv.FormatFloat(req.Focus.Lon, 'f', -1, 64))
	}

	searchURL := fmt.Sprintf("%s/geocode/search?%s", c.baseURL, params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("query", req.Query).
		Msg("geocoding place query")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", geocode.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", geocode.ErrProviderUnavailable, resp.StatusCode)
	}

	var peliasResp peliasResponse
	if err := json.Unmarshal(body, &peliasResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if len(peliasResp.Features) == 0 {
		return nil, geocode.ErrNotFound
	}

	results := make([]geocode.Result, 0, len(peliasResp.Features))
	for _, f := range peliasResp.Features {
		if len(f.Geometry.Coordinates) < 2 {
			continue
		}
		results = append(results, geocode.Result{
			Name:    f.Properties.Name,
			Address: f.Properties.Label,
			Coordinate: geo.Coordinate{
				Lat: f.Geometry.Coordinates[1],
				Lon: f.Geometry.Coordinates[0],
			},
			Confidence: f.Properties.Confidence,
		})
	}

	if len(results) == 0 {
		return nil, geocode.ErrNotFound
	}

	return results, nil
}

// Ensure Client implements the Provider interface.
var _ geocode.Provider = (*Client)(nil)
