package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/saferoute/saferoute/internal/provider/resilience"
)

const (
	// GatewayName identifies the HTTP notification gateway.
	GatewayName = "notify-http"

	// DefaultTimeout is the default request timeout. Alert delivery is on
	// the SOS critical path, so this stays short.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the notification gateway client.
type ClientConfig struct {
	// APIKey authenticates against the gateway (required).
	APIKey string

	// BaseURL is the gateway base URL (required).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client delivers notifications through an HTTP gateway.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new notification gateway client.
func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(GatewayName)
		clientCfg.Timeout = timeout
		rc := resilience.NewClient(clientCfg)
		resilience.GlobalRegistry.Register(GatewayName, rc)
		httpClient = rc
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the gateway identifier.
func (c *Client) Name() string {
	return GatewayName
}

// Send posts the dispatch request to the gateway and returns per-contact
// delivery outcomes.
func (c *Client) Send(ctx context.Context, req Request) (*Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding notification request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Info().
		Str("message_type", string(req.Message.Type)).
		Int("contacts", len(req.Contacts)).
		Bool("sms", req.Channels.SMS).
		Bool("call", req.Channels.Call).
		Msg("dispatching notification")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	if failed := result.Failed(); len(failed) > 0 {
		c.logger.Warn().
			Int("failed", len(failed)).
			Int("total", len(result.Deliveries)).
			Msg("notification partially delivered")
	}

	return &result, nil
}

// Ensure Client implements the Gateway interface.
var _ Gateway = (*Client)(nil)
