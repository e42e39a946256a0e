// Package provider wraps the billing provider's REST API: customer lookup and
// creation, charge creation and fund transfers. Responses and structured error
// bodies follow the provider's wire format.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/solara-erp/solara-erp/internal/shared"
)

const (
	productionBaseURL = "https://api.asaas.com/v3"
	sandboxBaseURL    = "https://api-sandbox.asaas.com/v3"
)

// Config carries the provider connection settings. It is injected into the
// services that talk to the provider, never read from a global. When BaseURL
// is empty the client picks the production or sandbox endpoint from Sandbox.
type Config struct {
	BaseURL string
	APIKey  string
	Sandbox bool
	Timeout time.Duration
}

// Client talks to the billing provider API.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient constructs a new client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = productionBaseURL
		if cfg.Sandbox {
			cfg.BaseURL = sandboxBaseURL
		}
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// apiError is the provider's structured error body.
type apiError struct {
	Errors []struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("provider: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access_token", c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return shared.Providerf("billing provider unreachable: %v", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("provider: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("provider: decode response: %w", err)
	}
	return nil
}

// decodeError surfaces the first provider-reported description verbatim.
func decodeError(status int, raw []byte) error {
	var apiErr apiError
	if err := json.Unmarshal(raw, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		return shared.Providerf("%s", apiErr.Errors[0].Description)
	}
	return shared.Providerf("billing provider returned status %d", status)
}
