package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/StrathCole/btc-pricefeed/pkg/server/api"
	"github.com/StrathCole/btc-pricefeed/pkg/version"
)

// Client fetches the current price from a price feed server
type Client interface {
	GetPrice(ctx context.Context, currency string) (api.PriceResponse, error)
}

// HTTPClient implements Client using HTTP requests
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient creates a new HTTP price client
func NewHTTPClient(baseURL string, timeout time.Duration) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// GetPrice fetches /v1/price, optionally converted into currency. An absent
// price is not an error: check Available on the response.
func (c *HTTPClient) GetPrice(ctx context.Context, currency string) (api.PriceResponse, error) {
	endpoint := c.baseURL + "/v1/price"
	if currency != "" {
		endpoint += "?currency=" + url.QueryEscape(currency)
	}

	var out api.PriceResponse

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return out, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.AgentString())

	resp, err := c.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("failed to fetch price: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return out, fmt.Errorf("%w: %d: %s", ErrPriceServerHTTPError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode response: %w", err)
	}

	return out, nil
}
