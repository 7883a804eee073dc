// Package hyperliquid implements the REST client for the Hyperliquid info
// API, which serves mid prices for every listed asset in one call.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/betfolio/arena/internal/domain"
)

// DefaultBaseURL is the production info endpoint.
const DefaultBaseURL = "https://api.hyperliquid.xyz"

// Client is the REST client for the Hyperliquid info API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new info API client.
//
// baseURL is the API root, e.g. "https://api.hyperliquid.xyz".
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// infoRequest is the body of every info API call; the type field selects the
// query.
type infoRequest struct {
	Type string `json:"type"`
}

// AllMids returns the current mid price for every listed asset, keyed by
// asset symbol. The upstream serves prices as decimal strings; anything
// beyond tick precision is truncated, never rounded, so repeated samples of
// an unchanged price are identical.
func (c *Client) AllMids(ctx context.Context) (map[string]domain.Ticks, error) {
	body, err := c.doPost(ctx, infoRequest{Type: "allMids"})
	if err != nil {
		return nil, fmt.Errorf("hyperliquid: all mids: %w", err)
	}

	var raw map[string]string
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("hyperliquid: decode mids: %w", err)
	}

	mids := make(map[string]domain.Ticks, len(raw))
	for asset, priceStr := range raw {
		// Spot-index entries like "@107" are not tradable symbols here.
		if strings.HasPrefix(asset, "@") {
			continue
		}
		price, err := domain.ParseTicks(truncateToTick(priceStr))
		if err != nil {
			return nil, fmt.Errorf("hyperliquid: parse mid %s=%q: %w", asset, priceStr, err)
		}
		mids[asset] = price
	}
	return mids, nil
}

// Mid returns the current mid price for a single asset. It returns
// domain.ErrPriceUnavailable when the asset is not listed.
func (c *Client) Mid(ctx context.Context, asset string) (domain.Ticks, error) {
	mids, err := c.AllMids(ctx)
	if err != nil {
		return 0, err
	}
	price, ok := mids[asset]
	if !ok {
		return 0, fmt.Errorf("hyperliquid: %w: asset=%s", domain.ErrPriceUnavailable, asset)
	}
	return price, nil
}

// truncateToTick drops fractional digits beyond tick precision.
func truncateToTick(s string) string {
	whole, frac, found := strings.Cut(s, ".")
	if !found || len(frac) <= 4 {
		return s
	}
	return whole + "." + frac[:4]
}

func (c *Client) doPost(ctx context.Context, reqBody any) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	return body, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
