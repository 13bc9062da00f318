// Package pricefeed is the external last-price lookup boundary. Lookups are
// synchronous; the caller owns any retry policy, and a failure is always
// non-fatal to the calculator that asked.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// ErrUnavailable means no configured exchange returned a price.
var ErrUnavailable = errors.New("price lookup failed")

type Client struct {
	baseURL    string
	exchanges  []string
	httpClient *http.Client
}

func NewClient(baseURL string, exchanges []string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		exchanges:  exchanges,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// quoteResponse is the feed's envelope for a single quote.
type quoteResponse struct {
	Symbol   string   `json:"symbol"`
	Exchange string   `json:"exchange"`
	Last     *float64 `json:"last"` // null when the feed has no close for the symbol
}

// LookupLastPrice tries the configured exchanges in order and returns the
// first price found for the symbol.
func (c *Client) LookupLastPrice(ctx context.Context, symbol string) (float64, error) {
	if c.baseURL == "" {
		return 0, fmt.Errorf("%w: no feed configured", ErrUnavailable)
	}

	var lastErr error
	for _, exchange := range c.exchanges {
		price, err := c.fetch(ctx, symbol, exchange)
		if err == nil {
			return price, nil
		}
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		lastErr = err
	}

	return 0, fmt.Errorf("%w: symbol %s: %v", ErrUnavailable, symbol, lastErr)
}

func (c *Client) fetch(ctx context.Context, symbol, exchange string) (float64, error) {
	endpoint := fmt.Sprintf("%s/v1/quote?symbol=%s&exchange=%s",
		c.baseURL, url.QueryEscape(symbol), url.QueryEscape(exchange))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("feed error: %s", body)
	}

	var quote quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}

	if quote.Last == nil || *quote.Last <= 0 {
		return 0, fmt.Errorf("no close price for %s on %s", symbol, exchange)
	}
	return *quote.Last, nil
}
