// Package exchange is the Kalshi integration: signed REST access for
// discovery and order placement, and the market-data websocket feed.
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"weather-arb/pkg/types"
)

// Client is the signed Kalshi REST client. Callers retry at their own
// cadence (the discovery loop simply runs again next interval), so the
// client itself performs no automatic retries.
type Client struct {
	http     *resty.Client
	signer   *Signer
	basePath string // URL path prefix included in signatures
	logger   *slog.Logger
}

// NewClient builds a REST client for the given base URL, which must
// include the API prefix (e.g. https://api.elections.kalshi.com/trade-api/v2).
func NewClient(baseURL string, timeout time.Duration, signer *Signer, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{
		http:     httpClient,
		signer:   signer,
		basePath: u.Path,
		logger:   logger.With("component", "kalshi_rest"),
	}, nil
}

func (c *Client) signed(ctx context.Context, method, path string) (*resty.Request, error) {
	headers, err := c.signer.Headers(method, c.basePath+path)
	if err != nil {
		return nil, err
	}
	return c.http.R().SetContext(ctx).SetHeaders(headers), nil
}

// GetEventsForSeries fetches all events for one series, following cursor
// pagination. status is typically "open".
func (c *Client) GetEventsForSeries(ctx context.Context, series, status string) ([]types.RESTEvent, error) {
	var events []types.RESTEvent
	cursor := ""
	for {
		req, err := c.signed(ctx, "GET", "/events")
		if err != nil {
			return nil, err
		}
		req.SetQueryParams(map[string]string{
			"series_ticker": series,
			"status":        status,
			"limit":         "200",
		})
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		var out types.EventsResponse
		resp, err := req.SetResult(&out).Get("/events")
		if err != nil {
			return nil, fmt.Errorf("get events for %s: %w", series, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("get events for %s: status %d: %s", series, resp.StatusCode(), resp.String())
		}
		events = append(events, out.Events...)
		if out.Cursor == "" {
			break
		}
		cursor = out.Cursor
	}
	return events, nil
}

// GetMarketsForEvent fetches all markets under one event.
func (c *Client) GetMarketsForEvent(ctx context.Context, eventTicker string) ([]types.RESTMarket, error) {
	var markets []types.RESTMarket
	cursor := ""
	for {
		req, err := c.signed(ctx, "GET", "/markets")
		if err != nil {
			return nil, err
		}
		req.SetQueryParams(map[string]string{
			"event_ticker": eventTicker,
			"limit":        "200",
		})
		if cursor != "" {
			req.SetQueryParam("cursor", cursor)
		}
		var out types.MarketsResponse
		resp, err := req.SetResult(&out).Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("get markets for %s: %w", eventTicker, err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("get markets for %s: status %d: %s", eventTicker, resp.StatusCode(), resp.String())
		}
		markets = append(markets, out.Markets...)
		if out.Cursor == "" {
			break
		}
		cursor = out.Cursor
	}
	return markets, nil
}

// CreateOrder submits one IOC limit order. Live mode only; the caller
// logs failures and continues with remaining levels.
func (c *Client) CreateOrder(ctx context.Context, order types.CreateOrderRequest) (*types.CreateOrderResponse, error) {
	req, err := c.signed(ctx, "POST", "/portfolio/orders")
	if err != nil {
		return nil, err
	}
	var out types.CreateOrderResponse
	resp, err := req.SetBody(order).SetResult(&out).Post("/portfolio/orders")
	if err != nil {
		return nil, fmt.Errorf("create order %s: %w", order.Ticker, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("create order %s: status %d: %s", order.Ticker, resp.StatusCode(), resp.String())
	}
	return &out, nil
}
