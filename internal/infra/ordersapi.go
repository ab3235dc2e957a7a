package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"cinepos/internal/model"
)

// Error kinds surfaced by FetchOrders. The poller maps both to "keep the
// previous snapshot"; only an initial load with an empty cache shows them.
var (
	ErrNetworkUnavailable = errors.New("order api unreachable")
	ErrInvalidShape       = errors.New("order api returned an unrecognized response shape")
)

// FetchResult is one successful pull of the filtered order list.
type FetchResult struct {
	Orders  []model.Order
	Summary *model.Summary
}

// OrdersClient fetches the online/QR order subset for a theater and date
// window from the canteen backend.
type OrdersClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOrdersClient(baseURL string) *OrdersClient {
	return &OrdersClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ordersEnvelope tolerates the three historical response shapes:
// {orders: […]}, {data: […]}, and {data: {orders: […]}}.
type ordersEnvelope struct {
	Orders  []model.Order   `json:"orders"`
	Data    json.RawMessage `json:"data"`
	Summary *model.Summary  `json:"summary"`
}

type nestedEnvelope struct {
	Orders  []model.Order  `json:"orders"`
	Summary *model.Summary `json:"summary"`
}

// FetchOrders GETs /orders/theater/{id} restricted to the online/QR source
// subset and bounded by the window. A 404 is an empty result, not an error.
func (c *OrdersClient) FetchOrders(ctx context.Context, theaterID string, w model.DateWindow) (*FetchResult, error) {
	start, end := w.QueryRange()
	q := url.Values{}
	q.Set("source", "qr_code,online")
	q.Set("startDate", start)
	q.Set("endDate", end)
	q.Set("limit", "1000")

	reqURL := fmt.Sprintf("%s/orders/theater/%s?%s", c.baseURL, url.PathEscape(theaterID), q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("order api: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrNetworkUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &FetchResult{}, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrNetworkUnavailable, resp.StatusCode)
	}

	var env ordersEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidShape, err)
	}
	return decodeEnvelope(env)
}

func decodeEnvelope(env ordersEnvelope) (*FetchResult, error) {
	if env.Orders != nil {
		return &FetchResult{Orders: env.Orders, Summary: env.Summary}, nil
	}
	if len(env.Data) == 0 {
		return &FetchResult{Summary: env.Summary}, nil
	}

	// data may be the array itself or an object with an orders array.
	var flat []model.Order
	if err := json.Unmarshal(env.Data, &flat); err == nil {
		return &FetchResult{Orders: flat, Summary: env.Summary}, nil
	}
	var nested nestedEnvelope
	if err := json.Unmarshal(env.Data, &nested); err == nil && nested.Orders != nil {
		summary := env.Summary
		if summary == nil {
			summary = nested.Summary
		}
		return &FetchResult{Orders: nested.Orders, Summary: summary}, nil
	}
	return nil, ErrInvalidShape
}
