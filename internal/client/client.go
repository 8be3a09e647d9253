package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrUnauthorized is returned when the platform rejects the credentials or
// the stored token has expired.
var ErrUnauthorized = errors.New("unauthorized")

// Client is a typed HTTP client for the ordering platform, used by the
// kitchen station binary.
type Client struct {
	baseURL string
	http    *http.Client
	token   string
}

// New creates a Client against baseURL with the given per-request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

// --- Wire types ---

type LoginResult struct {
	Token string `json:"token"`
	User  struct {
		ID       int64  `json:"id"`
		FullName string `json:"full_name"`
		Role     string `json:"role"`
	} `json:"user"`
	Tenant struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	} `json:"tenant"`
}

type KitchenOrder struct {
	ID              int64         `json:"id"`
	OrderNumber     string        `json:"order_number"`
	Status          string        `json:"status"`
	FulfillmentType string        `json:"fulfillment_type"`
	CustomerName    *string       `json:"customer_name"`
	CustomerPhone   *string       `json:"customer_phone"`
	DeliveryAddress *string       `json:"delivery_address"`
	Notes           *string       `json:"notes"`
	Total           string        `json:"total"`
	CreatedAt       time.Time     `json:"created_at"`
	Items           []KitchenItem `json:"items"`
}

type KitchenItem struct {
	Quantity    int32   `json:"quantity"`
	ProductName string  `json:"product_name"`
	DisplayNote *string `json:"display_note"`
	LineKind    string  `json:"line_kind"`
}

// --- Operations ---

// Login authenticates against the platform and stores the returned token for
// subsequent calls.
func (c *Client) Login(ctx context.Context, tenant, email, password string) (*LoginResult, error) {
	var result LoginResult
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"tenant":   tenant,
		"email":    email,
		"password": password,
	}, &result)
	if err != nil {
		return nil, err
	}
	c.token = result.Token
	return &result, nil
}

// FetchKitchenOrders returns the tenant's active order set.
func (c *Client) FetchKitchenOrders(ctx context.Context) ([]KitchenOrder, error) {
	var orders []KitchenOrder
	if err := c.do(ctx, http.MethodGet, "/orders/kitchen", nil, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatus advances an order's status.
func (c *Client) UpdateStatus(ctx context.Context, orderID int64, status string) error {
	return c.do(ctx, http.MethodPut, fmt.Sprintf("/orders/%d/status", orderID),
		map[string]string{"status": status}, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("%s %s: %s (status %d)", method, path, apiErr.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
