/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fragment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const DefaultBaseURL = "https://api.fragment-api.com/v1"

// Client places subscription and points orders with the Fragment API.
// Without a token it runs in demo mode and returns synthetic orders.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	now        func() time.Time
}

func NewClient(httpClient *http.Client, cfg models.FragmentConfig) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      strings.TrimSpace(cfg.Token),
		now:        func() time.Time { return time.Now().UTC() },
	}
	zap.L().Info("Fragment client initialized", zap.Bool("demo_mode", c.DemoMode()))
	return c
}

// DemoMode reports whether orders are synthesized locally.
func (c *Client) DemoMode() bool {
	return c.token == ""
}

type premiumOrderRequest struct {
	Username   string `json:"username"`
	Months     int    `json:"months"`
	ShowSender bool   `json:"show_sender"`
}

type starsOrderRequest struct {
	Username   string `json:"username"`
	Quantity   int    `json:"quantity"`
	ShowSender bool   `json:"show_sender"`
}

type orderResponse struct {
	Id        string          `json:"id"`
	Username  string          `json:"username"`
	Months    int             `json:"months"`
	Quantity  int             `json:"quantity"`
	Status    string          `json:"status"`
	Price     decimal.Decimal `json:"price"`
	Currency  string          `json:"currency"`
	CreatedAt string          `json:"created_at"`
}

// PlaceSubscriptionOrder orders a subscription of months for target.
func (c *Client) PlaceSubscriptionOrder(ctx context.Context, target string, months int, showSender bool) (*models.FulfillmentOrder, error) {
	if c.DemoMode() {
		return c.demoOrder(models.ProductSubscription, "premium", target, months), nil
	}
	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/order/premium/", premiumOrderRequest{Username: target, Months: months, ShowSender: showSender}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toOrder(resp, models.ProductSubscription, target, months), nil
}

// PlacePointsOrder orders quantity points for target.
func (c *Client) PlacePointsOrder(ctx context.Context, target string, quantity int, showSender bool) (*models.FulfillmentOrder, error) {
	if c.DemoMode() {
		return c.demoOrder(models.ProductPoints, "stars", target, quantity), nil
	}
	var resp orderResponse
	err := c.do(ctx, http.MethodPost, "/order/stars/", starsOrderRequest{Username: target, Quantity: quantity, ShowSender: showSender}, &resp)
	if err != nil {
		return nil, err
	}
	return c.toOrder(resp, models.ProductPoints, target, quantity), nil
}

// Ping checks connectivity and authentication with GET /orders.
func (c *Client) Ping(ctx context.Context) error {
	if c.DemoMode() {
		return nil
	}
	return c.do(ctx, http.MethodGet, "/orders", nil, nil)
}

func (c *Client) demoOrder(kind models.ProductKind, label, target string, quantity int) *models.FulfillmentOrder {
	now := c.now()
	order := &models.FulfillmentOrder{
		Id:        fmt.Sprintf("demo_%s_order_%s_%d", label, target, now.UnixNano()),
		Kind:      kind,
		Target:    target,
		Quantity:  quantity,
		Currency:  "USD",
		Status:    "pending",
		CreatedAt: now,
	}
	zap.L().Info("Demo order created",
		zap.String("order_id", order.Id),
		zap.String("kind", string(kind)),
		zap.String("target", target),
		zap.Int("quantity", quantity))
	return order
}

func (c *Client) toOrder(resp orderResponse, kind models.ProductKind, target string, quantity int) *models.FulfillmentOrder {
	order := &models.FulfillmentOrder{
		Id:        resp.Id,
		Kind:      kind,
		Target:    target,
		Quantity:  quantity,
		Price:     resp.Price,
		Currency:  resp.Currency,
		Status:    resp.Status,
		CreatedAt: c.now(),
	}
	if resp.Username != "" {
		order.Target = resp.Username
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	if order.Status == "" {
		order.Status = "pending"
	}
	if t, err := time.Parse(time.RFC3339, resp.CreatedAt); err == nil {
		order.CreatedAt = t.UTC()
	}
	if order.Id == "" {
		order.Id = fmt.Sprintf("order_%s_%d", target, quantity)
	}
	return order
}

func (c *Client) do(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "JWT "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fragment request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read fragment response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := parseAPIError(resp.StatusCode, raw)
		zap.L().Error("Fragment API error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return apiErr
	}

	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("failed to decode fragment response: %w", err)
	}
	return nil
}
