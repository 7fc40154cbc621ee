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

package cryptopay

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"cryptopay-fulfillment-go/internal/models"
	"cryptopay-fulfillment-go/internal/reconcile"

	"go.uber.org/zap"
)

const (
	MainnetURL = "https://pay.crypt.bot/api"
	TestnetURL = "https://testnet-pay.crypt.bot/api"

	tokenHeader = "Crypto-Pay-API-Token"
)

// Compile-time check: *Client must satisfy reconcile.PaymentProvider.
var _ reconcile.PaymentProvider = (*Client)(nil)

// Client talks to the Crypto Pay REST API.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	token          string
	acceptedAssets string
	expiresIn      time.Duration
}

func NewClient(httpClient *http.Client, cfg models.CryptoPayConfig) *Client {
	baseURL := MainnetURL
	if cfg.Testnet {
		baseURL = TestnetURL
	}
	return &Client{
		httpClient:     httpClient,
		baseURL:        baseURL,
		token:          cfg.Token,
		acceptedAssets: cfg.AcceptedAssets,
		expiresIn:      cfg.ExpiresIn,
	}
}

// WithBaseURL points the client at a different API root.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = strings.TrimSuffix(baseURL, "/")
	return c
}

// Ping verifies the token with getMe.
func (c *Client) Ping(ctx context.Context) error {
	var app appInfo
	if err := c.call(ctx, http.MethodGet, "getMe", nil, &app); err != nil {
		return fmt.Errorf("crypto pay probe failed: %w", err)
	}
	zap.L().Debug("Crypto Pay reachable", zap.Int64("app_id", app.AppId), zap.String("name", app.Name))
	return nil
}

// CreateInvoice creates an invoice. With CurrencyType "fiat" the amount is USD
// and the payer may settle in any of the accepted assets.
func (c *Client) CreateInvoice(ctx context.Context, req models.CreateInvoiceRequest) (*models.PaymentInvoice, error) {
	body := createInvoiceRequest{
		Amount:       req.AmountUsd.StringFixed(2),
		CurrencyType: req.CurrencyType,
		Description:  req.Description,
		Payload:      req.Payload,
	}
	if c.expiresIn > 0 {
		body.ExpiresIn = int64(c.expiresIn / time.Second)
	}
	switch req.CurrencyType {
	case "fiat":
		body.Fiat = "USD"
		body.AcceptedAssets = c.acceptedAssets
	default:
		body.CurrencyType = "crypto"
		body.Asset = req.Asset
	}

	var inv invoice
	if err := c.call(ctx, http.MethodPost, "createInvoice", body, &inv); err != nil {
		return nil, fmt.Errorf("createInvoice failed: %w", err)
	}

	out, err := inv.toModel()
	if err != nil {
		return nil, err
	}
	zap.L().Info("Crypto Pay invoice created",
		zap.String("invoice_id", out.Id),
		zap.String("amount", body.Amount),
		zap.String("currency_type", body.CurrencyType))
	return out, nil
}

// GetInvoiceStatus returns reconcile.ErrNoData when the provider does not know the invoice.
func (c *Client) GetInvoiceStatus(ctx context.Context, invoiceId string) (*models.PaymentInvoice, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "getInvoices?invoice_ids="+url.QueryEscape(invoiceId), nil, &raw); err != nil {
		return nil, fmt.Errorf("getInvoices failed: %w", err)
	}

	items, err := decodeInvoiceList(raw)
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if item.Id() == invoiceId {
			return item.toModel()
		}
	}
	return nil, fmt.Errorf("%w: invoice %s", reconcile.ErrNoData, invoiceId)
}

// decodeInvoiceList accepts {"items":[...]} and a bare array.
func decodeInvoiceList(raw json.RawMessage) ([]invoice, error) {
	var page invoicePage
	if err := json.Unmarshal(raw, &page); err == nil {
		return page.Items, nil
	}
	var items []invoice
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("unexpected getInvoices result: %w", err)
	}
	return items, nil
}

func (c *Client) call(ctx context.Context, method, path string, body any, result any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = strings.NewReader(string(encoded))
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(tokenHeader, c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		zap.L().Warn("Unparseable Crypto Pay response",
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return &APIError{StatusCode: resp.StatusCode, Name: "UNPARSEABLE_RESPONSE"}
	}
	if !env.Ok {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if env.Error != nil {
			apiErr.Code = env.Error.Code
			apiErr.Name = env.Error.Name
		}
		zap.L().Warn("Crypto Pay returned an error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", raw))
		return apiErr
	}
	if result == nil || len(env.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Result, result); err != nil {
		return fmt.Errorf("failed to decode result: %w", err)
	}
	return nil
}
