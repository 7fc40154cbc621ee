package cryptopay

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"cryptopay-fulfillment-go/internal/models"

	"github.com/shopspring/decimal"
)

type envelope struct {
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code int    `json:"code"`
		Name string `json:"name"`
	} `json:"error"`
}

// APIError is a non-ok Crypto Pay response.
type APIError struct {
	StatusCode int
	Code       int
	Name       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("crypto pay error %d %s (http %d)", e.Code, e.Name, e.StatusCode)
}

type appInfo struct {
	AppId                        int64  `json:"app_id"`
	Name                         string `json:"name"`
	PaymentProcessingBotUsername string `json:"payment_processing_bot_username"`
}

type createInvoiceRequest struct {
	Amount         string `json:"amount"`
	Asset          string `json:"asset,omitempty"`
	CurrencyType   string `json:"currency_type"`
	Fiat           string `json:"fiat,omitempty"`
	AcceptedAssets string `json:"accepted_assets,omitempty"`
	Description    string `json:"description,omitempty"`
	Payload        string `json:"payload,omitempty"`
	ExpiresIn      int64  `json:"expires_in,omitempty"`
}

type invoicePage struct {
	Items []invoice `json:"items"`
}

type invoice struct {
	InvoiceId     json.Number `json:"invoice_id"`
	Status        string      `json:"status"`
	Asset         string      `json:"asset"`
	Fiat          string      `json:"fiat"`
	Amount        string      `json:"amount"`
	PayUrl        string      `json:"pay_url"`
	BotInvoiceUrl string      `json:"bot_invoice_url"`
	Payload       string      `json:"payload"`
	CreatedAt     string      `json:"created_at"`
	PaidAt        string      `json:"paid_at"`
}

func (i invoice) Id() string {
	return i.InvoiceId.String()
}

// PaymentURL prefers the bot deep link over the web page.
func (i invoice) PaymentURL() string {
	if i.BotInvoiceUrl != "" {
		return i.BotInvoiceUrl
	}
	return i.PayUrl
}

func (i invoice) toModel() (*models.PaymentInvoice, error) {
	if i.Id() == "" {
		return nil, fmt.Errorf("invoice without invoice_id")
	}
	status, ok := models.ParseInvoiceStatus(i.Status)
	if !ok {
		return nil, fmt.Errorf("invoice %s has unknown status %q", i.Id(), i.Status)
	}

	out := &models.PaymentInvoice{
		Id:        i.Id(),
		Status:    status,
		RawStatus: i.Status,
		Asset:     i.Asset,
		PayUrl:    i.PaymentURL(),
		Payload:   i.Payload,
	}
	if out.Asset == "" {
		out.Asset = i.Fiat
	}
	if i.Amount != "" {
		amount, err := decimal.NewFromString(i.Amount)
		if err != nil {
			return nil, fmt.Errorf("invoice %s has invalid amount %q: %w", i.Id(), i.Amount, err)
		}
		out.Amount = amount
	}
	if t, ok := parseTime(i.CreatedAt); ok {
		out.CreatedAt = t
	}
	if t, ok := parseTime(i.PaidAt); ok {
		out.PaidAt = &t
	}
	return out, nil
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
			return time.Unix(unix, 0).UTC(), true
		}
		return time.Time{}, false
	}
	return t.UTC(), true
}
