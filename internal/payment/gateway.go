// Package payment talks to the external payment provider over HTTP.
package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"estatecore/pkg/domain"
)

// Config configures the HTTP gateway.
type Config struct {
	BaseURL  string
	APIKey   string
	Currency string
	Timeout  time.Duration
}

type chargeRequest struct {
	InvoiceID   string `json:"invoice_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type chargeResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ErrDeclined is returned when the provider answers but refuses the charge.
var ErrDeclined = errors.New("payment declined")

// HTTPGateway charges invoices through a JSON API. Each invoice ID doubles as
// the idempotency key so a repeated attempt cannot charge twice.
type HTTPGateway struct {
	client   *resty.Client
	currency string
	logger   *zap.Logger
}

// NewHTTPGateway builds a gateway. Requests are not retried.
func NewHTTPGateway(cfg Config, logger *zap.Logger) *HTTPGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	currency := cfg.Currency
	if currency == "" {
		currency = "BRL"
	}
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if cfg.APIKey != "" {
		client.SetAuthToken(cfg.APIKey)
	}
	return &HTTPGateway{client: client, currency: currency, logger: logger}
}

// Charge requests payment of the invoice and returns the provider reference.
func (g *HTTPGateway) Charge(ctx context.Context, invoice domain.Invoice) (string, error) {
	var out chargeResponse
	resp, err := g.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", invoice.ID).
		SetBody(chargeRequest{
			InvoiceID:   invoice.ID,
			AmountCents: invoice.AmountCents,
			Currency:    g.currency,
			Description: invoice.Description,
		}).
		SetResult(&out).
		SetError(&out).
		Post("/charges")
	if err != nil {
		g.logger.Error("payment provider unreachable", zap.String("invoice_id", invoice.ID), zap.Error(err))
		return "", fmt.Errorf("charge invoice %s: %w", invoice.ID, err)
	}
	if resp.IsError() {
		g.logger.Warn("payment provider error",
			zap.String("invoice_id", invoice.ID),
			zap.Int("status_code", resp.StatusCode()),
			zap.String("message", out.Message))
		return "", fmt.Errorf("charge invoice %s: provider returned %d: %s", invoice.ID, resp.StatusCode(), out.Message)
	}
	switch out.Status {
	case "succeeded", "paid":
	default:
		return "", fmt.Errorf("%w: invoice %s: %s %s", ErrDeclined, invoice.ID, out.Status, out.Message)
	}
	if out.ID == "" {
		return "", fmt.Errorf("charge invoice %s: provider returned no reference", invoice.ID)
	}
	g.logger.Info("invoice charged", zap.String("invoice_id", invoice.ID), zap.String("reference", out.ID))
	return out.ID, nil
}
