// Package gateway is the client of the hosted payment page provider.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"ledgerd/internal/core/id"
	"ledgerd/internal/core/types"
	"ledgerd/internal/domain"
)

var _ domain.PaymentLinker = (*Client)(nil)

type linkRequest struct {
	Reference string `json:"reference"`
	Amount    string `json:"amount"`
	Currency  string `json:"currency"`
}

type linkResponse struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Client creates payment links through the provider's REST API.
type Client struct {
	http     *resty.Client
	currency string
}

// New creates a gateway client.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(200*time.Millisecond).
		SetHeader("Accept", "application/json")
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &Client{http: client, currency: "USD"}
}

// CreateLink registers a payment page for the outstanding amount of an invoice.
func (c *Client) CreateLink(ctx context.Context, invoiceID id.ID, amount types.Money) (string, error) {
	var (
		out     linkResponse
		failure errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(linkRequest{
			Reference: invoiceID.String(),
			Amount:    amount.StringFixed(2),
			Currency:  c.currency,
		}).
		SetResult(&out).
		SetError(&failure).
		Post("/v1/payment-links")
	if err != nil {
		return "", fmt.Errorf("create payment link: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("create payment link: provider answered %d: %s", resp.StatusCode(), failure.Message)
	}
	if out.URL == "" {
		return "", fmt.Errorf("create payment link: provider returned no url")
	}
	return out.URL, nil
}
