// Package payments integrates with the external payment gateway: it
// issues PIX and boleto payment intents for charges and reconciles the
// gateway's asynchronous webhook notifications back onto them.
package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

var ErrPaymentNotFound = errors.New("payments: payment not found")

// PaymentRequest is an outbound payment-intent request.
type PaymentRequest struct {
	Amount            decimal.Decimal `json:"transaction_amount"`
	Description       string          `json:"description"`
	ExternalReference string          `json:"external_reference"`
	PaymentMethodID   string          `json:"payment_method_id"`
	Payer             Payer           `json:"payer"`
}

// Payer identifies who is paying.
type Payer struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Document  string `json:"identification,omitempty"`
}

// Payment is the gateway's view of a payment.
type Payment struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	PaymentTypeID     string          `json:"payment_type_id"`
	ExternalReference string          `json:"external_reference"`
	Amount            decimal.Decimal `json:"transaction_amount"`
	DateApproved      *time.Time      `json:"date_approved,omitempty"`
	QRCode            string          `json:"qr_code,omitempty"`
	QRCodeBase64      string          `json:"qr_code_base64,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	TicketURL         string          `json:"ticket_url,omitempty"`
	ExpiresAt         *time.Time      `json:"date_of_expiration,omitempty"`
}

// Gateway payment statuses we react to. Anything else is informational.
const (
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Client talks to the payment gateway.
type Client interface {
	// CreatePayment issues a payment intent. The idempotency key makes
	// a retried call return the original intent instead of a second one.
	CreatePayment(ctx context.Context, idempotencyKey string, req *PaymentRequest) (*Payment, error)

	GetPayment(ctx context.Context, id string) (*Payment, error)

	// SearchByExternalReference finds payments created for a given
	// external reference, which this system sets to the charge id.
	SearchByExternalReference(ctx context.Context, ref string) ([]*Payment, error)
}

// HTTPClient is the production Client over the gateway's REST API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (c *HTTPClient) CreatePayment(ctx context.Context, idempotencyKey string, req *PaymentRequest) (*Payment, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal payment request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/payments", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	httpReq.Header.Set("X-Idempotency-Key", idempotencyKey)

	var payment Payment
	if err := c.do(httpReq, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *HTTPClient) GetPayment(ctx context.Context, id string) (*Payment, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/payments/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	var payment Payment
	if err := c.do(httpReq, &payment); err != nil {
		return nil, err
	}
	return &payment, nil
}

func (c *HTTPClient) SearchByExternalReference(ctx context.Context, ref string) ([]*Payment, error) {
	u := c.baseURL + "/v1/payments/search?external_reference=" + url.QueryEscape(ref)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)

	var result struct {
		Results []*Payment `json:"results"`
	}
	if err := c.do(httpReq, &result); err != nil {
		return nil, err
	}
	return result.Results, nil
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrPaymentNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
