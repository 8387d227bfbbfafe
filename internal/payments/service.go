package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lojix/lojix/internal/billing"
	"github.com/lojix/lojix/internal/metrics"
	"github.com/lojix/lojix/internal/traces"
)

// ChargeSettler is the slice of the billing engine the webhook path
// needs: settle a charge when the gateway confirms payment.
type ChargeSettler interface {
	ProcessPayment(ctx context.Context, chargeID string, method billing.PaymentMethod, paymentRef string, paidAt time.Time) (*billing.Charge, error)
}

// Service drives payment creation and webhook reconciliation.
type Service struct {
	gateway       Client
	charges       ChargeSettler
	webhookSecret string
	logger        *slog.Logger
	now           func() time.Time
}

type ServiceOption func(*Service)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

func NewService(gateway Client, charges ChargeSettler, webhookSecret string, logger *slog.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		gateway:       gateway,
		charges:       charges,
		webhookSecret: webhookSecret,
		logger:        logger,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PaymentResult is the non-throwing outcome of a payment-intent
// request. Failures carry a reason instead of an error so callers can
// render them to end users directly.
type PaymentResult struct {
	Success       bool       `json:"success"`
	FailureReason string     `json:"failureReason,omitempty"`
	PaymentID     string     `json:"paymentId,omitempty"`
	QRCode        string     `json:"qrCode,omitempty"`
	QRCodeBase64  string     `json:"qrCodeBase64,omitempty"`
	Barcode       string     `json:"barcode,omitempty"`
	TicketURL     string     `json:"ticketUrl,omitempty"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

// CreatePixPayment requests a PIX payment intent for a charge. The
// idempotency key is derived from the payment type and charge id, so
// a retried call cannot create a second live intent.
func (s *Service) CreatePixPayment(ctx context.Context, charge *billing.Charge, payerEmail string) *PaymentResult {
	payment, err := s.gateway.CreatePayment(ctx, "pix-"+charge.ID, &PaymentRequest{
		Amount:            charge.Amount,
		Description:       "Monthly subscription " + charge.DueDate.Format("2006-01"),
		ExternalReference: charge.ID,
		PaymentMethodID:   "pix",
		Payer:             Payer{Email: payerEmail},
	})
	if err != nil {
		s.logger.Error("pix payment creation failed", "charge_id", charge.ID, "error", err)
		return &PaymentResult{FailureReason: "gateway unavailable, try again shortly"}
	}
	return &PaymentResult{
		Success:      true,
		PaymentID:    payment.ID,
		QRCode:       payment.QRCode,
		QRCodeBase64: payment.QRCodeBase64,
		ExpiresAt:    payment.ExpiresAt,
	}
}

// CreateBoletoPayment requests a boleto payment intent for a charge.
func (s *Service) CreateBoletoPayment(ctx context.Context, charge *billing.Charge, payerEmail, payerName, payerDocument string) *PaymentResult {
	first, last := splitName(payerName)
	payment, err := s.gateway.CreatePayment(ctx, "boleto-"+charge.ID, &PaymentRequest{
		Amount:            charge.Amount,
		Description:       "Monthly subscription " + charge.DueDate.Format("2006-01"),
		ExternalReference: charge.ID,
		PaymentMethodID:   "bolbradesco",
		Payer: Payer{
			Email:     payerEmail,
			FirstName: first,
			LastName:  last,
			Document:  payerDocument,
		},
	})
	if err != nil {
		s.logger.Error("boleto payment creation failed", "charge_id", charge.ID, "error", err)
		return &PaymentResult{FailureReason: "gateway unavailable, try again shortly"}
	}
	return &PaymentResult{
		Success:   true,
		PaymentID: payment.ID,
		Barcode:   payment.Barcode,
		TicketURL: payment.TicketURL,
		ExpiresAt: payment.ExpiresAt,
	}
}

// notification is the inbound webhook payload shape.
type notification struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Action string `json:"action"`
	Data   struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Webhook outcomes.
const (
	OutcomeProcessed   = "processed"
	OutcomeAlreadyPaid = "already_paid"
	OutcomeIgnored     = "ignored"
	OutcomeNoop        = "noop"
)

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	Outcome       string `json:"outcome"`
	PaymentID     string `json:"paymentId,omitempty"`
	ChargeID      string `json:"chargeId,omitempty"`
	PaymentStatus string `json:"paymentStatus,omitempty"`
}

// ProcessWebhook applies one gateway notification to local state. It
// is safe to call repeatedly for the same underlying payment event:
// an "approved" redelivery against an already-paid charge is a no-op
// that leaves paid_at untouched.
func (s *Service) ProcessWebhook(ctx context.Context, body []byte, signatureHeader, requestID string) (*WebhookResult, error) {
	ctx, span := traces.StartSpan(ctx, "payments.process_webhook")
	defer span.End()

	// A configured secret makes the signature mandatory; an absent
	// header fails verification rather than skipping it.
	if s.webhookSecret != "" {
		if err := VerifySignature(s.webhookSecret, signatureHeader, requestID, body); err != nil {
			metrics.WebhooksProcessedTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
	}

	var n notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	span.SetAttributes(traces.WebhookType(n.Type))

	// Only payment notifications carry state we track.
	if n.Type != "payment" {
		metrics.WebhooksProcessedTotal.WithLabelValues(OutcomeIgnored).Inc()
		return &WebhookResult{Outcome: OutcomeIgnored}, nil
	}

	payment, err := s.gateway.GetPayment(ctx, n.Data.ID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", n.Data.ID, err)
	}
	if payment.ExternalReference == "" {
		return nil, fmt.Errorf("payment %s has no external reference", payment.ID)
	}
	span.SetAttributes(traces.PaymentID(payment.ID), traces.ChargeID(payment.ExternalReference))

	result := &WebhookResult{
		PaymentID:     payment.ID,
		ChargeID:      payment.ExternalReference,
		PaymentStatus: payment.Status,
	}

	switch payment.Status {
	case StatusApproved:
		paidAt := s.now()
		if payment.DateApproved != nil {
			paidAt = *payment.DateApproved
		}
		_, err := s.charges.ProcessPayment(ctx, payment.ExternalReference, mapPaymentMethod(payment.PaymentTypeID), payment.ID, paidAt)
		if errors.Is(err, billing.ErrChargePaid) {
			result.Outcome = OutcomeAlreadyPaid
			metrics.WebhooksProcessedTotal.WithLabelValues(OutcomeAlreadyPaid).Inc()
			return result, nil
		}
		if err != nil {
			return nil, fmt.Errorf("settle charge %s: %w", payment.ExternalReference, err)
		}
		result.Outcome = OutcomeProcessed
		s.logger.Info("payment reconciled",
			"payment_id", payment.ID,
			"charge_id", payment.ExternalReference,
			"method", payment.PaymentTypeID,
		)

	case StatusRejected, StatusCancelled:
		// A failed attempt does not void the obligation; the charge
		// stays open for retries or escalation.
		result.Outcome = OutcomeNoop
		s.logger.Info("payment attempt failed",
			"payment_id", payment.ID,
			"charge_id", payment.ExternalReference,
			"status", payment.Status,
		)

	default:
		result.Outcome = OutcomeNoop
	}

	metrics.WebhooksProcessedTotal.WithLabelValues(result.Outcome).Inc()
	return result, nil
}

// PaymentStatus is the pull-based reconciliation answer for a charge.
type PaymentStatus struct {
	Found     bool       `json:"found"`
	PaymentID string     `json:"paymentId,omitempty"`
	Status    string     `json:"status,omitempty"`
	PaidAt    *time.Time `json:"paidAt,omitempty"`
}

// CheckPaymentStatus searches the gateway by the charge's external
// reference. Used when webhook delivery is suspected to have failed.
func (s *Service) CheckPaymentStatus(ctx context.Context, chargeID string) (*PaymentStatus, error) {
	found, err := s.gateway.SearchByExternalReference(ctx, chargeID)
	if err != nil {
		return nil, fmt.Errorf("search payments for %s: %w", chargeID, err)
	}
	if len(found) == 0 {
		return &PaymentStatus{Found: false}, nil
	}

	// Prefer an approved payment over later failed attempts.
	best := found[0]
	for _, p := range found {
		if p.Status == StatusApproved {
			best = p
			break
		}
	}
	return &PaymentStatus{
		Found:     true,
		PaymentID: best.ID,
		Status:    best.Status,
		PaidAt:    best.DateApproved,
	}, nil
}

func mapPaymentMethod(paymentTypeID string) billing.PaymentMethod {
	switch paymentTypeID {
	case "pix":
		return billing.MethodPix
	case "ticket":
		return billing.MethodBoleto
	default:
		return billing.MethodGateway
	}
}

func splitName(full string) (first, last string) {
	fields := strings.Fields(full)
	switch len(fields) {
	case 0:
		return "", ""
	case 1:
		return fields[0], ""
	default:
		return fields[0], fields[len(fields)-1]
	}
}
