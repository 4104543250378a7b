package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
)

// RazorpayWebhookPayload is the part of a Razorpay webhook body we read.
type RazorpayWebhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity webhookPayment `json:"entity"`
		} `json:"payment"`
		Order struct {
			Entity struct {
				ID string `json:"id"`
			} `json:"entity"`
		} `json:"order"`
	} `json:"payload"`
}

type webhookPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
}

// WebhookResult tells the gateway what happened to a delivery.
type WebhookResult struct {
	Event    string `json:"event"`
	Status   string `json:"status"`
	RecordID string `json:"recordId,omitempty"`
}

// VerifyWebhookSignature checks the hex HMAC-SHA256 of the raw body.
func VerifyWebhookSignature(payload []byte, signature, secret string) bool {
	if secret == "" || signature == "" {
		return false
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// WithWebhookSecret enables HandleWebhook.
func (s *FinanceService) WithWebhookSecret(secret string) *FinanceService {
	s.webhookSecret = secret
	return s
}

// HandleWebhook settles records from Razorpay deliveries. Captured
// payments and paid orders mark the linked record paid; orders that are
// not ours are acknowledged and ignored so the gateway stops retrying.
func (s *FinanceService) HandleWebhook(ctx context.Context, body []byte, signature string) (WebhookResult, error) {
	if s.webhookSecret == "" {
		return WebhookResult{}, apperrors.E(apperrors.Invalid, "payment webhooks are not configured")
	}
	if !VerifyWebhookSignature(body, signature, s.webhookSecret) {
		logger.Warn("[WEBHOOK] Rejected delivery with invalid signature")
		return WebhookResult{}, apperrors.E(apperrors.Unauthorized, "invalid webhook signature")
	}

	var payload RazorpayWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return WebhookResult{}, apperrors.E(apperrors.Invalid, "invalid webhook payload", err)
	}
	logger.Info("[WEBHOOK] Received: %s", payload.Event)

	res := WebhookResult{Event: payload.Event, Status: "acknowledged"}
	payment := payload.Payload.Payment.Entity

	switch payload.Event {
	case "payment.captured", "order.paid":
		orderID := payment.OrderID
		if orderID == "" {
			orderID = payload.Payload.Order.Entity.ID
		}
		if orderID == "" {
			return WebhookResult{}, apperrors.E(apperrors.Invalid, "webhook %s carries no order id", payload.Event)
		}
		rec, err := s.settleOrder(ctx, orderID, "webhook")
		if apperrors.IsKind(err, apperrors.NotFound) {
			logger.Warn("[WEBHOOK] No financial record for order %s", orderID)
			res.Status = "ignored"
			return res, nil
		}
		if err != nil {
			return WebhookResult{}, err
		}
		res.Status = "processed"
		res.RecordID = rec.ID

	case "payment.failed":
		logger.Warn("[WEBHOOK] Payment %s failed for order %s: %s: %s",
			payment.ID, payment.OrderID, payment.ErrorCode, payment.ErrorDescription)

	default:
		logger.Debug("[WEBHOOK] Unhandled event type: %s - acknowledging anyway", payload.Event)
	}
	return res, nil
}
