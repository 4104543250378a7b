package services

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"

	"enrollment-crm/logger"

	"github.com/razorpay/razorpay-go"
)

// PaymentOrder is a checkout order opened at the payment gateway.
type PaymentOrder struct {
	OrderID  string  `json:"orderId"`
	RecordID string  `json:"recordId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	Receipt  string  `json:"receipt"`
	KeyID    string  `json:"keyId,omitempty"`
}

// VerifyPaymentRequest carries the fields returned by checkout.
type VerifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
}

// PaymentGateway opens orders and checks checkout signatures.
type PaymentGateway interface {
	CreateOrder(amountMinor int64, currency, receipt string, notes map[string]interface{}) (string, error)
	VerifySignature(orderID, paymentID, signature string) bool
	KeyID() string
}

// RazorpayGateway talks to Razorpay.
type RazorpayGateway struct {
	client    *razorpay.Client
	keyID     string
	keySecret string
}

// NewRazorpayGateway returns nil when credentials are missing.
func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	if keyID == "" || keySecret == "" {
		logger.Warn("Razorpay credentials not configured, online payments are disabled")
		return nil
	}
	return &RazorpayGateway{
		client:    razorpay.NewClient(keyID, keySecret),
		keyID:     keyID,
		keySecret: keySecret,
	}
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

func (g *RazorpayGateway) CreateOrder(amountMinor int64, currency, receipt string, notes map[string]interface{}) (string, error) {
	data := map[string]interface{}{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
		"notes":    notes,
	}
	resp, err := g.client.Order.Create(data, nil)
	if err != nil {
		return "", fmt.Errorf("error creating razorpay order: %w", err)
	}
	orderID, ok := resp["id"].(string)
	if !ok || orderID == "" {
		return "", fmt.Errorf("razorpay order response has no id")
	}
	return orderID, nil
}

func (g *RazorpayGateway) VerifySignature(orderID, paymentID, signature string) bool {
	return VerifyCheckoutSignature(orderID, paymentID, signature, g.keySecret)
}

// VerifyCheckoutSignature checks the HMAC-SHA256 of "order_id|payment_id"
// keyed with the API secret.
func VerifyCheckoutSignature(orderID, paymentID, signature, secret string) bool {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(h.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// minorUnits converts an amount to cents.
func minorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
