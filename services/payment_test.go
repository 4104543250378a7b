package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/models"
	"enrollment-crm/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signFor(orderID, paymentID, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(h.Sum(nil))
}

func TestVerifyCheckoutSignature(t *testing.T) {
	sig := signFor("order_1", "pay_1", "secret")

	assert.True(t, VerifyCheckoutSignature("order_1", "pay_1", sig, "secret"))
	assert.False(t, VerifyCheckoutSignature("order_1", "pay_2", sig, "secret"))
	assert.False(t, VerifyCheckoutSignature("order_1", "pay_1", sig, "other"))
	assert.False(t, VerifyCheckoutSignature("order_1", "pay_1", "", "secret"))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(12345), minorUnits(123.45))
	assert.Equal(t, int64(1), minorUnits(0.005))
	assert.Equal(t, int64(1999), minorUnits(19.99))
}

func TestNewRazorpayGateway_RequiresCredentials(t *testing.T) {
	assert.Nil(t, NewRazorpayGateway("", "secret"))
	assert.Nil(t, NewRazorpayGateway("key", ""))

	gw := NewRazorpayGateway("rzp_key", "secret")
	if assert.NotNil(t, gw) {
		assert.Equal(t, "rzp_key", gw.KeyID())
		assert.True(t, gw.VerifySignature("o", "p", signFor("o", "p", "secret")))
	}
}

func signBody(body, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(body))
	return hex.EncodeToString(h.Sum(nil))
}

func TestHandleWebhook(t *testing.T) {
	env := newTestEnv(t)
	seedRecord(t, env, models.FinancialRecord{ID: "R1", StudentName: "Ana", CourseName: "A", Amount: 10, DueDate: "2024-04-10", PaymentOrderID: "order_9"})
	ctx := context.Background()

	_, err := NewFinanceService(env.deps, nil, "").HandleWebhook(ctx, []byte(`{}`), "x")
	assert.True(t, apperrors.IsKind(err, apperrors.Invalid), "disabled without a secret")

	svc := NewFinanceService(env.deps, nil, "").WithWebhookSecret("whsec")

	captured := `{"event":"payment.captured","payload":{"payment":{"entity":{"id":"pay_1","order_id":"order_9"}}}}`
	_, err = svc.HandleWebhook(ctx, []byte(captured), "bad")
	assert.True(t, apperrors.IsKind(err, apperrors.Unauthorized))

	res, err := svc.HandleWebhook(ctx, []byte(captured), signBody(captured, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "processed", res.Status)
	assert.Equal(t, "R1", res.RecordID)
	rec, _ := svc.Get(ctx, "R1")
	assert.Equal(t, models.RecordPaid, rec.Status)
	ev, ok := env.events.find(utils.EventRecordPaid)
	require.True(t, ok)
	assert.Equal(t, "R1", ev.Key)

	paid := `{"event":"order.paid","payload":{"order":{"entity":{"id":"order_unknown"}}}}`
	res, err = svc.HandleWebhook(ctx, []byte(paid), signBody(paid, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "ignored", res.Status)

	failed := `{"event":"payment.failed","payload":{"payment":{"entity":{"id":"pay_2","order_id":"order_9","error_code":"BAD_REQUEST_ERROR"}}}}`
	res, err = svc.HandleWebhook(ctx, []byte(failed), signBody(failed, "whsec"))
	require.NoError(t, err)
	assert.Equal(t, "acknowledged", res.Status)

	noOrder := `{"event":"payment.captured","payload":{}}`
	_, err = svc.HandleWebhook(ctx, []byte(noOrder), signBody(noOrder, "whsec"))
	assert.True(t, apperrors.IsKind(err, apperrors.Invalid))
}
