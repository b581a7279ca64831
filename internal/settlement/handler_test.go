package settlement

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studypal/backend/internal/middleware"
	"github.com/studypal/backend/internal/models"
	"github.com/studypal/backend/pkg/paystack"
)

const testWebhookSecret = "sk_test_webhook"

func webhookBody(t *testing.T, event, reference string, amount int64, md paystack.Metadata) []byte {
	t.Helper()
	payload := map[string]any{
		"event": event,
		"data": map[string]any{
			"reference": reference,
			"status":    "success",
			"amount":    amount,
			"customer":  map[string]any{"email": "ada@example.com"},
			"metadata":  md,
		},
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func postWebhook(h *Handler, body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/webhook", bytes.NewReader(body))
	if signature != "" {
		req.Header.Set("x-paystack-signature", signature)
	}
	rr := httptest.NewRecorder()
	h.Webhook(rr, req)
	return rr
}

func TestWebhook_RejectsBadSignature(t *testing.T) {
	buyer := uuid.New()
	f := newEngineFixture(newMockIntents(), newMockAccounts(&models.Account{ID: buyer, Email: "ada@example.com"}), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	body := webhookBody(t, "charge.success", "ku_ref_sig", 50000, paystack.Metadata{
		AccountID: buyer.String(), PackageID: "starter",
	})

	rr := postWebhook(h, body, "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postWebhook(h, body, signBody("wrong-secret", body))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	if got, _ := f.wallets.Balance(t.Context(), buyer); got != 0 {
		t.Errorf("unsigned webhook must not credit, balance %d", got)
	}
}

func TestWebhook_SettlesChargeSuccess(t *testing.T) {
	buyer := uuid.New()
	f := newEngineFixture(newMockIntents(), newMockAccounts(&models.Account{ID: buyer, Email: "ada@example.com"}), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	body := webhookBody(t, "charge.success", "ku_ref_hook", 50000, paystack.Metadata{
		AccountID: buyer.String(), PackageID: "starter",
	})
	rr := postWebhook(h, body, signBody(testWebhookSecret, body))

	assert.Equal(t, http.StatusOK, rr.Code)
	balance, _ := f.wallets.Balance(t.Context(), buyer)
	assert.Equal(t, 13, balance, "10 starter units + 3 welcome bonus")

	// Redelivery of the same event is acknowledged without a second credit.
	rr = postWebhook(h, body, signBody(testWebhookSecret, body))
	assert.Equal(t, http.StatusOK, rr.Code)
	balance, _ = f.wallets.Balance(t.Context(), buyer)
	assert.Equal(t, 13, balance)
}

func TestWebhook_IgnoresOtherEvents(t *testing.T) {
	f := newEngineFixture(newMockIntents(), newMockAccounts(), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	body := webhookBody(t, "transfer.success", "ku_ref_xfer", 50000, paystack.Metadata{})
	rr := postWebhook(h, body, signBody(testWebhookSecret, body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "event ignored", rr.Body.String())
}

func TestWebhook_AcknowledgesHandledFailures(t *testing.T) {
	buyer := uuid.New()
	pkgID := "scholar"
	intents := newMockIntents(&models.CheckoutIntent{
		Reference:      "ku_ref_bad_amount",
		AccountID:      buyer,
		Target:         models.TargetPersonal,
		Units:          25,
		ExpectedAmount: 100000,
		PackageID:      &pkgID,
	})
	f := newEngineFixture(intents, newMockAccounts(&models.Account{ID: buyer, Email: "ada@example.com"}), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	// Confirmed amount disagrees with the intent: handled, not retried.
	body := webhookBody(t, "charge.success", "ku_ref_bad_amount", 100, paystack.Metadata{
		AccountID: buyer.String(),
	})
	rr := postWebhook(h, body, signBody(testWebhookSecret, body))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "event handled", rr.Body.String())
	balance, _ := f.wallets.Balance(t.Context(), buyer)
	assert.Equal(t, 0, balance)
}

func settleWithAccount(h *Handler, acc *models.Account, payload string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/purchases/settle", bytes.NewBufferString(payload))
	if acc != nil {
		req = req.WithContext(middleware.WithAccount(req.Context(), acc))
	}
	rr := httptest.NewRecorder()
	h.SettlePurchase(rr, req)
	return rr
}

func TestSettlePurchase_RequiresAuth(t *testing.T) {
	f := newEngineFixture(newMockIntents(), newMockAccounts(), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	rr := settleWithAccount(h, nil, `{"reference":"ku_ref_1","packageId":"starter"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestSettlePurchase_RejectsBareCustomUnits(t *testing.T) {
	buyer := &models.Account{ID: uuid.New(), Email: "ada@example.com"}
	f := newEngineFixture(newMockIntents(), newMockAccounts(buyer), nil)
	h := NewHandler(f.engine, testWebhookSecret, nil)

	rr := settleWithAccount(h, buyer, `{"reference":"ku_ref_1","customUnits":40}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "checkout intent")
}

func TestSettlePurchase_Success(t *testing.T) {
	buyer := &models.Account{ID: uuid.New(), Email: "ada@example.com"}
	f := newEngineFixture(newMockIntents(), newMockAccounts(buyer), successVerifier(50000, "ada@example.com"))
	h := NewHandler(f.engine, testWebhookSecret, nil)

	rr := settleWithAccount(h, buyer, `{"reference":"ku_ref_ok","packageId":"starter"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp settleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 10, resp.UnitsCredited)
	assert.Equal(t, 13, resp.NewBalance)
}

func TestSettlePurchase_ErrorMapping(t *testing.T) {
	buyer := &models.Account{ID: uuid.New(), Email: "ada@example.com"}

	cases := []struct {
		name     string
		verifier Verifier
		payload  string
		wantCode int
	}{
		{
			name:     "missing reference",
			verifier: nil,
			payload:  `{"packageId":"starter"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown package",
			verifier: successVerifier(50000, "ada@example.com"),
			payload:  `{"reference":"ku_ref_e1","packageId":"platinum"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "no pending intent",
			verifier: successVerifier(50000, "ada@example.com"),
			payload:  `{"reference":"ku_ref_e2","fromPending":true}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "identity mismatch",
			verifier: successVerifier(50000, "mallory@example.com"),
			payload:  `{"reference":"ku_ref_e3","packageId":"starter"}`,
			wantCode: http.StatusUnauthorized,
		},
		{
			name:     "amount mismatch",
			verifier: successVerifier(999, "ada@example.com"),
			payload:  `{"reference":"ku_ref_e4","packageId":"starter"}`,
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newEngineFixture(newMockIntents(), newMockAccounts(&models.Account{ID: buyer.ID, Email: buyer.Email}), tc.verifier)
			h := NewHandler(f.engine, testWebhookSecret, nil)
			rr := settleWithAccount(h, buyer, tc.payload)
			assert.Equal(t, tc.wantCode, rr.Code, rr.Body.String())
		})
	}
}

func TestSettlePurchase_RetryAfterFailureConflicts(t *testing.T) {
	buyer := &models.Account{ID: uuid.New(), Email: "ada@example.com"}
	f := newEngineFixture(newMockIntents(), newMockAccounts(buyer), successVerifier(999, "ada@example.com"))
	h := NewHandler(f.engine, testWebhookSecret, nil)

	payload := fmt.Sprintf(`{"reference":%q,"packageId":"starter"}`, "ku_ref_conflict")
	rr := settleWithAccount(h, buyer, payload)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = settleWithAccount(h, buyer, payload)
	assert.Equal(t, http.StatusConflict, rr.Code)
}
