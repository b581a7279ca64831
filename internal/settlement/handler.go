package settlement

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/studypal/backend/internal/middleware"
	"github.com/studypal/backend/pkg/paystack"
)

// Handler serves both settlement entry points: the client-driven settle
// endpoint and the provider webhook.
type Handler struct {
	engine        *Engine
	webhookSecret string
	log           *slog.Logger
}

func NewHandler(engine *Engine, webhookSecret string, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{engine: engine, webhookSecret: webhookSecret, log: log}
}

// Field names follow the payment widget's camelCase convention so the web
// client passes the provider callback payload through unchanged.
type settleRequest struct {
	Reference   string `json:"reference"`
	PackageID   string `json:"packageId,omitempty"`
	Target      string `json:"target,omitempty"`
	GroupID     string `json:"groupId,omitempty"`
	CustomUnits int    `json:"customUnits,omitempty"`
	FromPending bool   `json:"fromPending,omitempty"`
}

type settleResponse struct {
	Success       bool `json:"success"`
	NewBalance    int  `json:"newBalance"`
	UnitsCredited int  `json:"unitsCredited"`
}

// SettlePurchase handles POST /api/v1/purchases/settle (client-driven path).
func (h *Handler) SettlePurchase(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req settleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Reference == "" {
		http.Error(w, `{"error":"reference is required"}`, http.StatusBadRequest)
		return
	}
	// A bare custom unit count is never trusted at settlement time; custom
	// purchases go through a registered intent.
	if req.CustomUnits > 0 && !req.FromPending {
		http.Error(w, `{"error":"custom purchases require a registered checkout intent"}`, http.StatusBadRequest)
		return
	}
	var groupID *uuid.UUID
	if req.GroupID != "" {
		id, err := uuid.Parse(req.GroupID)
		if err != nil {
			http.Error(w, `{"error":"invalid groupId"}`, http.StatusBadRequest)
			return
		}
		groupID = &id
	}

	res, err := h.engine.Settle(r.Context(), Request{
		Reference:   req.Reference,
		CallerID:    acc.ID,
		Target:      req.Target,
		GroupID:     groupID,
		PackageID:   req.PackageID,
		FromPending: req.FromPending,
	})
	if err != nil {
		h.writeSettleError(w, req.Reference, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(settleResponse{
		Success:       true,
		NewBalance:    res.NewBalance,
		UnitsCredited: res.UnitsCredited,
	})
}

// writeSettleError maps engine errors to HTTP responses. Mismatch details go
// to the logs, not the end user.
func (h *Handler) writeSettleError(w http.ResponseWriter, reference string, err error) {
	switch {
	case errors.Is(err, ErrIntentRequired),
		errors.Is(err, ErrUnknownPackage),
		errors.Is(err, ErrInvalidTarget),
		errors.Is(err, ErrNoPendingIntent):
		http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
	case errors.Is(err, ErrAmountMismatch):
		http.Error(w, `{"error":"payment verification failed, contact support if charged"}`, http.StatusBadRequest)
	case errors.Is(err, ErrIdentityMismatch):
		http.Error(w, `{"error":"payment verification failed, contact support if charged"}`, http.StatusUnauthorized)
	case errors.Is(err, ErrAlreadyAttempted):
		http.Error(w, `{"error":"payment already processed"}`, http.StatusConflict)
	case errors.Is(err, ErrVerificationPending):
		http.Error(w, `{"error":"payment verification pending, try again shortly"}`, http.StatusInternalServerError)
	default:
		h.log.Error("settle purchase", "reference", reference, "error", err)
		http.Error(w, `{"error":"payment verification failed, contact support if charged"}`, http.StatusInternalServerError)
	}
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
		Metadata paystack.Metadata `json:"metadata"`
	} `json:"data"`
}

// Webhook handles POST /api/v1/payments/webhook (provider-driven path).
// Every semantically handled outcome answers 200 so the provider stops
// redelivering; only signature failures and storage errors are non-2xx.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "cannot read request body", http.StatusBadRequest)
		return
	}
	if !ValidSignature(h.webhookSecret, body, r.Header.Get("x-paystack-signature")) {
		h.log.Warn("webhook signature rejected", "remote", r.RemoteAddr)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	var ev webhookEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		http.Error(w, "invalid JSON payload", http.StatusBadRequest)
		return
	}
	if ev.Event != "charge.success" {
		h.log.Info("webhook event ignored", "event", ev.Event)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("event ignored"))
		return
	}
	if ev.Data.Reference == "" {
		http.Error(w, "missing reference", http.StatusBadRequest)
		return
	}

	conf := &paystack.Verification{
		Reference:     ev.Data.Reference,
		Status:        ev.Data.Status,
		Amount:        ev.Data.Amount,
		CustomerEmail: ev.Data.Customer.Email,
		Metadata:      ev.Data.Metadata,
	}
	if conf.Status == "" {
		conf.Status = paystack.StatusSuccess
	}

	res, err := h.engine.Settle(r.Context(), Request{
		Reference:    ev.Data.Reference,
		Confirmation: conf,
		RawEvent:     body,
	})
	if err != nil {
		if h.handledWebhookFailure(ev.Data.Reference, err) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("event handled"))
			return
		}
		h.log.Error("webhook settle", "reference", ev.Data.Reference, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if res.AlreadySettled {
		h.log.Info("webhook duplicate settlement ignored", "reference", ev.Data.Reference)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handledWebhookFailure reports whether the error is a terminal outcome the
// provider should consider received (logged, recorded, never retried).
func (h *Handler) handledWebhookFailure(reference string, err error) bool {
	switch {
	case errors.Is(err, ErrAlreadyAttempted),
		errors.Is(err, ErrAmountMismatch),
		errors.Is(err, ErrIdentityMismatch),
		errors.Is(err, ErrVerificationFailed),
		errors.Is(err, ErrUnresolvable):
		h.log.Warn("webhook settlement not credited", "reference", reference, "reason", err.Error())
		return true
	default:
		return false
	}
}
