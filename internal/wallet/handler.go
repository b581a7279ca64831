package wallet

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/studypal/backend/internal/middleware"
	"github.com/studypal/backend/internal/models"
)

type Handler struct {
	svc *Service
	log *slog.Logger
}

func NewHandler(svc *Service, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, log: log}
}

// GetWallet handles GET /api/v1/wallet (the caller's personal wallet).
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	wal, err := h.svc.Get(r.Context(), acc.ID, models.PrincipalUser)
	if err != nil {
		h.log.Error("get wallet", "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

// GetGroupWallet handles GET /api/v1/groups/{id}/wallet.
func (h *Handler) GetGroupWallet(w http.ResponseWriter, r *http.Request) {
	if middleware.AccountFromCtx(r.Context()) == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	groupID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, `{"error":"invalid group id"}`, http.StatusBadRequest)
		return
	}
	wal, err := h.svc.Get(r.Context(), groupID, models.PrincipalGroup)
	if err != nil {
		h.log.Error("get group wallet", "group_id", groupID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, wal)
}

type consumeRequest struct {
	Units   int    `json:"units"`
	Feature string `json:"feature"`
	GroupID string `json:"group_id,omitempty"`
}

type balanceResponse struct {
	NewBalance int `json:"new_balance"`
}

// Consume handles POST /api/v1/wallet/consume.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req consumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Units <= 0 {
		http.Error(w, `{"error":"units must be > 0"}`, http.StatusBadRequest)
		return
	}
	if req.Feature == "" {
		http.Error(w, `{"error":"feature is required"}`, http.StatusBadRequest)
		return
	}
	var groupID *uuid.UUID
	if req.GroupID != "" {
		id, err := uuid.Parse(req.GroupID)
		if err != nil {
			http.Error(w, `{"error":"invalid group_id"}`, http.StatusBadRequest)
			return
		}
		groupID = &id
	}
	newBalance, err := h.svc.Consume(r.Context(), acc.ID, groupID, req.Units, req.Feature)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
			return
		}
		h.log.Error("consume", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{NewBalance: newBalance})
}

type librarySlotsRequest struct {
	Slots int `json:"slots"`
}

// PurchaseLibrarySlots handles POST /api/v1/wallet/library-slots.
func (h *Handler) PurchaseLibrarySlots(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req librarySlotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Slots <= 0 {
		http.Error(w, `{"error":"slots must be > 0"}`, http.StatusBadRequest)
		return
	}
	newBalance, err := h.svc.PurchaseLibrarySlots(r.Context(), acc.ID, req.Slots)
	if err != nil {
		if errors.Is(err, ErrInsufficientBalance) {
			http.Error(w, `{"error":"insufficient balance"}`, http.StatusPaymentRequired)
			return
		}
		h.log.Error("purchase library slots", "account_id", acc.ID, "error", err)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{NewBalance: newBalance})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
