package intent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/studypal/backend/internal/catalog"
	"github.com/studypal/backend/internal/middleware"
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

type checkoutRequest struct {
	PackageID   string `json:"package_id,omitempty"`
	CustomUnits int    `json:"custom_units,omitempty"`
	Target      string `json:"target"`
	GroupID     string `json:"group_id,omitempty"`
}

type checkoutResponse struct {
	Reference      string `json:"reference"`
	Units          int    `json:"units"`
	ExpectedAmount int64  `json:"expected_amount"`
}

// InitiateCheckout handles POST /api/v1/checkout.
func (h *Handler) InitiateCheckout(w http.ResponseWriter, r *http.Request) {
	acc := middleware.AccountFromCtx(r.Context())
	if acc == nil {
		http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
		return
	}
	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.PackageID == "" && req.CustomUnits < 1 {
		http.Error(w, `{"error":"package_id or custom_units is required"}`, http.StatusBadRequest)
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

	in, err := h.svc.InitiateCheckout(r.Context(), acc.ID, req.Target, groupID, req.PackageID, req.CustomUnits)
	if err != nil {
		switch {
		case errors.Is(err, ErrUnknownPackage), errors.Is(err, ErrInvalidTarget):
			http.Error(w, `{"error":"`+err.Error()+`"}`, http.StatusBadRequest)
		case errors.Is(err, ErrDuplicateReference):
			http.Error(w, `{"error":"duplicate reference"}`, http.StatusConflict)
		default:
			h.log.Error("initiate checkout", "account_id", acc.ID, "error", err)
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(checkoutResponse{
		Reference:      in.Reference,
		Units:          in.Units,
		ExpectedAmount: in.ExpectedAmount,
	})
}

// ListPackages handles GET /api/v1/packages (the checkout UI price table).
func (h *Handler) ListPackages(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(catalog.All())
}
