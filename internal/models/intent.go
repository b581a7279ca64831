package models

import (
	"time"

	"github.com/google/uuid"
)

// Checkout intent statuses. pending is the only non-terminal state; exactly
// one transition out of pending is permitted.
const (
	IntentPending        = "pending"
	IntentCompleted      = "completed"
	IntentAmountMismatch = "amount_mismatch"
	IntentExpired        = "expired"
)

// Checkout targets.
const (
	TargetPersonal = "personal"
	TargetGroup    = "group"
)

// CheckoutIntent records an expected, not-yet-confirmed purchase. It is
// created before the payer is redirected to the payment widget.
type CheckoutIntent struct {
	Reference      string     `json:"reference"`
	AccountID      uuid.UUID  `json:"account_id"`
	Target         string     `json:"target"`
	GroupID        *uuid.UUID `json:"group_id,omitempty"`
	Units          int        `json:"units"`
	ExpectedAmount int64      `json:"expected_amount"` // minor currency units (kobo)
	PackageID      *string    `json:"package_id,omitempty"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
}
