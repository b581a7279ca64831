package models

import (
	"time"

	"github.com/google/uuid"
)

// Knowledge-Unit transaction kinds.
const (
	TxnPurchase      = "purchase"
	TxnConsumption   = "consumption"
	TxnReferralBonus = "referral_bonus"
	TxnRefund        = "refund"
)

// Transaction is an append-only audit entry. Amount is signed in whole
// Knowledge Units: positive for credits, negative for debits.
type Transaction struct {
	ID          uuid.UUID  `json:"id"`
	AccountID   uuid.UUID  `json:"account_id"`
	GroupID     *uuid.UUID `json:"group_id,omitempty"`
	Amount      int        `json:"amount"`
	Kind        string     `json:"kind"`
	Description string     `json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
