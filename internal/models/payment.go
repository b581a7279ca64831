package models

import (
	"time"

	"github.com/google/uuid"
)

// Payment history statuses. A row keyed by the provider reference is written
// once per settlement attempt outcome; the unique reference column is the
// idempotency guard against double-crediting.
const (
	PaymentSuccess = "success"
	PaymentFailed  = "failed"
)

type PaymentRecord struct {
	Reference string    `json:"reference"`
	AccountID uuid.UUID `json:"account_id"`
	Amount    int64     `json:"amount"` // minor currency units (kobo)
	Status    string    `json:"status"`
	PackageID *string   `json:"package_id,omitempty"`
	RawEvent  []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}
