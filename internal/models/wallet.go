package models

import (
	"time"

	"github.com/google/uuid"
)

// Principal kinds. A wallet belongs to exactly one principal: an individual
// account or a study group.
const (
	PrincipalUser  = "user"
	PrincipalGroup = "group"
)

type Wallet struct {
	PrincipalID   uuid.UUID `json:"principal_id"`
	PrincipalKind string    `json:"principal_kind"`
	Balance       int       `json:"balance"`
	LibrarySlots  int       `json:"library_slots"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
