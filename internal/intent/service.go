package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studypal/backend/internal/catalog"
	"github.com/studypal/backend/internal/models"
)

// ErrUnknownPackage is returned for a package id not in the catalog.
var ErrUnknownPackage = errors.New("unknown package")

// ErrInvalidTarget is returned for a malformed target wallet descriptor.
var ErrInvalidTarget = errors.New("invalid checkout target")

// Registry is the intent store interface for the service.
type Registry interface {
	Create(ctx context.Context, in *models.CheckoutIntent) error
	GetByReference(ctx context.Context, reference string) (*models.CheckoutIntent, error)
	SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error)
}

type Service struct {
	repo Registry
}

func NewService(repo Registry) *Service {
	return &Service{repo: repo}
}

// InitiateCheckout registers an expected purchase before the payer is
// redirected to the payment widget. Units and the expected amount come from
// the server-side catalog, never from the client.
func (s *Service) InitiateCheckout(ctx context.Context, accountID uuid.UUID, target string, groupID *uuid.UUID, packageID string, customUnits int) (*models.CheckoutIntent, error) {
	if target != models.TargetPersonal && target != models.TargetGroup {
		return nil, ErrInvalidTarget
	}
	if target == models.TargetGroup && groupID == nil {
		return nil, ErrInvalidTarget
	}
	if target == models.TargetPersonal {
		groupID = nil
	}

	var units int
	var amount int64
	var pkgID *string
	label := "custom"
	if packageID != "" {
		pkg, ok := catalog.Lookup(packageID)
		if !ok {
			return nil, ErrUnknownPackage
		}
		units = pkg.Units
		amount = pkg.Amount
		pkgID = &pkg.ID
		label = pkg.ID
	} else {
		if customUnits < 1 {
			return nil, fmt.Errorf("custom unit count must be >= 1")
		}
		units = customUnits
		amount = catalog.PriceForUnits(customUnits)
	}

	in := &models.CheckoutIntent{
		Reference:      newReference(label, target, accountID),
		AccountID:      accountID,
		Target:         target,
		GroupID:        groupID,
		Units:          units,
		ExpectedAmount: amount,
		PackageID:      pkgID,
	}
	if err := s.repo.Create(ctx, in); err != nil {
		return nil, err
	}
	return in, nil
}

func (s *Service) GetByReference(ctx context.Context, reference string) (*models.CheckoutIntent, error) {
	return s.repo.GetByReference(ctx, reference)
}

// SweepExpired expires pending intents older than maxAge.
func (s *Service) SweepExpired(ctx context.Context, maxAge time.Duration) (int64, error) {
	return s.repo.SweepExpired(ctx, maxAge)
}

// newReference builds a globally unique checkout reference. The UUID suffix
// carries the entropy; the prefix keeps references greppable in provider
// dashboards and support tickets.
func newReference(label, target string, accountID uuid.UUID) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("ku_%s_%s_%s_%s", label, target, accountID.String()[:8], suffix)
}
