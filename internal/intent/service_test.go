package intent

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/studypal/backend/internal/models"
)

// ---------------------------------------------------------------------------
// In-memory Registry mock.
// ---------------------------------------------------------------------------

type mockRegistry struct {
	mu      sync.Mutex
	intents map[string]*models.CheckoutIntent
}

func newMockRegistry() *mockRegistry {
	return &mockRegistry{intents: make(map[string]*models.CheckoutIntent)}
}

func (m *mockRegistry) Create(_ context.Context, in *models.CheckoutIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.intents[in.Reference]; ok {
		return ErrDuplicateReference
	}
	cp := *in
	cp.Status = models.IntentPending
	cp.CreatedAt = time.Now()
	m.intents[in.Reference] = &cp
	return nil
}

func (m *mockRegistry) GetByReference(_ context.Context, reference string) (*models.CheckoutIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in, ok := m.intents[reference]; ok {
		cp := *in
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (m *mockRegistry) SweepExpired(_ context.Context, maxAge time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	cutoff := time.Now().Add(-maxAge)
	for _, in := range m.intents {
		if in.Status == models.IntentPending && in.CreatedAt.Before(cutoff) {
			in.Status = models.IntentExpired
			n++
		}
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// InitiateCheckout
// ---------------------------------------------------------------------------

func TestInitiateCheckout_Package(t *testing.T) {
	svc := NewService(newMockRegistry())
	account := uuid.New()

	in, err := svc.InitiateCheckout(context.Background(), account, models.TargetPersonal, nil, "scholar", 0)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if in.Units != 25 {
		t.Errorf("units: got %d, want 25", in.Units)
	}
	if in.ExpectedAmount != 100000 {
		t.Errorf("expected amount: got %d, want 100000", in.ExpectedAmount)
	}
	if in.PackageID == nil || *in.PackageID != "scholar" {
		t.Error("package id should be recorded on the intent")
	}
	if !strings.HasPrefix(in.Reference, "ku_scholar_personal_") {
		t.Errorf("reference prefix: got %q", in.Reference)
	}

	// The intent must be retrievable by its reference.
	got, err := svc.GetByReference(context.Background(), in.Reference)
	if err != nil {
		t.Fatalf("GetByReference: %v", err)
	}
	if got.AccountID != account {
		t.Error("stored intent should belong to the initiating account")
	}
	if got.Status != models.IntentPending {
		t.Errorf("status: got %q, want %q", got.Status, models.IntentPending)
	}
}

func TestInitiateCheckout_CustomUnits(t *testing.T) {
	svc := NewService(newMockRegistry())
	account := uuid.New()

	in, err := svc.InitiateCheckout(context.Background(), account, models.TargetPersonal, nil, "", 40)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if in.Units != 40 {
		t.Errorf("units: got %d, want 40", in.Units)
	}
	// Custom purchases are priced server-side at the per-unit rate.
	if in.ExpectedAmount != 200000 {
		t.Errorf("expected amount: got %d, want 200000", in.ExpectedAmount)
	}
	if in.PackageID != nil {
		t.Error("custom purchase should have no package id")
	}
	if !strings.HasPrefix(in.Reference, "ku_custom_personal_") {
		t.Errorf("reference prefix: got %q", in.Reference)
	}

	if _, err := svc.InitiateCheckout(context.Background(), account, models.TargetPersonal, nil, "", 0); err == nil {
		t.Error("zero custom units should be rejected")
	}
}

func TestInitiateCheckout_GroupTarget(t *testing.T) {
	svc := NewService(newMockRegistry())
	account := uuid.New()
	group := uuid.New()

	in, err := svc.InitiateCheckout(context.Background(), account, models.TargetGroup, &group, "starter", 0)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if in.GroupID == nil || *in.GroupID != group {
		t.Error("group id should be recorded")
	}

	if _, err := svc.InitiateCheckout(context.Background(), account, models.TargetGroup, nil, "starter", 0); err != ErrInvalidTarget {
		t.Errorf("group target without group id: expected ErrInvalidTarget, got: %v", err)
	}
}

func TestInitiateCheckout_PersonalDropsGroupID(t *testing.T) {
	svc := NewService(newMockRegistry())
	group := uuid.New()

	in, err := svc.InitiateCheckout(context.Background(), uuid.New(), models.TargetPersonal, &group, "starter", 0)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	if in.GroupID != nil {
		t.Error("personal target should discard a stray group id")
	}
}

func TestInitiateCheckout_Invalid(t *testing.T) {
	svc := NewService(newMockRegistry())
	account := uuid.New()

	if _, err := svc.InitiateCheckout(context.Background(), account, "shared", nil, "starter", 0); err != ErrInvalidTarget {
		t.Errorf("bad target: expected ErrInvalidTarget, got: %v", err)
	}
	if _, err := svc.InitiateCheckout(context.Background(), account, models.TargetPersonal, nil, "platinum", 0); err != ErrUnknownPackage {
		t.Errorf("bad package: expected ErrUnknownPackage, got: %v", err)
	}
}

func TestInitiateCheckout_ReferencesAreUnique(t *testing.T) {
	svc := NewService(newMockRegistry())
	account := uuid.New()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		in, err := svc.InitiateCheckout(context.Background(), account, models.TargetPersonal, nil, "starter", 0)
		if err != nil {
			t.Fatalf("InitiateCheckout %d: %v", i, err)
		}
		if seen[in.Reference] {
			t.Fatalf("duplicate reference generated: %s", in.Reference)
		}
		seen[in.Reference] = true
	}
}

// ---------------------------------------------------------------------------
// SweepExpired
// ---------------------------------------------------------------------------

func TestSweepExpired(t *testing.T) {
	repo := newMockRegistry()
	svc := NewService(repo)
	ctx := context.Background()

	stale, err := svc.InitiateCheckout(ctx, uuid.New(), models.TargetPersonal, nil, "starter", 0)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}
	fresh, err := svc.InitiateCheckout(ctx, uuid.New(), models.TargetPersonal, nil, "starter", 0)
	if err != nil {
		t.Fatalf("InitiateCheckout: %v", err)
	}

	repo.mu.Lock()
	repo.intents[stale.Reference].CreatedAt = time.Now().Add(-48 * time.Hour)
	repo.mu.Unlock()

	n, err := svc.SweepExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("swept count: got %d, want 1", n)
	}

	got, _ := svc.GetByReference(ctx, stale.Reference)
	if got.Status != models.IntentExpired {
		t.Errorf("stale intent status: got %q, want %q", got.Status, models.IntentExpired)
	}
	got, _ = svc.GetByReference(ctx, fresh.Reference)
	if got.Status != models.IntentPending {
		t.Errorf("fresh intent status: got %q, want %q", got.Status, models.IntentPending)
	}
}
