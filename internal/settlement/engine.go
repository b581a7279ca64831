// Package settlement converts confirmed payments into wallet credits exactly
// once. The client-driven path and the webhook path both call Settle; the
// only difference between them is how authenticity was established (a
// server-side verify call vs. the webhook HMAC signature), so the crediting
// logic cannot drift between the two.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/studypal/backend/internal/catalog"
	"github.com/studypal/backend/internal/intent"
	"github.com/studypal/backend/internal/models"
	"github.com/studypal/backend/pkg/paystack"
)

// WalletStore is the minimal wallet interface for the engine.
type WalletStore interface {
	CreditTx(ctx context.Context, tx pgx.Tx, principalID uuid.UUID, kind string, amount, welcomeBonus int) (int, error)
	Balance(ctx context.Context, principalID uuid.UUID) (int, error)
}

// Payments is the payment-history store.
type Payments interface {
	GetByReference(ctx context.Context, reference string) (*models.PaymentRecord, error)
	Create(ctx context.Context, rec *models.PaymentRecord) error
	CreateTx(ctx context.Context, tx pgx.Tx, rec *models.PaymentRecord) error
	HasPriorSuccess(ctx context.Context, tx pgx.Tx, accountID uuid.UUID, excludeReference string) (bool, error)
}

// Intents is the checkout-intent registry.
type Intents interface {
	GetByReference(ctx context.Context, reference string) (*models.CheckoutIntent, error)
	MarkTerminal(ctx context.Context, reference, status string) error
	MarkTerminalTx(ctx context.Context, tx pgx.Tx, reference, status string) error
}

// Ledger appends audit entries.
type Ledger interface {
	AppendTx(ctx context.Context, tx pgx.Tx, e *models.Transaction) error
}

// Accounts resolves account rows for identity checks and referral bonuses.
type Accounts interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
}

// Verifier is the provider's server-side verify-by-reference call.
type Verifier interface {
	VerifyTransaction(ctx context.Context, reference string) (*paystack.Verification, error)
}

// TxBeginner abstracts transaction creation so tests don't need a pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Engine is the settlement state machine.
type Engine struct {
	DB       TxBeginner
	Wallets  WalletStore
	Payments Payments
	Intents  Intents
	Ledger   Ledger
	Accounts Accounts
	Verifier Verifier
	Log      *slog.Logger

	WelcomeBonus   int           // units added when a personal wallet is first created
	ReferralBonus  int           // units credited to the referrer on a first purchase
	VerifyAttempts int           // bounded retries for pending provider statuses
	RetryDelay     time.Duration // base delay between verify attempts, doubled each retry
}

// Request describes one settlement attempt.
type Request struct {
	Reference   string
	CallerID    uuid.UUID // authenticated account; uuid.Nil on the webhook path
	Target      string
	GroupID     *uuid.UUID
	PackageID   string
	FromPending bool

	// Confirmation is non-nil when authenticity was already established by
	// the webhook signature; when nil the engine verifies with the provider.
	Confirmation *paystack.Verification
	RawEvent     []byte
}

// Result is the outcome of a successful (or already-settled) attempt.
type Result struct {
	Reference      string `json:"reference"`
	UnitsCredited  int    `json:"unitsCredited"`
	NewBalance     int    `json:"newBalance"`
	AlreadySettled bool   `json:"alreadySettled"`
}

// expectation is the server-side truth about what this reference should have
// charged and where the units go. Never derived from the request body alone.
type expectation struct {
	accountID  uuid.UUID
	target     string
	groupID    *uuid.UUID
	units      int
	amount     int64
	packageID  *string
	fromIntent bool
}

func (x *expectation) principal() (uuid.UUID, string) {
	if x.target == models.TargetGroup && x.groupID != nil {
		return *x.groupID, models.PrincipalGroup
	}
	return x.accountID, models.PrincipalUser
}

// Settle runs the settlement algorithm for one reference. Safe to invoke
// concurrently from both entry paths: the payment-history unique index makes
// whichever attempt commits second observe AlreadySettled.
func (e *Engine) Settle(ctx context.Context, req Request) (*Result, error) {
	// 1. Idempotency check against recorded attempts.
	prior, err := e.Payments.GetByReference(ctx, req.Reference)
	if err != nil && !errors.Is(err, ErrPaymentNotFound) {
		return nil, err
	}
	if prior != nil {
		if prior.Status == models.PaymentSuccess {
			return e.alreadySettled(ctx, req, prior)
		}
		return nil, ErrAlreadyAttempted
	}

	// 2. Resolve the expected amount, unit count, and target wallet from the
	// intent or the server-side price table.
	exp, err := e.resolveExpectation(ctx, req)
	if err != nil {
		return nil, err
	}

	// 3. Authenticity.
	conf := req.Confirmation
	if conf == nil {
		conf, err = e.verifyWithRetry(ctx, req.Reference)
		if err != nil {
			// A still-pending charge writes no terminal record; the webhook
			// may confirm it later.
			return nil, err
		}
	}
	if conf.Status != paystack.StatusSuccess {
		e.recordFailure(ctx, req, exp, conf.Amount)
		e.Log.Warn("settlement verification failed",
			"reference", req.Reference, "provider_status", conf.Status)
		return nil, ErrVerificationFailed
	}

	// 4. Amount cross-check.
	if conf.Amount != exp.amount {
		e.recordFailure(ctx, req, exp, conf.Amount)
		if exp.fromIntent {
			if err := e.Intents.MarkTerminal(ctx, req.Reference, models.IntentAmountMismatch); err != nil && !errors.Is(err, intent.ErrAlreadyTerminal) {
				e.Log.Error("mark intent amount_mismatch", "reference", req.Reference, "error", err)
			}
		}
		e.Log.Warn("settlement amount mismatch",
			"reference", req.Reference, "expected", exp.amount, "confirmed", conf.Amount)
		return nil, ErrAmountMismatch
	}

	// 5. Identity cross-check.
	if err := e.checkIdentity(ctx, exp, conf); err != nil {
		if errors.Is(err, ErrIdentityMismatch) {
			e.recordFailure(ctx, req, exp, conf.Amount)
			e.Log.Warn("settlement identity mismatch", "reference", req.Reference)
		}
		return nil, err
	}

	// 6. Exactly-once credit.
	return e.credit(ctx, req, exp, conf)
}

// credit claims the reference and credits the wallet in one transaction. The
// payment row insert is the commit point: a unique-violation there means the
// other path already settled, and nothing in this transaction survives.
func (e *Engine) credit(ctx context.Context, req Request, exp *expectation, conf *paystack.Verification) (*Result, error) {
	tx, err := e.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rec := &models.PaymentRecord{
		Reference: req.Reference,
		AccountID: exp.accountID,
		Amount:    conf.Amount,
		Status:    models.PaymentSuccess,
		PackageID: exp.packageID,
		RawEvent:  req.RawEvent,
	}
	if err := e.Payments.CreateTx(ctx, tx, rec); err != nil {
		if errors.Is(err, ErrDuplicateReference) {
			return e.alreadySettled(ctx, req, rec)
		}
		return nil, err
	}

	principal, kind := exp.principal()
	bonus := 0
	if kind == models.PrincipalUser {
		bonus = e.WelcomeBonus
	}
	newBalance, err := e.Wallets.CreditTx(ctx, tx, principal, kind, exp.units, bonus)
	if err != nil {
		return nil, err
	}

	if err := e.Ledger.AppendTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		AccountID:   exp.accountID,
		GroupID:     exp.groupID,
		Amount:      exp.units,
		Kind:        models.TxnPurchase,
		Description: purchaseDescription(exp),
	}); err != nil {
		return nil, err
	}

	if exp.fromIntent {
		if err := e.Intents.MarkTerminalTx(ctx, tx, req.Reference, models.IntentCompleted); err != nil && !errors.Is(err, intent.ErrAlreadyTerminal) {
			return nil, err
		}
	}

	if err := e.maybeReferralBonus(ctx, tx, req.Reference, exp); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	e.Log.Info("settlement completed",
		"reference", req.Reference, "units", exp.units, "principal", principal, "balance", newBalance)
	return &Result{Reference: req.Reference, UnitsCredited: exp.units, NewBalance: newBalance}, nil
}

// maybeReferralBonus credits the referrer on the account's first successful
// personal purchase.
func (e *Engine) maybeReferralBonus(ctx context.Context, tx pgx.Tx, reference string, exp *expectation) error {
	if e.ReferralBonus <= 0 || exp.target != models.TargetPersonal {
		return nil
	}
	acc, err := e.Accounts.GetByID(ctx, exp.accountID)
	if err != nil || acc.ReferredBy == nil {
		return err
	}
	priorSuccess, err := e.Payments.HasPriorSuccess(ctx, tx, exp.accountID, reference)
	if err != nil || priorSuccess {
		return err
	}
	if _, err := e.Wallets.CreditTx(ctx, tx, *acc.ReferredBy, models.PrincipalUser, e.ReferralBonus, 0); err != nil {
		return err
	}
	return e.Ledger.AppendTx(ctx, tx, &models.Transaction{
		ID:          uuid.New(),
		AccountID:   *acc.ReferredBy,
		Amount:      e.ReferralBonus,
		Kind:        models.TxnReferralBonus,
		Description: fmt.Sprintf("referral bonus for %s", acc.Email),
	})
}

// resolveExpectation prefers a registered intent for the reference; the
// client package path and the webhook metadata fallback only apply when no
// intent exists.
func (e *Engine) resolveExpectation(ctx context.Context, req Request) (*expectation, error) {
	in, err := e.Intents.GetByReference(ctx, req.Reference)
	if err == nil {
		if req.CallerID != uuid.Nil && in.AccountID != req.CallerID {
			return nil, ErrIdentityMismatch
		}
		return &expectation{
			accountID:  in.AccountID,
			target:     in.Target,
			groupID:    in.GroupID,
			units:      in.Units,
			amount:     in.ExpectedAmount,
			packageID:  in.PackageID,
			fromIntent: true,
		}, nil
	}
	if !errors.Is(err, intent.ErrNotFound) {
		return nil, err
	}
	if req.FromPending {
		return nil, ErrNoPendingIntent
	}
	if req.Confirmation != nil {
		return expectationFromMetadata(req.Confirmation.Metadata)
	}
	return expectationFromPackage(req)
}

// expectationFromPackage serves the client path with a known package id.
// Amounts come from the catalog; a client-supplied unit count without an
// intent is rejected upstream.
func expectationFromPackage(req Request) (*expectation, error) {
	if req.PackageID == "" {
		return nil, ErrIntentRequired
	}
	pkg, ok := catalog.Lookup(req.PackageID)
	if !ok {
		return nil, ErrUnknownPackage
	}
	target := req.Target
	if target == "" {
		target = models.TargetPersonal
	}
	if target != models.TargetPersonal && target != models.TargetGroup {
		return nil, ErrInvalidTarget
	}
	if target == models.TargetGroup && req.GroupID == nil {
		return nil, ErrInvalidTarget
	}
	return &expectation{
		accountID: req.CallerID,
		target:    target,
		groupID:   req.GroupID,
		units:     pkg.Units,
		amount:    pkg.Amount,
		packageID: &pkg.ID,
	}, nil
}

// expectationFromMetadata serves webhook confirmations for references that
// never got an intent row. The metadata was attached server-side at checkout
// and came back under the provider's signature.
func expectationFromMetadata(md paystack.Metadata) (*expectation, error) {
	if md.AccountID == "" || md.PackageID == "" {
		return nil, ErrUnresolvable
	}
	accountID, err := uuid.Parse(md.AccountID)
	if err != nil {
		return nil, ErrUnresolvable
	}
	pkg, ok := catalog.Lookup(md.PackageID)
	if !ok {
		return nil, ErrUnresolvable
	}
	exp := &expectation{
		accountID: accountID,
		target:    models.TargetPersonal,
		units:     pkg.Units,
		amount:    pkg.Amount,
		packageID: &pkg.ID,
	}
	if md.Target == models.TargetGroup && md.GroupID != "" {
		groupID, err := uuid.Parse(md.GroupID)
		if err != nil {
			return nil, ErrUnresolvable
		}
		exp.target = models.TargetGroup
		exp.groupID = &groupID
	}
	return exp, nil
}

func (e *Engine) checkIdentity(ctx context.Context, exp *expectation, conf *paystack.Verification) error {
	if conf.Metadata.AccountID != "" {
		if conf.Metadata.AccountID != exp.accountID.String() {
			return ErrIdentityMismatch
		}
		return nil
	}
	if conf.CustomerEmail == "" {
		return nil
	}
	acc, err := e.Accounts.GetByID(ctx, exp.accountID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(acc.Email, conf.CustomerEmail) {
		return ErrIdentityMismatch
	}
	return nil
}

// verifyWithRetry calls the provider, retrying pending/ongoing statuses a
// bounded number of times. Total wait stays within a few seconds; the caller
// gets ErrVerificationPending rather than blocking.
func (e *Engine) verifyWithRetry(ctx context.Context, reference string) (*paystack.Verification, error) {
	attempts := e.VerifyAttempts
	if attempts <= 0 {
		attempts = 3
	}
	delay := e.RetryDelay
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	for i := 0; i < attempts; i++ {
		v, err := e.Verifier.VerifyTransaction(ctx, reference)
		if err != nil {
			return nil, err
		}
		if v.Status != paystack.StatusPending && v.Status != paystack.StatusOngoing {
			return v, nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
	return nil, ErrVerificationPending
}

// alreadySettled reports success with the current balance without touching
// the wallet again.
func (e *Engine) alreadySettled(ctx context.Context, req Request, rec *models.PaymentRecord) (*Result, error) {
	principal := rec.AccountID
	if in, err := e.Intents.GetByReference(ctx, req.Reference); err == nil && in.Target == models.TargetGroup && in.GroupID != nil {
		principal = *in.GroupID
	} else if req.Target == models.TargetGroup && req.GroupID != nil {
		principal = *req.GroupID
	}
	balance, err := e.Wallets.Balance(ctx, principal)
	if err != nil {
		return nil, err
	}
	return &Result{Reference: req.Reference, NewBalance: balance, AlreadySettled: true}, nil
}

// recordFailure writes the terminal failed row so retries with the same
// reference surface as already-attempted instead of looping forever.
func (e *Engine) recordFailure(ctx context.Context, req Request, exp *expectation, amount int64) {
	rec := &models.PaymentRecord{
		Reference: req.Reference,
		AccountID: exp.accountID,
		Amount:    amount,
		Status:    models.PaymentFailed,
		PackageID: exp.packageID,
		RawEvent:  req.RawEvent,
	}
	if err := e.Payments.Create(ctx, rec); err != nil && !errors.Is(err, ErrDuplicateReference) {
		e.Log.Error("record failed settlement", "reference", req.Reference, "error", err)
	}
}

func purchaseDescription(exp *expectation) string {
	if exp.packageID != nil {
		return fmt.Sprintf("%s package purchase", *exp.packageID)
	}
	return fmt.Sprintf("custom purchase of %d units", exp.units)
}
