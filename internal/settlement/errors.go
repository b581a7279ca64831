package settlement

import "errors"

var (
	// ErrPaymentNotFound is returned when no payment-history row exists for a
	// reference.
	ErrPaymentNotFound = errors.New("payment record not found")

	// ErrDuplicateReference is returned when inserting a payment-history row
	// whose reference already exists. During settlement this means the other
	// entry path won the race and is treated as already settled.
	ErrDuplicateReference = errors.New("payment reference already recorded")

	// ErrAlreadyAttempted is returned when a reference already has a terminal
	// failed record; the attempt is not silently retried.
	ErrAlreadyAttempted = errors.New("payment reference already attempted")

	// ErrAmountMismatch: the provider-confirmed charge differs from the
	// server-computed expected amount. Never credited.
	ErrAmountMismatch = errors.New("confirmed amount does not match expected amount")

	// ErrIdentityMismatch: the confirmation identifies a different principal
	// than the one settlement is being attempted for.
	ErrIdentityMismatch = errors.New("confirmation identity does not match principal")

	// ErrVerificationFailed: the provider reported a terminal non-success
	// status for the charge.
	ErrVerificationFailed = errors.New("provider verification failed")

	// ErrVerificationPending: the provider still reports pending/ongoing
	// after bounded retries. Retryable; the webhook may settle it later.
	ErrVerificationPending = errors.New("provider verification still pending")

	// ErrIntentRequired: custom-amount purchases must reference a
	// pre-registered checkout intent.
	ErrIntentRequired = errors.New("purchase requires a registered checkout intent or package id")

	// ErrNoPendingIntent: fromPending was set but no intent exists for the
	// reference.
	ErrNoPendingIntent = errors.New("no checkout intent for reference")

	// ErrUnknownPackage: the package id is not in the catalog.
	ErrUnknownPackage = errors.New("unknown package")

	// ErrInvalidTarget: malformed target wallet descriptor.
	ErrInvalidTarget = errors.New("invalid target wallet")

	// ErrUnresolvable: a webhook confirmation carried neither a known intent
	// nor usable metadata, so the expected amount cannot be established.
	ErrUnresolvable = errors.New("cannot resolve expected purchase for reference")
)
