package workflow

import (
	"errors"
	"fmt"

	domainwf "github.com/garyjia/receivables-portal/internal/domain/workflow"
)

// Error kinds. Every error returned by the engine matches exactly one.
var (
	ErrValidation          = errors.New("validation error")
	ErrGuardViolation      = errors.New("guard violation")
	ErrConcurrencyConflict = errors.New("concurrency conflict: bill changed, reload and retry")
	ErrNotFound            = errors.New("not found")
	ErrSideEffectFailure   = errors.New("side effect failure")
	ErrInternal            = errors.New("internal error")
)

// Guard violation causes
var (
	ErrAlreadyOffered       = errors.New("bill already has an offer")
	ErrNoOffer              = errors.New("bill has no offer")
	ErrDuplicateCertificate = errors.New("certificate number already used")
	ErrScopeMismatch        = errors.New("actor scope does not match bill")
	ErrNotBillSupplier      = errors.New("actor is not the bill's supplier")
	ErrRoleCannotSubmit     = errors.New("only suppliers submit bills")
)

// Validation causes
var (
	ErrMissingReason            = errors.New("reason is required")
	ErrMissingCertificateNumber = errors.New("certificate number is required")
	ErrInvalidOfferAmount       = errors.New("offer amount must be positive and not exceed the bill amount")
	ErrInvalidDiscountRate      = errors.New("discount rate out of range")
	ErrQuarterCountNotAllowed   = errors.New("payment quarter count not allowed")
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrMissingField             = errors.New("required field missing")
	ErrInvalidDueDate           = errors.New("due date precedes invoice date")
	ErrInvalidCurrency          = errors.New("currency must be a 3-letter code")
	ErrDuplicateInvoice         = errors.New("invoice number already submitted by this supplier")
	ErrUnknownTrigger           = errors.New("unknown trigger")
)

// Error describes a failed engine operation
type Error struct {
	Kind    error
	Op      string
	BillID  string
	Trigger domainwf.Trigger
	Err     error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.BillID != "" {
		msg += " bill " + e.BillID
	}
	if e.Trigger != "" {
		msg += " " + e.Trigger.String()
	}
	return fmt.Sprintf("%s: %v: %v", msg, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// KindOf returns the kind sentinel of err, or nil for foreign errors
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}

func newError(kind error, op, billID string, trigger domainwf.Trigger, err error) *Error {
	return &Error{Kind: kind, Op: op, BillID: billID, Trigger: trigger, Err: err}
}
