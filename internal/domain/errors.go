package domain

import "errors"

// Error kinds surfaced to callers. Wrap them with fmt.Errorf("...: %w", ErrX)
// so the API layer can map them with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("not found")
	ErrPolicyViolation = errors.New("policy violation")
	ErrForbidden       = errors.New("forbidden")
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrConflict is the policy violation caused by repeated or racing writes.
	ErrConflict = newKind(ErrPolicyViolation, "conflict")
)

var (
	ErrAlreadyPaid         = newKind(ErrConflict, "booking already paid")
	ErrPaymentInFlight     = newKind(ErrConflict, "payment with this idempotency key is in progress")
	ErrIllegalTransition   = newKind(ErrConflict, "illegal status transition")
	ErrInsufficientPayment = newKind(ErrPolicyViolation, "insufficient payment amount")
	ErrServiceUnavailable  = newKind(ErrPolicyViolation, "service is currently unavailable")
	ErrOwnerInactive       = newKind(ErrPolicyViolation, "booking owner is not approved or is disabled")
	ErrDuplicate           = newKind(ErrConflict, "document already exists")
)

type kindError struct {
	kind error
	msg  string
}

func newKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
