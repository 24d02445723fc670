/*
errors.go - Centralized error types for the billing engine

PURPOSE:
  All error types in one place. The engine distinguishes three classes that
  callers handle differently:

  1. Validation errors - bad input or an illegal transition. Rejected
     synchronously, never retried, surfaced verbatim.
  2. Conflict errors - optimistic-concurrency collisions from the backing
     store. Retried transparently for invoice creation, surfaced as
     user-retryable everywhere else.
  3. Collaborator failures - evidence upload or document linkage failed.
     The pending transition is aborted with no partial state change.

USAGE:
  if errors.Is(err, billing.ErrConcurrentModification) { ... retry ... }
  var v *billing.ValidationError
  if errors.As(err, &v) { ... 400 with v.Field ... }

SEE ALSO:
  - retry.go: Uses IsRetryable as its conflict classifier
  - service.go: Wraps collaborator failures
*/
package billing

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the root of the validation class. Every validation
	// failure unwraps to it.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned when an operation is attempted from a
	// state the transition table does not permit.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrUnauthorizedRole is returned when the caller's role may not perform
	// the requested transition.
	ErrUnauthorizedRole = errors.New("role not permitted for this transition")

	// ErrMissingEvidence is returned when a gated transition is attempted
	// without its supporting document.
	ErrMissingEvidence = errors.New("supporting evidence document required")

	// ErrOverpayment is returned when a payment exceeds the remaining balance.
	ErrOverpayment = errors.New("payment exceeds remaining balance")

	// ErrPaymentBeforeInvoice is returned when a payment is dated before the
	// invoice date.
	ErrPaymentBeforeInvoice = errors.New("payment date precedes invoice date")

	// ErrConcurrentModification is returned when the store's optimistic check
	// detects a concurrent write to the same record.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrRetriesExhausted is the terminal failure after the retry policy has
	// consumed all attempts on a conflicting write. Distinct from validation.
	ErrRetriesExhausted = errors.New("retries exhausted")

	// ErrNotFound is returned when a contract payment does not exist.
	ErrNotFound = errors.New("contract payment not found")

	// ErrEvidenceUpload is returned when the evidence store rejects an upload.
	ErrEvidenceUpload = errors.New("evidence upload failed")

	// ErrDocumentLink is returned when the document-linkage collaborator fails.
	ErrDocumentLink = errors.New("document record creation failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports which field failed and why.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func newValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError reports an illegal state-machine move.
type TransitionError struct {
	Dimension string // "contract_status" or "payment_status"
	From      string
	To        string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move %s from %s to %s", e.Dimension, e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// OverpaymentError reports a payment larger than the remaining balance.
type OverpaymentError struct {
	ContractPaymentID string
	Remaining         VND
	Requested         VND
}

func (e *OverpaymentError) Error() string {
	return fmt.Sprintf("payment of %d exceeds remaining balance %d on %s",
		e.Requested, e.Remaining, e.ContractPaymentID)
}

func (e *OverpaymentError) Unwrap() error { return ErrOverpayment }

// PaymentDateError reports a payment dated before the invoice.
type PaymentDateError struct {
	InvoiceDate time.Time
	PaymentDate time.Time
}

func (e *PaymentDateError) Error() string {
	return fmt.Sprintf("payment dated %s precedes invoice dated %s",
		e.PaymentDate.Format("2006-01-02"), e.InvoiceDate.Format("2006-01-02"))
}

func (e *PaymentDateError) Unwrap() error { return ErrPaymentBeforeInvoice }

// RoleError reports a transition attempted by an unauthorized role.
type RoleError struct {
	Role      Role
	Operation string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role %s may not perform %s", e.Role, e.Operation)
}

func (e *RoleError) Unwrap() error { return ErrUnauthorizedRole }

// RetriesExhaustedError is returned by the retry policy when every attempt
// hit a conflict. Last holds the final conflict error.
type RetriesExhaustedError struct {
	Attempts int
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() []error { return []error{ErrRetriesExhausted, e.Last} }

// CollaboratorError wraps a failure from an external collaborator (evidence
// store, document linkage). The state transition it guarded never ran.
type CollaboratorError struct {
	Kind  error // ErrEvidenceUpload or ErrDocumentLink
	Cause error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%v: %v", e.Kind, e.Cause)
}

func (e *CollaboratorError) Unwrap() error { return e.Kind }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry against
// fresh state. Only store conflicts qualify.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true for the validation class: the caller sent
// something invalid and retrying the same input will not help.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrUnauthorizedRole) ||
		errors.Is(err, ErrMissingEvidence) ||
		errors.Is(err, ErrOverpayment) ||
		errors.Is(err, ErrPaymentBeforeInvoice)
}

// IsCollaboratorError returns true when an external collaborator failed and
// the whole operation should be retried from the evidence-upload step.
func IsCollaboratorError(err error) bool {
	return errors.Is(err, ErrEvidenceUpload) || errors.Is(err, ErrDocumentLink)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
