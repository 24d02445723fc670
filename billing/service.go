/*
service.go - Orchestration over store, evidence, roles, and retries

PURPOSE:
  The Service is the single entry point request handlers call. For each
  operation it:

    1. Checks the caller's role against the operation's allowed roles.
    2. Uploads the required evidence and links the document record -
       BEFORE the state transition is ever attempted. An upload failure
       aborts with no state change; an orphaned upload after a failed
       transition is tolerated.
    3. Loads the record, applies the pure domain transition, and saves
       under the store's optimistic check.
    4. For invoice creation, wraps step 3 in the bounded retry policy and
       holds the per-record lock for the whole load-mutate-save window.

ROLE MAP:
  Sales:      create draft, submit terms
  Accountant: request more info, verify, reject, start billing,
              create invoice, record payment, approve
  Manager:    approve

SEE ALSO:
  - transitions.go, ledger.go: The pure mutations this service drives
  - retry.go, lock.go: The concurrency building blocks
*/
package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Service coordinates the engine's collaborators. Zero-value fields other
// than Store are optional: a nil Audit skips auditing, a nil Schedule uses
// the default tier table.
type Service struct {
	Store     TxStore
	Evidence  EvidenceStore
	Documents DocumentLinker
	Audit     AuditLog
	Schedule  TierSchedule
	Retry     RetryPolicy
	Logger    zerolog.Logger

	locks recordLocks
}

// NewService wires a service with the default invoice retry policy.
func NewService(store TxStore, evidence EvidenceStore, documents DocumentLinker, logger zerolog.Logger) *Service {
	return &Service{
		Store:     store,
		Evidence:  evidence,
		Documents: documents,
		Retry:     DefaultInvoiceRetry(),
		Logger:    logger,
	}
}

// =============================================================================
// ROLE GATING
// =============================================================================

var operationRoles = map[string][]Role{
	"create_draft":             {RoleSales},
	"submit":                   {RoleSales},
	"request_more_information": {RoleAccountant},
	"verify_contract":          {RoleAccountant},
	"reject_contract":          {RoleAccountant},
	"approve_contract":         {RoleManager, RoleAccountant},
	"start_billing":            {RoleAccountant},
	"create_invoice":           {RoleAccountant},
	"record_payment":           {RoleAccountant},
}

func requireRole(actor Actor, operation string) error {
	for _, role := range operationRoles[operation] {
		if actor.Role == role {
			return nil
		}
	}
	return &RoleError{Role: actor.Role, Operation: operation}
}

// =============================================================================
// DRAFT CREATION AND READS
// =============================================================================

// CreateDraft opens a new Draft record for a project period.
func (s *Service) CreateDraft(ctx context.Context, actor Actor, id, projectPeriodID, talentAssignmentID string) (*ContractPayment, error) {
	if err := requireRole(actor, "create_draft"); err != nil {
		return nil, err
	}
	if projectPeriodID == "" {
		return nil, newValidationError("project_period_id", "is required")
	}
	if talentAssignmentID == "" {
		return nil, newValidationError("talent_assignment_id", "is required")
	}
	if id == "" {
		id = uuid.NewString()
	}

	cp := NewContractPayment(id, projectPeriodID, talentAssignmentID)
	if err := s.Store.Create(ctx, cp); err != nil {
		return nil, err
	}
	s.audit(ctx, actor, "create_draft", cp.ID, nil)
	return cp, nil
}

// Get returns one record.
func (s *Service) Get(ctx context.Context, id string) (*ContractPayment, error) {
	return s.Store.Get(ctx, id)
}

// List returns all records.
func (s *Service) List(ctx context.Context) ([]*ContractPayment, error) {
	return s.Store.List(ctx)
}

// Payments returns a record's ledger entries.
func (s *Service) Payments(ctx context.Context, id string) ([]PaymentEntry, error) {
	if _, err := s.Store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.Store.ListPayments(ctx, id)
}

// =============================================================================
// CONTRACT STATUS OPERATIONS
// =============================================================================

// RequestMoreInformation asks Sales for clarification on a draft.
func (s *Service) RequestMoreInformation(ctx context.Context, actor Actor, id, notes string) (*ContractPayment, error) {
	if err := requireRole(actor, "request_more_information"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, "request_more_information", id, func(cp *ContractPayment) error {
		return cp.RequestMoreInformation(notes)
	})
}

// Submit records billing terms. Requires a terms document as evidence.
func (s *Service) Submit(ctx context.Context, actor Actor, id string, terms BillingTerms, ev *Evidence) (*ContractPayment, error) {
	if err := requireRole(actor, "submit"); err != nil {
		return nil, err
	}
	if _, err := s.uploadEvidence(ctx, id, DocTypeContractTerms, ev); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, "submit", id, func(cp *ContractPayment) error {
		return cp.Submit(terms)
	})
}

// VerifyContract marks the terms as verified. Requires the verified
// contract file as evidence.
func (s *Service) VerifyContract(ctx context.Context, actor Actor, id, notes string, ev *Evidence) (*ContractPayment, error) {
	if err := requireRole(actor, "verify_contract"); err != nil {
		return nil, err
	}
	if _, err := s.uploadEvidence(ctx, id, DocTypeVerifiedContract, ev); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, "verify_contract", id, func(cp *ContractPayment) error {
		return cp.VerifyContract(notes)
	})
}

// RejectContract terminally rejects submitted terms.
func (s *Service) RejectContract(ctx context.Context, actor Actor, id, reason string) (*ContractPayment, error) {
	if err := requireRole(actor, "reject_contract"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, "reject_contract", id, func(cp *ContractPayment) error {
		return cp.RejectContract(reason)
	})
}

// ApproveContract unlocks the payment lifecycle.
func (s *Service) ApproveContract(ctx context.Context, actor Actor, id, notes string) (*ContractPayment, error) {
	if err := requireRole(actor, "approve_contract"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, "approve_contract", id, func(cp *ContractPayment) error {
		return cp.ApproveContract(notes)
	})
}

// =============================================================================
// PAYMENT STATUS OPERATIONS
// =============================================================================

// StartBilling supplies actual hours and computes the actual amount.
// Requires a worksheet document as evidence.
func (s *Service) StartBilling(ctx context.Context, actor Actor, id string, billableHours decimal.Decimal, notes string, ev *Evidence) (*ContractPayment, error) {
	if err := requireRole(actor, "start_billing"); err != nil {
		return nil, err
	}
	if _, err := s.uploadEvidence(ctx, id, DocTypeWorksheet, ev); err != nil {
		return nil, err
	}

	release := s.lockRecord(id)
	defer release()

	return s.mutate(ctx, actor, "start_billing", id, func(cp *ContractPayment) error {
		_, err := cp.StartBilling(billableHours, s.Schedule, notes)
		return err
	})
}

// CreateInvoice records the invoice identity. This write is prone to
// transient conflicts, so it runs under the per-record lock and the
// bounded retry policy: each attempt re-fetches the record and revalidates
// against fresh state.
func (s *Service) CreateInvoice(ctx context.Context, actor Actor, id, invoiceNumber string, invoiceDate time.Time, notes string, ev *Evidence) (*ContractPayment, error) {
	if err := requireRole(actor, "create_invoice"); err != nil {
		return nil, err
	}
	if _, err := s.uploadEvidence(ctx, id, DocTypeInvoice, ev); err != nil {
		return nil, err
	}

	release := s.lockRecord(id)
	defer release()

	var result *ContractPayment
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		cp, err := s.mutate(ctx, actor, "create_invoice", id, func(cp *ContractPayment) error {
			return cp.CreateInvoice(invoiceNumber, invoiceDate, notes)
		})
		if err != nil {
			return err
		}
		result = cp
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// RecordPayment applies one received payment. The record update and the
// ledger entry are written in one transaction. Requires a payment receipt
// as evidence.
func (s *Service) RecordPayment(ctx context.Context, actor Actor, id string, amount VND, paymentDate time.Time, note string, ev *Evidence) (*ContractPayment, error) {
	if err := requireRole(actor, "record_payment"); err != nil {
		return nil, err
	}
	evidenceURL, err := s.uploadEvidence(ctx, id, DocTypePaymentReceipt, ev)
	if err != nil {
		return nil, err
	}

	release := s.lockRecord(id)
	defer release()

	var result *ContractPayment
	err = s.Store.WithTx(ctx, func(store Store) error {
		cp, err := store.Get(ctx, id)
		if err != nil {
			return err
		}

		entry, err := cp.RecordPayment(amount, paymentDate, note)
		if err != nil {
			return err
		}
		entry.ID = uuid.NewString()
		entry.EvidenceURL = evidenceURL
		entry.RecordedBy = actor.ID

		if err := store.Save(ctx, cp); err != nil {
			return err
		}
		if err := store.AppendPayment(ctx, *entry); err != nil {
			return err
		}
		result = cp
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logTransition(actor, "record_payment", result)
	s.audit(ctx, actor, "record_payment", id, map[string]any{
		"amount":         int64(amount),
		"payment_status": string(result.PaymentStatus),
	})
	return result, nil
}

// =============================================================================
// INTERNAL PLUMBING
// =============================================================================

// mutate loads the record, applies fn, and saves. Validation failures from
// fn leave the store untouched.
func (s *Service) mutate(ctx context.Context, actor Actor, operation, id string, fn func(*ContractPayment) error) (*ContractPayment, error) {
	cp, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(cp); err != nil {
		return nil, err
	}
	if err := s.Store.Save(ctx, cp); err != nil {
		return nil, err
	}

	s.logTransition(actor, operation, cp)
	s.audit(ctx, actor, operation, id, map[string]any{
		"contract_status": string(cp.ContractStatus),
		"payment_status":  string(cp.PaymentStatus),
	})
	return cp, nil
}

// uploadEvidence enforces the evidence-then-transition ordering. It returns
// the stored URL; any failure means the transition must not be attempted.
func (s *Service) uploadEvidence(ctx context.Context, id, docType string, ev *Evidence) (string, error) {
	if ev == nil || ev.Content == nil || ev.FileName == "" {
		return "", ErrMissingEvidence
	}
	path := fmt.Sprintf("contract-payments/%s/%s/%s", id, docType, ev.FileName)
	url, err := s.Evidence.Upload(ctx, path, ev.Content)
	if err != nil {
		return "", &CollaboratorError{Kind: ErrEvidenceUpload, Cause: err}
	}
	if s.Documents != nil {
		meta := map[string]string{"file_name": ev.FileName}
		if err := s.Documents.CreateDocumentRecord(ctx, id, docType, url, meta); err != nil {
			return "", &CollaboratorError{Kind: ErrDocumentLink, Cause: err}
		}
	}
	return url, nil
}

func (s *Service) lockRecord(id string) func() {
	return s.locks.acquire(id)
}

func (s *Service) logTransition(actor Actor, operation string, cp *ContractPayment) {
	s.Logger.Info().
		Str("operation", operation).
		Str("contract_payment_id", cp.ID).
		Str("actor_id", actor.ID).
		Str("role", string(actor.Role)).
		Str("contract_status", string(cp.ContractStatus)).
		Str("payment_status", string(cp.PaymentStatus)).
		Msg("transition applied")
}

func (s *Service) audit(ctx context.Context, actor Actor, action, id string, payload map[string]any) {
	if s.Audit == nil {
		return
	}
	entry := AuditEntry{
		ID:                uuid.NewString(),
		At:                time.Now().UTC(),
		ActorID:           actor.ID,
		Role:              actor.Role,
		Action:            action,
		ContractPaymentID: id,
		Payload:           payload,
	}
	if err := s.Audit.Append(ctx, entry); err != nil {
		s.Logger.Warn().Err(err).Str("action", action).Msg("audit append failed")
	}
}
