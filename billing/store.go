/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the contracts between the engine and the outside world. The
  engine is transport-agnostic and storage-agnostic: any backing store that
  honors optimistic versioning and atomic save+append can sit behind Store.

OPTIMISTIC CONCURRENCY:
  Every ContractPayment carries a Version. Save compares the caller's
  version against the stored one: a mismatch returns
  ErrConcurrentModification and writes nothing. On success the store
  increments the version. Concurrent writers therefore collide loudly
  instead of silently overwriting each other.

COLLABORATORS:
  EvidenceStore and DocumentLinker are thin contracts over external
  systems (object storage, the document CRUD module). The engine receives
  only the resulting URL; it never manages storage itself. AuditLog is
  optional - a nil log simply skips audit entries.

IMPLEMENTATIONS:
  - billing/store/memory.go: In-memory, for tests and development
  - store/sqlite/sqlite.go:  Production SQLite

SEE ALSO:
  - service.go: The only consumer of these interfaces
*/
package billing

import (
	"context"
	"io"
	"time"
)

// =============================================================================
// STORE - Record persistence with optimistic concurrency
// =============================================================================

// Store persists contract payments and their payment ledger entries.
type Store interface {
	// Get returns a copy of the record, or ErrNotFound.
	Get(ctx context.Context, id string) (*ContractPayment, error)

	// Create inserts a new record at version 1. Fails if the ID exists.
	Create(ctx context.Context, cp *ContractPayment) error

	// Save writes the record if cp.Version still matches the stored version,
	// then increments it. Returns ErrConcurrentModification on a stale write.
	Save(ctx context.Context, cp *ContractPayment) error

	// List returns all records, newest first.
	List(ctx context.Context) ([]*ContractPayment, error)

	// AppendPayment appends one ledger entry. Entries are never updated or
	// deleted.
	AppendPayment(ctx context.Context, entry PaymentEntry) error

	// ListPayments returns a record's ledger entries in date order.
	ListPayments(ctx context.Context, contractPaymentID string) ([]PaymentEntry, error)
}

// TxStore wraps Store with transaction support, so recording a payment can
// save the record and append its ledger entry atomically.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. An error from fn rolls
	// everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// =============================================================================
// EVIDENCE AND DOCUMENT COLLABORATORS
// =============================================================================

// Evidence is a supporting document supplied with a gated transition.
type Evidence struct {
	FileName string
	Content  io.Reader
}

// EvidenceStore uploads evidence files to external object storage and
// returns the resulting URL.
type EvidenceStore interface {
	Upload(ctx context.Context, path string, content io.Reader) (url string, err error)
}

// Document type identifiers understood by the external document module.
const (
	DocTypeContractTerms    = "contract-terms"
	DocTypeVerifiedContract = "verified-contract"
	DocTypeWorksheet        = "worksheet"
	DocTypeInvoice          = "invoice"
	DocTypePaymentReceipt   = "payment-receipt"
)

// DocumentLinker records an uploaded document against a contract payment.
// Called after a successful upload and before the corresponding transition.
type DocumentLinker interface {
	CreateDocumentRecord(ctx context.Context, contractPaymentID, documentTypeID, url string, metadata map[string]string) error
}

// =============================================================================
// AUDIT LOG - Optional, append-only
// =============================================================================

// AuditEntry records who performed which transition when.
type AuditEntry struct {
	ID                string
	At                time.Time
	ActorID           string
	Role              Role
	Action            string
	ContractPaymentID string
	Payload           map[string]any
}

// AuditLog stores audit entries. Append-only.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
}
