/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements billing.Store, billing.TxStore, billing.DocumentLinker and
  billing.AuditLog on SQLite. In production the same patterns apply to
  PostgreSQL - only minor SQL dialect differences.

OPTIMISTIC CONCURRENCY:
  contract_payments carries a version column. Save issues

    UPDATE ... , version = version + 1 WHERE id = ? AND version = ?

  so a stale writer affects zero rows and gets ErrConcurrentModification.
  This is the backing-store half of the double-invoice defense; the
  engine's per-record lock is the in-process half.

KEY TABLES:
  contract_payments: One row per billing record, versioned
  payment_entries:   Append-only payment ledger (no UPDATE, no DELETE)
  documents:         Evidence document linkage records
  audit_entries:     Append-only transition audit trail

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

USAGE:
  st, err := sqlite.New("./data/billing.db")   // ":memory:" for tests
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - billing/store.go: Interface definitions
  - billing/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/billing-engine/billing"
)

// Store implements the storage interfaces using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ billing.TxStore        = (*Store)(nil)
	_ billing.DocumentLinker = (*Store)(nil)
	_ billing.AuditLog       = (*Store)(nil)
)

// New opens (and migrates) a SQLite store. Use ":memory:" for tests.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS contract_payments (
		id TEXT PRIMARY KEY,
		project_period_id TEXT NOT NULL,
		talent_assignment_id TEXT NOT NULL,
		contract_status TEXT NOT NULL,
		rejection_reason TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		unit_price_foreign TEXT NOT NULL DEFAULT '0',
		currency_code TEXT NOT NULL DEFAULT '',
		exchange_rate TEXT NOT NULL DEFAULT '0',
		calculation_method TEXT NOT NULL DEFAULT '',
		percentage_value TEXT NOT NULL DEFAULT '0',
		fixed_amount TEXT NOT NULL DEFAULT '0',
		standard_hours TEXT NOT NULL DEFAULT '0',
		planned_amount_vnd INTEGER NOT NULL DEFAULT 0,
		billable_hours TEXT NOT NULL DEFAULT '0',
		man_month_coefficient TEXT NOT NULL DEFAULT '0',
		actual_amount_vnd INTEGER NOT NULL DEFAULT 0,
		tier_breakdown_json TEXT NOT NULL DEFAULT '',
		payment_status TEXT NOT NULL,
		invoice_number TEXT NOT NULL DEFAULT '',
		invoice_date TEXT NOT NULL DEFAULT '',
		total_paid_amount INTEGER NOT NULL DEFAULT 0,
		last_payment_date TEXT NOT NULL DEFAULT '',
		is_finished BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_contract_payments_period
		ON contract_payments(project_period_id);
	CREATE INDEX IF NOT EXISTS idx_contract_payments_statuses
		ON contract_payments(contract_status, payment_status);

	-- Payment ledger (append-only: no UPDATE, no DELETE)
	CREATE TABLE IF NOT EXISTS payment_entries (
		id TEXT PRIMARY KEY,
		contract_payment_id TEXT NOT NULL,
		amount INTEGER NOT NULL,
		date TEXT NOT NULL,
		note TEXT NOT NULL DEFAULT '',
		evidence_url TEXT NOT NULL DEFAULT '',
		recorded_by TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		FOREIGN KEY (contract_payment_id) REFERENCES contract_payments(id)
	);

	CREATE INDEX IF NOT EXISTS idx_payment_entries_record
		ON payment_entries(contract_payment_id, date);

	-- Evidence document linkage
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		contract_payment_id TEXT NOT NULL,
		document_type_id TEXT NOT NULL,
		url TEXT NOT NULL,
		metadata_json TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_documents_record
		ON documents(contract_payment_id, document_type_id);

	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		contract_payment_id TEXT NOT NULL,
		payload_json TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_audit_record
		ON audit_entries(contract_payment_id, at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DBTX - Shared query surface for *sql.DB and *sql.Tx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// STORE INTERFACE
// =============================================================================

func (s *Store) Get(ctx context.Context, id string) (*billing.ContractPayment, error) {
	return getRecord(ctx, s.db, id)
}

func (s *Store) Create(ctx context.Context, cp *billing.ContractPayment) error {
	return createRecord(ctx, s.db, cp)
}

func (s *Store) Save(ctx context.Context, cp *billing.ContractPayment) error {
	return saveRecord(ctx, s.db, cp)
}

func (s *Store) List(ctx context.Context) ([]*billing.ContractPayment, error) {
	return listRecords(ctx, s.db)
}

func (s *Store) AppendPayment(ctx context.Context, entry billing.PaymentEntry) error {
	return appendPayment(ctx, s.db, entry)
}

func (s *Store) ListPayments(ctx context.Context, contractPaymentID string) ([]billing.PaymentEntry, error) {
	return listPayments(ctx, s.db, contractPaymentID)
}

// WithTx executes fn within a database transaction. The Store passed to
// fn routes all queries through the transaction; a non-nil error from fn
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(billing.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	view := &txView{tx: tx}
	if err := fn(view); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// txView routes the Store interface through an open transaction.
type txView struct {
	tx *sql.Tx
}

func (v *txView) Get(ctx context.Context, id string) (*billing.ContractPayment, error) {
	return getRecord(ctx, v.tx, id)
}

func (v *txView) Create(ctx context.Context, cp *billing.ContractPayment) error {
	return createRecord(ctx, v.tx, cp)
}

func (v *txView) Save(ctx context.Context, cp *billing.ContractPayment) error {
	return saveRecord(ctx, v.tx, cp)
}

func (v *txView) List(ctx context.Context) ([]*billing.ContractPayment, error) {
	return listRecords(ctx, v.tx)
}

func (v *txView) AppendPayment(ctx context.Context, entry billing.PaymentEntry) error {
	return appendPayment(ctx, v.tx, entry)
}

func (v *txView) ListPayments(ctx context.Context, contractPaymentID string) ([]billing.PaymentEntry, error) {
	return listPayments(ctx, v.tx, contractPaymentID)
}

// =============================================================================
// RECORD QUERIES
// =============================================================================

const recordColumns = `id, project_period_id, talent_assignment_id,
	contract_status, rejection_reason, notes,
	unit_price_foreign, currency_code, exchange_rate, calculation_method,
	percentage_value, fixed_amount, standard_hours, planned_amount_vnd,
	billable_hours, man_month_coefficient, actual_amount_vnd, tier_breakdown_json,
	payment_status, invoice_number, invoice_date, total_paid_amount,
	last_payment_date, is_finished, version, created_at, updated_at`

func getRecord(ctx context.Context, q dbtx, id string) (*billing.ContractPayment, error) {
	row := q.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM contract_payments WHERE id = ?`, id)
	cp, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, billing.ErrNotFound
	}
	return cp, err
}

func createRecord(ctx context.Context, q dbtx, cp *billing.ContractPayment) error {
	cp.Version = 1
	_, err := q.ExecContext(ctx, `
		INSERT INTO contract_payments (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		recordArgs(cp)...)
	if err != nil {
		return fmt.Errorf("insert contract payment: %w", err)
	}
	return nil
}

func saveRecord(ctx context.Context, q dbtx, cp *billing.ContractPayment) error {
	res, err := q.ExecContext(ctx, `
		UPDATE contract_payments SET
			project_period_id = ?, talent_assignment_id = ?,
			contract_status = ?, rejection_reason = ?, notes = ?,
			unit_price_foreign = ?, currency_code = ?, exchange_rate = ?,
			calculation_method = ?, percentage_value = ?, fixed_amount = ?,
			standard_hours = ?, planned_amount_vnd = ?,
			billable_hours = ?, man_month_coefficient = ?, actual_amount_vnd = ?,
			tier_breakdown_json = ?,
			payment_status = ?, invoice_number = ?, invoice_date = ?,
			total_paid_amount = ?, last_payment_date = ?, is_finished = ?,
			version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		cp.ProjectPeriodID, cp.TalentAssignmentID,
		string(cp.ContractStatus), cp.RejectionReason, cp.Notes,
		cp.Terms.UnitPriceForeign.String(), cp.Terms.CurrencyCode, cp.Terms.ExchangeRate.String(),
		string(cp.Terms.Method), cp.Terms.PercentageValue.String(), cp.Terms.FixedAmount.String(),
		cp.Terms.StandardHours.String(), int64(cp.PlannedAmountVND),
		cp.BillableHours.String(), cp.ManMonthCoefficient.String(), int64(cp.ActualAmountVND),
		marshalBreakdown(cp.TierBreakdown),
		string(cp.PaymentStatus), cp.InvoiceNumber, formatTime(cp.InvoiceDate),
		int64(cp.TotalPaidAmount), formatTime(cp.LastPaymentDate), cp.IsFinished,
		time.Now().UTC().Format(time.RFC3339Nano),
		cp.ID, cp.Version)
	if err != nil {
		return fmt.Errorf("update contract payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the row is gone or someone else got there first.
		if _, getErr := getRecord(ctx, q, cp.ID); getErr != nil {
			return getErr
		}
		return billing.ErrConcurrentModification
	}
	cp.Version++
	return nil
}

func listRecords(ctx context.Context, q dbtx) ([]*billing.ContractPayment, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM contract_payments ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*billing.ContractPayment
	for rows.Next() {
		cp, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

func recordArgs(cp *billing.ContractPayment) []any {
	return []any{
		cp.ID, cp.ProjectPeriodID, cp.TalentAssignmentID,
		string(cp.ContractStatus), cp.RejectionReason, cp.Notes,
		cp.Terms.UnitPriceForeign.String(), cp.Terms.CurrencyCode, cp.Terms.ExchangeRate.String(),
		string(cp.Terms.Method), cp.Terms.PercentageValue.String(), cp.Terms.FixedAmount.String(),
		cp.Terms.StandardHours.String(), int64(cp.PlannedAmountVND),
		cp.BillableHours.String(), cp.ManMonthCoefficient.String(), int64(cp.ActualAmountVND),
		marshalBreakdown(cp.TierBreakdown),
		string(cp.PaymentStatus), cp.InvoiceNumber, formatTime(cp.InvoiceDate),
		int64(cp.TotalPaidAmount), formatTime(cp.LastPaymentDate), cp.IsFinished,
		cp.Version,
		cp.CreatedAt.UTC().Format(time.RFC3339Nano),
		cp.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*billing.ContractPayment, error) {
	var (
		cp                                    billing.ContractPayment
		contractStatus, paymentStatus, method string
		unitPrice, rate, pct, fixed, stdHours string
		hours, coefficient                    string
		planned, actual, paid                 int64
		breakdownJSON, invoiceDate, lastPaid  string
		createdAt, updatedAt                  string
	)
	err := row.Scan(
		&cp.ID, &cp.ProjectPeriodID, &cp.TalentAssignmentID,
		&contractStatus, &cp.RejectionReason, &cp.Notes,
		&unitPrice, &cp.Terms.CurrencyCode, &rate, &method,
		&pct, &fixed, &stdHours, &planned,
		&hours, &coefficient, &actual, &breakdownJSON,
		&paymentStatus, &cp.InvoiceNumber, &invoiceDate, &paid,
		&lastPaid, &cp.IsFinished, &cp.Version, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	cp.ContractStatus = billing.ContractStatus(contractStatus)
	cp.PaymentStatus = billing.PaymentStatus(paymentStatus)
	if method != "" {
		if cp.Terms.Method, err = billing.ParseCalculationMethod(method); err != nil {
			return nil, err
		}
	}
	cp.Terms.UnitPriceForeign = parseDecimal(unitPrice)
	cp.Terms.ExchangeRate = parseDecimal(rate)
	cp.Terms.PercentageValue = parseDecimal(pct)
	cp.Terms.FixedAmount = parseDecimal(fixed)
	cp.Terms.StandardHours = parseDecimal(stdHours)
	cp.PlannedAmountVND = billing.VND(planned)
	cp.BillableHours = parseDecimal(hours)
	cp.ManMonthCoefficient = parseDecimal(coefficient)
	cp.ActualAmountVND = billing.VND(actual)
	cp.TotalPaidAmount = billing.VND(paid)
	cp.TierBreakdown = unmarshalBreakdown(breakdownJSON)
	cp.InvoiceDate = parseTime(invoiceDate)
	cp.LastPaymentDate = parseTime(lastPaid)
	cp.CreatedAt = parseTime(createdAt)
	cp.UpdatedAt = parseTime(updatedAt)
	return &cp, nil
}

// =============================================================================
// PAYMENT LEDGER QUERIES
// =============================================================================

func appendPayment(ctx context.Context, q dbtx, entry billing.PaymentEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payment_entries
			(id, contract_payment_id, amount, date, note, evidence_url, recorded_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.ContractPaymentID, int64(entry.Amount),
		formatTime(entry.Date), entry.Note, entry.EvidenceURL, entry.RecordedBy,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert payment entry: %w", err)
	}
	return nil
}

func listPayments(ctx context.Context, q dbtx, contractPaymentID string) ([]billing.PaymentEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, contract_payment_id, amount, date, note, evidence_url, recorded_by, created_at
		FROM payment_entries WHERE contract_payment_id = ? ORDER BY date, created_at`,
		contractPaymentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []billing.PaymentEntry
	for rows.Next() {
		var (
			e               billing.PaymentEntry
			amount          int64
			date, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.ContractPaymentID, &amount, &date,
			&e.Note, &e.EvidenceURL, &e.RecordedBy, &createdAt); err != nil {
			return nil, err
		}
		e.Amount = billing.VND(amount)
		e.Date = parseTime(date)
		e.CreatedAt = parseTime(createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// DOCUMENT LINKER AND AUDIT LOG
// =============================================================================

// CreateDocumentRecord implements billing.DocumentLinker.
func (s *Store) CreateDocumentRecord(ctx context.Context, contractPaymentID, documentTypeID, url string, metadata map[string]string) error {
	meta := ""
	if len(metadata) > 0 {
		b, err := json.Marshal(metadata)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, contract_payment_id, document_type_id, url, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		newDocumentID(contractPaymentID, documentTypeID), contractPaymentID, documentTypeID, url, meta,
		time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert document record: %w", err)
	}
	return nil
}

// Append implements billing.AuditLog.
func (s *Store) Append(ctx context.Context, entry billing.AuditEntry) error {
	payload := ""
	if len(entry.Payload) > 0 {
		b, err := json.Marshal(entry.Payload)
		if err != nil {
			return err
		}
		payload = string(b)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_entries (id, at, actor_id, role, action, contract_payment_id, payload_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.At.UTC().Format(time.RFC3339Nano), entry.ActorID,
		string(entry.Role), entry.Action, entry.ContractPaymentID, payload)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func parseDecimal(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func marshalBreakdown(lines []billing.TierLine) string {
	if len(lines) == 0 {
		return ""
	}
	b, err := json.Marshal(lines)
	if err != nil {
		return ""
	}
	return string(b)
}

func unmarshalBreakdown(s string) []billing.TierLine {
	if s == "" {
		return nil
	}
	var lines []billing.TierLine
	if err := json.Unmarshal([]byte(s), &lines); err != nil {
		return nil
	}
	return lines
}

func newDocumentID(contractPaymentID, documentTypeID string) string {
	return fmt.Sprintf("doc-%s-%s-%d", contractPaymentID, documentTypeID, time.Now().UnixNano())
}
