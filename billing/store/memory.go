// Package store provides billing.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/billing-engine/billing"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps records and ledger entries in maps, guarded by one RWMutex.
// It enforces the same optimistic-versioning contract as the SQLite store
// so concurrency tests behave identically against either.
type Memory struct {
	mu       sync.RWMutex
	records  map[string]*billing.ContractPayment
	payments map[string][]billing.PaymentEntry
	audit    []billing.AuditEntry
}

var (
	_ billing.Store    = (*Memory)(nil)
	_ billing.TxStore  = (*TxMemory)(nil)
	_ billing.AuditLog = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		records:  make(map[string]*billing.ContractPayment),
		payments: make(map[string][]billing.PaymentEntry),
	}
}

func (m *Memory) Get(_ context.Context, id string) (*billing.ContractPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getLocked(id)
}

func (m *Memory) getLocked(id string) (*billing.ContractPayment, error) {
	cp, ok := m.records[id]
	if !ok {
		return nil, billing.ErrNotFound
	}
	return cp.Clone(), nil
}

func (m *Memory) Create(_ context.Context, cp *billing.ContractPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.createLocked(cp)
}

func (m *Memory) createLocked(cp *billing.ContractPayment) error {
	if _, exists := m.records[cp.ID]; exists {
		return billing.ErrConcurrentModification
	}
	stored := cp.Clone()
	stored.Version = 1
	m.records[cp.ID] = stored
	cp.Version = 1
	return nil
}

func (m *Memory) Save(_ context.Context, cp *billing.ContractPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked(cp)
}

func (m *Memory) saveLocked(cp *billing.ContractPayment) error {
	current, ok := m.records[cp.ID]
	if !ok {
		return billing.ErrNotFound
	}
	if current.Version != cp.Version {
		return billing.ErrConcurrentModification
	}
	stored := cp.Clone()
	stored.Version = current.Version + 1
	stored.UpdatedAt = time.Now().UTC()
	m.records[cp.ID] = stored
	cp.Version = stored.Version
	return nil
}

func (m *Memory) List(_ context.Context) ([]*billing.ContractPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked()
}

func (m *Memory) listLocked() ([]*billing.ContractPayment, error) {
	out := make([]*billing.ContractPayment, 0, len(m.records))
	for _, cp := range m.records {
		out = append(out, cp.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) AppendPayment(_ context.Context, entry billing.PaymentEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendPaymentLocked(entry)
}

func (m *Memory) appendPaymentLocked(entry billing.PaymentEntry) error {
	m.payments[entry.ContractPaymentID] = append(m.payments[entry.ContractPaymentID], entry)
	return nil
}

func (m *Memory) ListPayments(_ context.Context, contractPaymentID string) ([]billing.PaymentEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listPaymentsLocked(contractPaymentID)
}

func (m *Memory) listPaymentsLocked(contractPaymentID string) ([]billing.PaymentEntry, error) {
	entries := m.payments[contractPaymentID]
	out := make([]billing.PaymentEntry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// Append implements billing.AuditLog so the memory store can double as the
// audit sink in tests.
func (m *Memory) Append(_ context.Context, entry billing.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, entry)
	return nil
}

// AuditEntries returns a copy of all recorded audit entries.
func (m *Memory) AuditEntries() []billing.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]billing.AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot + rollback on error.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(_ context.Context, fn func(billing.Store) error) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	snapshot := tm.snapshot()
	view := &txMemoryView{parent: tm.Memory}

	if err := fn(view); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	records  map[string]*billing.ContractPayment
	payments map[string][]billing.PaymentEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	records := make(map[string]*billing.ContractPayment, len(tm.records))
	for id, cp := range tm.records {
		records[id] = cp.Clone()
	}
	payments := make(map[string][]billing.PaymentEntry, len(tm.payments))
	for id, entries := range tm.payments {
		payments[id] = append([]billing.PaymentEntry{}, entries...)
	}
	return memorySnapshot{records: records, payments: payments}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.records = s.records
	tm.payments = s.payments
}

// txMemoryView operates on the parent's maps directly; the parent's mutex
// is already held for the duration of the transaction.
type txMemoryView struct {
	parent *Memory
}

func (tv *txMemoryView) Get(_ context.Context, id string) (*billing.ContractPayment, error) {
	return tv.parent.getLocked(id)
}

func (tv *txMemoryView) Create(_ context.Context, cp *billing.ContractPayment) error {
	return tv.parent.createLocked(cp)
}

func (tv *txMemoryView) Save(_ context.Context, cp *billing.ContractPayment) error {
	return tv.parent.saveLocked(cp)
}

func (tv *txMemoryView) List(_ context.Context) ([]*billing.ContractPayment, error) {
	return tv.parent.listLocked()
}

func (tv *txMemoryView) AppendPayment(_ context.Context, entry billing.PaymentEntry) error {
	return tv.parent.appendPaymentLocked(entry)
}

func (tv *txMemoryView) ListPayments(_ context.Context, contractPaymentID string) ([]billing.PaymentEntry, error) {
	return tv.parent.listPaymentsLocked(contractPaymentID)
}
