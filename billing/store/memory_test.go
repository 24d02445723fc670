package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/billing-engine/billing"
	"github.com/warp/billing-engine/billing/store"
)

func newRecord(id string) *billing.ContractPayment {
	return billing.NewContractPayment(id, "period-1", "assignment-1")
}

func TestMemory_CreateAndGet(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	cp := newRecord("cp-1")
	require.NoError(t, m.Create(ctx, cp))
	assert.Equal(t, int64(1), cp.Version)

	got, err := m.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, cp.ID, got.ID)
	assert.Equal(t, billing.ContractDraft, got.ContractStatus)

	// Get returns a copy: mutating it must not leak into the store.
	got.Notes = "scribble"
	again, err := m.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Empty(t, again.Notes)
}

func TestMemory_CreateDuplicateFails(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	require.NoError(t, m.Create(ctx, newRecord("cp-1")))
	assert.Error(t, m.Create(ctx, newRecord("cp-1")))
}

func TestMemory_GetMissing(t *testing.T) {
	m := store.NewMemory()

	_, err := m.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, billing.ErrNotFound)
}

func TestMemory_SaveDetectsStaleVersion(t *testing.T) {
	// GIVEN: two copies loaded at the same version
	// WHEN: both save
	// THEN: the second write is stale and must be rejected

	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newRecord("cp-1")))

	first, err := m.Get(ctx, "cp-1")
	require.NoError(t, err)
	second, err := m.Get(ctx, "cp-1")
	require.NoError(t, err)

	first.Notes = "writer one"
	require.NoError(t, m.Save(ctx, first))
	assert.Equal(t, int64(2), first.Version)

	second.Notes = "writer two"
	err = m.Save(ctx, second)
	require.Error(t, err)
	assert.ErrorIs(t, err, billing.ErrConcurrentModification)

	got, err := m.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "writer one", got.Notes)
}

func TestMemory_ListNewestFirst(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()

	older := newRecord("cp-old")
	older.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := newRecord("cp-new")
	newer.CreatedAt = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, m.Create(ctx, older))
	require.NoError(t, m.Create(ctx, newer))

	records, err := m.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "cp-new", records[0].ID)
	assert.Equal(t, "cp-old", records[1].ID)
}

func TestMemory_PaymentsOrderedByDate(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	require.NoError(t, m.Create(ctx, newRecord("cp-1")))

	later := billing.PaymentEntry{ID: "e2", ContractPaymentID: "cp-1", Amount: 2,
		Date: time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)}
	earlier := billing.PaymentEntry{ID: "e1", ContractPaymentID: "cp-1", Amount: 1,
		Date: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)}

	require.NoError(t, m.AppendPayment(ctx, later))
	require.NoError(t, m.AppendPayment(ctx, earlier))

	entries, err := m.ListPayments(ctx, "cp-1")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "e1", entries[0].ID)
	assert.Equal(t, "e2", entries[1].ID)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: a transaction that saves and appends, then fails
	// THEN: neither write survives

	tm := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, tm.Create(ctx, newRecord("cp-1")))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s billing.Store) error {
		cp, err := s.Get(ctx, "cp-1")
		if err != nil {
			return err
		}
		cp.Notes = "inside tx"
		if err := s.Save(ctx, cp); err != nil {
			return err
		}
		if err := s.AppendPayment(ctx, billing.PaymentEntry{
			ID: "e1", ContractPaymentID: "cp-1", Amount: 1,
			Date: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	cp, err := tm.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Empty(t, cp.Notes)
	assert.Equal(t, int64(1), cp.Version)

	entries, err := tm.ListPayments(ctx, "cp-1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()
	require.NoError(t, tm.Create(ctx, newRecord("cp-1")))

	err := tm.WithTx(ctx, func(s billing.Store) error {
		cp, err := s.Get(ctx, "cp-1")
		if err != nil {
			return err
		}
		cp.Notes = "committed"
		return s.Save(ctx, cp)
	})
	require.NoError(t, err)

	cp, err := tm.Get(ctx, "cp-1")
	require.NoError(t, err)
	assert.Equal(t, "committed", cp.Notes)
	assert.Equal(t, int64(2), cp.Version)
}
