package memory

import (
	"context"
	"testing"

	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(eventId string, typ models.EntryType, amount int64, ts int64) models.LedgerEntry {
	return models.LedgerEntry{
		EventID:        eventId,
		AccountID:      "A10",
		Type:           typ,
		Amount:         decimal.NewFromInt(amount),
		EventTimestamp: ts,
	}
}

func TestInsertEntryIsInsertIfAbsent(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	inserted, err := store.InsertEntry(ctx, entry("E1", models.EntryTypeCredit, 100, 1))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = store.InsertEntry(ctx, entry("E1", models.EntryTypeCredit, 100, 1))
	require.NoError(t, err)
	assert.False(t, inserted)

	all, err := store.AllEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	exists, err := store.ExistsByEventID(ctx, "E1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.ExistsByEventID(ctx, "E2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSignedSum(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	sum, err := store.SignedSum(ctx, "A10")
	require.NoError(t, err)
	assert.True(t, sum.IsZero(), "unseen account sums to zero")

	for _, e := range []models.LedgerEntry{
		entry("E1", models.EntryTypeCredit, 1000, 1),
		entry("E2", models.EntryTypeDebit, 300, 2),
	} {
		_, err := store.InsertEntry(ctx, e)
		require.NoError(t, err)
	}

	sum, err = store.SignedSum(ctx, "A10")
	require.NoError(t, err)
	assert.True(t, sum.Equal(decimal.NewFromInt(700)))
}

func TestEntriesByAccountOrdering(t *testing.T) {
	store := NewMemoryLedgerStore()
	ctx := context.Background()

	for _, e := range []models.LedgerEntry{
		entry("E3", models.EntryTypeCredit, 1, 5),
		entry("E1", models.EntryTypeCredit, 1, 1),
		entry("E2", models.EntryTypeCredit, 1, 5),
	} {
		_, err := store.InsertEntry(ctx, e)
		require.NoError(t, err)
	}

	other := entry("X1", models.EntryTypeCredit, 1, 0)
	other.AccountID = "B20"
	_, err := store.InsertEntry(ctx, other)
	require.NoError(t, err)

	entries, err := store.EntriesByAccount(ctx, "A10")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, "E1", entries[0].EventID)
	assert.Equal(t, "E2", entries[1].EventID)
	assert.Equal(t, "E3", entries[2].EventID)
}
