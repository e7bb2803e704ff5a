package interfaces

import (
	"context"

	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// LedgerStore is the storage contract for the append-only ledger. Any engine
// that provides these operations, a uniqueness constraint on event id, and an
// efficient (account_id, event_timestamp, event_id) scan is a valid backing
// store.
type LedgerStore interface {
	// InsertEntry persists the entry unless an entry with the same event id
	// already exists. Returns true when the entry was inserted.
	InsertEntry(ctx context.Context, entry models.LedgerEntry) (bool, error)

	// ExistsByEventID reports whether an entry with the given event id has
	// already been applied.
	ExistsByEventID(ctx context.Context, eventId string) (bool, error)

	// SignedSum returns the signed sum of all entries for the account
	// (credits positive, debits negative), zero for an unseen account.
	SignedSum(ctx context.Context, accountId string) (decimal.Decimal, error)

	// EntriesByAccount returns the account's entries ordered by
	// (eventTimestamp, eventId) ascending.
	EntriesByAccount(ctx context.Context, accountId string) ([]models.LedgerEntry, error)

	// AllEntries returns every entry in the ledger.
	AllEntries(ctx context.Context) ([]models.LedgerEntry, error)
}
