package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryLedgerStore is an in-memory implementation of interfaces.LedgerStore,
// used in tests and for local runs without Postgres. Thread-safe.
type MemoryLedgerStore struct {
	mu        sync.Mutex
	entries   []models.LedgerEntry
	byEventID map[string]struct{}
}

func NewMemoryLedgerStore() *MemoryLedgerStore {
	return &MemoryLedgerStore{
		entries:   make([]models.LedgerEntry, 0),
		byEventID: make(map[string]struct{}),
	}
}

func (m *MemoryLedgerStore) InsertEntry(ctx context.Context, entry models.LedgerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byEventID[entry.EventID]; exists {
		return false, nil
	}
	m.byEventID[entry.EventID] = struct{}{}
	m.entries = append(m.entries, entry)
	return true, nil
}

func (m *MemoryLedgerStore) ExistsByEventID(ctx context.Context, eventId string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, exists := m.byEventID[eventId]
	return exists, nil
}

func (m *MemoryLedgerStore) SignedSum(ctx context.Context, accountId string) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sum := decimal.Zero
	for _, e := range m.entries {
		if e.AccountID == accountId {
			sum = sum.Add(e.SignedAmount())
		}
	}
	return sum, nil
}

func (m *MemoryLedgerStore) EntriesByAccount(ctx context.Context, accountId string) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID == accountId {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })
	return result, nil
}

// AllEntries returns a copy so external code can't modify internal state.
func (m *MemoryLedgerStore) AllEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := make([]models.LedgerEntry, len(m.entries))
	copy(copied, m.entries)
	return copied, nil
}

// Compile-time check: ensure MemoryLedgerStore implements LedgerStore.
var _ interfaces.LedgerStore = (*MemoryLedgerStore)(nil)
