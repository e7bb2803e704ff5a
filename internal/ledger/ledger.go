package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ApplyResult is the outcome of projecting one event into the ledger.
// Infrastructure failures are reported through the error return instead, so
// callers can tell a no-op success from a hard rejection without an error
// taxonomy.
type ApplyResult int

const (
	// ResultApplied means the entry was persisted for the first time.
	ResultApplied ApplyResult = iota
	// ResultDuplicate means an entry with the same event id already exists;
	// nothing was mutated and the invariant was not re-checked.
	ResultDuplicate
	// ResultInsufficientBalance means the entry would drive the account's
	// signed sum below zero; it was not persisted.
	ResultInsufficientBalance
)

func (r ApplyResult) String() string {
	switch r {
	case ResultApplied:
		return "applied"
	case ResultDuplicate:
		return "duplicate"
	case ResultInsufficientBalance:
		return "insufficient_balance"
	default:
		return "unknown"
	}
}

var ErrInvalidEntry = errors.New("invalid ledger entry")

// Ledger is the event-sourced projector and read side of the shadow ledger.
// It folds transaction and correction events into the store and answers
// balance queries over it.
type Ledger struct {
	store interfaces.LedgerStore
	log   *zap.Logger
	muMap map[string]*sync.Mutex // per-account lock for the check-then-insert sequence
	mapMu sync.Mutex             // protects the muMap itself
}

func NewLedger(store interfaces.LedgerStore, log *zap.Logger) *Ledger {
	return &Ledger{
		store: store,
		log:   log,
		muMap: make(map[string]*sync.Mutex),
	}
}

func (l *Ledger) getAccountLock(accountId string) *sync.Mutex {
	l.mapMu.Lock()
	defer l.mapMu.Unlock()

	if _, exists := l.muMap[accountId]; !exists {
		l.muMap[accountId] = &sync.Mutex{}
	}
	return l.muMap[accountId]
}

// Apply projects a single entry into the ledger. A redelivered event id is a
// no-op. An entry whose signed amount would drive the account's aggregate sum
// below zero is rejected without being persisted. Kafka partitioning keeps
// applies for one account on one consumer; the per-account lock covers
// in-process concurrency on top of that.
func (l *Ledger) Apply(ctx context.Context, entry models.LedgerEntry) (ApplyResult, error) {
	if entry.EventID == "" || entry.AccountID == "" {
		return 0, ErrInvalidEntry
	}
	if entry.Type != models.EntryTypeCredit && entry.Type != models.EntryTypeDebit {
		return 0, ErrInvalidEntry
	}
	if !entry.Amount.IsPositive() {
		return 0, ErrInvalidEntry
	}

	lock := l.getAccountLock(entry.AccountID)
	lock.Lock()
	defer lock.Unlock()

	// Dedup before the invariant check: a replayed entry is already inside
	// the aggregate, so re-checking it would double-count the amount.
	exists, err := l.store.ExistsByEventID(ctx, entry.EventID)
	if err != nil {
		return 0, err
	}
	if exists {
		l.log.Warn("duplicate event ignored",
			zap.String("event_id", entry.EventID),
			zap.String("account_id", entry.AccountID))
		return ResultDuplicate, nil
	}

	current, err := l.store.SignedSum(ctx, entry.AccountID)
	if err != nil {
		return 0, err
	}
	if current.Add(entry.SignedAmount()).IsNegative() {
		l.log.Error("entry would result in negative balance",
			zap.String("event_id", entry.EventID),
			zap.String("account_id", entry.AccountID),
			zap.String("balance", current.String()),
			zap.String("amount", entry.Amount.String()))
		return ResultInsufficientBalance, nil
	}

	if entry.ProcessedAt.IsZero() {
		entry.ProcessedAt = time.Now()
	}
	inserted, err := l.store.InsertEntry(ctx, entry)
	if err != nil {
		return 0, err
	}
	if !inserted {
		// Lost an insert race with another instance; same outcome as the
		// exists check above.
		return ResultDuplicate, nil
	}

	l.log.Info("ledger entry created",
		zap.String("event_id", entry.EventID),
		zap.String("account_id", entry.AccountID),
		zap.Bool("is_correction", entry.IsCorrection))
	return ResultApplied, nil
}

// CurrentBalance is the signed sum of all entries for the account, zero if
// the account has never been seen. Insertion order is irrelevant.
func (l *Ledger) CurrentBalance(ctx context.Context, accountId string) (decimal.Decimal, error) {
	return l.store.SignedSum(ctx, accountId)
}

// RunningBalanceView returns the account's entries in (eventTimestamp,
// eventId) order, each paired with the cumulative balance after it. An audit
// view only; an intermediate point may dip below a later entry's value but
// never below zero once all entries are applied.
func (l *Ledger) RunningBalanceView(ctx context.Context, accountId string) ([]models.BalancePoint, error) {
	entries, err := l.store.EntriesByAccount(ctx, accountId)
	if err != nil {
		return nil, err
	}

	points := make([]models.BalancePoint, 0, len(entries))
	balance := decimal.Zero
	for _, e := range entries {
		balance = balance.Add(e.SignedAmount())
		points = append(points, models.BalancePoint{Entry: e, RunningBalance: balance})
	}
	return points, nil
}

// LastEvent returns the event id of the account's entry with the greatest
// (eventTimestamp, eventId), or empty if the account has no entries.
func (l *Ledger) LastEvent(ctx context.Context, accountId string) (string, error) {
	entries, err := l.store.EntriesByAccount(ctx, accountId)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", nil
	}
	return entries[len(entries)-1].EventID, nil
}

// ShadowBalance combines the current balance and last event id for an account.
func (l *Ledger) ShadowBalance(ctx context.Context, accountId string) (models.ShadowBalance, error) {
	balance, err := l.store.SignedSum(ctx, accountId)
	if err != nil {
		return models.ShadowBalance{}, err
	}
	lastEvent, err := l.LastEvent(ctx, accountId)
	if err != nil {
		return models.ShadowBalance{}, err
	}
	return models.ShadowBalance{
		AccountID: accountId,
		Balance:   balance,
		LastEvent: lastEvent,
	}, nil
}

// Entries returns the full ledger, for audit listings.
func (l *Ledger) Entries(ctx context.Context) ([]models.LedgerEntry, error) {
	return l.store.AllEntries(ctx)
}
