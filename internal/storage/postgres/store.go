package postgres

import (
	"context"
	"database/sql"

	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/shopspring/decimal"
)

type PostgresLedgerStore struct {
	db *sql.DB
}

func NewPostgresLedgerStore(db *sql.DB) *PostgresLedgerStore {
	return &PostgresLedgerStore{
		db: db,
	}
}

// InsertEntry relies on the unique index on event_id: a conflicting insert is
// a no-op and reports inserted=false, which keeps redeliveries safe even
// across process instances.
func (p *PostgresLedgerStore) InsertEntry(ctx context.Context, entry models.LedgerEntry) (bool, error) {
	const query = `INSERT INTO ledger_entries (event_id, account_id, type, amount, event_timestamp, is_correction, processed_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7)
	ON CONFLICT (event_id) DO NOTHING`

	res, err := p.db.ExecContext(ctx, query,
		entry.EventID, entry.AccountID, string(entry.Type), entry.Amount,
		entry.EventTimestamp, entry.IsCorrection, entry.ProcessedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (p *PostgresLedgerStore) ExistsByEventID(ctx context.Context, eventId string) (bool, error) {
	const query = `SELECT 1 FROM ledger_entries WHERE event_id = $1 LIMIT 1`

	var exists int
	err := p.db.QueryRowContext(ctx, query, eventId).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *PostgresLedgerStore) SignedSum(ctx context.Context, accountId string) (decimal.Decimal, error) {
	const query = `SELECT COALESCE(SUM(
		CASE WHEN type = 'CREDIT' THEN amount ELSE -amount END
	), 0)
	FROM ledger_entries
	WHERE account_id = $1`

	var sum decimal.Decimal
	if err := p.db.QueryRowContext(ctx, query, accountId).Scan(&sum); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

func (p *PostgresLedgerStore) EntriesByAccount(ctx context.Context, accountId string) ([]models.LedgerEntry, error) {
	const query = `SELECT event_id, account_id, type, amount, event_timestamp, is_correction, processed_at
	FROM ledger_entries
	WHERE account_id = $1
	ORDER BY event_timestamp, event_id`

	rows, err := p.db.QueryContext(ctx, query, accountId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func (p *PostgresLedgerStore) AllEntries(ctx context.Context) ([]models.LedgerEntry, error) {
	const query = `SELECT event_id, account_id, type, amount, event_timestamp, is_correction, processed_at
	FROM ledger_entries
	ORDER BY account_id, event_timestamp, event_id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var entryType string
		if err := rows.Scan(
			&entry.EventID,
			&entry.AccountID,
			&entryType,
			&entry.Amount,
			&entry.EventTimestamp,
			&entry.IsCorrection,
			&entry.ProcessedAt,
		); err != nil {
			return nil, err
		}
		entry.Type = models.EntryType(entryType)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

var _ interfaces.LedgerStore = (*PostgresLedgerStore)(nil)
