package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EntryType is the direction of a ledger entry.
type EntryType string

const (
	EntryTypeCredit EntryType = "CREDIT"
	EntryTypeDebit  EntryType = "DEBIT"
)

// ParseEntryType accepts either casing ("credit" on the wire, "CREDIT" in storage).
func ParseEntryType(s string) (EntryType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(EntryTypeCredit):
		return EntryTypeCredit, nil
	case string(EntryTypeDebit):
		return EntryTypeDebit, nil
	default:
		return "", fmt.Errorf("invalid entry type %q", s)
	}
}

// LedgerEntry is a single immutable record in the shadow ledger.
// EventID is the idempotency key: an entry is applied at most once per event id.
type LedgerEntry struct {
	EventID        string          `json:"eventId"`
	AccountID      string          `json:"accountId"`
	Type           EntryType       `json:"type"`
	Amount         decimal.Decimal `json:"amount"` // always positive; Type carries the sign
	EventTimestamp int64           `json:"eventTimestamp"`
	IsCorrection   bool            `json:"isCorrection"`
	ProcessedAt    time.Time       `json:"processedAt"`
}

// SignedAmount is +Amount for credits and -Amount for debits.
func (e LedgerEntry) SignedAmount() decimal.Decimal {
	if e.Type == EntryTypeDebit {
		return e.Amount.Neg()
	}
	return e.Amount
}

// Less orders entries by (eventTimestamp, eventId), the display ordering used
// for running-balance views. The balance total does not depend on it.
func (e LedgerEntry) Less(other LedgerEntry) bool {
	if e.EventTimestamp != other.EventTimestamp {
		return e.EventTimestamp < other.EventTimestamp
	}
	return e.EventID < other.EventID
}
