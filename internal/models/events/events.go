package events

import "github.com/shopspring/decimal"

// TransactionEvent is the payload carried on the raw transactions topic.
// Timestamp is a producer-supplied logical ordering key, not wall-clock.
type TransactionEvent struct {
	EventID   string          `json:"eventId"`
	AccountID string          `json:"accountId"`
	Type      string          `json:"type"` // "credit" or "debit"
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}

// CorrectionEvent is the payload carried on the corrections topic. It has the
// same wire shape as TransactionEvent; the event id prefix records provenance
// (CORR- for reconciler-generated, MANUAL-CORR- for operator-issued).
type CorrectionEvent struct {
	EventID   string          `json:"eventId"`
	AccountID string          `json:"accountId"`
	Type      string          `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Timestamp int64           `json:"timestamp"`
}
