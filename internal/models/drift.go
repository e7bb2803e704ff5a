package models

import "github.com/shopspring/decimal"

// DriftStatus classifies a detected discrepancy.
type DriftStatus string

const (
	DriftStatusAutoCorrected        DriftStatus = "auto_corrected"
	DriftStatusManualReviewRequired DriftStatus = "manual_review_required"
)

// ExternalBalance is one account's balance as reported by the external
// system of record (CBS).
type ExternalBalance struct {
	AccountID       string          `json:"accountId"`
	ReportedBalance decimal.Decimal `json:"reportedBalance"`
}

// DriftReport describes one account whose external balance disagrees with
// the shadow ledger. Reports are ephemeral: recomputed on every detection run.
type DriftReport struct {
	AccountID         string          `json:"accountId"`
	ExternalBalance   decimal.Decimal `json:"cbsBalance"`
	ShadowBalance     decimal.Decimal `json:"shadowBalance"`
	Difference        decimal.Decimal `json:"difference"` // external - shadow
	Status            DriftStatus     `json:"status"`
	CorrectionEventID string          `json:"correctionEventId,omitempty"`
}

// DriftSummary aggregates one detection run.
type DriftSummary struct {
	TotalAccounts        int           `json:"totalAccounts"`
	DriftsDetected       int           `json:"driftsDetected"`
	CorrectionsGenerated int           `json:"correctionsGenerated"`
	Drifts               []DriftReport `json:"drifts"`
}

// BalancePoint pairs an entry with the cumulative balance after applying it,
// in (eventTimestamp, eventId) order. Presentation only; the non-negative
// invariant is enforced on the aggregate sum, never on this view.
type BalancePoint struct {
	Entry          LedgerEntry     `json:"entry"`
	RunningBalance decimal.Decimal `json:"runningBalance"`
}

// ShadowBalance is the query-side balance view for one account.
type ShadowBalance struct {
	AccountID string          `json:"accountId"`
	Balance   decimal.Decimal `json:"balance"`
	LastEvent string          `json:"lastEvent"`
}
