package drift

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/ledgerops/shadow-ledger/internal/ledger"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/ledgerops/shadow-ledger/internal/models/events"
	"github.com/ledgerops/shadow-ledger/internal/storage/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type published struct {
	topic string
	key   string
	event any
}

type fakePublisher struct {
	messages []published
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, event any) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, published{topic: topic, key: key, event: event})
	return nil
}

type stubBalances struct {
	balances map[string]decimal.Decimal
	err      error
}

func (s *stubBalances) CurrentBalance(_ context.Context, accountId string) (decimal.Decimal, error) {
	if s.err != nil {
		return decimal.Zero, s.err
	}
	return s.balances[accountId], nil
}

func newTestReconciler(balances BalanceSource) (*Reconciler, *fakePublisher) {
	pub := &fakePublisher{}
	r := NewReconciler(balances, pub, "transactions.corrections", decimal.Zero, zap.NewNop())
	return r, pub
}

func bal(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestDetectDriftAutoCorrectsPositiveDrift(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{"A10": bal(950)}})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(1000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.TotalAccounts)
	assert.Equal(t, 1, summary.DriftsDetected)
	assert.Equal(t, 1, summary.CorrectionsGenerated)
	require.Len(t, summary.Drifts, 1)

	report := summary.Drifts[0]
	assert.Equal(t, models.DriftStatusAutoCorrected, report.Status)
	assert.True(t, report.Difference.Equal(bal(50)))
	assert.NotEmpty(t, report.CorrectionEventID)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "transactions.corrections", pub.messages[0].topic)
	assert.Equal(t, "A10", pub.messages[0].key)

	correction := pub.messages[0].event.(events.CorrectionEvent)
	assert.Equal(t, "credit", correction.Type)
	assert.True(t, correction.Amount.Equal(bal(50)))
	assert.Equal(t, report.CorrectionEventID, correction.EventID)
}

func TestDetectDriftAutoCorrectsNegativeDrift(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{"A10": bal(950)}})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(900)},
	})
	require.NoError(t, err)

	require.Len(t, summary.Drifts, 1)
	assert.True(t, summary.Drifts[0].Difference.Equal(bal(-50)))
	assert.Equal(t, models.DriftStatusAutoCorrected, summary.Drifts[0].Status)

	require.Len(t, pub.messages, 1)
	correction := pub.messages[0].event.(events.CorrectionEvent)
	assert.Equal(t, "debit", correction.Type)
	assert.True(t, correction.Amount.Equal(bal(50)))
}

func TestDetectDriftLargeDriftNeedsManualReview(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{"A10": bal(0)}})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(15000)},
	})
	require.NoError(t, err)

	require.Len(t, summary.Drifts, 1)
	assert.Equal(t, models.DriftStatusManualReviewRequired, summary.Drifts[0].Status)
	assert.Empty(t, summary.Drifts[0].CorrectionEventID)
	assert.Equal(t, 0, summary.CorrectionsGenerated)
	assert.Empty(t, pub.messages, "no correction may be published above the threshold")
}

func TestDetectDriftThresholdIsInclusive(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{"A10": bal(0)}})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(10000)},
	})
	require.NoError(t, err)

	require.Len(t, summary.Drifts, 1)
	assert.Equal(t, models.DriftStatusAutoCorrected, summary.Drifts[0].Status)
	assert.Len(t, pub.messages, 1)
}

func TestDetectDriftSkipsAccountsWithoutDrift(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{
		"A10": bal(950),
		"A11": bal(2000),
	}})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(1000)},
		{AccountID: "A11", ReportedBalance: bal(2000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.TotalAccounts)
	assert.Equal(t, 1, summary.DriftsDetected)
	require.Len(t, summary.Drifts, 1)
	assert.Equal(t, "A10", summary.Drifts[0].AccountID)
	assert.Len(t, pub.messages, 1)
}

func TestDetectDriftLookupFailureReadsAsZero(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{err: errors.New("store down")})

	summary, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(500)},
	})
	require.NoError(t, err)

	require.Len(t, summary.Drifts, 1)
	assert.True(t, summary.Drifts[0].ShadowBalance.IsZero())
	assert.True(t, summary.Drifts[0].Difference.Equal(bal(500)))
	assert.Len(t, pub.messages, 1)
}

func TestDetectDriftStopsOnPublishFailure(t *testing.T) {
	balances := &stubBalances{balances: map[string]decimal.Decimal{"A10": bal(0), "A11": bal(0)}}
	pub := &fakePublisher{err: errors.New("broker unavailable")}
	r := NewReconciler(balances, pub, "transactions.corrections", decimal.Zero, zap.NewNop())

	_, err := r.DetectDrift(context.Background(), []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(100)},
		{AccountID: "A11", ReportedBalance: bal(100)},
	})
	assert.Error(t, err)
}

func TestCorrectionEventIDsAreUniqueAndPrefixed(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{balances: map[string]decimal.Decimal{"A10": bal(0)}})

	reports := []models.ExternalBalance{{AccountID: "A10", ReportedBalance: bal(50)}}
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		_, err := r.DetectDrift(context.Background(), reports)
		require.NoError(t, err)
	}
	for _, msg := range pub.messages {
		correction := msg.event.(events.CorrectionEvent)
		assert.Contains(t, correction.EventID, "CORR-A10-")
		assert.False(t, seen[correction.EventID], "duplicate correction id %s", correction.EventID)
		seen[correction.EventID] = true
	}
}

func TestManualCorrectionBypassesThreshold(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{})

	correction, err := r.ManualCorrection(context.Background(), "A10", "debit", bal(250000))
	require.NoError(t, err)

	assert.Contains(t, correction.EventID, "MANUAL-CORR-A10-")
	assert.Equal(t, "debit", correction.Type)
	assert.True(t, correction.Amount.Equal(bal(250000)))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, "A10", pub.messages[0].key)
}

func TestManualCorrectionValidation(t *testing.T) {
	r, pub := newTestReconciler(&stubBalances{})
	ctx := context.Background()

	_, err := r.ManualCorrection(ctx, "", "credit", bal(10))
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	_, err = r.ManualCorrection(ctx, "A10", "transfer", bal(10))
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	_, err = r.ManualCorrection(ctx, "A10", "credit", bal(0))
	assert.ErrorIs(t, err, ErrInvalidCorrection)

	assert.Empty(t, pub.messages)
}

// Applying a just-emitted correction closes the drift exactly.
func TestCorrectionClosesDrift(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	ledgerSvc := ledger.NewLedger(store, zap.NewNop())
	ctx := context.Background()

	_, err := ledgerSvc.Apply(ctx, models.LedgerEntry{
		EventID: "E1", AccountID: "A10", Type: models.EntryTypeCredit,
		Amount: bal(950), EventTimestamp: 1,
	})
	require.NoError(t, err)

	pub := &fakePublisher{}
	r := NewReconciler(ledgerSvc, pub, "transactions.corrections", decimal.Zero, zap.NewNop())

	summary, err := r.DetectDrift(ctx, []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(1000)},
	})
	require.NoError(t, err)
	require.Equal(t, 1, summary.CorrectionsGenerated)

	// Round-trip through JSON like the bus would, then project it.
	data, err := json.Marshal(pub.messages[0].event)
	require.NoError(t, err)
	var ev events.TransactionEvent
	require.NoError(t, json.Unmarshal(data, &ev))

	typ, err := models.ParseEntryType(ev.Type)
	require.NoError(t, err)
	result, err := ledgerSvc.Apply(ctx, models.LedgerEntry{
		EventID:        ev.EventID,
		AccountID:      ev.AccountID,
		Type:           typ,
		Amount:         ev.Amount,
		EventTimestamp: ev.Timestamp,
		IsCorrection:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, ledger.ResultApplied, result)

	balance, err := ledgerSvc.CurrentBalance(ctx, "A10")
	require.NoError(t, err)
	assert.True(t, balance.Equal(bal(1000)), "drift should be closed, got %s", balance)

	// A second run sees no drift.
	summary, err = r.DetectDrift(ctx, []models.ExternalBalance{
		{AccountID: "A10", ReportedBalance: bal(1000)},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, summary.DriftsDetected)
}
