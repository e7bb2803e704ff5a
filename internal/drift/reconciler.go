package drift

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/ledgerops/shadow-ledger/internal/models/events"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const tracerName = "shadow-ledger/drift"

// DefaultThreshold bounds the absolute drift the reconciler may close on its
// own; anything larger goes to manual review.
var DefaultThreshold = decimal.NewFromInt(10000)

var ErrInvalidCorrection = errors.New("invalid correction request")

// BalanceSource answers current-balance queries; satisfied by *ledger.Ledger.
type BalanceSource interface {
	CurrentBalance(ctx context.Context, accountId string) (decimal.Decimal, error)
}

// Reconciler compares externally reported balances against the shadow ledger,
// classifies each discrepancy, and publishes correction events for the ones
// inside the auto-correction threshold.
type Reconciler struct {
	balances  BalanceSource
	publisher interfaces.EventPublisher
	topic     string
	threshold decimal.Decimal
	log       *zap.Logger
}

func NewReconciler(balances BalanceSource, publisher interfaces.EventPublisher, topic string, threshold decimal.Decimal, log *zap.Logger) *Reconciler {
	if threshold.IsZero() {
		threshold = DefaultThreshold
	}
	return &Reconciler{
		balances:  balances,
		publisher: publisher,
		topic:     topic,
		threshold: threshold,
		log:       log,
	}
}

// DetectDrift runs one reconciliation pass over the reported balances, in
// input order. Accounts with zero difference produce no report. Publishing a
// correction can fail mid-batch; already-published corrections stay valid
// because the projector absorbs them idempotently, so the run is safely
// re-runnable.
func (r *Reconciler) DetectDrift(ctx context.Context, reported []models.ExternalBalance) (models.DriftSummary, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "DetectDrift")
	defer span.End()
	span.SetAttributes(attribute.Int("accounts", len(reported)))

	summary := models.DriftSummary{
		TotalAccounts: len(reported),
		Drifts:        []models.DriftReport{},
	}

	for _, cbs := range reported {
		shadow, err := r.balances.CurrentBalance(ctx, cbs.AccountID)
		if err != nil {
			// Treated as zero per the reconciliation contract. This can make
			// a store outage read as full drift, so it is logged loudly
			// instead of silently absorbed.
			r.log.Warn("shadow balance lookup failed, treating as zero",
				zap.String("account_id", cbs.AccountID),
				zap.Error(err))
			shadow = decimal.Zero
		}

		difference := cbs.ReportedBalance.Sub(shadow)
		if difference.IsZero() {
			continue
		}

		r.log.Warn("drift detected",
			zap.String("account_id", cbs.AccountID),
			zap.String("cbs_balance", cbs.ReportedBalance.String()),
			zap.String("shadow_balance", shadow.String()),
			zap.String("difference", difference.String()))

		report := models.DriftReport{
			AccountID:       cbs.AccountID,
			ExternalBalance: cbs.ReportedBalance,
			ShadowBalance:   shadow,
			Difference:      difference,
		}

		if difference.Abs().Cmp(r.threshold) <= 0 {
			correction := newCorrection("CORR", cbs.AccountID, correctionType(difference), difference.Abs())
			if err := r.publishCorrection(ctx, correction); err != nil {
				return summary, fmt.Errorf("publish correction for %s: %w", cbs.AccountID, err)
			}
			report.Status = models.DriftStatusAutoCorrected
			report.CorrectionEventID = correction.EventID
			summary.CorrectionsGenerated++
		} else {
			report.Status = models.DriftStatusManualReviewRequired
		}

		summary.Drifts = append(summary.Drifts, report)
	}

	summary.DriftsDetected = len(summary.Drifts)
	return summary, nil
}

// ManualCorrection publishes an operator-authorized correction. It bypasses
// the threshold check entirely; a human has already authorized the magnitude.
func (r *Reconciler) ManualCorrection(ctx context.Context, accountId, entryType string, amount decimal.Decimal) (events.CorrectionEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "ManualCorrection")
	defer span.End()

	if accountId == "" {
		return events.CorrectionEvent{}, fmt.Errorf("%w: account id is required", ErrInvalidCorrection)
	}
	typ, err := models.ParseEntryType(entryType)
	if err != nil {
		return events.CorrectionEvent{}, fmt.Errorf("%w: %v", ErrInvalidCorrection, err)
	}
	if !amount.IsPositive() {
		return events.CorrectionEvent{}, fmt.Errorf("%w: amount must be positive", ErrInvalidCorrection)
	}

	correction := newCorrection("MANUAL-CORR", accountId, typ, amount)
	if err := r.publishCorrection(ctx, correction); err != nil {
		return events.CorrectionEvent{}, err
	}
	return correction, nil
}

func (r *Reconciler) publishCorrection(ctx context.Context, correction events.CorrectionEvent) error {
	if err := r.publisher.Publish(ctx, r.topic, correction.AccountID, correction); err != nil {
		return err
	}
	r.log.Info("published correction event",
		zap.String("event_id", correction.EventID),
		zap.String("account_id", correction.AccountID),
		zap.String("type", correction.Type),
		zap.String("amount", correction.Amount.String()))
	return nil
}

func correctionType(difference decimal.Decimal) models.EntryType {
	if difference.IsPositive() {
		return models.EntryTypeCredit
	}
	return models.EntryTypeDebit
}

// newCorrection builds a correction with a collision-resistant event id:
// prefix, account, high-resolution timestamp, and a random nonce. Safe across
// parallel reconciler instances and process restarts, unlike a per-process
// counter.
func newCorrection(prefix, accountId string, typ models.EntryType, amount decimal.Decimal) events.CorrectionEvent {
	now := time.Now()
	nonce := uuid.NewString()[:8]
	return events.CorrectionEvent{
		EventID:   fmt.Sprintf("%s-%s-%d-%s", prefix, accountId, now.UnixNano(), nonce),
		AccountID: accountId,
		Type:      typeOnWire(typ),
		Amount:    amount,
		Timestamp: now.UnixMilli(),
	}
}

func typeOnWire(typ models.EntryType) string {
	if typ == models.EntryTypeDebit {
		return "debit"
	}
	return "credit"
}
