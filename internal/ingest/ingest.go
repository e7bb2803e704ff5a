package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/ledgerops/shadow-ledger/internal/models/events"
	"go.uber.org/zap"
)

var (
	ErrInvalidEvent   = errors.New("invalid transaction event")
	ErrDuplicateEvent = errors.New("event id already exists")
)

// Service validates inbound transaction events and hands them to the raw
// topic. Its duplicate pre-check is advisory only: the projector makes the
// authoritative dedup decision, so a duplicate slipping past here is harmless.
type Service struct {
	store     interfaces.LedgerStore
	publisher interfaces.EventPublisher
	topic     string
	log       *zap.Logger
}

func NewService(store interfaces.LedgerStore, publisher interfaces.EventPublisher, topic string, log *zap.Logger) *Service {
	return &Service{
		store:     store,
		publisher: publisher,
		topic:     topic,
		log:       log,
	}
}

// Ingest validates the event, fails fast on an obvious duplicate, and
// publishes it keyed by account id.
func (s *Service) Ingest(ctx context.Context, ev events.TransactionEvent) error {
	if err := validate(ev); err != nil {
		return err
	}

	exists, err := s.store.ExistsByEventID(ctx, ev.EventID)
	if err != nil {
		// Pre-check is best-effort; the projector still dedups.
		s.log.Warn("duplicate pre-check failed", zap.String("event_id", ev.EventID), zap.Error(err))
	} else if exists {
		s.log.Warn("duplicate event id rejected at ingestion", zap.String("event_id", ev.EventID))
		return ErrDuplicateEvent
	}

	if err := s.publisher.Publish(ctx, s.topic, ev.AccountID, ev); err != nil {
		return fmt.Errorf("publish transaction event: %w", err)
	}
	s.log.Info("transaction event published",
		zap.String("event_id", ev.EventID),
		zap.String("account_id", ev.AccountID))
	return nil
}

func validate(ev events.TransactionEvent) error {
	if ev.EventID == "" {
		return fmt.Errorf("%w: event id is required", ErrInvalidEvent)
	}
	if ev.AccountID == "" {
		return fmt.Errorf("%w: account id is required", ErrInvalidEvent)
	}
	if _, err := models.ParseEntryType(ev.Type); err != nil {
		return fmt.Errorf("%w: type must be 'credit' or 'debit'", ErrInvalidEvent)
	}
	if !ev.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be greater than 0", ErrInvalidEvent)
	}
	if ev.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidEvent)
	}
	return nil
}
