package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgerops/shadow-ledger/internal/interfaces"
	"github.com/ledgerops/shadow-ledger/internal/ledger"
	"github.com/ledgerops/shadow-ledger/internal/models"
	"github.com/ledgerops/shadow-ledger/internal/models/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// kafkaReader is the slice of kafka.Reader the consumer needs; tests swap in
// a fake.
type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// applier is satisfied by *ledger.Ledger.
type applier interface {
	Apply(ctx context.Context, entry models.LedgerEntry) (ledger.ApplyResult, error)
}

type ConsumerConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	// IsCorrection marks consumed entries as corrections; set for the
	// corrections topic consumer.
	IsCorrection bool
	// DeadLetterTopic receives messages that can never apply cleanly
	// (malformed payloads, invariant violations). Empty disables dead-lettering.
	DeadLetterTopic string
}

// Consumer feeds one topic into the ledger projector. Messages are committed
// only after the entry is durably persisted or determined to be a duplicate,
// so a crash between persist and commit causes a redelivery the projector
// absorbs as a no-op.
type Consumer struct {
	reader          kafkaReader
	projector       applier
	publisher       interfaces.EventPublisher
	isCorrection    bool
	deadLetterTopic string
	retryWait       time.Duration
	log             *zap.Logger
}

func NewConsumer(cfg ConsumerConfig, projector applier, publisher interfaces.EventPublisher, log *zap.Logger) (*Consumer, error) {
	brokers := make([]string, 0, len(cfg.Brokers))
	for _, b := range cfg.Brokers {
		trimmed := strings.TrimSpace(b)
		if trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, fmt.Errorf("kafka topic required")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, fmt.Errorf("kafka group id required")
	}

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	return &Consumer{
		reader:          r,
		projector:       projector,
		publisher:       publisher,
		isCorrection:    cfg.IsCorrection,
		deadLetterTopic: cfg.DeadLetterTopic,
		retryWait:       time.Second,
		log:             log.With(zap.String("topic", cfg.Topic)),
	}, nil
}

// Run consumes until ctx is done. Infrastructure failures during apply leave
// the message uncommitted and retry it in place; projector decisions
// (applied, duplicate, rejected) always advance the offset.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		for {
			err := c.handle(ctx, msg)
			if err == nil {
				break
			}
			c.log.Error("apply failed, retrying",
				zap.String("key", string(msg.Key)),
				zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(c.retryWait):
			}
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			// Redelivery after a failed commit is absorbed by the projector.
			c.log.Error("commit failed", zap.Error(err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// handle returns an error only for retryable infrastructure failures.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) error {
	var ev events.TransactionEvent
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		c.log.Error("malformed message", zap.String("key", string(msg.Key)), zap.Error(err))
		c.deadLetter(ctx, msg)
		return nil
	}

	entry, err := toEntry(ev, c.isCorrection)
	if err != nil {
		c.log.Error("invalid event payload",
			zap.String("event_id", ev.EventID),
			zap.Error(err))
		c.deadLetter(ctx, msg)
		return nil
	}

	result, err := c.projector.Apply(ctx, entry)
	if err != nil {
		if errors.Is(err, ledger.ErrInvalidEntry) {
			c.deadLetter(ctx, msg)
			return nil
		}
		return err
	}

	if result == ledger.ResultInsufficientBalance {
		// Redelivering would reject again forever; park it instead.
		c.log.Error("entry rejected by balance invariant, dead-lettering",
			zap.String("event_id", entry.EventID),
			zap.String("account_id", entry.AccountID))
		c.deadLetter(ctx, msg)
	}
	return nil
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafka.Message) {
	if c.publisher == nil || c.deadLetterTopic == "" {
		return
	}
	if err := c.publisher.Publish(ctx, c.deadLetterTopic, string(msg.Key), json.RawMessage(msg.Value)); err != nil {
		c.log.Error("dead-letter publish failed", zap.Error(err))
	}
}

func toEntry(ev events.TransactionEvent, isCorrection bool) (models.LedgerEntry, error) {
	typ, err := models.ParseEntryType(ev.Type)
	if err != nil {
		return models.LedgerEntry{}, err
	}
	if ev.EventID == "" || ev.AccountID == "" {
		return models.LedgerEntry{}, fmt.Errorf("event id and account id are required")
	}
	if !ev.Amount.IsPositive() {
		return models.LedgerEntry{}, fmt.Errorf("amount must be positive")
	}
	return models.LedgerEntry{
		EventID:        ev.EventID,
		AccountID:      ev.AccountID,
		Type:           typ,
		Amount:         ev.Amount,
		EventTimestamp: ev.Timestamp,
		IsCorrection:   isCorrection,
		ProcessedAt:    time.Now(),
	}, nil
}
