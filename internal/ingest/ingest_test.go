package ingest

import (
	"context"
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

type captured struct {
	topic string
	key   string
	event any
}

type fakePublisher struct {
	messages []captured
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, topic, key string, event any) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, captured{topic: topic, key: key, event: event})
	return nil
}

func validEvent() events.TransactionEvent {
	return events.TransactionEvent{
		EventID:   "E1001",
		AccountID: "A10",
		Type:      "credit",
		Amount:    decimal.NewFromInt(500),
		Timestamp: 1700000000000,
	}
}

func newTestService(store *memory.MemoryLedgerStore) (*Service, *fakePublisher) {
	pub := &fakePublisher{}
	return NewService(store, pub, "transactions.raw", zap.NewNop()), pub
}

func TestIngestPublishesValidEvent(t *testing.T) {
	svc, pub := newTestService(memory.NewMemoryLedgerStore())

	require.NoError(t, svc.Ingest(context.Background(), validEvent()))

	require.Len(t, pub.messages, 1)
	assert.Equal(t, "transactions.raw", pub.messages[0].topic)
	assert.Equal(t, "A10", pub.messages[0].key, "messages must be keyed by account")
}

func TestIngestValidation(t *testing.T) {
	svc, pub := newTestService(memory.NewMemoryLedgerStore())
	ctx := context.Background()

	cases := map[string]func(*events.TransactionEvent){
		"missing event id":   func(ev *events.TransactionEvent) { ev.EventID = "" },
		"missing account id": func(ev *events.TransactionEvent) { ev.AccountID = "" },
		"bad type":           func(ev *events.TransactionEvent) { ev.Type = "transfer" },
		"zero amount":        func(ev *events.TransactionEvent) { ev.Amount = decimal.Zero },
		"negative amount":    func(ev *events.TransactionEvent) { ev.Amount = decimal.NewFromInt(-100) },
		"missing timestamp":  func(ev *events.TransactionEvent) { ev.Timestamp = 0 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			ev := validEvent()
			mutate(&ev)
			err := svc.Ingest(ctx, ev)
			assert.ErrorIs(t, err, ErrInvalidEvent)
		})
	}
	assert.Empty(t, pub.messages)
}

func TestIngestRejectsKnownDuplicate(t *testing.T) {
	store := memory.NewMemoryLedgerStore()
	ledgerSvc := ledger.NewLedger(store, zap.NewNop())
	_, err := ledgerSvc.Apply(context.Background(), models.LedgerEntry{
		EventID: "E1001", AccountID: "A10", Type: models.EntryTypeCredit,
		Amount: decimal.NewFromInt(500), EventTimestamp: 1,
	})
	require.NoError(t, err)

	svc, pub := newTestService(store)
	err = svc.Ingest(context.Background(), validEvent())
	assert.ErrorIs(t, err, ErrDuplicateEvent)
	assert.Empty(t, pub.messages)
}

func TestIngestSurfacesPublishFailure(t *testing.T) {
	svc, pub := newTestService(memory.NewMemoryLedgerStore())
	pub.err = errors.New("broker unavailable")

	err := svc.Ingest(context.Background(), validEvent())
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidEvent)
}
