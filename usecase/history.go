package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/satriahrh/cocoa-fruit/gateway/domain"
	"github.com/satriahrh/cocoa-fruit/gateway/utils/log"
)

const HistoryRoutingKey = "history"

// BrokerRecorder records turns by publishing them for the HistoryWorker, so the
// caller never waits on the store.
type BrokerRecorder struct {
	broker domain.MessageBroker
}

func NewBrokerRecorder(broker domain.MessageBroker) *BrokerRecorder {
	return &BrokerRecorder{broker: broker}
}

func (r *BrokerRecorder) RecordTurns(ctx context.Context, record domain.TurnRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding turn record: %w", err)
	}
	if err := r.broker.Publish(ctx, domain.TurnsTopic, HistoryRoutingKey, payload); err != nil {
		return fmt.Errorf("publishing turn record: %w", err)
	}
	return nil
}

// StoreRecorder appends turns to the store inline.
type StoreRecorder struct {
	store domain.ConversationStore
}

func NewStoreRecorder(store domain.ConversationStore) *StoreRecorder {
	return &StoreRecorder{store: store}
}

func (r *StoreRecorder) RecordTurns(ctx context.Context, record domain.TurnRecord) error {
	_, err := r.store.AppendTurns(ctx, record.UserID, record.ConversationID, record.Turns)
	return err
}

const DefaultDrainTimeout = 5 * time.Second

// HistoryWorker drains published turn records into the conversation store.
type HistoryWorker struct {
	broker domain.MessageBroker
	store  domain.ConversationStore
	// DrainTimeout bounds the final flush after Run's context ends.
	DrainTimeout time.Duration
}

func NewHistoryWorker(broker domain.MessageBroker, store domain.ConversationStore) *HistoryWorker {
	return &HistoryWorker{broker: broker, store: store, DrainTimeout: DefaultDrainTimeout}
}

// Run blocks until ctx is done or the broker closes. Records already buffered
// when ctx ends are still appended, within DrainTimeout.
func (w *HistoryWorker) Run(ctx context.Context) error {
	messages, err := w.broker.Subscribe(ctx, domain.TurnsTopic, HistoryRoutingKey)
	if err != nil {
		return fmt.Errorf("subscribing to turn records: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			w.drain(ctx, messages)
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			w.handle(ctx, msg)
		}
	}
}

// drain appends whatever is still buffered, then reports anything left behind.
func (w *HistoryWorker) drain(ctx context.Context, messages <-chan domain.BrokerMessage) {
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.DrainTimeout)
	defer cancel()
	flushed := 0
	for {
		if flushCtx.Err() != nil {
			if left := len(messages); left > 0 {
				log.WithCtx(ctx).Warn("dropping unsaved turn records on shutdown", zap.Int("records", left), zap.Int("flushed", flushed))
			}
			return
		}
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}
			w.handle(flushCtx, msg)
			flushed++
		default:
			if flushed > 0 {
				log.WithCtx(ctx).Info("flushed turn records on shutdown", zap.Int("records", flushed))
			}
			return
		}
	}
}

func (w *HistoryWorker) handle(ctx context.Context, msg domain.BrokerMessage) {
	var record domain.TurnRecord
	if err := json.Unmarshal(msg.Payload, &record); err != nil {
		log.WithCtx(ctx).Error("dropping malformed turn record", zap.Error(err))
		return
	}
	ctx = log.WithUserID(log.WithConversationID(ctx, record.ConversationID), record.UserID)
	stored, err := w.store.AppendTurns(ctx, record.UserID, record.ConversationID, record.Turns)
	if err != nil {
		log.WithCtx(ctx).Error("failed to append conversation turns", zap.Int("turns", len(record.Turns)), zap.Error(err))
		return
	}
	log.WithCtx(ctx).Debug("conversation turns appended", zap.Int("turns", len(stored)))
}
