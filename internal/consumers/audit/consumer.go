package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/dedup"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
	"github.com/fabricmgmt/eventing-backend/pkg/outbox"
)

type duplicateGuard interface {
	Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Mark(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type processedLedger interface {
	Run(ctx context.Context, consumer string, event dedup.Event, apply func(tx *gorm.DB) error) error
	Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
}

// Consumer writes an audit-trail row for every delivered domain event.
// It is the reference consumer for the delivery pipeline: redis-guarded
// for the fast path, ledger-recorded for correctness.
type Consumer struct {
	name         string
	subscription *pubsub.Subscriber
	guard        duplicateGuard
	ledger       processedLedger
	logg         *logger.Logger
}

type ConsumerParams struct {
	Name         string
	Subscription *pubsub.Subscriber
	Guard        duplicateGuard
	Ledger       processedLedger
	Logger       *logger.Logger
}

// NewConsumer builds the audit consumer.
func NewConsumer(params ConsumerParams) (*Consumer, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("consumer name required")
	}
	if params.Subscription == nil {
		return nil, fmt.Errorf("events subscription required")
	}
	if params.Guard == nil {
		return nil, fmt.Errorf("duplicate guard required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("processed ledger required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		name:         params.Name,
		subscription: params.Subscription,
		guard:        params.Guard,
		ledger:       params.Ledger,
		logg:         params.Logger,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		result := c.process(ctx, msg)
		if result.nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) processResult {
	fields := map[string]any{
		"message_id": msg.ID,
		"event_type": msg.Attributes["event_type"],
		"consumer":   c.name,
	}
	logCtx := c.logg.WithFields(ctx, fields)

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		// Poison payloads can never succeed; park them with an ack.
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return processResult{ack: true}
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return processResult{ack: true}
	}
	logCtx = c.logg.WithEventID(logCtx, envelope.EventID)

	// The guard is a hint only. A hit must be confirmed against the
	// ledger: a stale mark (crash before commit, redis flushed midway)
	// must never drop an event whose effects were not recorded.
	hinted, err := c.guard.Seen(ctx, c.name, eventID)
	if err != nil {
		// Redis being down degrades to the DB path.
		c.logg.Warn(c.logg.WithField(logCtx, "guard_error", err.Error()), "duplicate guard unavailable")
		hinted = false
	}
	if hinted {
		confirmed, err := c.ledger.Seen(ctx, c.name, eventID)
		if err != nil {
			c.logg.Error(logCtx, "ledger lookup failed", err)
			return processResult{nack: true}
		}
		if confirmed {
			c.logg.Info(logCtx, "event already processed; acking duplicate")
			return processResult{ack: true}
		}
		// Stale fast-path mark: fall through and apply.
	}

	aggregateID, err := uuid.Parse(msg.Attributes["aggregate_id"])
	if err != nil {
		c.logg.Error(logCtx, "invalid aggregate id attribute", err)
		return processResult{ack: true}
	}

	event := dedup.Event{
		EventID:     eventID,
		EventType:   enums.EventType(msg.Attributes["event_type"]),
		AggregateID: aggregateID,
		TenantID:    envelope.TenantID,
	}
	err = c.ledger.Run(ctx, c.name, event, func(tx *gorm.DB) error {
		return tx.Create(&models.EventAudit{
			ID:            uuid.New(),
			EventID:       eventID,
			EventType:     event.EventType,
			AggregateType: enums.AggregateType(msg.Attributes["aggregate_type"]),
			AggregateID:   aggregateID,
			TenantID:      envelope.TenantID,
			Payload:       envelope.Data,
		}).Error
	})
	if errors.Is(err, dedup.ErrAlreadyProcessed) {
		c.stampGuard(logCtx, eventID)
		c.logg.Info(logCtx, "event already recorded; acking duplicate")
		return processResult{ack: true}
	}
	if err != nil {
		c.logg.Error(logCtx, "audit apply failed", err)
		return processResult{nack: true}
	}

	c.stampGuard(logCtx, eventID)
	c.logg.Info(logCtx, "event audited")
	return processResult{ack: true}
}

// stampGuard records the fast-path mark once the ledger holds the truth.
// Failures only cost a future DB lookup.
func (c *Consumer) stampGuard(ctx context.Context, eventID uuid.UUID) {
	if err := c.guard.Mark(ctx, c.name, eventID); err != nil {
		c.logg.Warn(c.logg.WithField(ctx, "guard_error", err.Error()), "guard mark failed")
	}
}
