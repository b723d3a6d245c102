package dedup

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

// ErrAlreadyProcessed reports that the event was applied by this consumer
// before. Callers ack the delivery without re-running side effects.
var ErrAlreadyProcessed = errors.New("event already processed")

// Event identifies one delivery for dedup bookkeeping.
type Event struct {
	EventID     uuid.UUID
	EventType   enums.EventType
	AggregateID uuid.UUID
	TenantID    *uuid.UUID
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Ledger is the authoritative consumer-side dedup record. Side effects and
// the processed mark commit in one transaction, so an event either fully
// applied and is marked, or neither happened.
type Ledger struct {
	db   txRunner
	logg *logger.Logger
}

func NewLedger(db txRunner, logg *logger.Logger) (*Ledger, error) {
	if db == nil {
		return nil, errors.New("db client is required")
	}
	return &Ledger{db: db, logg: logg}, nil
}

// Run applies the event's side effects exactly once for the named consumer.
// apply runs inside the same transaction that records the processed mark.
// Duplicate deliveries return ErrAlreadyProcessed, including the race where
// two deliveries of the same event arrive concurrently: the loser's insert
// hits the primary key and its effects roll back.
func (l *Ledger) Run(ctx context.Context, consumer string, event Event, apply func(tx *gorm.DB) error) error {
	if consumer == "" {
		return errors.New("consumer name is required")
	}
	if event.EventID == uuid.Nil {
		return errors.New("event id is required")
	}
	if apply == nil {
		return errors.New("apply func is required")
	}

	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProcessedEvent{}).
			Where("event_id = ? AND consumer_name = ?", event.EventID, consumer).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrAlreadyProcessed
		}

		if err := apply(tx); err != nil {
			return err
		}

		mark := models.ProcessedEvent{
			EventID:      event.EventID,
			ConsumerName: consumer,
			EventType:    event.EventType,
			AggregateID:  event.AggregateID,
			TenantID:     event.TenantID,
		}
		if err := tx.Create(&mark).Error; err != nil {
			if dbpkg.IsUniqueViolation(err, "") {
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	})

	if errors.Is(err, ErrAlreadyProcessed) && l.logg != nil {
		fields := map[string]any{
			"event_id": event.EventID.String(),
			"consumer": consumer,
		}
		l.logg.Info(l.logg.WithFields(ctx, fields), "duplicate event skipped")
	}
	return err
}

// Seen reports whether the consumer already applied the event, without
// touching side effects.
func (l *Ledger) Seen(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error) {
	if consumer == "" {
		return false, errors.New("consumer name is required")
	}
	seen := false
	err := l.db.WithTx(ctx, func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ProcessedEvent{}).
			Where("event_id = ? AND consumer_name = ?", eventID, consumer).
			Count(&count).Error; err != nil {
			return err
		}
		seen = count > 0
		return nil
	})
	return seen, err
}
