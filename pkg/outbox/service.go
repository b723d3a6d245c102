package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbpkg "github.com/fabricmgmt/eventing-backend/pkg/db"
	"github.com/fabricmgmt/eventing-backend/pkg/db/models"
	dbtypes "github.com/fabricmgmt/eventing-backend/pkg/db/types"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
	"github.com/fabricmgmt/eventing-backend/pkg/logger"
)

// DomainEvent is the write-side input: what a service records inside its
// own transaction when business state changes.
type DomainEvent struct {
	EventType     enums.EventType
	AggregateType enums.AggregateType
	AggregateID   uuid.UUID
	TenantID      *uuid.UUID
	Actor         *ActorRef
	Headers       map[string]string
	Data          interface{}
	Version       int
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg}
}

// Append records the event in the same transaction as the caller's state
// change. The row starts in NEW and is invisible to the publisher until
// the transaction commits.
func (s *Service) Append(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if !event.EventType.IsValid() {
		return fmt.Errorf("invalid event type %q", event.EventType)
	}
	if !event.AggregateType.IsValid() {
		return fmt.Errorf("invalid aggregate type %q", event.AggregateType)
	}
	if event.AggregateID == uuid.Nil {
		return errors.New("aggregate id required")
	}

	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Version <= 0 {
		event.Version = 1
	}

	envelope := PayloadEnvelope{
		Version:    event.Version,
		EventID:    uuid.NewString(),
		OccurredAt: event.OccurredAt,
		TenantID:   event.TenantID,
		Actor:      event.Actor,
		Data:       payload,
	}
	payloadJSON, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	row := models.OutboxRecord{
		ID:            uuid.New(),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		EventVersion:  fmt.Sprintf("%d.0", event.Version),
		Payload:       json.RawMessage(payloadJSON),
		Headers:       dbtypes.HeaderMap(event.Headers).Clone(),
		Status:        enums.OutboxStatusNew,
		OccurredAt:    event.OccurredAt,
		TenantID:      event.TenantID,
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}

	if s.logg != nil {
		fields := map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_id":   event.AggregateID.String(),
			"aggregate_type": event.AggregateType,
		}
		logCtx := s.logg.WithFields(ctx, fields)
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}

// AppendIfAbsent appends unless a pending row already exists for the same
// event type and aggregate. Useful for events that may be re-derived from
// the same state change, e.g. sync retries.
func (s *Service) AppendIfAbsent(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.ExistsPendingTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	if err := s.Append(ctx, tx, event); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil
		}
		return err
	}
	return nil
}
