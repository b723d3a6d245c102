package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

// ProcessedEvent marks an event identifier as already applied by a named
// consumer. Rows are append-only; existence is the sole dedup signal.
// The event id is the producer's envelope id, not the outbox row id, so
// redelivery is detected across process restarts and service boundaries.
type ProcessedEvent struct {
	EventID      uuid.UUID       `gorm:"column:event_id;type:uuid;not null;primaryKey"`
	ConsumerName string          `gorm:"column:consumer_name;type:varchar(100);not null;primaryKey"`
	EventType    enums.EventType `gorm:"column:event_type;type:varchar(100)"`
	AggregateID  uuid.UUID       `gorm:"column:aggregate_id;type:uuid"`
	TenantID     *uuid.UUID      `gorm:"column:tenant_id;type:uuid"`
	ProcessedAt  time.Time       `gorm:"column:processed_at;autoCreateTime"`
}

func (ProcessedEvent) TableName() string { return "processed_events" }
