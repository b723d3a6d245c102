package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

// EventAudit is the audit-trail row the reference consumer writes for
// every event it applies. It exists on the consumer side of the pipeline
// and is always written under the dedup ledger's transaction.
type EventAudit struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	EventID       uuid.UUID           `gorm:"column:event_id;type:uuid;not null"`
	EventType     enums.EventType     `gorm:"column:event_type;type:varchar(100);not null"`
	AggregateType enums.AggregateType `gorm:"column:aggregate_type;type:varchar(50);not null"`
	AggregateID   uuid.UUID           `gorm:"column:aggregate_id;type:uuid;not null"`
	TenantID      *uuid.UUID          `gorm:"column:tenant_id;type:uuid"`
	Payload       json.RawMessage     `gorm:"column:payload;type:jsonb"`
	ReceivedAt    time.Time           `gorm:"column:received_at;autoCreateTime"`
}

func (EventAudit) TableName() string { return "event_audit" }
