package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/fabricmgmt/eventing-backend/pkg/db/types"
	"github.com/fabricmgmt/eventing-backend/pkg/enums"
)

// OutboxRecord is one domain event awaiting or having completed delivery.
// The publisher owns all mutation after the initial append; occurred_at
// doubles as the next eligible attempt time once a retry backoff applies.
type OutboxRecord struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	AggregateType enums.AggregateType `gorm:"column:aggregate_type;type:varchar(50);not null;index:idx_outbox_aggregate"`
	AggregateID   uuid.UUID           `gorm:"column:aggregate_id;type:uuid;not null;index:idx_outbox_aggregate"`
	EventType     enums.EventType     `gorm:"column:event_type;type:varchar(100);not null"`
	EventVersion  string              `gorm:"column:event_version;type:varchar(20);not null;default:1.0"`
	Payload       json.RawMessage     `gorm:"column:payload;type:jsonb;not null"`
	Headers       dbtypes.HeaderMap   `gorm:"column:headers;type:jsonb"`
	Status        enums.OutboxStatus  `gorm:"column:status;type:varchar(20);not null;index:idx_outbox_status_occurred"`
	OccurredAt    time.Time           `gorm:"column:occurred_at;not null;index:idx_outbox_status_occurred"`
	PublishedAt   *time.Time          `gorm:"column:published_at"`
	RetryCount    int                 `gorm:"column:retry_count;not null;default:0"`
	LastError     *string             `gorm:"column:last_error"`
	TenantID      *uuid.UUID          `gorm:"column:tenant_id;type:uuid;index:idx_outbox_tenant"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (OutboxRecord) TableName() string { return "outbox_records" }
