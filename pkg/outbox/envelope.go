package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ActorRef identifies who produced the event.
type ActorRef struct {
	UserID    uuid.UUID  `json:"userId"`
	CompanyID *uuid.UUID `json:"companyId,omitempty"`
	Role      string     `json:"role,omitempty"`
}

// PayloadEnvelope is the stable payload structure stored in outbox_records.
// Consumers dedup on EventID, so it is minted exactly once at append time
// and never changes across publish retries.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	TenantID   *uuid.UUID      `json:"tenantId,omitempty"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// DecodeEnvelope parses a stored payload back into its envelope form.
func DecodeEnvelope(payload json.RawMessage) (PayloadEnvelope, error) {
	var envelope PayloadEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return PayloadEnvelope{}, err
	}
	return envelope, nil
}
