package enums

import "fmt"

// OutboxStatus is the delivery state of an outbox record.
type OutboxStatus string

const (
	OutboxStatusNew        OutboxStatus = "NEW"
	OutboxStatusPublishing OutboxStatus = "PUBLISHING"
	OutboxStatusPublished  OutboxStatus = "PUBLISHED"
	OutboxStatusFailed     OutboxStatus = "FAILED"
)

var validOutboxStatuses = []OutboxStatus{
	OutboxStatusNew,
	OutboxStatusPublishing,
	OutboxStatusPublished,
	OutboxStatusFailed,
}

// IsValid reports whether the value matches the canonical status enum.
func (s OutboxStatus) IsValid() bool {
	for _, candidate := range validOutboxStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next.
// Transitions only run forward; the replay sweep is the single exception
// that returns FAILED rows to NEW.
func (s OutboxStatus) CanTransitionTo(next OutboxStatus) bool {
	switch s {
	case OutboxStatusNew:
		return next == OutboxStatusPublishing
	case OutboxStatusPublishing:
		return next == OutboxStatusPublished || next == OutboxStatusNew || next == OutboxStatusFailed
	case OutboxStatusFailed:
		return next == OutboxStatusNew
	default:
		return false
	}
}

// IsTerminal reports whether the publisher is done with the row.
func (s OutboxStatus) IsTerminal() bool {
	return s == OutboxStatusPublished || s == OutboxStatusFailed
}

// ParseOutboxStatus converts raw input into OutboxStatus.
func ParseOutboxStatus(value string) (OutboxStatus, error) {
	for _, candidate := range validOutboxStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox status %q", value)
}

// AggregateType identifies the business entity an event belongs to and
// drives destination routing.
type AggregateType string

const (
	AggregateCompany      AggregateType = "COMPANY"
	AggregateUser         AggregateType = "USER"
	AggregateContact      AggregateType = "CONTACT"
	AggregateFiber        AggregateType = "FIBER"
	AggregateNotification AggregateType = "NOTIFICATION"
	AggregateAuth         AggregateType = "AUTH"
)

var validAggregateTypes = []AggregateType{
	AggregateCompany,
	AggregateUser,
	AggregateContact,
	AggregateFiber,
	AggregateNotification,
	AggregateAuth,
}

// IsValid reports whether the value matches the canonical aggregate enum.
func (a AggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseAggregateType converts raw input into AggregateType.
func ParseAggregateType(value string) (AggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// EventType identifies the event schema for consumers.
type EventType string

const (
	EventCompanyCreated EventType = "CompanyCreated"
	EventCompanyUpdated EventType = "CompanyUpdated"
	EventCompanyDeleted EventType = "CompanyDeleted"

	EventUserCreated EventType = "UserCreated"
	EventUserUpdated EventType = "UserUpdated"
	EventUserDeleted EventType = "UserDeleted"

	EventContactCreated  EventType = "ContactCreated"
	EventContactUpdated  EventType = "ContactUpdated"
	EventContactDeleted  EventType = "ContactDeleted"
	EventContactVerified EventType = "ContactVerified"

	EventFiberCreated       EventType = "FiberCreated"
	EventFiberUpdated       EventType = "FiberUpdated"
	EventFiberStatusChanged EventType = "FiberStatusChanged"

	EventNotificationRequested EventType = "NotificationRequested"
	EventNotificationSent      EventType = "NotificationSent"

	EventLoginSucceeded EventType = "LoginSucceeded"
	EventLoginFailed    EventType = "LoginFailed"
)

var validEventTypes = []EventType{
	EventCompanyCreated,
	EventCompanyUpdated,
	EventCompanyDeleted,
	EventUserCreated,
	EventUserUpdated,
	EventUserDeleted,
	EventContactCreated,
	EventContactUpdated,
	EventContactDeleted,
	EventContactVerified,
	EventFiberCreated,
	EventFiberUpdated,
	EventFiberStatusChanged,
	EventNotificationRequested,
	EventNotificationSent,
	EventLoginSucceeded,
	EventLoginFailed,
}

// IsValid reports whether the value matches the canonical event enum.
func (e EventType) IsValid() bool {
	for _, candidate := range validEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseEventType converts raw input into EventType.
func ParseEventType(value string) (EventType, error) {
	for _, candidate := range validEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
