package events

import (
	"time"

	"github.com/spec-kit/sla-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketStatusChanged   EventType = "ticket_status_changed"
	EventTicketPriorityChanged EventType = "ticket_priority_changed"
	EventTicketAssigned        EventType = "ticket_assigned"
	EventSlaBreached           EventType = "sla_breached"
	EventSlaPriorityBumped     EventType = "sla_priority_bumped"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	Type   domain.SubjectType `json:"type"`
	UserID *string            `json:"user_id,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	Comment   string              `json:"comment,omitempty"`
}

// TicketPriorityChangedPayload payload.
type TicketPriorityChangedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
}

// TicketAssignedPayload payload.
type TicketAssignedPayload struct {
	TeamID *string `json:"team_id,omitempty"`
}

// SlaBreachedPayload records a deadline breach. DueAt is the original due
// date that passed, not the detection time.
type SlaBreachedPayload struct {
	BreachType     domain.BreachType `json:"breach_type"`
	DueAt          time.Time         `json:"due_at"`
	PolicyConfigID *string           `json:"policy_config_id,omitempty"`
}

// SlaPriorityBumpedPayload records an automatic escalation after a breach.
type SlaPriorityBumpedPayload struct {
	OldPriority domain.TicketPriority `json:"old_priority"`
	NewPriority domain.TicketPriority `json:"new_priority"`
	BreachType  domain.BreachType     `json:"breach_type"`
}
