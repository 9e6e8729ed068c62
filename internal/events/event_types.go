package events

import (
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseCreated      EventType = "case_created"
	EventCaseStateChanged EventType = "case_state_changed"
	EventDeadlineAlert    EventType = "deadline_alert"
)

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseCreatedPayload payload.
type CaseCreatedPayload struct {
	Radicado       string           `json:"radicado"`
	Category       string           `json:"category"`
	Subject        string           `json:"subject"`
	State          domain.CaseState `json:"state"`
	RequesterEmail string           `json:"requester_email,omitempty"`
}

// CaseStateChangedPayload payload.
type CaseStateChangedPayload struct {
	Radicado       string           `json:"radicado"`
	PreviousState  domain.CaseState `json:"previous_state"`
	NewState       domain.CaseState `json:"new_state"`
	Comments       string           `json:"comments,omitempty"`
	RequesterEmail string           `json:"requester_email,omitempty"`
}

// DeadlineAlertPayload payload.
type DeadlineAlertPayload struct {
	Radicado         string           `json:"radicado"`
	Subject          string           `json:"subject"`
	ResponseDeadline time.Time        `json:"response_deadline"`
	State            domain.CaseState `json:"state"`
	DaysRemaining    int              `json:"days_remaining"`
}
