package domain

import "time"

// NotificationKind identifies why a notification was produced.
type NotificationKind string

const (
	NotificationCaseCreated      NotificationKind = "case_created"
	NotificationCaseStateChanged NotificationKind = "case_state_changed"
	NotificationDeadlineAlert    NotificationKind = "deadline_alert"
	NotificationPasswordRecovery NotificationKind = "password_recovery"
)

// Notification is a structured message handed to the delivery transports.
type Notification struct {
	ID        string           `json:"id"`
	Kind      NotificationKind `json:"kind"`
	Recipient string           `json:"recipient"`
	Subject   string           `json:"subject"`
	Body      string           `json:"body"`
	CaseID    string           `json:"case_id,omitempty"`
	Attempts  int              `json:"attempts"`
	Delivered []string         `json:"delivered,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}
