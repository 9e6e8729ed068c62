package domain

import "time"

// CaseState is a lifecycle state label. The vocabulary comes from the Workflow.
type CaseState string

const (
	CaseStateOpen       CaseState = "Open"
	CaseStateInProgress CaseState = "InProgress"
	CaseStateResolved   CaseState = "Resuelta"
)

// DefaultCategory is assigned when no classification keyword matches.
const DefaultCategory = "OTROS"

// Case is the aggregate for a tracked PQRS request.
type Case struct {
	ID               string
	Radicado         string
	FilingDate       *time.Time
	ResponseDeadline *time.Time
	ResponseDate     *time.Time
	Channel          string
	Category         string
	Subject          string
	RequesterName    string
	RequesterEmail   string
	RequestedEntity  string
	AssignedUnit     string
	Sector           string
	Traceability     string
	State            CaseState
	Comments         string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// DaysUntilDeadline returns whole days between ref and the response deadline.
// ok is false when the case has no deadline.
func (c *Case) DaysUntilDeadline(ref time.Time) (days int, ok bool) {
	if c.ResponseDeadline == nil {
		return 0, false
	}
	deadline := TruncateDay(*c.ResponseDeadline)
	return int(deadline.Sub(TruncateDay(ref)).Hours() / 24), true
}

// TruncateDay drops the time-of-day portion, keeping the calendar date in UTC.
func TruncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
