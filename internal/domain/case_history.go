package domain

import "time"

// CaseHistory is an immutable audit trail entry for one state transition.
type CaseHistory struct {
	ID            int64
	CaseID        string
	PreviousState CaseState
	NewState      CaseState
	Comments      string
	ChangedAt     time.Time
}
