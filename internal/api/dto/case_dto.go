package dto

import (
	"time"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/service"
)

// CreateCaseRequest payload. Dates accept 2006-01-02, 02/01/2006 or RFC 3339.
type CreateCaseRequest struct {
	Radicado         string `json:"radicado"`
	FilingDate       string `json:"filing_date"`
	ResponseDeadline string `json:"response_deadline"`
	ResponseDate     string `json:"response_date"`
	Channel          string `json:"channel"`
	Category         string `json:"category"`
	Subject          string `json:"subject"`
	RequesterName    string `json:"requester_name"`
	RequesterEmail   string `json:"requester_email"`
	RequestedEntity  string `json:"requested_entity"`
	AssignedUnit     string `json:"assigned_unit"`
	Sector           string `json:"sector"`
	Traceability     string `json:"traceability"`
	Comments         string `json:"comments"`
}

// ClassifyRequest payload. Subject is a pointer so a missing field can be told apart from "".
type ClassifyRequest struct {
	Subject *string `json:"subject"`
}

// ClassifyResponse result.
type ClassifyResponse struct {
	Category string `json:"category"`
}

// UpdateStateRequest payload.
type UpdateStateRequest struct {
	State    string `json:"state"`
	Comments string `json:"comments"`
}

// ScanRequest payload. An empty reference date means today.
type ScanRequest struct {
	ReferenceDate string `json:"reference_date"`
}

// CaseResponse representation.
type CaseResponse struct {
	ID               string           `json:"id"`
	Radicado         string           `json:"radicado"`
	FilingDate       *string          `json:"filing_date"`
	ResponseDeadline *string          `json:"response_deadline"`
	ResponseDate     *string          `json:"response_date"`
	Channel          string           `json:"channel"`
	Category         string           `json:"category"`
	Subject          string           `json:"subject"`
	RequesterName    string           `json:"requester_name"`
	RequesterEmail   string           `json:"requester_email,omitempty"`
	RequestedEntity  string           `json:"requested_entity"`
	AssignedUnit     string           `json:"assigned_unit"`
	Sector           string           `json:"sector"`
	Traceability     string           `json:"traceability"`
	State            domain.CaseState `json:"state"`
	Comments         string           `json:"comments"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HistoryEntryResponse representation.
type HistoryEntryResponse struct {
	ID            int64            `json:"id"`
	CaseID        string           `json:"case_id"`
	PreviousState domain.CaseState `json:"previous_state"`
	NewState      domain.CaseState `json:"new_state"`
	Comments      string           `json:"comments"`
	ChangedAt     time.Time        `json:"changed_at"`
}

// TransitionResponse is returned by a state update.
type TransitionResponse struct {
	Case    CaseResponse         `json:"case"`
	History HistoryEntryResponse `json:"history"`
}

// ImportResponse wraps a bulk import summary with the uploaded file name.
type ImportResponse struct {
	FileName string `json:"file_name"`
	service.ImportSummary
}

// NewCaseResponse maps a domain case.
func NewCaseResponse(c *domain.Case) CaseResponse {
	return CaseResponse{
		ID:               c.ID,
		Radicado:         c.Radicado,
		FilingDate:       formatDay(c.FilingDate),
		ResponseDeadline: formatDay(c.ResponseDeadline),
		ResponseDate:     formatDay(c.ResponseDate),
		Channel:          c.Channel,
		Category:         c.Category,
		Subject:          c.Subject,
		RequesterName:    c.RequesterName,
		RequesterEmail:   c.RequesterEmail,
		RequestedEntity:  c.RequestedEntity,
		AssignedUnit:     c.AssignedUnit,
		Sector:           c.Sector,
		Traceability:     c.Traceability,
		State:            c.State,
		Comments:         c.Comments,
		CreatedAt:        c.CreatedAt,
		UpdatedAt:        c.UpdatedAt,
	}
}

// NewCaseListResponse maps a slice of cases.
func NewCaseListResponse(cases []domain.Case) []CaseResponse {
	out := make([]CaseResponse, 0, len(cases))
	for i := range cases {
		out = append(out, NewCaseResponse(&cases[i]))
	}
	return out
}

// NewHistoryEntryResponse maps a history entry.
func NewHistoryEntryResponse(h *domain.CaseHistory) HistoryEntryResponse {
	return HistoryEntryResponse{
		ID:            h.ID,
		CaseID:        h.CaseID,
		PreviousState: h.PreviousState,
		NewState:      h.NewState,
		Comments:      h.Comments,
		ChangedAt:     h.ChangedAt,
	}
}

// NewHistoryResponse maps a history listing, keeping its order.
func NewHistoryResponse(entries []domain.CaseHistory) []HistoryEntryResponse {
	out := make([]HistoryEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, NewHistoryEntryResponse(&entries[i]))
	}
	return out
}

func formatDay(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02")
	return &s
}
