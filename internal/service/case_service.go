package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/classifier"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/importer"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// CaseService handles case intake and lookups.
type CaseService struct {
	cases      repository.CaseRepository
	ledger     *HistoryLedger
	classifier *classifier.Classifier
	workflow   domain.Workflow
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// CaseDependencies bundles collaborators for the case service.
type CaseDependencies struct {
	CaseRepo   repository.CaseRepository
	Ledger     *HistoryLedger
	Classifier *classifier.Classifier
	Workflow   domain.Workflow
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// CaseInput describes case creation payload.
type CaseInput struct {
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
	Comments         string
}

// RowError reports why one import row was not created.
type RowError struct {
	Row      int    `json:"row"`
	Radicado string `json:"radicado,omitempty"`
	Message  string `json:"message"`
}

// ImportSummary is the outcome of a bulk import.
type ImportSummary struct {
	Total   int        `json:"total"`
	Created int        `json:"created"`
	Failed  int        `json:"failed"`
	Errors  []RowError `json:"errors"`
}

// NewCaseService constructs the service.
func NewCaseService(deps CaseDependencies) *CaseService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaseService{
		cases:      deps.CaseRepo,
		ledger:     deps.Ledger,
		classifier: deps.Classifier,
		workflow:   deps.Workflow,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger.Named("cases"),
	}
}

// CreateCase persists a new case in the workflow's initial state. A missing category is
// derived from the subject.
func (s *CaseService) CreateCase(ctx context.Context, input CaseInput) (*domain.Case, error) {
	radicado := strings.TrimSpace(input.Radicado)
	if radicado == "" {
		return nil, apperrors.NewValidationError("radicado is required", map[string]any{"field": "radicado"})
	}

	c := &domain.Case{
		Radicado:         radicado,
		FilingDate:       dayPtr(input.FilingDate),
		ResponseDeadline: dayPtr(input.ResponseDeadline),
		ResponseDate:     dayPtr(input.ResponseDate),
		Channel:          strings.TrimSpace(input.Channel),
		Category:         strings.TrimSpace(input.Category),
		Subject:          strings.TrimSpace(input.Subject),
		RequesterName:    strings.TrimSpace(input.RequesterName),
		RequesterEmail:   strings.ToLower(strings.TrimSpace(input.RequesterEmail)),
		RequestedEntity:  strings.TrimSpace(input.RequestedEntity),
		AssignedUnit:     strings.TrimSpace(input.AssignedUnit),
		Sector:           strings.TrimSpace(input.Sector),
		Traceability:     strings.TrimSpace(input.Traceability),
		State:            s.initialState(),
		Comments:         strings.TrimSpace(input.Comments),
	}
	if c.Category == "" {
		c.Category = s.classifier.Classify(c.Subject)
	}

	if err := s.cases.Create(ctx, c); err != nil {
		return nil, storageError(err, "case", map[string]any{"radicado": radicado})
	}

	s.logger.Info("case created",
		zap.String("case_id", c.ID),
		zap.String("radicado", c.Radicado),
		zap.String("category", c.Category))
	s.publish(ctx, events.Event{
		ID:        uuid.NewString(),
		Type:      events.EventCaseCreated,
		CaseID:    c.ID,
		Timestamp: c.CreatedAt,
		Payload: events.CaseCreatedPayload{
			Radicado:       c.Radicado,
			Category:       c.Category,
			Subject:        c.Subject,
			State:          c.State,
			RequesterEmail: c.RequesterEmail,
		},
	})
	return c, nil
}

// ClassifySubject runs the classifier only. A nil subject is invalid; an empty one yields
// the default category.
func (s *CaseService) ClassifySubject(subject *string) (string, error) {
	if subject == nil {
		return "", apperrors.NewValidationError("subject is required", map[string]any{"field": "subject"})
	}
	return s.classifier.Classify(*subject), nil
}

// ClassifyAndCreate derives the category from the subject, ignoring any supplied one, and
// persists the case. A blank subject gets the default category.
func (s *CaseService) ClassifyAndCreate(ctx context.Context, input CaseInput) (*domain.Case, error) {
	input.Category = s.classifier.Classify(input.Subject)
	return s.CreateCase(ctx, input)
}

// BulkImport creates one case per row. Failing rows are reported and never abort the batch.
// Rows are numbered from 1 below the header; rows without a recorded position use their
// index in the batch.
func (s *CaseService) BulkImport(ctx context.Context, rows []map[string]string) ImportSummary {
	summary := ImportSummary{Total: len(rows), Errors: []RowError{}}
	for i, row := range rows {
		rowNum := sourceRow(row, i+1)
		radicado := strings.TrimSpace(row[importer.FieldRadicado])

		input, err := caseInputFromRow(row)
		if err == nil {
			_, err = s.CreateCase(ctx, input)
		}
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, RowError{Row: rowNum, Radicado: radicado, Message: rowMessage(err)})
			s.metrics.RecordImportRow("failed")
			s.logger.Warn("import row failed",
				zap.Int("row", rowNum),
				zap.String("radicado", radicado),
				zap.Error(err))
			continue
		}
		summary.Created++
		s.metrics.RecordImportRow("created")
	}

	s.logger.Info("bulk import finished",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("failed", summary.Failed))
	return summary
}

// GetCase fetches a case by id.
func (s *CaseService) GetCase(ctx context.Context, id string) (*domain.Case, error) {
	c, err := s.cases.GetByID(ctx, id)
	if err != nil {
		return nil, storageError(err, "case", map[string]any{"id": id})
	}
	return c, nil
}

// ListCases returns every case.
func (s *CaseService) ListCases(ctx context.Context) ([]domain.Case, error) {
	cases, err := s.cases.List(ctx)
	if err != nil {
		return nil, storageError(err, "cases", nil)
	}
	if cases == nil {
		cases = []domain.Case{}
	}
	return cases, nil
}

// History returns the audit trail of a case, newest first.
func (s *CaseService) History(ctx context.Context, id string) ([]domain.CaseHistory, error) {
	return s.ledger.ListFor(ctx, id)
}

func (s *CaseService) initialState() domain.CaseState {
	if s.workflow.Initial != "" {
		return s.workflow.Initial
	}
	return domain.CaseStateOpen
}

func (s *CaseService) publish(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event publish failed",
			zap.String("event", string(event.Type)),
			zap.String("case_id", event.CaseID),
			zap.Error(err))
	}
}

func caseInputFromRow(row map[string]string) (CaseInput, error) {
	input := CaseInput{
		Radicado:        row[importer.FieldRadicado],
		Channel:         row[importer.FieldChannel],
		Category:        row[importer.FieldCategory],
		Subject:         row[importer.FieldSubject],
		RequesterName:   row[importer.FieldRequesterName],
		RequesterEmail:  row[importer.FieldRequesterEmail],
		RequestedEntity: row[importer.FieldRequestedEntity],
		AssignedUnit:    row[importer.FieldAssignedUnit],
		Sector:          row[importer.FieldSector],
		Traceability:    row[importer.FieldTraceability],
		Comments:        row[importer.FieldComments],
	}

	dates := []struct {
		field string
		dst   **time.Time
	}{
		{importer.FieldFilingDate, &input.FilingDate},
		{importer.FieldResponseDeadline, &input.ResponseDeadline},
		{importer.FieldResponseDate, &input.ResponseDate},
	}
	for _, d := range dates {
		parsed, err := importer.ParseDate(row[d.field])
		if err != nil {
			return input, apperrors.NewValidationError(fmt.Sprintf("invalid %s", d.field), map[string]any{
				"field": d.field,
				"value": row[d.field],
			})
		}
		*d.dst = parsed
	}
	return input, nil
}

// sourceRow prefers the position the importer recorded, which counts skipped blank lines.
func sourceRow(row map[string]string, fallback int) int {
	if n, err := strconv.Atoi(row[importer.FieldRow]); err == nil && n > 0 {
		return n
	}
	return fallback
}

func rowMessage(err error) string {
	if de := apperrors.ToDomainError(err); de != nil && de.Code != apperrors.CodeInternal {
		return de.Message
	}
	return err.Error()
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	day := domain.TruncateDay(*t)
	return &day
}
