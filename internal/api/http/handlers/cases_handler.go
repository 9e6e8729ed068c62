package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/importer"
	"github.com/spec-kit/pqrs-service/internal/service"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// CasesHandler exposes case intake, lookup and lifecycle endpoints.
type CasesHandler struct {
	cases  *service.CaseService
	engine *service.LifecycleEngine
}

// NewCasesHandler constructs handler.
func NewCasesHandler(cases *service.CaseService, engine *service.LifecycleEngine) *CasesHandler {
	return &CasesHandler{cases: cases, engine: engine}
}

// CreateCase POST /cases.
func (h *CasesHandler) CreateCase(c *fiber.Ctx) error {
	input, err := parseCaseRequest(c)
	if err != nil {
		return err
	}
	created, err := h.cases.CreateCase(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCaseResponse(created)})
}

// ClassifyAndCreate POST /cases/classify-and-create.
func (h *CasesHandler) ClassifyAndCreate(c *fiber.Ctx) error {
	input, err := parseCaseRequest(c)
	if err != nil {
		return err
	}
	created, err := h.cases.ClassifyAndCreate(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.NewCaseResponse(created)})
}

// Classify POST /cases/classify.
func (h *CasesHandler) Classify(c *fiber.Ctx) error {
	var req dto.ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	category, err := h.cases.ClassifySubject(req.Subject)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ClassifyResponse{Category: category}})
}

// ListCases GET /cases.
func (h *CasesHandler) ListCases(c *fiber.Ctx) error {
	cases, err := h.cases.ListCases(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCaseListResponse(cases)})
}

// GetCase GET /cases/:id.
func (h *CasesHandler) GetCase(c *fiber.Ctx) error {
	found, err := h.cases.GetCase(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewCaseResponse(found)})
}

// UpdateState PUT /cases/:id/state.
func (h *CasesHandler) UpdateState(c *fiber.Ctx) error {
	var req dto.UpdateStateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	updated, entry, err := h.engine.ApplyTransition(c.UserContext(), c.Params("id"), domain.CaseState(req.State), req.Comments)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TransitionResponse{
		Case:    dto.NewCaseResponse(updated),
		History: dto.NewHistoryEntryResponse(entry),
	}})
}

// History GET /cases/:id/history.
func (h *CasesHandler) History(c *fiber.Ctx) error {
	entries, err := h.cases.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewHistoryResponse(entries)})
}

// Import POST /cases/import with a multipart "file" field.
func (h *CasesHandler) Import(c *fiber.Ctx) error {
	header, err := c.FormFile("file")
	if err != nil {
		return apperrors.NewValidationError("file is required", map[string]any{"field": "file"})
	}
	f, err := header.Open()
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	defer f.Close()

	rows, err := importer.Parse(header.Filename, f)
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"file": header.Filename})
	}
	summary := h.cases.BulkImport(c.UserContext(), rows)
	return c.JSON(fiber.Map{"data": dto.ImportResponse{FileName: header.Filename, ImportSummary: summary}})
}

func parseCaseRequest(c *fiber.Ctx) (service.CaseInput, error) {
	var req dto.CreateCaseRequest
	if err := c.BodyParser(&req); err != nil {
		return service.CaseInput{}, apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.CaseInput{
		Radicado:        req.Radicado,
		Channel:         req.Channel,
		Category:        req.Category,
		Subject:         req.Subject,
		RequesterName:   req.RequesterName,
		RequesterEmail:  req.RequesterEmail,
		RequestedEntity: req.RequestedEntity,
		AssignedUnit:    req.AssignedUnit,
		Sector:          req.Sector,
		Traceability:    req.Traceability,
		Comments:        req.Comments,
	}
	var err error
	if input.FilingDate, err = parseDateField("filing_date", req.FilingDate); err != nil {
		return input, err
	}
	if input.ResponseDeadline, err = parseDateField("response_deadline", req.ResponseDeadline); err != nil {
		return input, err
	}
	if input.ResponseDate, err = parseDateField("response_date", req.ResponseDate); err != nil {
		return input, err
	}
	return input, nil
}

func parseDateField(field, value string) (*time.Time, error) {
	t, err := importer.ParseDate(value)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid date", map[string]any{
			"field": field,
			"value": strings.TrimSpace(value),
		})
	}
	return t, nil
}
