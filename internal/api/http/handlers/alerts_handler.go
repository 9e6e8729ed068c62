package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqrs-service/internal/api/dto"
	"github.com/spec-kit/pqrs-service/internal/service"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// AlertsHandler triggers deadline scans and ledger reconciliation.
type AlertsHandler struct {
	monitor *service.DeadlineMonitor
	ledger  *service.HistoryLedger
	now     func() time.Time
}

// NewAlertsHandler constructs handler.
func NewAlertsHandler(monitor *service.DeadlineMonitor, ledger *service.HistoryLedger) *AlertsHandler {
	return &AlertsHandler{monitor: monitor, ledger: ledger, now: time.Now}
}

// Scan POST /alerts/scan. The reference date comes from the body or the query string.
func (h *AlertsHandler) Scan(c *fiber.Ctx) error {
	var req dto.ScanRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return apperrors.NewValidationError("invalid payload", nil)
		}
	}
	if req.ReferenceDate == "" {
		req.ReferenceDate = c.Query("reference_date")
	}

	ref := h.now()
	if req.ReferenceDate != "" {
		parsed, err := parseDateField("reference_date", req.ReferenceDate)
		if err != nil {
			return err
		}
		ref = *parsed
	}

	report, err := h.monitor.ScanAndAlert(c.UserContext(), ref)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Reconcile GET /cases/reconcile.
func (h *AlertsHandler) Reconcile(c *fiber.Ctx) error {
	report, err := h.ledger.Reconcile(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}
