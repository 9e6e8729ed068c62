package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/notification"
)

func testConfig(authRequired bool) *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name:                  "pqrs-service",
			Version:               "test",
			RequestTimeoutSeconds: 5,
			MaxUploadMB:           4,
		},
		Redis: config.RedisConfig{Enabled: false},
		Auth: config.AuthConfig{
			JWTSecret:               "test-secret",
			AccessTokenTTLMinutes:   60,
			PasswordResetTTLMinutes: 30,
			BcryptCost:              bcrypt.MinCost,
			Required:                authRequired,
		},
		Notification: config.NotificationConfig{
			OpsRecipient: "ops@example.com",
			EmailFrom:    "noreply@example.com",
			QueueBuffer:  64,
			MaxAttempts:  2,
		},
		Deadline: config.DeadlineConfig{
			ThresholdDays:      2,
			ExcludedState:      "Resuelta",
			AlertCooldownHours: 24,
		},
	}
}

type harness struct {
	t   *testing.T
	app *App
	srv *fiber.App
}

func newHarness(t *testing.T, authRequired bool) *harness {
	t.Helper()
	a, err := New(context.Background(), testConfig(authRequired), zaptest.NewLogger(t), Options{})
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return &harness{t: t, app: a, srv: a.HTTP()}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (h *harness) do(req *http.Request) (int, envelope) {
	h.t.Helper()
	resp, err := h.srv.Test(req, -1)
	require.NoError(h.t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	var env envelope
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		require.NoError(h.t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp.StatusCode, env
}

func (h *harness) json(method, path string, body any, token string) (int, envelope) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	return h.do(req)
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

type caseBody struct {
	ID               string  `json:"id"`
	Radicado         string  `json:"radicado"`
	Category         string  `json:"category"`
	State            string  `json:"state"`
	ResponseDeadline *string `json:"response_deadline"`
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, false)

	status, _ := h.json(http.MethodGet, "/health/live", nil, "")
	assert.Equal(t, http.StatusOK, status)

	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp, err := h.srv.Test(req, -1)
	require.NoError(t, err)
	var ready struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ready))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", ready.Status)
	assert.Equal(t, map[string]string{"postgres": "disabled", "redis": "disabled"}, ready.Dependencies)

	resp, err = h.srv.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pqrs_http_requests_total")
}

func TestCaseLifecycleOverHTTP(t *testing.T) {
	h := newHarness(t, false)

	status, env := h.json(http.MethodPost, "/cases", map[string]any{
		"radicado":          "2024-0001",
		"subject":           "Solicito copia del certificado",
		"response_deadline": "2024-06-12",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	created := decode[caseBody](t, env.Data)
	assert.Equal(t, "PETICION", created.Category)
	assert.Equal(t, "Open", created.State)
	require.NotNil(t, created.ResponseDeadline)
	assert.Equal(t, "2024-06-12", *created.ResponseDeadline)

	status, env = h.json(http.MethodGet, "/cases/"+created.ID, nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "2024-0001", decode[caseBody](t, env.Data).Radicado)

	status, env = h.json(http.MethodPut, "/cases/"+created.ID+"/state", map[string]any{
		"state":    "InProgress",
		"comments": "asignado",
	}, "")
	require.Equal(t, http.StatusOK, status)
	transition := decode[struct {
		Case    caseBody `json:"case"`
		History struct {
			PreviousState string `json:"previous_state"`
			NewState      string `json:"new_state"`
		} `json:"history"`
	}](t, env.Data)
	assert.Equal(t, "InProgress", transition.Case.State)
	assert.Equal(t, "Open", transition.History.PreviousState)
	assert.Equal(t, "InProgress", transition.History.NewState)

	status, env = h.json(http.MethodGet, "/cases/"+created.ID+"/history", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]map[string]any](t, env.Data), 1)

	status, env = h.json(http.MethodGet, "/cases", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]caseBody](t, env.Data), 1)

	status, env = h.json(http.MethodGet, "/cases/reconcile", nil, "")
	require.Equal(t, http.StatusOK, status)
	report := decode[struct {
		Checked int   `json:"checked"`
		Issues  []any `json:"issues"`
	}](t, env.Data)
	assert.Equal(t, 1, report.Checked)
	assert.Empty(t, report.Issues)
}

func TestCaseErrorsOverHTTP(t *testing.T) {
	h := newHarness(t, false)

	status, env := h.json(http.MethodPost, "/cases", map[string]any{"subject": "sin radicado"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = h.json(http.MethodPost, "/cases", map[string]any{"radicado": "R-1", "filing_date": "ayer"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "filing_date", env.Error.Details["field"])

	status, _ = h.json(http.MethodPost, "/cases", map[string]any{"radicado": "R-1"}, "")
	require.Equal(t, http.StatusCreated, status)
	status, env = h.json(http.MethodPost, "/cases", map[string]any{"radicado": "R-1"}, "")
	assert.Equal(t, http.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "CONFLICT", env.Error.Code)

	status, env = h.json(http.MethodGet, "/cases/does-not-exist", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)

	status, _ = h.json(http.MethodPut, "/cases/does-not-exist/state", map[string]any{"state": "Resuelta"}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, env = h.json(http.MethodGet, "/no-such-route", nil, "")
	assert.Equal(t, http.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestUnknownStateIsRejected(t *testing.T) {
	h := newHarness(t, false)

	_, env := h.json(http.MethodPost, "/cases", map[string]any{"radicado": "R-9"}, "")
	created := decode[caseBody](t, env.Data)

	status, env := h.json(http.MethodPut, "/cases/"+created.ID+"/state", map[string]any{"state": "Cerrado"}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, env = h.json(http.MethodGet, "/cases/"+created.ID+"/history", nil, "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[[]map[string]any](t, env.Data))
}

func TestClassifyEndpoints(t *testing.T) {
	h := newHarness(t, false)

	status, env := h.json(http.MethodPost, "/cases/classify", map[string]any{}, "")
	assert.Equal(t, http.StatusBadRequest, status)
	require.NotNil(t, env.Error)

	status, env = h.json(http.MethodPost, "/cases/classify", map[string]any{"subject": "Denuncia por soborno"}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "DENUNCIA", decode[map[string]string](t, env.Data)["category"])

	status, env = h.json(http.MethodPost, "/cases/classify", map[string]any{"subject": ""}, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OTROS", decode[map[string]string](t, env.Data)["category"])

	status, env = h.json(http.MethodPost, "/cases/classify-and-create", map[string]any{
		"radicado": "R-77",
		"category": "QUEJA",
		"subject":  "Tengo un reclamo por cobro de factura",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "RECLAMO", decode[caseBody](t, env.Data).Category)

	status, env = h.json(http.MethodPost, "/cases/classify-and-create", map[string]any{
		"radicado": "R-78",
		"subject":  "  ",
	}, "")
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "OTROS", decode[caseBody](t, env.Data).Category)
}

func TestImportCSVOverHTTP(t *testing.T) {
	h := newHarness(t, false)

	csvBody := "Radicado;Asunto;Fecha límite respuesta\n" +
		"IMP-1;Solicitud de información;2024-07-01\n" +
		";Sin radicado;2024-07-01\n" +
		"IMP-2;Queja por demora;no-es-fecha\n" +
		"IMP-1;Repetido;2024-07-02\n"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "casos.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(csvBody))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/cases/import", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	status, env := h.do(req)
	require.Equal(t, http.StatusOK, status)

	summary := decode[struct {
		FileName string `json:"file_name"`
		Total    int    `json:"total"`
		Created  int    `json:"created"`
		Failed   int    `json:"failed"`
		Errors   []struct {
			Row int `json:"row"`
		} `json:"errors"`
	}](t, env.Data)
	assert.Equal(t, "casos.csv", summary.FileName)
	assert.Equal(t, 4, summary.Total)
	assert.Equal(t, 1, summary.Created)
	assert.Equal(t, 3, summary.Failed)
	rows := make([]int, 0, len(summary.Errors))
	for _, e := range summary.Errors {
		rows = append(rows, e.Row)
	}
	assert.Equal(t, []int{2, 3, 4}, rows)

	req = httptest.NewRequest(http.MethodPost, "/cases/import", strings.NewReader("x"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	status, _ = h.do(req)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestDeadlineScanOverHTTP(t *testing.T) {
	h := newHarness(t, false)

	for _, c := range []map[string]any{
		{"radicado": "D-1", "response_deadline": "2024-06-11"},
		{"radicado": "D-2", "response_deadline": "2024-06-30"},
	} {
		status, _ := h.json(http.MethodPost, "/cases", c, "")
		require.Equal(t, http.StatusCreated, status)
	}

	status, env := h.json(http.MethodPost, "/alerts/scan", map[string]any{"reference_date": "2024-06-10"}, "")
	require.Equal(t, http.StatusOK, status)
	first := decode[map[string]any](t, env.Data)
	assert.EqualValues(t, 1, first["matched"])
	assert.EqualValues(t, 1, first["alerted"])

	status, env = h.json(http.MethodPost, "/alerts/scan?reference_date=2024-06-10", nil, "")
	require.Equal(t, http.StatusOK, status)
	second := decode[map[string]any](t, env.Data)
	assert.EqualValues(t, 1, second["matched"])
	assert.EqualValues(t, 1, second["suppressed"])

	queue, ok := h.app.Queue.(*notification.MemoryQueue)
	require.True(t, ok)
	assert.Equal(t, 1, queue.Len())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.Equal(t, 1, h.app.NotificationWorker().Drain(ctx, 50*time.Millisecond))
	assert.Zero(t, queue.Len())
}

func TestAuthRequiredGuardsCases(t *testing.T) {
	h := newHarness(t, true)

	status, env := h.json(http.MethodGet, "/cases", nil, "")
	assert.Equal(t, http.StatusUnauthorized, status)
	require.NotNil(t, env.Error)

	status, _ = h.json(http.MethodGet, "/cases", nil, "garbage")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = h.json(http.MethodPost, "/auth/register", map[string]any{
		"name": "Ana", "email": "ana@example.com", "password": "secreto123",
	}, "")
	require.Equal(t, http.StatusCreated, status)

	status, _ = h.json(http.MethodPost, "/auth/register", map[string]any{
		"name": "Ana", "email": "ANA@example.com", "password": "secreto123",
	}, "")
	assert.Equal(t, http.StatusConflict, status)

	status, _ = h.json(http.MethodPost, "/auth/login", map[string]any{
		"email": "ana@example.com", "password": "incorrecta",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = h.json(http.MethodPost, "/auth/login", map[string]any{
		"email": "ana@example.com", "password": "secreto123",
	}, "")
	require.Equal(t, http.StatusOK, status)
	login := decode[struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}](t, env.Data)
	require.NotEmpty(t, login.Auth.Token)

	status, _ = h.json(http.MethodGet, "/cases", nil, login.Auth.Token)
	assert.Equal(t, http.StatusOK, status)

	status, env = h.json(http.MethodGet, "/auth/me", nil, login.Auth.Token)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ana@example.com", decode[map[string]string](t, env.Data)["email"])

	status, _ = h.json(http.MethodPost, "/auth/recover-password", map[string]any{"email": "ana@example.com"}, "")
	assert.Equal(t, http.StatusAccepted, status)

	status, _ = h.json(http.MethodPost, "/auth/recover-password", map[string]any{"email": "nadie@example.com"}, "")
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = h.json(http.MethodPost, "/auth/login", map[string]any{
		"email": "nadie@example.com", "password": "secreto123",
	}, "")
	assert.Equal(t, http.StatusNotFound, status)
}
