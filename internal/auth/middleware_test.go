package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository/memory"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

func guardedApp(t *testing.T) (*fiber.App, *TokenManager, *memory.UserStore) {
	t.Helper()
	users := memory.NewUserStore()
	tokens := NewTokenManager("secret", 5)

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/private", NewAuthMiddleware(tokens, users).Handle, func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		require.True(t, ok)
		return c.SendString(principal.User.Email)
	})
	return app, tokens, users
}

func get(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAuthMiddleware(t *testing.T) {
	app, tokens, users := guardedApp(t)
	ctx := context.Background()

	active := &domain.User{Name: "Ana", Email: "ana@example.com", Status: domain.UserStatusActive}
	require.NoError(t, users.Create(ctx, active))
	suspended := &domain.User{Name: "Luis", Email: "luis@example.com", Status: domain.UserStatusSuspended}
	require.NoError(t, users.Create(ctx, suspended))

	activeToken, _, err := tokens.GenerateToken(active.ID, active.Email)
	require.NoError(t, err)
	suspendedToken, _, err := tokens.GenerateToken(suspended.ID, suspended.Email)
	require.NoError(t, err)
	ghostToken, _, err := tokens.GenerateToken("ghost", "ghost@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + activeToken, http.StatusUnauthorized},
		{"empty token", "Bearer ", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"unknown operator", "Bearer " + ghostToken, http.StatusUnauthorized},
		{"suspended operator", "Bearer " + suspendedToken, http.StatusUnauthorized},
		{"active operator", "Bearer " + activeToken, http.StatusOK},
		{"scheme is case insensitive", "bearer " + activeToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, get(t, app, tc.header))
		})
	}
}
