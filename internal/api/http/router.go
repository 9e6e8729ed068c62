package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/pqrs-service/internal/api/http/handlers"
	"github.com/spec-kit/pqrs-service/internal/auth"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health *handlers.HealthHandler
	Users  *handlers.UsersHandler
	Cases  *handlers.CasesHandler
	Alerts *handlers.AlertsHandler
	// AuthMiddleware guards case and alert routes when set.
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	app.Get("/metrics", cfg.Health.Metrics())

	authGroup := app.Group("/auth")
	authGroup.Post("/register", cfg.Users.Register)
	authGroup.Post("/login", cfg.Users.Login)
	authGroup.Post("/recover-password", cfg.Users.RecoverPassword)
	authGroup.Post("/reset-password", cfg.Users.ResetPassword)

	var guards []fiber.Handler
	if cfg.AuthMiddleware != nil {
		guards = append(guards, cfg.AuthMiddleware.Handle)
		authGroup.Get("/me", cfg.AuthMiddleware.Handle, cfg.Users.Me)
	}

	cases := app.Group("/cases", guards...)
	cases.Post("/", cfg.Cases.CreateCase)
	cases.Get("/", cfg.Cases.ListCases)
	cases.Post("/import", cfg.Cases.Import)
	cases.Post("/classify", cfg.Cases.Classify)
	cases.Post("/classify-and-create", cfg.Cases.ClassifyAndCreate)
	// registered before /:id so it is not taken for a case id
	cases.Get("/reconcile", cfg.Alerts.Reconcile)
	cases.Get("/:id", cfg.Cases.GetCase)
	cases.Put("/:id/state", cfg.Cases.UpdateState)
	cases.Get("/:id/history", cfg.Cases.History)

	alerts := app.Group("/alerts", guards...)
	alerts.Post("/scan", cfg.Alerts.Scan)
}
