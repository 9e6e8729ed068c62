// Package app assembles the service from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/pqrs-service/internal/api/http"
	"github.com/spec-kit/pqrs-service/internal/api/http/handlers"
	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/classifier"
	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/events"
	"github.com/spec-kit/pqrs-service/internal/notification"
	"github.com/spec-kit/pqrs-service/internal/observability"
	"github.com/spec-kit/pqrs-service/internal/persistence"
	"github.com/spec-kit/pqrs-service/internal/repository"
	"github.com/spec-kit/pqrs-service/internal/repository/memory"
	"github.com/spec-kit/pqrs-service/internal/rules"
	"github.com/spec-kit/pqrs-service/internal/service"
	"github.com/spec-kit/pqrs-service/internal/worker"
)

// App holds the wired components of one process.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Postgres *persistence.Postgres
	Redis    *persistence.Redis

	Dispatcher events.Dispatcher
	Queue      notification.Queue
	Sender     notification.Sender

	Cases         *service.CaseService
	Engine        *service.LifecycleEngine
	Ledger        *service.HistoryLedger
	Monitor       *service.DeadlineMonitor
	Auth          *service.AuthService
	Notifications *service.NotificationService

	users   repository.UserRepository
	closers []func()
}

// Options control optional start-up steps.
type Options struct {
	// SkipMigrations overrides POSTGRES_RUN_MIGRATIONS.
	SkipMigrations bool
}

// New connects storage, loads rules and builds every service. Without POSTGRES_DSN the
// stores are in-memory; without a reachable Redis the queue and alert markers are too.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	ruleFile, err := rules.Load(cfg.Rules.File)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	workflow := ruleFile.CaseWorkflow()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a.Postgres = pg
	a.closers = append(a.closers, pg.Close)

	if pg.Enabled() && cfg.Postgres.RunMigrations && !opts.SkipMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			a.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	a.Redis = persistence.NewRedis(cfg.Redis, logger)
	a.closers = append(a.closers, a.Redis.Close)

	var (
		cases   repository.CaseRepository
		history repository.CaseHistoryRepository
		tx      repository.Transactor
		resets  repository.PasswordResetRepository
		markers repository.AlertMarkerRepository
	)
	if pg.Enabled() {
		pool := pg.PoolHandle()
		cases = repository.NewCaseRepository(pool)
		history = repository.NewCaseHistoryRepository(pool)
		tx = repository.NewTransactor(pool)
		a.users = repository.NewUserRepository(pool)
		resets = repository.NewPasswordResetRepository(pool)
	} else {
		store := memory.NewStore()
		cases, history, tx = store.Cases(), store.History(), store
		a.users = memory.NewUserStore()
		resets = memory.NewResetTokenStore()
	}

	if a.Redis.Enabled() {
		a.Queue = notification.NewRedisQueue(a.Redis.Client, cfg.Notification.QueueKey, cfg.Notification.PollTimeout())
		markers = repository.NewRedisAlertMarkerRepository(a.Redis.Client, "")
	} else {
		a.Queue = notification.NewMemoryQueue(cfg.Notification.QueueBuffer)
		markers = memory.NewAlertMarkers()
	}

	mailSender, fanout, err := a.buildSenders()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Sender = fanout

	a.Dispatcher = events.NewInMemoryDispatcher()
	a.Notifications = service.NewNotificationService(a.Dispatcher, a.Queue, a.Metrics, logger, cfg.Notification)
	a.Notifications.RegisterHandlers()

	a.Ledger = service.NewHistoryLedger(cases, history, workflow)
	a.Engine = service.NewLifecycleEngine(service.LifecycleDependencies{
		Transactor: tx,
		Ledger:     a.Ledger,
		Workflow:   workflow,
		Dispatcher: a.Dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	a.Cases = service.NewCaseService(service.CaseDependencies{
		CaseRepo:   cases,
		Ledger:     a.Ledger,
		Classifier: classifier.New(ruleFile.RuleSet()),
		Workflow:   workflow,
		Dispatcher: a.Dispatcher,
		Metrics:    a.Metrics,
		Logger:     logger,
	})
	a.Monitor = service.NewDeadlineMonitor(service.DeadlineDependencies{
		CaseRepo:   cases,
		Markers:    markers,
		Dispatcher: a.Dispatcher,
		Settings: service.DeadlineSettings{
			ThresholdDays: cfg.Deadline.ThresholdDays,
			ExcludedState: domain.CaseState(cfg.Deadline.ExcludedState),
			Cooldown:      cfg.Deadline.AlertCooldown(),
		},
		Metrics: a.Metrics,
		Logger:  logger,
	})
	a.Auth = service.NewAuthService(cfg.Auth, service.AuthDependencies{
		UserRepo:          a.users,
		PasswordResetRepo: resets,
		Sender:            mailSender,
		Logger:            logger,
	})
	return a, nil
}

// buildSenders returns the sender used for direct mail and the fan-out used by the worker.
// Kafka only sees queued case notifications, never password recovery mail.
func (a *App) buildSenders() (notification.Sender, notification.Sender, error) {
	cfg := a.Config.Notification
	var mail notification.Sender = notification.NewLogSender(a.Logger)
	if cfg.SMTPHost != "" {
		mail = notification.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.EmailFrom)
	}
	if len(cfg.KafkaBrokers) == 0 {
		return mail, mail, nil
	}
	kafka, err := notification.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
	if err != nil {
		return nil, nil, err
	}
	a.closers = append(a.closers, kafka.Close)
	return mail, notification.MultiSender{{Name: "mail", Sender: mail}, {Name: "kafka", Sender: kafka}}, nil
}

// HTTP builds the fiber application with middlewares and routes.
func (a *App) HTTP() *fiber.App {
	cfg := a.Config
	app := fiber.New(fiber.Config{
		AppName:               cfg.App.Name,
		BodyLimit:             cfg.App.MaxUploadMB * 1024 * 1024,
		DisableStartupMessage: true,
	})
	httptransport.RegisterMiddlewares(app, a.Logger, a.Metrics, cfg.App.RequestTimeout())

	var authMiddleware *auth.AuthMiddleware
	if cfg.Auth.Required {
		authMiddleware = auth.NewAuthMiddleware(a.Auth.TokenManager(), a.users)
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health: handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, a.Metrics, map[string]handlers.Dependency{
			"postgres": a.Postgres,
			"redis":    a.Redis,
		}),
		Users:          handlers.NewUsersHandler(a.Auth),
		Cases:          handlers.NewCasesHandler(a.Cases, a.Engine),
		Alerts:         handlers.NewAlertsHandler(a.Monitor, a.Ledger),
		AuthMiddleware: authMiddleware,
	})
	return app
}

// NotificationWorker builds the delivery worker for the configured queue and senders.
func (a *App) NotificationWorker() *worker.NotificationWorker {
	return worker.NewNotificationWorker(a.Queue, a.Sender, worker.NotificationWorkerOptions{
		MaxAttempts: a.Config.Notification.MaxAttempts,
		RetryDelay:  a.Config.Notification.RetryDelay(),
		Metrics:     a.Metrics,
		Logger:      a.Logger,
	})
}

// DeadlineScheduler builds the periodic scan runner.
func (a *App) DeadlineScheduler() *worker.DeadlineScheduler {
	return worker.NewDeadlineScheduler(a.Monitor, a.Config.Deadline.ScanInterval(), a.Logger)
}

// InProcessQueue reports whether notifications live only in this process.
func (a *App) InProcessQueue() bool {
	_, ok := a.Queue.(*notification.MemoryQueue)
	return ok
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
