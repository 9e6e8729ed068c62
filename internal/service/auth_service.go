package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/auth"
	"github.com/spec-kit/pqrs-service/internal/config"
	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/notification"
	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// AuthService coordinates registration, login and password recovery for operators.
type AuthService struct {
	users      repository.UserRepository
	resets     repository.PasswordResetRepository
	sender     notification.Sender
	tokenMgr   *auth.TokenManager
	bcryptCost int
	resetTTL   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo          repository.UserRepository
	PasswordResetRepo repository.PasswordResetRepository
	Sender            notification.Sender
	Logger            *zap.Logger
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) *AuthService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		resets:     deps.PasswordResetRepo,
		sender:     deps.Sender,
		tokenMgr:   auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTLMinutes),
		bcryptCost: cfg.BcryptCost,
		resetTTL:   time.Duration(cfg.PasswordResetTTLMinutes) * time.Minute,
		logger:     logger.Named("auth"),
		now:        time.Now,
	}
}

// Register creates an operator account and signs a token for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*AuthResult, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"field": "name"})
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperrors.NewValidationError("invalid email", map[string]any{"field": "email"})
	}
	if err := passwordPolicy(password); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewConflict("email already registered", map[string]any{"email": email})
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewPersistenceError(err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Status:       domain.UserStatusActive,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, storageError(err, "user", map[string]any{"email": email})
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates an operator.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, apperrors.NewValidationError("email and password are required", nil)
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return nil, storageError(err, "user", map[string]any{"email": email})
	}
	if user.Status != domain.UserStatusActive {
		return nil, apperrors.NewUnauthorized("user suspended")
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewUnauthorized("invalid credentials")
	}
	return s.issue(user)
}

// RequestPasswordRecovery issues a reset token and mails it. The call succeeds only when
// the mail was handed to the transport.
func (s *AuthService) RequestPasswordRecovery(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return apperrors.NewValidationError("email is required", map[string]any{"field": "email"})
	}
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return storageError(err, "user", map[string]any{"email": email})
	}

	token := &domain.PasswordResetToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: s.now().Add(s.resetTTL),
	}
	if err := s.resets.Create(ctx, token); err != nil {
		return storageError(err, "password reset token", nil)
	}

	if s.sender == nil {
		return apperrors.NewNotificationError(errors.New("no notification transport configured"))
	}
	msg := domain.Notification{
		ID:        uuid.NewString(),
		Kind:      domain.NotificationPasswordRecovery,
		Recipient: user.Email,
		Subject:   "Recuperación de contraseña",
		Body: fmt.Sprintf("Hola %s,\nUse el código %s para restablecer su contraseña. Vence el %s.",
			user.Name, token.Token, token.ExpiresAt.UTC().Format(time.RFC1123)),
		Attempts:  1,
		CreatedAt: s.now().UTC(),
	}
	if err := s.sender.Send(ctx, msg); err != nil {
		s.logger.Error("password recovery mail failed", zap.String("user_id", user.ID), zap.Error(err))
		return apperrors.NewNotificationError(err)
	}
	return nil
}

// ConfirmPasswordReset validates the reset token and updates password.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, tokenStr, newPassword string) error {
	if strings.TrimSpace(tokenStr) == "" {
		return apperrors.NewValidationError("token is required", map[string]any{"field": "token"})
	}
	if err := passwordPolicy(newPassword); err != nil {
		return err
	}

	token, err := s.resets.GetByToken(ctx, strings.TrimSpace(tokenStr))
	if err != nil {
		return storageError(err, "password reset token", nil)
	}
	if token.UsedAt != nil || s.now().After(token.ExpiresAt) {
		return apperrors.NewValidationError("token expired or used", map[string]any{"field": "token"})
	}

	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	user, err := s.users.GetByID(ctx, token.UserID)
	if err != nil {
		return storageError(err, "user", nil)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return storageError(err, "user", nil)
	}
	if err := s.resets.MarkUsed(ctx, token.ID); err != nil {
		return storageError(err, "password reset token", nil)
	}
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) issue(user *domain.User) (*AuthResult, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &AuthResult{User: user, Token: token, ExpiresAt: exp}, nil
}

func passwordPolicy(password string) error {
	if err := auth.CheckPassword(password); err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{
			"field":      "password",
			"min_length": auth.MinPasswordLength,
			"max_length": auth.MaxPasswordLength,
		})
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
