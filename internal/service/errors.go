package service

import (
	"errors"

	"github.com/spec-kit/pqrs-service/internal/repository"
	apperrors "github.com/spec-kit/pqrs-service/pkg/util"
)

// storageError translates repository errors into domain errors. Errors that already
// carry a domain code pass through untouched.
func storageError(err error, resource string, details map[string]any) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.DomainError
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return apperrors.NewNotFound(resource, details)
	case errors.Is(err, repository.ErrConflict):
		return apperrors.NewConflict(resource+" already exists", details)
	default:
		return apperrors.NewPersistenceError(err)
	}
}
