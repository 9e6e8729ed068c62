package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
)

// UserStore is an in-memory UserRepository.
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
}

// NewUserStore returns an empty user store.
func NewUserStore() *UserStore {
	return &UserStore{byID: make(map[string]domain.User), byEmail: make(map[string]string)}
}

func (s *UserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, taken := s.byEmail[email]; taken {
		return repository.ErrConflict
	}
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	s.byID[user.ID] = *user
	s.byEmail[email] = user.ID
	return nil
}

func (s *UserStore) Update(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.byID[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	delete(s.byEmail, strings.ToLower(existing.Email))
	user.UpdatedAt = time.Now().UTC()
	s.byID[user.ID] = *user
	s.byEmail[strings.ToLower(user.Email)] = user.ID
	return nil
}

func (s *UserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &user, nil
}

func (s *UserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	user := s.byID[id]
	return &user, nil
}

// ResetTokenStore is an in-memory PasswordResetRepository.
type ResetTokenStore struct {
	mu     sync.Mutex
	tokens map[string]domain.PasswordResetToken
}

// NewResetTokenStore returns an empty token store.
func NewResetTokenStore() *ResetTokenStore {
	return &ResetTokenStore{tokens: make(map[string]domain.PasswordResetToken)}
}

func (s *ResetTokenStore) Create(_ context.Context, token *domain.PasswordResetToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	token.ID = uuid.NewString()
	token.CreatedAt = time.Now().UTC()
	s.tokens[token.Token] = *token
	return nil
}

func (s *ResetTokenStore) GetByToken(_ context.Context, token string) (*domain.PasswordResetToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[token]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s *ResetTokenStore) MarkUsed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, t := range s.tokens {
		if t.ID != id || t.UsedAt != nil {
			continue
		}
		now := time.Now().UTC()
		t.UsedAt = &now
		s.tokens[key] = t
		return nil
	}
	return repository.ErrNotFound
}
