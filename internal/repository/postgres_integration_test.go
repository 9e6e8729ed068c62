//go:build integration

package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/pqrs-service/internal/domain"
	"github.com/spec-kit/pqrs-service/internal/repository"
	"github.com/spec-kit/pqrs-service/internal/testutil/containers"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestPostgresRepositories(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	cases := repository.NewCaseRepository(pg.Pool)
	history := repository.NewCaseHistoryRepository(pg.Pool)
	tx := repository.NewTransactor(pg.Pool)

	near := &domain.Case{
		Radicado:         "PG-1",
		ResponseDeadline: date(2024, time.June, 11),
		Category:         "PETICION",
		Subject:          "Solicitud de certificado",
		State:            domain.CaseStateOpen,
	}
	require.NoError(t, cases.Create(ctx, near))
	require.NotEmpty(t, near.ID)

	far := &domain.Case{Radicado: "PG-2", ResponseDeadline: date(2024, time.July, 30), State: domain.CaseStateOpen}
	require.NoError(t, cases.Create(ctx, far))
	resolved := &domain.Case{Radicado: "PG-3", ResponseDeadline: date(2024, time.June, 9), State: domain.CaseStateResolved}
	require.NoError(t, cases.Create(ctx, resolved))

	t.Run("duplicate radicado", func(t *testing.T) {
		err := cases.Create(ctx, &domain.Case{Radicado: "PG-1", State: domain.CaseStateOpen})
		assert.ErrorIs(t, err, repository.ErrConflict)
	})

	t.Run("lookup", func(t *testing.T) {
		got, err := cases.GetByID(ctx, near.ID)
		require.NoError(t, err)
		assert.Equal(t, "PG-1", got.Radicado)
		require.NotNil(t, got.ResponseDeadline)
		assert.True(t, got.ResponseDeadline.Equal(*near.ResponseDeadline))

		_, err = cases.GetByID(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = cases.UpdateState(ctx, "not-a-uuid", domain.CaseStateResolved, "")
		assert.ErrorIs(t, err, repository.ErrNotFound)

		all, err := cases.List(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("near deadline", func(t *testing.T) {
		found, err := cases.FindNearDeadline(ctx, time.Date(2024, time.June, 10, 15, 0, 0, 0, time.UTC), 2, domain.CaseStateResolved)
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, near.ID, found[0].ID)
	})

	t.Run("transition commits state and history together", func(t *testing.T) {
		err := tx.WithinTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
			if _, err := repos.Cases.UpdateState(ctx, near.ID, domain.CaseStateInProgress, "asignado"); err != nil {
				return err
			}
			return repos.History.Append(ctx, &domain.CaseHistory{
				CaseID:        near.ID,
				PreviousState: domain.CaseStateOpen,
				NewState:      domain.CaseStateInProgress,
				Comments:      "asignado",
				ChangedAt:     time.Now().UTC(),
			})
		})
		require.NoError(t, err)

		got, err := cases.GetByID(ctx, near.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CaseStateInProgress, got.State)

		entries, err := history.ListByCase(ctx, near.ID)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, domain.CaseStateOpen, entries[0].PreviousState)
	})

	t.Run("failed unit of work rolls back", func(t *testing.T) {
		boom := errors.New("boom")
		err := tx.WithinTx(ctx, func(ctx context.Context, repos repository.TxRepositories) error {
			if _, err := repos.Cases.UpdateState(ctx, far.ID, domain.CaseStateResolved, "cerrado"); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		got, err := cases.GetByID(ctx, far.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CaseStateOpen, got.State)

		entries, err := history.ListByCase(ctx, far.ID)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestPostgresUsersAndResetTokens(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()

	users := repository.NewUserRepository(pg.Pool)
	resets := repository.NewPasswordResetRepository(pg.Pool)

	user := &domain.User{Name: "Ana", Email: "ana@example.com", PasswordHash: "hash", Status: domain.UserStatusActive}
	require.NoError(t, users.Create(ctx, user))

	err := users.Create(ctx, &domain.User{Name: "Otra", Email: "ana@example.com", PasswordHash: "x", Status: domain.UserStatusActive})
	assert.ErrorIs(t, err, repository.ErrConflict)

	got, err := users.GetByEmail(ctx, "ana@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)

	_, err = users.GetByEmail(ctx, "nadie@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	token := &domain.PasswordResetToken{UserID: user.ID, Token: "tok-1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, resets.Create(ctx, token))
	require.NoError(t, resets.MarkUsed(ctx, token.ID))

	stored, err := resets.GetByToken(ctx, "tok-1")
	require.NoError(t, err)
	assert.NotNil(t, stored.UsedAt)
}

func TestRedisAlertMarkers(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	markers := repository.NewRedisAlertMarkerRepository(rc.Client, "test:alerted:")

	fresh, err := markers.MarkIfAbsent(ctx, "case-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = markers.MarkIfAbsent(ctx, "case-1", time.Hour)
	require.NoError(t, err)
	assert.False(t, fresh)

	require.NoError(t, markers.Clear(ctx, "case-1"))
	fresh, err = markers.MarkIfAbsent(ctx, "case-1", time.Hour)
	require.NoError(t, err)
	assert.True(t, fresh)
}
