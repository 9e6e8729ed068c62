package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestTranslate(t *testing.T) {
	other := errors.New("connection reset")
	serialization := &pgconn.PgError{Code: "40001"}
	tests := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "no rows", in: fmt.Errorf("scan: %w", pgx.ErrNoRows), want: ErrNotFound},
		{name: "unique violation", in: &pgconn.PgError{Code: "23505"}, want: ErrConflict},
		{name: "malformed uuid", in: fmt.Errorf("query: %w", &pgconn.PgError{Code: "22P02"}), want: ErrNotFound},
		{name: "other pg error", in: serialization, want: serialization},
		{name: "passthrough", in: other, want: other},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, translate(tt.in))
		})
	}
}
