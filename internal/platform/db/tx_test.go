package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsSerializationError(t *testing.T) {
	require.True(t, IsSerializationError(&pgconn.PgError{Code: "40001"}))
	require.True(t, IsSerializationError(&pgconn.PgError{Code: "40P01"}))
	require.True(t, IsSerializationError(fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})))

	require.False(t, IsSerializationError(nil))
	require.False(t, IsSerializationError(errors.New("plain error")))
	require.False(t, IsSerializationError(&pgconn.PgError{Code: "23505"}))
}
