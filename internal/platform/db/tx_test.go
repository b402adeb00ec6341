package db

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestPgErrorClassification(t *testing.T) {
	unique := fmt.Errorf("insert column: %w", &pgconn.PgError{Code: "23505"})
	fk := &pgconn.PgError{Code: "23503"}

	require.True(t, IsUniqueViolation(unique))
	require.False(t, IsForeignKeyViolation(unique))
	require.True(t, IsForeignKeyViolation(fk))
	require.False(t, IsUniqueViolation(fmt.Errorf("plain")))
}
