package matrix

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// The repository has no pool here: malformed ids must be answered before
// any query runs.
func TestRepositoryRejectsMalformedIDs(t *testing.T) {
	r := NewRepository(nil, nil)
	ctx := context.Background()
	id := uuid.NewString()

	_, err := r.FetchMatrix(ctx, "not-a-uuid")
	require.ErrorIs(t, err, ErrMatrixNotFound)
	_, err = r.CreateRow(ctx, "not-a-uuid", RowInput{Label: "x"})
	require.ErrorIs(t, err, ErrMatrixNotFound)
	_, err = r.CreateColumn(ctx, "not-a-uuid", ColumnInput{Label: "x"})
	require.ErrorIs(t, err, ErrMatrixNotFound)

	require.ErrorIs(t, r.UpdateRow(ctx, id, "not-a-uuid", RowPatch{}), ErrRowNotFound)
	require.ErrorIs(t, r.DeleteRow(ctx, id, "not-a-uuid"), ErrRowNotFound)
	require.ErrorIs(t, r.UpdateColumn(ctx, id, "not-a-uuid", ColumnInput{}), ErrColumnNotFound)
	require.ErrorIs(t, r.DeleteColumn(ctx, id, "not-a-uuid"), ErrColumnNotFound)
	require.ErrorIs(t, r.UpdateCell(ctx, id, id, "c1", "v"), ErrColumnNotFound)
	require.ErrorIs(t, r.UpdateCell(ctx, id, "r1", id, "v"), ErrRowNotFound)

	status, _ := httpx.Classify(r.DeleteRow(ctx, id, "not-a-uuid"))
	require.Equal(t, http.StatusNotFound, status)
}

func TestRacedMapsForeignKeyViolations(t *testing.T) {
	fk := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23503"})
	require.ErrorIs(t, raced(fk), httpx.ErrNotFound)

	other := errors.New("conn reset")
	require.Equal(t, other, raced(other))
}
