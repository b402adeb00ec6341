package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/slotbook/internal/platform/db"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// Repository persists matrices in PostgreSQL.
type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{pool: pool, logger: logger}
}

var _ Store = (*Repository)(nil)

// idRef pairs a path id with the error reported when it cannot exist.
type idRef struct {
	id      string
	missing error
}

func matrixRef(id string) idRef { return idRef{id: id, missing: ErrMatrixNotFound} }
func rowRef(id string) idRef    { return idRef{id: id, missing: ErrRowNotFound} }
func columnRef(id string) idRef { return idRef{id: id, missing: ErrColumnNotFound} }

// checkIDs rejects ids that are not UUIDs before they reach a UUID column,
// where Postgres would fail with invalid_text_representation.
func checkIDs(refs ...idRef) error {
	for _, ref := range refs {
		if _, err := uuid.Parse(ref.id); err != nil {
			return ref.missing
		}
	}
	return nil
}

// FetchMatrix loads a matrix with its columns, rows and cells.
func (r *Repository) FetchMatrix(ctx context.Context, id string) (*Matrix, error) {
	if err := checkIDs(matrixRef(id)); err != nil {
		return nil, err
	}
	const query = `SELECT id::text, name, COALESCE(description, ''), room_id FROM matrices WHERE id = $1`
	return r.fetch(ctx, query, id)
}

// FetchMatrixByRoom loads the oldest matrix of a room.
func (r *Repository) FetchMatrixByRoom(ctx context.Context, roomID string) (*Matrix, error) {
	const query = `SELECT id::text, name, COALESCE(description, ''), room_id FROM matrices
		WHERE room_id = $1 ORDER BY created_at ASC LIMIT 1`
	return r.fetch(ctx, query, roomID)
}

func (r *Repository) fetch(ctx context.Context, query string, arg string) (*Matrix, error) {
	var m Matrix
	err := r.pool.QueryRow(ctx, query, arg).Scan(&m.ID, &m.Name, &m.Description, &m.RoomID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMatrixNotFound
		}
		return nil, fmt.Errorf("matrix: fetch: %w", err)
	}
	if err := r.loadGrid(ctx, &m); err != nil {
		return nil, err
	}
	normalised, notes, err := Normalize(&m)
	if err != nil {
		return nil, err
	}
	for _, note := range notes {
		r.logger.Warn("stored matrix normalised", slog.String("matrix_id", m.ID), slog.String("note", note))
	}
	return normalised, nil
}

func (r *Repository) loadGrid(ctx context.Context, m *Matrix) error {
	colRows, err := r.pool.Query(ctx, `SELECT id::text, label, position, bin_id, width::text
		FROM matrix_columns WHERE matrix_id = $1 ORDER BY position ASC, created_at ASC`, m.ID)
	if err != nil {
		return fmt.Errorf("matrix: load columns: %w", err)
	}
	for colRows.Next() {
		var c Column
		var width *string
		if err := colRows.Scan(&c.ID, &c.Label, &c.Position, &c.BinID, &width); err != nil {
			colRows.Close()
			return err
		}
		c.MatrixID = m.ID
		if width != nil {
			if w, err := decimal.NewFromString(*width); err == nil {
				c.Width = &w
			}
		}
		m.Columns = append(m.Columns, &c)
	}
	colRows.Close()
	if err := colRows.Err(); err != nil {
		return err
	}

	rowRows, err := r.pool.Query(ctx, `SELECT id::text, label, color, position
		FROM matrix_rows WHERE matrix_id = $1 ORDER BY position ASC, created_at ASC`, m.ID)
	if err != nil {
		return fmt.Errorf("matrix: load rows: %w", err)
	}
	byID := make(map[string]*Row)
	for rowRows.Next() {
		var row Row
		if err := rowRows.Scan(&row.ID, &row.Label, &row.Color, &row.Position); err != nil {
			rowRows.Close()
			return err
		}
		row.MatrixID = m.ID
		m.Rows = append(m.Rows, &row)
		byID[row.ID] = &row
	}
	rowRows.Close()
	if err := rowRows.Err(); err != nil {
		return err
	}

	cellRows, err := r.pool.Query(ctx, `SELECT c.id::text, c.row_id::text, c.column_id::text, c.value
		FROM matrix_cells c JOIN matrix_rows r ON r.id = c.row_id
		WHERE r.matrix_id = $1`, m.ID)
	if err != nil {
		return fmt.Errorf("matrix: load cells: %w", err)
	}
	defer cellRows.Close()
	for cellRows.Next() {
		var cell Cell
		if err := cellRows.Scan(&cell.ID, &cell.RowID, &cell.ColumnID, &cell.Value); err != nil {
			return err
		}
		if row, ok := byID[cell.RowID]; ok {
			row.Cells = append(row.Cells, &cell)
		}
	}
	return cellRows.Err()
}

// ListMatrices uses a dynamic query due to optional filters.
func (r *Repository) ListMatrices(ctx context.Context, filter MatrixFilter) ([]MatrixSummary, error) {
	query := `SELECT m.id::text, m.name, COALESCE(m.description, ''), m.room_id,
		(SELECT COUNT(*) FROM matrix_rows WHERE matrix_id = m.id),
		(SELECT COUNT(*) FROM matrix_columns WHERE matrix_id = m.id)
		FROM matrices m WHERE 1=1`
	args := []any{}
	if filter.RoomID != "" {
		args = append(args, filter.RoomID)
		query += ` AND m.room_id = $` + strconv.Itoa(len(args))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		query += ` AND m.name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY m.name ASC`
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("matrix: list: %w", err)
	}
	defer rows.Close()

	out := []MatrixSummary{}
	for rows.Next() {
		var s MatrixSummary
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.RoomID, &s.RowCount, &s.ColumnCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CreateMatrix inserts an empty matrix.
func (r *Repository) CreateMatrix(ctx context.Context, in MatrixInput) (*Matrix, error) {
	m := &Matrix{ID: uuid.NewString(), Name: in.Name, Description: in.Description, RoomID: in.RoomID}
	_, err := r.pool.Exec(ctx, `INSERT INTO matrices (id, name, description, room_id, created_at, updated_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, now(), now())`, m.ID, m.Name, m.Description, m.RoomID)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, fmt.Errorf("matrix %q: %w", in.Name, httpx.ErrDuplicate)
		}
		return nil, fmt.Errorf("matrix: create: %w", err)
	}
	m.Columns = []*Column{}
	m.Rows = []*Row{}
	return m, nil
}

// CreateRow inserts a row at the end of the matrix with one empty cell per
// existing column.
func (r *Repository) CreateRow(ctx context.Context, matrixID string, in RowInput) (*Row, error) {
	if err := checkIDs(matrixRef(matrixID)); err != nil {
		return nil, err
	}
	row := &Row{ID: uuid.NewString(), MatrixID: matrixID, Label: in.Label, Color: in.Color}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockMatrix(ctx, tx, matrixID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `INSERT INTO matrix_rows (id, matrix_id, label, color, position, created_at)
			VALUES ($1, $2, $3, $4, (SELECT COALESCE(MAX(position) + 1, 0) FROM matrix_rows WHERE matrix_id = $2), now())
			RETURNING position`, row.ID, matrixID, row.Label, row.Color).Scan(&row.Position)
		if err != nil {
			return fmt.Errorf("insert row: %w", err)
		}
		cols, err := tx.Query(ctx, `SELECT id::text FROM matrix_columns WHERE matrix_id = $1 ORDER BY position ASC`, matrixID)
		if err != nil {
			return err
		}
		var columnIDs []string
		for cols.Next() {
			var id string
			if err := cols.Scan(&id); err != nil {
				cols.Close()
				return err
			}
			columnIDs = append(columnIDs, id)
		}
		cols.Close()
		if err := cols.Err(); err != nil {
			return err
		}
		for _, colID := range columnIDs {
			cell := &Cell{ID: uuid.NewString(), RowID: row.ID, ColumnID: colID}
			if err := insertEmptyCell(ctx, tx, cell); err != nil {
				return err
			}
			row.Cells = append(row.Cells, cell)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("matrix: create row: %w", raced(err))
	}
	return row, nil
}

// UpdateRow applies a partial update.
func (r *Repository) UpdateRow(ctx context.Context, matrixID, rowID string, patch RowPatch) error {
	if err := checkIDs(matrixRef(matrixID), rowRef(rowID)); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE matrix_rows SET
		label = COALESCE($3, label), color = COALESCE($4, color)
		WHERE matrix_id = $1 AND id = $2`, matrixID, rowID, patch.Label, patch.Color)
	if err != nil {
		return fmt.Errorf("matrix: update row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRowNotFound
	}
	return nil
}

// DeleteRow removes a row and its cells.
func (r *Repository) DeleteRow(ctx context.Context, matrixID, rowID string) error {
	if err := checkIDs(matrixRef(matrixID), rowRef(rowID)); err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM matrix_cells WHERE row_id = $1
			AND EXISTS (SELECT 1 FROM matrix_rows WHERE id = $1 AND matrix_id = $2)`, rowID, matrixID); err != nil {
			return fmt.Errorf("matrix: delete row cells: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM matrix_rows WHERE matrix_id = $1 AND id = $2`, matrixID, rowID)
		if err != nil {
			return fmt.Errorf("matrix: delete row: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrRowNotFound
		}
		return nil
	})
}

// CreateColumn appends a column and an empty cell for it in every row.
func (r *Repository) CreateColumn(ctx context.Context, matrixID string, in ColumnInput) (*Column, error) {
	if err := checkIDs(matrixRef(matrixID)); err != nil {
		return nil, err
	}
	col := &Column{ID: uuid.NewString(), MatrixID: matrixID, Label: in.Label, BinID: in.BinID, Width: in.Width}
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := lockMatrix(ctx, tx, matrixID); err != nil {
			return err
		}
		err := tx.QueryRow(ctx, `INSERT INTO matrix_columns (id, matrix_id, label, position, bin_id, width, created_at)
			VALUES ($1, $2, $3, (SELECT COALESCE(MAX(position) + 1, 0) FROM matrix_columns WHERE matrix_id = $2), $4, $5::numeric, now())
			RETURNING position`, col.ID, matrixID, col.Label, col.BinID, widthParam(col.Width)).Scan(&col.Position)
		if err != nil {
			return fmt.Errorf("insert column: %w", err)
		}
		_, err = tx.Exec(ctx, `INSERT INTO matrix_cells (id, row_id, column_id, value)
			SELECT gen_random_uuid(), id, $2, '' FROM matrix_rows WHERE matrix_id = $1
			ON CONFLICT (row_id, column_id) DO NOTHING`, matrixID, col.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("matrix: create column: %w", raced(err))
	}
	return col, nil
}

// UpdateColumn relabels and rebinds a column.
func (r *Repository) UpdateColumn(ctx context.Context, matrixID, columnID string, in ColumnInput) error {
	if err := checkIDs(matrixRef(matrixID), columnRef(columnID)); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `UPDATE matrix_columns SET label = $3, bin_id = $4, width = $5::numeric
		WHERE matrix_id = $1 AND id = $2`, matrixID, columnID, in.Label, in.BinID, widthParam(in.Width))
	if err != nil {
		return fmt.Errorf("matrix: update column: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrColumnNotFound
	}
	return nil
}

// DeleteColumn removes the column and its cell from every row.
func (r *Repository) DeleteColumn(ctx context.Context, matrixID, columnID string) error {
	if err := checkIDs(matrixRef(matrixID), columnRef(columnID)); err != nil {
		return err
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM matrix_cells WHERE column_id = $1
			AND EXISTS (SELECT 1 FROM matrix_columns WHERE id = $1 AND matrix_id = $2)`, columnID, matrixID); err != nil {
			return fmt.Errorf("matrix: delete column cells: %w", err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM matrix_columns WHERE matrix_id = $1 AND id = $2`, matrixID, columnID)
		if err != nil {
			return fmt.Errorf("matrix: delete column: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrColumnNotFound
		}
		return nil
	})
}

// UpdateCell upserts a cell value. Both row and column must belong to the matrix.
func (r *Repository) UpdateCell(ctx context.Context, matrixID, rowID, columnID, value string) error {
	if err := checkIDs(matrixRef(matrixID), rowRef(rowID), columnRef(columnID)); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `INSERT INTO matrix_cells (id, row_id, column_id, value, updated_at)
		SELECT $1, r.id, c.id, $5, now()
		FROM matrix_rows r JOIN matrix_columns c ON c.matrix_id = r.matrix_id
		WHERE r.matrix_id = $2 AND r.id = $3 AND c.id = $4
		ON CONFLICT (row_id, column_id) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		uuid.NewString(), matrixID, rowID, columnID, value)
	if err != nil {
		return fmt.Errorf("matrix: update cell: %w", raced(err))
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cell %s/%s: %w", rowID, columnID, httpx.ErrNotFound)
	}
	return nil
}

// raced maps a foreign key violation, which means a row or column was
// deleted by a concurrent request, to a not-found error.
func raced(err error) error {
	if db.IsForeignKeyViolation(err) {
		return fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	}
	return err
}

func lockMatrix(ctx context.Context, tx pgx.Tx, matrixID string) error {
	var id string
	err := tx.QueryRow(ctx, `SELECT id::text FROM matrices WHERE id = $1 FOR UPDATE`, matrixID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrMatrixNotFound
	}
	return err
}

func insertEmptyCell(ctx context.Context, tx pgx.Tx, cell *Cell) error {
	_, err := tx.Exec(ctx, `INSERT INTO matrix_cells (id, row_id, column_id, value) VALUES ($1, $2, $3, '')
		ON CONFLICT (row_id, column_id) DO NOTHING`, cell.ID, cell.RowID, cell.ColumnID)
	return err
}

func widthParam(w *decimal.Decimal) *string {
	if w == nil {
		return nil
	}
	s := w.String()
	return &s
}
