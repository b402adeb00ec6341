package matrix

import (
	"github.com/shopspring/decimal"
)

// DefaultRowColor is applied when a row is created without a colour.
const DefaultRowColor = "#94a3b8"

// Matrix is a named grid of rows and columns tied to one room. Columns are
// scoped to the matrix that owns them.
type Matrix struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	RoomID      string    `json:"room_id"`
	Columns     []*Column `json:"columns"`
	Rows        []*Row    `json:"rows"`
}

// Row is a labelled, coloured line in the grid, typically a shelf.
type Row struct {
	ID       string  `json:"id"`
	MatrixID string  `json:"matrix_id"`
	Label    string  `json:"label"`
	Color    string  `json:"color"`
	Position int     `json:"position"`
	Cells    []*Cell `json:"cells"`
}

// Column is a grid column, optionally bound to a bin for layout hints.
type Column struct {
	ID       string           `json:"id"`
	MatrixID string           `json:"matrix_id"`
	Label    string           `json:"label"`
	Position int              `json:"position"`
	BinID    *string          `json:"bin_id,omitempty"`
	Width    *decimal.Decimal `json:"width,omitempty"`
}

// Cell is the value at a row and column intersection. Empty means unset.
type Cell struct {
	ID       string `json:"id"`
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	Value    string `json:"value"`
}

// CellKey addresses a cell by its row and column.
type CellKey struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
}

// String renders the key as "row/column".
func (k CellKey) String() string {
	return k.RowID + "/" + k.ColumnID
}

// MatrixInput describes a new matrix.
type MatrixInput struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=500"`
	RoomID      string `json:"room_id" validate:"required"`
}

// MatrixFilter narrows ListMatrices.
type MatrixFilter struct {
	RoomID string
	Search string
	Limit  int
}

// MatrixSummary is a matrix without its grid.
type MatrixSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	RoomID      string `json:"room_id"`
	RowCount    int    `json:"row_count"`
	ColumnCount int    `json:"column_count"`
}

// RowPatch is a partial update of a row. Nil fields are left untouched.
type RowPatch struct {
	Label *string `json:"label,omitempty"`
	Color *string `json:"color,omitempty"`
}

// Row returns the row with id, or nil.
func (m *Matrix) Row(id string) *Row {
	for _, r := range m.Rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Column returns the column with id, or nil.
func (m *Matrix) Column(id string) *Column {
	for _, c := range m.Columns {
		if c.ID == id {
			return c
		}
	}
	return nil
}

// Cell returns the cell of row r bound to columnID, or nil.
func (r *Row) Cell(columnID string) *Cell {
	for _, c := range r.Cells {
		if c.ColumnID == columnID {
			return c
		}
	}
	return nil
}

// Value returns the committed value at key, "" when the cell is missing.
func (m *Matrix) Value(key CellKey) string {
	row := m.Row(key.RowID)
	if row == nil {
		return ""
	}
	if cell := row.Cell(key.ColumnID); cell != nil {
		return cell.Value
	}
	return ""
}

// Values returns every non-empty committed cell value in grid order.
func (m *Matrix) Values() []string {
	var out []string
	for _, r := range m.Rows {
		for _, c := range m.Columns {
			if cell := r.Cell(c.ID); cell != nil && cell.Value != "" {
				out = append(out, cell.Value)
			}
		}
	}
	return out
}

// Clone deep-copies the matrix.
func (m *Matrix) Clone() *Matrix {
	if m == nil {
		return nil
	}
	out := &Matrix{ID: m.ID, Name: m.Name, Description: m.Description, RoomID: m.RoomID}
	out.Columns = make([]*Column, len(m.Columns))
	for i, c := range m.Columns {
		if c == nil {
			continue
		}
		cp := *c
		if c.BinID != nil {
			id := *c.BinID
			cp.BinID = &id
		}
		if c.Width != nil {
			w := *c.Width
			cp.Width = &w
		}
		out.Columns[i] = &cp
	}
	out.Rows = make([]*Row, len(m.Rows))
	for i, r := range m.Rows {
		if r == nil {
			continue
		}
		cp := *r
		cp.Cells = make([]*Cell, len(r.Cells))
		for j, c := range r.Cells {
			if c == nil {
				continue
			}
			cell := *c
			cp.Cells[j] = &cell
		}
		out.Rows[i] = &cp
	}
	return out
}
