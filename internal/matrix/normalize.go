package matrix

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Parse decodes an upstream matrix payload and normalises it. Structural
// violations at the matrix level (not an object, missing id, rows or columns
// that are not arrays) yield ErrInvalidMatrix. Item level defects are
// repaired and described in the returned notes.
func Parse(payload []byte) (*Matrix, []string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, nil, fmt.Errorf("%w: decode: %v", ErrInvalidMatrix, err)
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, nil, fmt.Errorf("%w: payload is not an object", ErrInvalidMatrix)
	}
	m := &Matrix{
		ID:          str(obj["id"]),
		Name:        str(obj["name"]),
		Description: str(obj["description"]),
		RoomID:      str(obj["room_id"]),
	}
	if m.ID == "" {
		return nil, nil, fmt.Errorf("%w: missing id", ErrInvalidMatrix)
	}

	rawCols, ok := list(obj["columns"])
	if !ok {
		return nil, nil, fmt.Errorf("%w: columns is not an array", ErrInvalidMatrix)
	}
	rawRows, ok := list(obj["rows"])
	if !ok {
		return nil, nil, fmt.Errorf("%w: rows is not an array", ErrInvalidMatrix)
	}

	var notes []string
	for i, rc := range rawCols {
		co, ok := rc.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("column %d dropped: not an object", i))
			continue
		}
		col := &Column{
			ID:       str(co["id"]),
			MatrixID: m.ID,
			Label:    str(co["label"]),
			Position: num(co["position"], i),
		}
		if bin := str(co["bin_id"]); bin != "" {
			col.BinID = &bin
		}
		if w, ok := dimension(co["width"]); ok {
			col.Width = &w
		}
		m.Columns = append(m.Columns, col)
	}

	for i, rr := range rawRows {
		ro, ok := rr.(map[string]any)
		if !ok {
			notes = append(notes, fmt.Sprintf("row %d dropped: not an object", i))
			continue
		}
		row := &Row{
			ID:       str(ro["id"]),
			MatrixID: m.ID,
			Label:    str(ro["label"]),
			Color:    str(ro["color"]),
			Position: num(ro["position"], i),
		}
		rawCells, ok := list(ro["cells"])
		if !ok {
			notes = append(notes, fmt.Sprintf("row %s: cells is not an array, treated as empty", row.ID))
		}
		for _, rcell := range rawCells {
			cobj, ok := rcell.(map[string]any)
			if !ok {
				continue
			}
			row.Cells = append(row.Cells, &Cell{
				ID:       str(cobj["id"]),
				RowID:    row.ID,
				ColumnID: str(cobj["column_id"]),
				Value:    str(cobj["value"]),
			})
		}
		m.Rows = append(m.Rows, row)
	}

	out, more, err := Normalize(m)
	return out, append(notes, more...), err
}

// Normalize repairs a typed matrix: columns and rows without an
// id or with a duplicate id are dropped, positions are renumbered, every row
// ends up with exactly one cell per column in column order, cells bound to
// unknown columns are dropped and invalid colours fall back to the default.
// The input is not modified.
func Normalize(in *Matrix) (*Matrix, []string, error) {
	if in == nil || strings.TrimSpace(in.ID) == "" {
		return nil, nil, fmt.Errorf("%w: missing id", ErrInvalidMatrix)
	}
	m := in.Clone()
	var notes []string

	cols := make([]*Column, 0, len(m.Columns))
	seenCols := make(map[string]struct{}, len(m.Columns))
	for _, c := range m.Columns {
		if c == nil || c.ID == "" {
			notes = append(notes, "column without id dropped")
			continue
		}
		if _, dup := seenCols[c.ID]; dup {
			notes = append(notes, "duplicate column "+c.ID+" dropped")
			continue
		}
		seenCols[c.ID] = struct{}{}
		c.MatrixID = m.ID
		cols = append(cols, c)
	}
	sort.SliceStable(cols, func(i, j int) bool { return cols[i].Position < cols[j].Position })
	for i, c := range cols {
		c.Position = i
	}
	m.Columns = cols

	rows := make([]*Row, 0, len(m.Rows))
	seenRows := make(map[string]struct{}, len(m.Rows))
	for _, r := range m.Rows {
		if r == nil || r.ID == "" {
			notes = append(notes, "row without id dropped")
			continue
		}
		if _, dup := seenRows[r.ID]; dup {
			notes = append(notes, "duplicate row "+r.ID+" dropped")
			continue
		}
		seenRows[r.ID] = struct{}{}
		r.MatrixID = m.ID
		if !isHexColor(r.Color) {
			if r.Color != "" {
				notes = append(notes, "row "+r.ID+": invalid colour replaced")
			}
			r.Color = DefaultRowColor
		}
		notes = append(notes, alignCells(r, cols)...)
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })
	for i, r := range rows {
		r.Position = i
	}
	m.Rows = rows
	return m, notes, nil
}

// alignCells rebuilds r.Cells so it holds exactly one cell per column, in
// column order, matched by column id.
func alignCells(r *Row, cols []*Column) []string {
	var notes []string
	byColumn := make(map[string]*Cell, len(r.Cells))
	for _, c := range r.Cells {
		if c == nil {
			continue
		}
		if _, dup := byColumn[c.ColumnID]; dup {
			notes = append(notes, "row "+r.ID+": duplicate cell for column "+c.ColumnID+" dropped")
			continue
		}
		byColumn[c.ColumnID] = c
	}
	cells := make([]*Cell, 0, len(cols))
	for _, col := range cols {
		cell, ok := byColumn[col.ID]
		if !ok {
			cell = &Cell{ColumnID: col.ID}
		}
		delete(byColumn, col.ID)
		cell.RowID = r.ID
		cells = append(cells, cell)
	}
	for colID := range byColumn {
		notes = append(notes, "row "+r.ID+": cell for unknown column "+colID+" dropped")
	}
	r.Cells = cells
	return notes
}

func str(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func num(v any, fallback int) int {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(t); err == nil {
			return n
		}
	}
	return fallback
}

func dimension(v any) (decimal.Decimal, bool) {
	var raw string
	switch t := v.(type) {
	case json.Number:
		raw = t.String()
	case string:
		raw = t
	default:
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// list reports ok=false only when v is present and not an array.
func list(v any) ([]any, bool) {
	if v == nil {
		return nil, true
	}
	items, ok := v.([]any)
	return items, ok
}
