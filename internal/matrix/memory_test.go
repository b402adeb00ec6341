package matrix

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/slotbook/internal/resources"
)

type memoryStore struct {
	mu        sync.Mutex
	matrices  map[string]*Matrix
	calls     []string
	cellCalls []CellUpdate
	failCells map[CellKey]error
	hangCells map[CellKey]bool
	failNext  error
	fetches   int
	nextID    int
}

func newMemoryStore(ms ...*Matrix) *memoryStore {
	s := &memoryStore{
		matrices:  make(map[string]*Matrix),
		failCells: make(map[CellKey]error),
		hangCells: make(map[CellKey]bool),
	}
	for _, m := range ms {
		s.matrices[m.ID] = m.Clone()
	}
	return s
}

func (s *memoryStore) id(prefix string) string {
	s.nextID++
	return prefix + "-" + strconv.Itoa(s.nextID)
}

func (s *memoryStore) record(call string) error {
	s.calls = append(s.calls, call)
	if err := s.failNext; err != nil {
		s.failNext = nil
		return err
	}
	return nil
}

func (s *memoryStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *memoryStore) FetchMatrix(_ context.Context, id string) (*Matrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	m, ok := s.matrices[id]
	if !ok {
		return nil, ErrMatrixNotFound
	}
	out, _, err := Normalize(m)
	return out, err
}

func (s *memoryStore) FetchMatrixByRoom(ctx context.Context, roomID string) (*Matrix, error) {
	s.mu.Lock()
	var id string
	for _, m := range s.matrices {
		if m.RoomID == roomID {
			id = m.ID
		}
	}
	s.mu.Unlock()
	if id == "" {
		return nil, ErrMatrixNotFound
	}
	return s.FetchMatrix(ctx, id)
}

func (s *memoryStore) ListMatrices(_ context.Context, filter MatrixFilter) ([]MatrixSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []MatrixSummary
	for _, m := range s.matrices {
		if filter.RoomID != "" && m.RoomID != filter.RoomID {
			continue
		}
		if filter.Search != "" && !strings.Contains(strings.ToLower(m.Name), strings.ToLower(filter.Search)) {
			continue
		}
		out = append(out, MatrixSummary{ID: m.ID, Name: m.Name, RoomID: m.RoomID, RowCount: len(m.Rows), ColumnCount: len(m.Columns)})
	}
	return out, nil
}

func (s *memoryStore) CreateMatrix(_ context.Context, in MatrixInput) (*Matrix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateMatrix"); err != nil {
		return nil, err
	}
	m := &Matrix{ID: s.id("m"), Name: in.Name, Description: in.Description, RoomID: in.RoomID}
	s.matrices[m.ID] = m
	return m.Clone(), nil
}

func (s *memoryStore) CreateRow(_ context.Context, matrixID string, in RowInput) (*Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateRow"); err != nil {
		return nil, err
	}
	m, ok := s.matrices[matrixID]
	if !ok {
		return nil, ErrMatrixNotFound
	}
	row := &Row{ID: s.id("r"), MatrixID: matrixID, Label: in.Label, Color: in.Color, Position: len(m.Rows)}
	for _, c := range m.Columns {
		row.Cells = append(row.Cells, &Cell{ID: s.id("cell"), RowID: row.ID, ColumnID: c.ID})
	}
	m.Rows = append(m.Rows, row)
	cp := *row
	cp.Cells = nil
	for _, c := range row.Cells {
		cell := *c
		cp.Cells = append(cp.Cells, &cell)
	}
	return &cp, nil
}

func (s *memoryStore) UpdateRow(_ context.Context, matrixID, rowID string, patch RowPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateRow"); err != nil {
		return err
	}
	row := s.row(matrixID, rowID)
	if row == nil {
		return ErrRowNotFound
	}
	if patch.Label != nil {
		row.Label = *patch.Label
	}
	if patch.Color != nil {
		row.Color = *patch.Color
	}
	return nil
}

func (s *memoryStore) DeleteRow(_ context.Context, matrixID, rowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteRow"); err != nil {
		return err
	}
	m, ok := s.matrices[matrixID]
	if !ok || m.Row(rowID) == nil {
		return ErrRowNotFound
	}
	var rows []*Row
	for _, r := range m.Rows {
		if r.ID != rowID {
			rows = append(rows, r)
		}
	}
	m.Rows = rows
	return nil
}

func (s *memoryStore) CreateColumn(_ context.Context, matrixID string, in ColumnInput) (*Column, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("CreateColumn"); err != nil {
		return nil, err
	}
	m, ok := s.matrices[matrixID]
	if !ok {
		return nil, ErrMatrixNotFound
	}
	col := &Column{ID: s.id("c"), MatrixID: matrixID, Label: in.Label, Position: len(m.Columns), BinID: in.BinID, Width: in.Width}
	m.Columns = append(m.Columns, col)
	for _, r := range m.Rows {
		r.Cells = append(r.Cells, &Cell{ID: s.id("cell"), RowID: r.ID, ColumnID: col.ID})
	}
	cp := *col
	return &cp, nil
}

func (s *memoryStore) UpdateColumn(_ context.Context, matrixID, columnID string, in ColumnInput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("UpdateColumn"); err != nil {
		return err
	}
	m, ok := s.matrices[matrixID]
	if !ok || m.Column(columnID) == nil {
		return ErrColumnNotFound
	}
	col := m.Column(columnID)
	col.Label, col.BinID, col.Width = in.Label, in.BinID, in.Width
	return nil
}

func (s *memoryStore) DeleteColumn(_ context.Context, matrixID, columnID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.record("DeleteColumn"); err != nil {
		return err
	}
	m, ok := s.matrices[matrixID]
	if !ok || m.Column(columnID) == nil {
		return ErrColumnNotFound
	}
	var cols []*Column
	for _, c := range m.Columns {
		if c.ID != columnID {
			cols = append(cols, c)
		}
	}
	m.Columns = cols
	for _, r := range m.Rows {
		var cells []*Cell
		for _, c := range r.Cells {
			if c.ColumnID != columnID {
				cells = append(cells, c)
			}
		}
		r.Cells = cells
	}
	return nil
}

func (s *memoryStore) UpdateCell(ctx context.Context, matrixID, rowID, columnID, value string) error {
	key := CellKey{RowID: rowID, ColumnID: columnID}
	s.mu.Lock()
	s.calls = append(s.calls, "UpdateCell")
	s.cellCalls = append(s.cellCalls, CellUpdate{MatrixID: matrixID, RowID: rowID, ColumnID: columnID, Value: value})
	hang := s.hangCells[key]
	failure := s.failCells[key]
	s.mu.Unlock()

	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	if failure != nil {
		return failure
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.row(matrixID, rowID)
	if row == nil {
		return ErrRowNotFound
	}
	if cell := row.Cell(columnID); cell != nil {
		cell.Value = value
		return nil
	}
	row.Cells = append(row.Cells, &Cell{ID: s.id("cell"), RowID: rowID, ColumnID: columnID, Value: value})
	return nil
}

func (s *memoryStore) row(matrixID, rowID string) *Row {
	m, ok := s.matrices[matrixID]
	if !ok {
		return nil
	}
	return m.Row(rowID)
}

type memoryRetrier struct {
	mu      sync.Mutex
	updates []CellUpdate
	err     error
}

func (r *memoryRetrier) DeferCellUpdate(_ context.Context, update CellUpdate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.updates = append(r.updates, update)
	return nil
}

type countingMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *countingMetrics) ObserveCellUpdate(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[result]++
}

type memoryResources struct {
	bins     []resources.Bin
	products []resources.Product
}

func (r memoryResources) Bin(_ context.Context, id string) (resources.Bin, error) {
	for _, b := range r.bins {
		if b.ID == id {
			return b, nil
		}
	}
	return resources.Bin{}, resources.ErrBinNotFound
}

func (r memoryResources) Bins(context.Context) ([]resources.Bin, error) { return r.bins, nil }

func (r memoryResources) Products(context.Context) ([]resources.Product, error) {
	return r.products, nil
}

func testResources() memoryResources {
	return memoryResources{
		bins: []resources.Bin{
			{ID: "bin-s", Name: "Small", Length: decimal.NewFromInt(30), Width: decimal.RequireFromString("12.5"), Height: decimal.NewFromInt(10)},
			{ID: "bin-l", Name: "Large", Length: decimal.NewFromInt(60), Width: decimal.NewFromInt(40), Height: decimal.NewFromInt(30)},
		},
		products: []resources.Product{
			{ID: "p1", SKU: "SKU-1", Name: "Bolts"},
			{ID: "p2", SKU: "SKU-2", Name: "Nuts"},
		},
	}
}

// fixtureMatrix is a 2x2 grid:
//
//	     c1    c2
//	r1   A1    ""
//	r2   B1    B2
func fixtureMatrix() *Matrix {
	return &Matrix{
		ID:     "m1",
		Name:   "Aisle 1",
		RoomID: "room-1",
		Columns: []*Column{
			{ID: "c1", MatrixID: "m1", Label: "Col1", Position: 0},
			{ID: "c2", MatrixID: "m1", Label: "Col2", Position: 1},
		},
		Rows: []*Row{
			{ID: "r1", MatrixID: "m1", Label: "Shelf 1", Color: "#ff0000", Position: 0, Cells: []*Cell{
				{ID: "x11", RowID: "r1", ColumnID: "c1", Value: "A1"},
				{ID: "x12", RowID: "r1", ColumnID: "c2", Value: ""},
			}},
			{ID: "r2", MatrixID: "m1", Label: "Shelf 2", Color: "#00ff00", Position: 1, Cells: []*Cell{
				{ID: "x21", RowID: "r2", ColumnID: "c1", Value: "B1"},
				{ID: "x22", RowID: "r2", ColumnID: "c2", Value: "B2"},
			}},
		},
	}
}
