package matrix

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// State is the edit state of a Grid.
type State string

const (
	// StateViewing renders committed values with no edit controls.
	StateViewing State = "viewing"
	// StateEditing renders every cell through a CellEditor and buffers changes.
	StateEditing State = "editing"
)

// DefaultSaveTimeout bounds each cell update issued by Save.
const DefaultSaveTimeout = 10 * time.Second

// Grid owns one matrix, its edit state and the draft buffer. Committed data
// only changes after the Writer accepted a mutation.
type Grid struct {
	mu          sync.Mutex
	matrix      *Matrix
	state       State
	draft       map[CellKey]string
	store       Writer
	bins        BinLookup
	metrics     CellMetrics
	logger      *slog.Logger
	saveTimeout time.Duration
}

// GridOption customises a Grid.
type GridOption func(*Grid)

// WithLogger sets the logger used for inconsistencies.
func WithLogger(logger *slog.Logger) GridOption {
	return func(g *Grid) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithBinLookup enables copying bin widths onto bound columns.
func WithBinLookup(bins BinLookup) GridOption {
	return func(g *Grid) { g.bins = bins }
}

// WithSaveTimeout bounds each cell update issued by Save.
func WithSaveTimeout(d time.Duration) GridOption {
	return func(g *Grid) {
		if d > 0 {
			g.saveTimeout = d
		}
	}
}

// WithCellMetrics records cell update outcomes.
func WithCellMetrics(m CellMetrics) GridOption {
	return func(g *Grid) { g.metrics = m }
}

// NewGrid builds a Grid in Viewing state over a normalised copy of m.
func NewGrid(m *Matrix, store Writer, opts ...GridOption) (*Grid, error) {
	normalised, notes, err := Normalize(m)
	if err != nil {
		return nil, err
	}
	g := &Grid{
		matrix:      normalised,
		state:       StateViewing,
		store:       store,
		logger:      slog.Default(),
		saveTimeout: DefaultSaveTimeout,
	}
	for _, opt := range opts {
		opt(g)
	}
	for _, note := range notes {
		g.logger.Warn("matrix normalised", slog.String("matrix_id", normalised.ID), slog.String("note", note))
	}
	return g, nil
}

// State returns the current edit state.
func (g *Grid) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Snapshot returns a deep copy of the committed matrix.
func (g *Grid) Snapshot() *Matrix {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.matrix.Clone()
}

// Draft returns a copy of the draft buffer.
func (g *Grid) Draft() map[CellKey]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[CellKey]string, len(g.draft))
	for k, v := range g.draft {
		out[k] = v
	}
	return out
}

// Value returns the value shown for key: the draft value while editing,
// otherwise the committed one.
func (g *Grid) Value(rowID, columnID string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.valueLocked(CellKey{RowID: rowID, ColumnID: columnID})
}

func (g *Grid) valueLocked(key CellKey) string {
	if g.state == StateEditing {
		if v, ok := g.draft[key]; ok {
			return v
		}
	}
	return g.matrix.Value(key)
}

// BeginEdit enters Editing with an empty draft buffer.
func (g *Grid) BeginEdit() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == StateEditing {
		return ErrAlreadyEditing
	}
	g.state = StateEditing
	g.draft = make(map[CellKey]string)
	return nil
}

// Resume enters Editing with a previously stored draft. Entries that point at
// rows or columns that no longer exist, or that equal the committed value,
// are dropped.
func (g *Grid) Resume(draft map[CellKey]string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateEditing
	g.draft = make(map[CellKey]string, len(draft))
	for key, value := range draft {
		if !g.knownLocked(key) {
			g.logger.Warn("stale draft entry dropped",
				slog.String("matrix_id", g.matrix.ID),
				slog.String("cell", key.String()))
			continue
		}
		if value != g.matrix.Value(key) {
			g.draft[key] = value
		}
	}
}

// SetCellValue records a pending value. Setting a cell back to its committed
// value removes the entry. Unknown rows or columns are ignored.
func (g *Grid) SetCellValue(rowID, columnID, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return ErrNotEditing
	}
	key := CellKey{RowID: rowID, ColumnID: columnID}
	if !g.knownLocked(key) {
		g.logger.Warn("cell edit ignored: unknown row or column",
			slog.String("matrix_id", g.matrix.ID),
			slog.String("cell", key.String()))
		return nil
	}
	if value == g.matrix.Value(key) {
		delete(g.draft, key)
		return nil
	}
	g.draft[key] = value
	return nil
}

func (g *Grid) knownLocked(key CellKey) bool {
	return g.matrix.Row(key.RowID) != nil && g.matrix.Column(key.ColumnID) != nil
}

// Cancel discards the draft buffer and returns to Viewing. No external calls
// are made.
func (g *Grid) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = StateViewing
	g.draft = nil
}

// CellFailure is a cell update that did not persist.
type CellFailure struct {
	Key      CellKey `json:"key"`
	Value    string  `json:"value"`
	Err      error   `json:"-"`
	Deferred bool    `json:"deferred"`
}

// Message is the user facing failure text.
func (f CellFailure) Message() string {
	if f.Err == nil {
		return ""
	}
	return f.Err.Error()
}

// MarshalJSON includes the failure message.
func (f CellFailure) MarshalJSON() ([]byte, error) {
	type alias CellFailure
	return json.Marshal(struct {
		alias
		Error string `json:"error"`
	}{alias: alias(f), Error: f.Message()})
}

// SaveResult describes the outcome of Save.
type SaveResult struct {
	Applied  []CellKey     `json:"applied"`
	Failures []CellFailure `json:"failures"`
	State    State         `json:"state"`
}

// OK reports whether every update persisted.
func (r SaveResult) OK() bool {
	return len(r.Failures) == 0
}

type saveConfig struct {
	retrier CellRetrier
}

// SaveOption customises Save.
type SaveOption func(*saveConfig)

// DeferFailures hands failed updates to r. Accepted updates are marked
// Deferred and leave the draft buffer.
func DeferFailures(r CellRetrier) SaveOption {
	return func(c *saveConfig) { c.retrier = r }
}

// Save flushes the draft buffer one UpdateCell call per entry, in grid order.
// Successful entries are committed and removed from the buffer; failures are
// reported per cell and stay buffered so a later Save retries only them. The
// grid returns to Viewing once the buffer is empty.
func (g *Grid) Save(ctx context.Context, opts ...SaveOption) (SaveResult, error) {
	var cfg saveConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return SaveResult{}, ErrNotEditing
	}

	result := SaveResult{}
	for _, key := range g.orderedDraftLocked() {
		value := g.draft[key]
		err := g.updateCell(ctx, key, value)
		if err == nil {
			g.commitLocked(key, value)
			delete(g.draft, key)
			result.Applied = append(result.Applied, key)
			g.observe("applied")
			continue
		}
		failure := CellFailure{Key: key, Value: value, Err: err}
		g.logger.Error("cell update failed",
			slog.String("matrix_id", g.matrix.ID),
			slog.String("cell", key.String()),
			slog.Any("error", err))
		if cfg.retrier != nil {
			update := CellUpdate{MatrixID: g.matrix.ID, RowID: key.RowID, ColumnID: key.ColumnID, Value: value}
			if derr := cfg.retrier.DeferCellUpdate(ctx, update); derr == nil {
				failure.Deferred = true
				delete(g.draft, key)
				g.observe("deferred")
			} else {
				g.logger.Error("defer cell update failed",
					slog.String("matrix_id", g.matrix.ID),
					slog.String("cell", key.String()),
					slog.Any("error", derr))
				g.observe("failed")
			}
		} else {
			g.observe("failed")
		}
		result.Failures = append(result.Failures, failure)
	}

	if len(g.draft) == 0 {
		g.state = StateViewing
		g.draft = nil
	}
	result.State = g.state
	return result, nil
}

func (g *Grid) updateCell(ctx context.Context, key CellKey, value string) error {
	ctx, cancel := context.WithTimeout(ctx, g.saveTimeout)
	defer cancel()
	if err := g.store.UpdateCell(ctx, g.matrix.ID, key.RowID, key.ColumnID, value); err != nil {
		return fmt.Errorf("update cell %s: %w", key, err)
	}
	return nil
}

func (g *Grid) observe(result string) {
	if g.metrics != nil {
		g.metrics.ObserveCellUpdate(result)
	}
}

// orderedDraftLocked lists draft keys by row position then column position.
func (g *Grid) orderedDraftLocked() []CellKey {
	keys := make([]CellKey, 0, len(g.draft))
	for _, r := range g.matrix.Rows {
		for _, c := range g.matrix.Columns {
			key := CellKey{RowID: r.ID, ColumnID: c.ID}
			if _, ok := g.draft[key]; ok {
				keys = append(keys, key)
			}
		}
	}
	return keys
}

func (g *Grid) commitLocked(key CellKey, value string) {
	row := g.matrix.Row(key.RowID)
	if row == nil {
		return
	}
	if cell := row.Cell(key.ColumnID); cell != nil {
		cell.Value = value
		return
	}
	row.Cells = append(row.Cells, &Cell{RowID: row.ID, ColumnID: key.ColumnID, Value: value})
}

// AddRow validates form, persists the row and appends it with one empty cell
// per existing column.
func (g *Grid) AddRow(ctx context.Context, form RowForm) (*Row, error) {
	in, err := form.Validate()
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return nil, ErrNotEditing
	}
	row, err := g.store.CreateRow(ctx, g.matrix.ID, in)
	if err != nil {
		return nil, fmt.Errorf("create row: %w", err)
	}
	row.MatrixID = g.matrix.ID
	row.Position = len(g.matrix.Rows)
	for _, note := range alignCells(row, g.matrix.Columns) {
		g.logger.Warn("created row normalised", slog.String("matrix_id", g.matrix.ID), slog.String("note", note))
	}
	g.matrix.Rows = append(g.matrix.Rows, row)
	return row, nil
}

// UpdateRow applies a partial label/colour update.
func (g *Grid) UpdateRow(ctx context.Context, rowID string, patch RowPatch) error {
	patch, err := patch.Validate()
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return ErrNotEditing
	}
	row := g.matrix.Row(rowID)
	if row == nil {
		return ErrRowNotFound
	}
	if err := g.store.UpdateRow(ctx, g.matrix.ID, rowID, patch); err != nil {
		return fmt.Errorf("update row: %w", err)
	}
	if patch.Label != nil {
		row.Label = *patch.Label
	}
	if patch.Color != nil {
		row.Color = *patch.Color
	}
	return nil
}

// DeleteRow removes the row, its cells and its draft entries. Other rows keep
// their identity and are renumbered.
func (g *Grid) DeleteRow(ctx context.Context, rowID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return ErrNotEditing
	}
	if g.matrix.Row(rowID) == nil {
		return ErrRowNotFound
	}
	if err := g.store.DeleteRow(ctx, g.matrix.ID, rowID); err != nil {
		return fmt.Errorf("delete row: %w", err)
	}
	rows := make([]*Row, 0, len(g.matrix.Rows)-1)
	for _, r := range g.matrix.Rows {
		if r.ID != rowID {
			r.Position = len(rows)
			rows = append(rows, r)
		}
	}
	g.matrix.Rows = rows
	for key := range g.draft {
		if key.RowID == rowID {
			delete(g.draft, key)
		}
	}
	return nil
}

// AddColumn validates form, persists the column and appends an empty cell for
// it to every row.
func (g *Grid) AddColumn(ctx context.Context, form ColumnForm) (*Column, error) {
	in, err := form.Validate()
	if err != nil {
		return nil, err
	}
	if err := g.bindWidth(ctx, &in); err != nil {
		return nil, err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return nil, ErrNotEditing
	}
	col, err := g.store.CreateColumn(ctx, g.matrix.ID, in)
	if err != nil {
		return nil, fmt.Errorf("create column: %w", err)
	}
	col.MatrixID = g.matrix.ID
	col.Position = len(g.matrix.Columns)
	g.matrix.Columns = append(g.matrix.Columns, col)
	for _, r := range g.matrix.Rows {
		if r.Cell(col.ID) == nil {
			r.Cells = append(r.Cells, &Cell{RowID: r.ID, ColumnID: col.ID})
		}
	}
	return col, nil
}

// UpdateColumn relabels a column and rebinds its bin. A nil BinID clears the
// binding.
func (g *Grid) UpdateColumn(ctx context.Context, columnID string, form ColumnForm) error {
	in, err := form.Validate()
	if err != nil {
		return err
	}
	if err := g.bindWidth(ctx, &in); err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return ErrNotEditing
	}
	col := g.matrix.Column(columnID)
	if col == nil {
		return ErrColumnNotFound
	}
	if err := g.store.UpdateColumn(ctx, g.matrix.ID, columnID, in); err != nil {
		return fmt.Errorf("update column: %w", err)
	}
	col.Label = in.Label
	col.BinID = in.BinID
	col.Width = in.Width
	return nil
}

// DeleteColumn removes the column and exactly its cell from every row.
func (g *Grid) DeleteColumn(ctx context.Context, columnID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateEditing {
		return ErrNotEditing
	}
	if g.matrix.Column(columnID) == nil {
		return ErrColumnNotFound
	}
	if err := g.store.DeleteColumn(ctx, g.matrix.ID, columnID); err != nil {
		return fmt.Errorf("delete column: %w", err)
	}
	cols := make([]*Column, 0, len(g.matrix.Columns)-1)
	for _, c := range g.matrix.Columns {
		if c.ID != columnID {
			c.Position = len(cols)
			cols = append(cols, c)
		}
	}
	g.matrix.Columns = cols
	for _, r := range g.matrix.Rows {
		cells := make([]*Cell, 0, len(r.Cells))
		for _, c := range r.Cells {
			if c.ColumnID != columnID {
				cells = append(cells, c)
			}
		}
		r.Cells = cells
	}
	for key := range g.draft {
		if key.ColumnID == columnID {
			delete(g.draft, key)
		}
	}
	return nil
}

func (g *Grid) bindWidth(ctx context.Context, in *ColumnInput) error {
	if in.BinID == nil || g.bins == nil {
		return nil
	}
	bin, err := g.bins.Bin(ctx, *in.BinID)
	if err != nil {
		return fmt.Errorf("bind bin: %w", err)
	}
	width := bin.Width
	in.Width = &width
	return nil
}

// Suggestions projects the grid's current values, draft included, into a
// fresh suggestion list.
func (g *Grid) Suggestions() *Suggestions {
	g.mu.Lock()
	defer g.mu.Unlock()
	values := g.matrix.Values()
	for _, v := range g.draft {
		values = append(values, v)
	}
	return BuildSuggestions(values)
}

// Editor returns a CellEditor for the cell whose changes flow into
// SetCellValue. Outside Editing the editor is disabled.
func (g *Grid) Editor(rowID, columnID string, mode EditorMode, options []Option, suggestions *Suggestions) *CellEditor {
	value := g.Value(rowID, columnID)
	onChange := func(v string) error { return g.SetCellValue(rowID, columnID, v) }
	var e *CellEditor
	if mode == ModeFixedOption {
		e = NewFixedOptionEditor(value, options, onChange)
	} else {
		e = NewFreeEntryEditor(value, suggestions, onChange)
	}
	if g.State() != StateEditing {
		e.SetDisabled(true)
	}
	return e
}

// CellEdit is a requested change to one cell.
type CellEdit struct {
	RowID    string
	ColumnID string
	Value    string
	Options  OptionSet
}

// Edit applies edit through a CellEditor. Free entry submits the text and
// feeds the suggestion list; an option set only accepts one of options.
func (g *Grid) Edit(edit CellEdit, options []Option) error {
	if edit.Options == OptionsNone {
		return g.Editor(edit.RowID, edit.ColumnID, ModeFreeEntry, nil, g.Suggestions()).Submit(edit.Value)
	}
	return g.Editor(edit.RowID, edit.ColumnID, ModeFixedOption, options, nil).Choose(edit.Value)
}

// View is the rendered grid: committed values overlaid with the draft.
type View struct {
	MatrixID string       `json:"matrix_id"`
	Name     string       `json:"name"`
	State    State        `json:"state"`
	Columns  []ColumnView `json:"columns"`
	Rows     []RowView    `json:"rows"`
	Dirty    int          `json:"dirty"`
}

// ColumnView is a rendered column header.
type ColumnView struct {
	ID    string  `json:"id"`
	Label string  `json:"label"`
	BinID *string `json:"bin_id,omitempty"`
	Width string  `json:"width,omitempty"`
}

// RowView is a rendered row with values in column order.
type RowView struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Color  string     `json:"color"`
	Values []CellView `json:"values"`
}

// CellView is a rendered cell.
type CellView struct {
	ColumnID string `json:"column_id"`
	Value    string `json:"value"`
	Unset    bool   `json:"unset"`
	Pending  bool   `json:"pending"`
}

// View renders the grid.
func (g *Grid) View() View {
	g.mu.Lock()
	defer g.mu.Unlock()
	v := View{
		MatrixID: g.matrix.ID,
		Name:     g.matrix.Name,
		State:    g.state,
		Columns:  make([]ColumnView, 0, len(g.matrix.Columns)),
		Rows:     make([]RowView, 0, len(g.matrix.Rows)),
		Dirty:    len(g.draft),
	}
	for _, c := range g.matrix.Columns {
		cv := ColumnView{ID: c.ID, Label: c.Label, BinID: c.BinID}
		if c.Width != nil {
			cv.Width = c.Width.String()
		}
		v.Columns = append(v.Columns, cv)
	}
	for _, r := range g.matrix.Rows {
		rv := RowView{ID: r.ID, Label: r.Label, Color: r.Color, Values: make([]CellView, 0, len(g.matrix.Columns))}
		for _, c := range g.matrix.Columns {
			key := CellKey{RowID: r.ID, ColumnID: c.ID}
			_, pending := g.draft[key]
			value := g.valueLocked(key)
			rv.Values = append(rv.Values, CellView{
				ColumnID: c.ID,
				Value:    value,
				Unset:    value == "",
				Pending:  pending && g.state == StateEditing,
			})
		}
		v.Rows = append(v.Rows, rv)
	}
	return v
}
