package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/odyssey-erp/slotbook/internal/matrix"
)

// MatrixAPI is the part of the REST client used by the matrix commands.
type MatrixAPI interface {
	matrix.Store
	matrix.ResourceLookup
	Export(ctx context.Context, matrixID string, w io.Writer) error
}

// MatrixCLI runs matrix commands against a remote slotbook API.
type MatrixCLI struct {
	api MatrixAPI
}

// NewMatrixCLI constructs the helper.
func NewMatrixCLI(api MatrixAPI) (*MatrixCLI, error) {
	if api == nil {
		return nil, errors.New("matrix cli: api client required")
	}
	return &MatrixCLI{api: api}, nil
}

// ExportOptions configures ExportCommand.
type ExportOptions struct {
	MatrixID string
	Output   string
	Stdout   io.Writer
	Stderr   io.Writer
}

// ExportCommand downloads the XLSX export of a matrix. An empty or "-"
// output writes to stdout.
func (c *MatrixCLI) ExportCommand(ctx context.Context, opts ExportOptions) int {
	stderr := writerOr(opts.Stderr, os.Stderr)
	if strings.TrimSpace(opts.MatrixID) == "" {
		_, _ = fmt.Fprintln(stderr, "export: matrix id required")
		return 2
	}
	if opts.Output == "" || opts.Output == "-" {
		if err := c.api.Export(ctx, opts.MatrixID, writerOr(opts.Stdout, os.Stdout)); err != nil {
			_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
			return 1
		}
		return 0
	}
	f, err := os.Create(opts.Output)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	if err := c.api.Export(ctx, opts.MatrixID, f); err != nil {
		_ = f.Close()
		_ = os.Remove(opts.Output)
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	if err := f.Close(); err != nil {
		_, _ = fmt.Fprintf(stderr, "export: %v\n", err)
		return 1
	}
	return 0
}

// ShowOptions configures ShowCommand.
type ShowOptions struct {
	MatrixID   string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ShowCommand prints a matrix as a table or as its JSON view.
func (c *MatrixCLI) ShowCommand(ctx context.Context, opts ShowOptions) int {
	stdout := writerOr(opts.Stdout, os.Stdout)
	stderr := writerOr(opts.Stderr, os.Stderr)
	grid, err := c.load(ctx, opts.MatrixID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "show: %v\n", err)
		return exitCode(err)
	}
	view := grid.View()
	if opts.JSONOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			_, _ = fmt.Fprintf(stderr, "show: %v\n", err)
			return 1
		}
		return 0
	}
	renderView(stdout, view)
	return 0
}

// SetOptions configures SetCommand.
type SetOptions struct {
	MatrixID string
	Values   []CellAssignment
	// Options restricts every value to the named resource list.
	Options matrix.OptionSet
	Stdout   io.Writer
	Stderr   io.Writer
}

// CellAssignment is one row/column/value triple from the command line.
type CellAssignment struct {
	RowID    string
	ColumnID string
	Value    string
}

// ParseAssignment parses "row:column=value".
func ParseAssignment(raw string) (CellAssignment, error) {
	target, value, ok := strings.Cut(raw, "=")
	if !ok {
		return CellAssignment{}, fmt.Errorf("assignment %q: want row:column=value", raw)
	}
	rowID, columnID, ok := strings.Cut(target, ":")
	if !ok || rowID == "" || columnID == "" {
		return CellAssignment{}, fmt.Errorf("assignment %q: want row:column=value", raw)
	}
	return CellAssignment{RowID: rowID, ColumnID: columnID, Value: value}, nil
}

// SetCommand edits cells through a grid backed by the API and saves them.
// Cells that fail to save are reported and make the command exit non-zero.
func (c *MatrixCLI) SetCommand(ctx context.Context, opts SetOptions) int {
	stdout := writerOr(opts.Stdout, os.Stdout)
	stderr := writerOr(opts.Stderr, os.Stderr)
	if len(opts.Values) == 0 {
		_, _ = fmt.Fprintln(stderr, "set: at least one row:column=value required")
		return 2
	}
	grid, err := c.load(ctx, opts.MatrixID)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "set: %v\n", err)
		return exitCode(err)
	}
	options, err := matrix.LoadOptions(ctx, c.api, opts.Options)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "set: %v\n", err)
		return 2
	}
	if err := grid.BeginEdit(); err != nil {
		_, _ = fmt.Fprintf(stderr, "set: %v\n", err)
		return 1
	}
	for _, v := range opts.Values {
		edit := matrix.CellEdit{RowID: v.RowID, ColumnID: v.ColumnID, Value: v.Value, Options: opts.Options}
		if err := grid.Edit(edit, options); err != nil {
			_, _ = fmt.Fprintf(stderr, "set: %s:%s: %v\n", v.RowID, v.ColumnID, err)
			return 1
		}
	}
	result, err := grid.Save(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "set: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "%d cell(s) saved\n", len(result.Applied))
	if result.OK() {
		return 0
	}
	for _, f := range result.Failures {
		_, _ = fmt.Fprintf(stderr, "%s:%s: %s\n", f.Key.RowID, f.Key.ColumnID, f.Message())
	}
	return 1
}

func (c *MatrixCLI) load(ctx context.Context, id string) (*matrix.Grid, error) {
	if strings.TrimSpace(id) == "" {
		return nil, errors.New("matrix id required")
	}
	m, err := c.api.FetchMatrix(ctx, id)
	if err != nil {
		return nil, err
	}
	return matrix.NewGrid(m, c.api, matrix.WithBinLookup(c.api))
}

func renderView(out io.Writer, view matrix.View) {
	_, _ = fmt.Fprintf(out, "%s (%s)\n", view.Name, view.MatrixID)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := []string{""}
	for _, col := range view.Columns {
		label := col.Label
		if col.Width != "" {
			label += " [" + col.Width + "]"
		}
		header = append(header, label)
	}
	_, _ = fmt.Fprintln(tw, strings.Join(header, "\t"))
	for _, row := range view.Rows {
		line := []string{row.Label}
		for _, cell := range row.Values {
			if cell.Unset {
				line = append(line, "-")
				continue
			}
			line = append(line, cell.Value)
		}
		_, _ = fmt.Fprintln(tw, strings.Join(line, "\t"))
	}
	_ = tw.Flush()
}

func exitCode(err error) int {
	if errors.Is(err, matrix.ErrMatrixNotFound) {
		return 3
	}
	return 1
}

func writerOr(w, fallback io.Writer) io.Writer {
	if w == nil {
		return fallback
	}
	return w
}
