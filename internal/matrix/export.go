package matrix

import (
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	exportSheet        = "Matrix"
	defaultColumnWidth = 14.0
)

// WriteXLSX renders the committed matrix as a workbook: one header row of
// column labels, then one line per row with its label filled in the row
// colour. Bound bin widths become column widths.
func WriteXLSX(m *Matrix, w io.Writer) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2E8F0"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(exportSheet, "A1", m.Name); err != nil {
		return err
	}
	for i, col := range m.Columns {
		cell, err := excelize.CoordinatesToCellName(i+2, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(exportSheet, cell, col.Label); err != nil {
			return err
		}
		name, err := excelize.ColumnNumberToName(i + 2)
		if err != nil {
			return err
		}
		width := defaultColumnWidth
		if col.Width != nil {
			if wf, _ := col.Width.Float64(); wf > 0 {
				width = wf
			}
		}
		if err := f.SetColWidth(exportSheet, name, name, width); err != nil {
			return err
		}
	}
	last, err := excelize.CoordinatesToCellName(len(m.Columns)+1, 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(exportSheet, "A1", last, headerStyle); err != nil {
		return err
	}

	styles := map[string]int{}
	for r, row := range m.Rows {
		line := r + 2
		labelCell := fmt.Sprintf("A%d", line)
		if err := f.SetCellValue(exportSheet, labelCell, row.Label); err != nil {
			return err
		}
		style, ok := styles[row.Color]
		if !ok {
			style, err = f.NewStyle(&excelize.Style{
				Font: &excelize.Font{Bold: true},
				Fill: excelize.Fill{Type: "pattern", Color: []string{strings.ToUpper(row.Color)}, Pattern: 1},
			})
			if err != nil {
				return err
			}
			styles[row.Color] = style
		}
		if err := f.SetCellStyle(exportSheet, labelCell, labelCell, style); err != nil {
			return err
		}
		for c, col := range m.Columns {
			cell, err := excelize.CoordinatesToCellName(c+2, line)
			if err != nil {
				return err
			}
			if value := m.Value(CellKey{RowID: row.ID, ColumnID: col.ID}); value != "" {
				if err := f.SetCellValue(exportSheet, cell, value); err != nil {
					return err
				}
			}
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return err
	}

	_, err = f.WriteTo(w)
	return err
}
