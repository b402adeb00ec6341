package matrix

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestWriteXLSX(t *testing.T) {
	m := fixtureMatrix()
	width := decimal.NewFromInt(40)
	m.Columns[1].Width = &width

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(m, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	require.Equal(t, []string{exportSheet}, f.GetSheetList())
	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Equal(t, []string{"Aisle 1", "Col1", "Col2"}, rows[0])
	require.Equal(t, []string{"Shelf 1", "A1"}, rows[1])
	require.Equal(t, []string{"Shelf 2", "B1", "B2"}, rows[2])

	got, err := f.GetColWidth(exportSheet, "C")
	require.NoError(t, err)
	require.InDelta(t, 40.0, got, 0.001)
	got, err = f.GetColWidth(exportSheet, "B")
	require.NoError(t, err)
	require.InDelta(t, defaultColumnWidth, got, 0.001)
}

func TestWriteXLSXEmptyMatrix(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&Matrix{ID: "m0", Name: "Empty"}, &buf))
	require.NotZero(t, buf.Len())
}
