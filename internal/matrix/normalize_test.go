package matrix

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseRepairsItemDefects(t *testing.T) {
	payload := []byte(`{
		"id": "m1",
		"name": "Aisle",
		"room_id": "room-1",
		"columns": [
			{"id": "c2", "label": "B", "position": 1, "width": "40.5"},
			{"id": "c1", "label": "A", "position": 0, "bin_id": "bin-s"},
			{"id": "c1", "label": "dup"},
			{"label": "no id"},
			"junk"
		],
		"rows": [
			{"id": "r1", "label": "Top", "color": "not-a-colour", "cells": [
				{"column_id": "c2", "value": "x"},
				{"column_id": "zz", "value": "orphan"}
			]},
			{"id": "r2", "label": "Bottom", "cells": "broken"},
			42
		]
	}`)

	m, notes, err := Parse(payload)
	require.NoError(t, err)
	require.NotEmpty(t, notes)

	require.Len(t, m.Columns, 2)
	require.Equal(t, "c1", m.Columns[0].ID)
	require.Equal(t, "c2", m.Columns[1].ID)
	require.Equal(t, 1, m.Columns[1].Position)
	require.NotNil(t, m.Columns[0].BinID)
	require.Equal(t, "40.5", m.Columns[1].Width.String())

	require.Len(t, m.Rows, 2)
	requireRectangular(t, m)
	require.Equal(t, DefaultRowColor, m.Rows[0].Color)
	require.Equal(t, "x", m.Value(CellKey{RowID: "r1", ColumnID: "c2"}))
	require.Equal(t, "", m.Value(CellKey{RowID: "r1", ColumnID: "c1"}))
	require.Equal(t, "", m.Value(CellKey{RowID: "r2", ColumnID: "c2"}))
}

func TestParseRejectsMatrixLevelDefects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"array":          `[]`,
		"missing id":     `{"name":"x","rows":[],"columns":[]}`,
		"rows object":    `{"id":"m","rows":{},"columns":[]}`,
		"columns string": `{"id":"m","rows":[],"columns":"c1"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(payload))
			require.ErrorIs(t, err, ErrInvalidMatrix)
		})
	}
}

func TestParseMissingCollectionsAreEmpty(t *testing.T) {
	m, _, err := Parse([]byte(`{"id":"m1","name":"Empty"}`))
	require.NoError(t, err)
	require.Empty(t, m.Rows)
	require.Empty(t, m.Columns)
}

func TestNormalizeDoesNotModifyInput(t *testing.T) {
	in := fixtureMatrix()
	in.Rows[0].Cells = in.Rows[0].Cells[:1]
	in.Rows[1].Position = -1

	out, _, err := Normalize(in)
	require.NoError(t, err)
	require.Len(t, in.Rows[0].Cells, 1)
	require.Equal(t, -1, in.Rows[1].Position)

	require.Equal(t, "r2", out.Rows[0].ID)
	require.Equal(t, 0, out.Rows[0].Position)
	require.Equal(t, 1, out.Rows[1].Position)
	requireRectangular(t, out)
}

func TestNormalizeDropsNilEntries(t *testing.T) {
	in := fixtureMatrix()
	in.Rows = append(in.Rows, nil)
	in.Columns = append(in.Columns, nil)

	out, notes, err := Normalize(in)
	require.NoError(t, err)
	require.Len(t, out.Rows, 2)
	require.Len(t, out.Columns, 2)
	require.Len(t, notes, 2)
}
