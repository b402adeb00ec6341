package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
	"github.com/odyssey-erp/slotbook/internal/resources"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type stubResources struct{}

func (stubResources) ListBins(context.Context) ([]resources.Bin, error) {
	return []resources.Bin{
		{ID: "bin-s", Name: "Small", Length: decimal.NewFromInt(30), Width: decimal.RequireFromString("12.5"), Height: decimal.NewFromInt(10)},
		{ID: "", Name: "orphan"},
	}, nil
}

func (stubResources) ListProducts(context.Context) ([]resources.Product, error) {
	return []resources.Product{{ID: "p1", SKU: "SKU-1", Name: "Widget"}, {ID: "p2", SKU: " "}}, nil
}

type recorder struct {
	mu     sync.Mutex
	bodies map[string]map[string]any
}

func (r *recorder) keep(key string, req *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(req.Body).Decode(&body)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bodies[key] = body
}

func newTestServer(t *testing.T) (*Client, *recorder) {
	t.Helper()
	rec := &recorder{bodies: map[string]map[string]any{}}
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/matrices/{id}", func(w http.ResponseWriter, req *http.Request) {
			switch chi.URLParam(req, "id") {
			case "m1":
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{
					"id": "m1", "name": "Aisle", "room_id": "room-1",
					"columns": [{"id": "c1", "label": "A", "position": 0}, {"id": "c2", "label": "B", "position": 1}],
					"rows": [{"id": "r1", "label": "Top", "color": "#ff0000", "cells": [{"column_id": "c2", "value": "x"}]}]
				}`)
			case "broken":
				httpx.JSON(w, http.StatusUnprocessableEntity, map[string]string{"state": "invalid", "detail": "missing id"})
			default:
				httpx.Problem(w, http.StatusNotFound, "Not Found", "matrix not found")
			}
		})
		r.Get("/matrices", func(w http.ResponseWriter, req *http.Request) {
			httpx.JSON(w, http.StatusOK, map[string]any{"matrices": []matrix.MatrixSummary{{ID: "m1", RoomID: req.URL.Query().Get("room_id")}}})
		})
		r.Post("/matrices/{id}/rows", func(w http.ResponseWriter, req *http.Request) {
			rec.keep("row", req)
			httpx.JSON(w, http.StatusCreated, matrix.Row{ID: "r9", Label: "New", Color: matrix.DefaultRowColor})
		})
		r.Post("/matrices/{id}/columns", func(w http.ResponseWriter, req *http.Request) {
			rec.keep("column", req)
			httpx.RespondError(w, &matrix.ValidationError{Fields: map[string]string{"label": "is required"}})
		})
		r.Put("/matrices/{id}/cells", func(w http.ResponseWriter, req *http.Request) {
			rec.keep("cell", req)
			httpx.NoContent(w)
		})
		r.Delete("/matrices/{id}/rows/{rowID}", func(w http.ResponseWriter, req *http.Request) {
			httpx.Problem(w, http.StatusConflict, "Conflict", "grid is not in edit mode")
		})
		resources.NewHandler(discard, resources.NewService(stubResources{}, nil)).MountRoutes(r)
		r.Get("/matrices/{id}/export.xlsx", func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			_, _ = io.WriteString(w, "PK-workbook")
		})
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, Logger: discard}), rec
}

func TestFetchMatrixNormalises(t *testing.T) {
	c, _ := newTestServer(t)
	m, err := c.FetchMatrix(context.Background(), "m1")
	require.NoError(t, err)
	require.Len(t, m.Rows[0].Cells, 2)
	require.Equal(t, "x", m.Value(matrix.CellKey{RowID: "r1", ColumnID: "c2"}))
}

func TestFetchMatrixMapsErrors(t *testing.T) {
	c, _ := newTestServer(t)
	_, err := c.FetchMatrix(context.Background(), "nope")
	require.ErrorIs(t, err, matrix.ErrMatrixNotFound)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	_, err = c.FetchMatrix(context.Background(), "broken")
	require.ErrorIs(t, err, matrix.ErrInvalidMatrix)
	require.Contains(t, err.Error(), "missing id")
}

func TestGridRunsAgainstClient(t *testing.T) {
	c, rec := newTestServer(t)
	ctx := context.Background()
	m, err := c.FetchMatrix(ctx, "m1")
	require.NoError(t, err)

	g, err := matrix.NewGrid(m, c)
	require.NoError(t, err)
	require.NoError(t, g.BeginEdit())
	require.NoError(t, g.SetCellValue("r1", "c1", "y"))

	res, err := g.Save(ctx)
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Equal(t, map[string]any{"row_id": "r1", "column_id": "c1", "value": "y"}, rec.bodies["cell"])

	row, err := g.AddRow(ctx, matrix.RowForm{Label: "New"})
	require.NoError(t, err)
	require.Equal(t, "r9", row.ID)
	require.Len(t, row.Cells, 2)
	require.Equal(t, "New", rec.bodies["row"]["label"])

	_, err = g.AddColumn(ctx, matrix.ColumnForm{Label: "Col3"})
	require.ErrorIs(t, err, httpx.ErrValidation)
	var verr *matrix.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "is required", verr.Fields["label"])
	require.Len(t, g.Snapshot().Columns, 2)

	require.ErrorIs(t, g.DeleteRow(ctx, "r1"), httpx.ErrConflict)
}

func TestListAndResources(t *testing.T) {
	c, _ := newTestServer(t)
	ctx := context.Background()

	items, err := c.ListMatrices(ctx, matrix.MatrixFilter{RoomID: "room-7"})
	require.NoError(t, err)
	require.Equal(t, "room-7", items[0].RoomID)

	bin, err := c.Bin(ctx, "bin-s")
	require.NoError(t, err)
	require.Equal(t, "12.5", bin.Width.String())
	_, err = c.Bin(ctx, "bin-x")
	require.ErrorIs(t, err, httpx.ErrNotFound)

	bins, err := c.Bins(ctx)
	require.NoError(t, err)
	require.Len(t, bins, 1)

	products, err := c.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	require.Equal(t, "SKU-1", products[0].SKU)
}

func TestExport(t *testing.T) {
	c, _ := newTestServer(t)
	var buf bytes.Buffer
	require.NoError(t, c.Export(context.Background(), "m1", &buf))
	require.Equal(t, "PK-workbook", buf.String())
}
