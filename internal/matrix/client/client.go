// Package client talks to a remote slotbook API. It implements matrix.Store
// and the resource lookups so a Grid can run against the REST collaborator
// instead of the database.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/odyssey-erp/slotbook/internal/matrix"
	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
	"github.com/odyssey-erp/slotbook/internal/resources"
)

// Config configures Client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Retries applies to reads only.
	Retries int
	Logger  *slog.Logger
}

// Client is a resty based slotbook API client.
type Client struct {
	http   *resty.Client
	logger *slog.Logger
}

var (
	_ matrix.Store          = (*Client)(nil)
	_ matrix.ResourceLookup = (*Client)(nil)
)

// New builds a Client for cfg.BaseURL.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	rc := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")+"/api").
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(cfg.Retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if r == nil || r.Request == nil || r.Request.Method != http.MethodGet {
				return false
			}
			return err != nil || r.StatusCode() >= 500
		})
	return &Client{http: rc, logger: logger}
}

func (c *Client) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx).SetError(&httpx.ProblemDetail{})
}

// check turns transport errors and non-2xx answers into sentinel errors.
func (c *Client) check(op string, resp *resty.Response, err error) error {
	if err != nil {
		c.logger.Error("slotbook api call failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("%s: %w: %v", op, httpx.ErrUnavailable, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	detail := http.StatusText(resp.StatusCode())
	var fields map[string]string
	if problem, ok := resp.Error().(*httpx.ProblemDetail); ok && problem != nil {
		fields = problem.Errors
		switch {
		case problem.Detail != "":
			detail = problem.Detail
		case problem.Title != "":
			detail = problem.Title
		}
	}
	var sentinel error
	switch resp.StatusCode() {
	case http.StatusNotFound:
		sentinel = httpx.ErrNotFound
	case http.StatusConflict:
		sentinel = httpx.ErrConflict
	case http.StatusBadRequest:
		sentinel = httpx.ErrValidation
		if len(fields) > 0 {
			sentinel = &matrix.ValidationError{Fields: fields}
		}
	case http.StatusUnprocessableEntity:
		sentinel = matrix.ErrInvalidMatrix
	case http.StatusUnauthorized:
		sentinel = httpx.ErrUnauthorized
	case http.StatusForbidden:
		sentinel = httpx.ErrForbidden
	default:
		sentinel = httpx.ErrUnavailable
	}
	c.logger.Warn("slotbook api returned error",
		slog.String("op", op),
		slog.Int("status", resp.StatusCode()),
		slog.String("detail", detail))
	return fmt.Errorf("%s: %w: %s", op, sentinel, detail)
}

// FetchMatrix loads and normalises a matrix.
func (c *Client) FetchMatrix(ctx context.Context, id string) (*matrix.Matrix, error) {
	resp, err := c.request(ctx).SetPathParam("id", id).Get("/matrices/{id}")
	return c.decodeMatrix("fetch matrix", resp, err)
}

// FetchMatrixByRoom loads the matrix of a room.
func (c *Client) FetchMatrixByRoom(ctx context.Context, roomID string) (*matrix.Matrix, error) {
	resp, err := c.request(ctx).SetPathParam("room", roomID).Get("/rooms/{room}/matrix")
	return c.decodeMatrix("fetch room matrix", resp, err)
}

func (c *Client) decodeMatrix(op string, resp *resty.Response, err error) (*matrix.Matrix, error) {
	if err := c.check(op, resp, err); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", matrix.ErrMatrixNotFound, err)
		}
		return nil, err
	}
	m, notes, err := matrix.Parse(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	for _, note := range notes {
		c.logger.Warn("remote matrix normalised", slog.String("matrix_id", m.ID), slog.String("note", note))
	}
	return m, nil
}

// ListMatrices lists matrix summaries.
func (c *Client) ListMatrices(ctx context.Context, filter matrix.MatrixFilter) ([]matrix.MatrixSummary, error) {
	req := c.request(ctx)
	if filter.RoomID != "" {
		req.SetQueryParam("room_id", filter.RoomID)
	}
	if filter.Search != "" {
		req.SetQueryParam("search", filter.Search)
	}
	if filter.Limit > 0 {
		req.SetQueryParam("limit", strconv.Itoa(filter.Limit))
	}
	var out struct {
		Matrices []matrix.MatrixSummary `json:"matrices"`
	}
	resp, err := req.SetResult(&out).Get("/matrices")
	if err := c.check("list matrices", resp, err); err != nil {
		return nil, err
	}
	return out.Matrices, nil
}

// CreateMatrix creates a matrix.
func (c *Client) CreateMatrix(ctx context.Context, in matrix.MatrixInput) (*matrix.Matrix, error) {
	resp, err := c.request(ctx).SetBody(in).Post("/matrices")
	return c.decodeMatrix("create matrix", resp, err)
}

// CreateRow creates a row with one empty cell per column.
func (c *Client) CreateRow(ctx context.Context, matrixID string, in matrix.RowInput) (*matrix.Row, error) {
	var row matrix.Row
	resp, err := c.request(ctx).
		SetPathParam("id", matrixID).
		SetBody(matrix.RowForm{Label: in.Label, Color: in.Color}).
		SetResult(&row).
		Post("/matrices/{id}/rows")
	if err := c.check("create row", resp, err); err != nil {
		return nil, err
	}
	return &row, nil
}

// UpdateRow patches a row.
func (c *Client) UpdateRow(ctx context.Context, matrixID, rowID string, patch matrix.RowPatch) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"id": matrixID, "row": rowID}).
		SetBody(patch).
		Patch("/matrices/{id}/rows/{row}")
	return c.check("update row", resp, err)
}

// DeleteRow deletes a row and its cells.
func (c *Client) DeleteRow(ctx context.Context, matrixID, rowID string) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"id": matrixID, "row": rowID}).
		Delete("/matrices/{id}/rows/{row}")
	return c.check("delete row", resp, err)
}

// CreateColumn creates a column. The server resolves the bin width.
func (c *Client) CreateColumn(ctx context.Context, matrixID string, in matrix.ColumnInput) (*matrix.Column, error) {
	var col matrix.Column
	resp, err := c.request(ctx).
		SetPathParam("id", matrixID).
		SetBody(matrix.ColumnForm{Label: in.Label, BinID: in.BinID}).
		SetResult(&col).
		Post("/matrices/{id}/columns")
	if err := c.check("create column", resp, err); err != nil {
		return nil, err
	}
	return &col, nil
}

// UpdateColumn relabels or rebinds a column.
func (c *Client) UpdateColumn(ctx context.Context, matrixID, columnID string, in matrix.ColumnInput) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"id": matrixID, "column": columnID}).
		SetBody(matrix.ColumnForm{Label: in.Label, BinID: in.BinID}).
		Patch("/matrices/{id}/columns/{column}")
	return c.check("update column", resp, err)
}

// DeleteColumn deletes a column and its cells.
func (c *Client) DeleteColumn(ctx context.Context, matrixID, columnID string) error {
	resp, err := c.request(ctx).
		SetPathParams(map[string]string{"id": matrixID, "column": columnID}).
		Delete("/matrices/{id}/columns/{column}")
	return c.check("delete column", resp, err)
}

// UpdateCell writes a single cell.
func (c *Client) UpdateCell(ctx context.Context, matrixID, rowID, columnID, value string) error {
	resp, err := c.request(ctx).
		SetPathParam("id", matrixID).
		SetBody(map[string]string{"row_id": rowID, "column_id": columnID, "value": value}).
		Put("/matrices/{id}/cells")
	return c.check("update cell", resp, err)
}

// Bins lists bins.
func (c *Client) Bins(ctx context.Context) ([]resources.Bin, error) {
	var out struct {
		Bins []resources.Bin `json:"bins"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/bins")
	if err := c.check("list bins", resp, err); err != nil {
		return nil, err
	}
	return out.Bins, nil
}

// Bin finds a bin by id.
func (c *Client) Bin(ctx context.Context, id string) (resources.Bin, error) {
	bins, err := c.Bins(ctx)
	if err != nil {
		return resources.Bin{}, err
	}
	for _, b := range bins {
		if b.ID == id {
			return b, nil
		}
	}
	return resources.Bin{}, fmt.Errorf("%w: %s", resources.ErrBinNotFound, id)
}

// Products lists products.
func (c *Client) Products(ctx context.Context) ([]resources.Product, error) {
	var out struct {
		Products []resources.Product `json:"products"`
	}
	resp, err := c.request(ctx).SetResult(&out).Get("/products")
	if err := c.check("list products", resp, err); err != nil {
		return nil, err
	}
	return out.Products, nil
}

// Export downloads the XLSX export of a matrix into w.
func (c *Client) Export(ctx context.Context, matrixID string, w io.Writer) error {
	resp, err := c.request(ctx).
		SetHeader("Accept", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet").
		SetPathParam("id", matrixID).
		Get("/matrices/{id}/export.xlsx")
	if err := c.check("export matrix", resp, err); err != nil {
		return err
	}
	_, err = w.Write(resp.Body())
	return err
}
