package matrix

import (
	"context"

	"github.com/odyssey-erp/slotbook/internal/resources"
)

// Reader loads matrices. Implementations return normalised matrices.
type Reader interface {
	FetchMatrix(ctx context.Context, id string) (*Matrix, error)
	FetchMatrixByRoom(ctx context.Context, roomID string) (*Matrix, error)
	ListMatrices(ctx context.Context, filter MatrixFilter) ([]MatrixSummary, error)
}

// Writer persists grid mutations.
type Writer interface {
	CreateMatrix(ctx context.Context, in MatrixInput) (*Matrix, error)
	CreateRow(ctx context.Context, matrixID string, in RowInput) (*Row, error)
	UpdateRow(ctx context.Context, matrixID, rowID string, patch RowPatch) error
	DeleteRow(ctx context.Context, matrixID, rowID string) error
	CreateColumn(ctx context.Context, matrixID string, in ColumnInput) (*Column, error)
	UpdateColumn(ctx context.Context, matrixID, columnID string, in ColumnInput) error
	DeleteColumn(ctx context.Context, matrixID, columnID string) error
	UpdateCell(ctx context.Context, matrixID, rowID, columnID, value string) error
}

// Store is the full persistence collaborator.
type Store interface {
	Reader
	Writer
}

// BinLookup resolves bins for column binding.
type BinLookup interface {
	Bin(ctx context.Context, id string) (resources.Bin, error)
}

// CellUpdate is one cell write.
type CellUpdate struct {
	MatrixID string `json:"matrix_id"`
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	Value    string `json:"value"`
}

// CellRetrier takes over cell updates that failed during a save.
type CellRetrier interface {
	DeferCellUpdate(ctx context.Context, update CellUpdate) error
}

// CellMetrics observes cell update outcomes.
type CellMetrics interface {
	ObserveCellUpdate(result string)
}
