package matrix

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
	"github.com/odyssey-erp/slotbook/internal/resources"
)

// ResourceLookup serves the option lists of the cell editors.
type ResourceLookup interface {
	BinLookup
	Bins(ctx context.Context) ([]resources.Bin, error)
	Products(ctx context.Context) ([]resources.Product, error)
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	SaveTimeout time.Duration
}

// Service coordinates matrix reads, direct mutations and edit sessions.
type Service struct {
	store       Store
	resources   ResourceLookup
	drafts      DraftRepository
	locker      SaveLocker
	retrier     CellRetrier
	metrics     CellMetrics
	logger      *slog.Logger
	saveTimeout time.Duration
	loads       singleflight.Group
}

// ServiceDeps lists the collaborators of Service. Retrier and Metrics may be nil.
type ServiceDeps struct {
	Store     Store
	Resources ResourceLookup
	Drafts    DraftRepository
	Locker    SaveLocker
	Retrier   CellRetrier
	Metrics   CellMetrics
	Logger    *slog.Logger
}

// NewService builds Service.
func NewService(deps ServiceDeps, cfg ServiceConfig) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.SaveTimeout
	if timeout <= 0 {
		timeout = DefaultSaveTimeout
	}
	return &Service{
		store:       deps.Store,
		resources:   deps.Resources,
		drafts:      deps.Drafts,
		locker:      deps.Locker,
		retrier:     deps.Retrier,
		metrics:     deps.Metrics,
		logger:      logger,
		saveTimeout: timeout,
	}
}

func (s *Service) newGrid(m *Matrix) (*Grid, error) {
	opts := []GridOption{WithLogger(s.logger), WithSaveTimeout(s.saveTimeout)}
	if s.resources != nil {
		opts = append(opts, WithBinLookup(s.resources))
	}
	if s.metrics != nil {
		opts = append(opts, WithCellMetrics(s.metrics))
	}
	return NewGrid(m, s.store, opts...)
}

// List returns matrix summaries.
func (s *Service) List(ctx context.Context, filter MatrixFilter) ([]MatrixSummary, error) {
	filter.RoomID = strings.TrimSpace(filter.RoomID)
	filter.Search = strings.TrimSpace(filter.Search)
	return s.store.ListMatrices(ctx, filter)
}

// Get loads a matrix. Concurrent loads of the same id share one fetch.
func (s *Service) Get(ctx context.Context, id string) (*Matrix, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrMatrixNotFound
	}
	ch := s.loads.DoChan("matrix:"+id, func() (any, error) {
		return s.store.FetchMatrix(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Matrix).Clone(), nil
	}
}

// GetByRoom loads the matrix of a room.
func (s *Service) GetByRoom(ctx context.Context, roomID string) (*Matrix, error) {
	if strings.TrimSpace(roomID) == "" {
		return nil, ErrMatrixNotFound
	}
	return s.store.FetchMatrixByRoom(ctx, roomID)
}

// Create validates and stores a new matrix.
func (s *Service) Create(ctx context.Context, in MatrixInput) (*Matrix, error) {
	in, err := in.Validate()
	if err != nil {
		return nil, err
	}
	return s.store.CreateMatrix(ctx, in)
}

// EditorPayload is everything a client needs to render an editable grid.
type EditorPayload struct {
	Matrix      *Matrix  `json:"matrix"`
	BinOptions  []Option `json:"bin_options"`
	SKUOptions  []Option `json:"sku_options"`
	Suggestions []string `json:"suggestions"`
}

// Editor loads the matrix and both option lists concurrently.
func (s *Service) Editor(ctx context.Context, id string) (EditorPayload, error) {
	var (
		m        *Matrix
		bins     []resources.Bin
		products []resources.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		m, err = s.Get(gctx, id)
		return err
	})
	if s.resources != nil {
		g.Go(func() error {
			var err error
			bins, err = s.resources.Bins(gctx)
			return err
		})
		g.Go(func() error {
			var err error
			products, err = s.resources.Products(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return EditorPayload{}, err
	}
	return EditorPayload{
		Matrix:      m,
		BinOptions:  BinOptions(bins),
		SKUOptions:  ProductOptions(products),
		Suggestions: BuildSuggestions(m.Values()).List(),
	}, nil
}

// AddRow creates a row directly, outside any edit session.
func (s *Service) AddRow(ctx context.Context, matrixID string, form RowForm) (*Row, error) {
	in, err := form.Validate()
	if err != nil {
		return nil, err
	}
	return s.store.CreateRow(ctx, matrixID, in)
}

// UpdateRow patches a row directly.
func (s *Service) UpdateRow(ctx context.Context, matrixID, rowID string, patch RowPatch) error {
	patch, err := patch.Validate()
	if err != nil {
		return err
	}
	return s.store.UpdateRow(ctx, matrixID, rowID, patch)
}

// DeleteRow deletes a row directly.
func (s *Service) DeleteRow(ctx context.Context, matrixID, rowID string) error {
	return s.store.DeleteRow(ctx, matrixID, rowID)
}

// AddColumn creates a column directly.
func (s *Service) AddColumn(ctx context.Context, matrixID string, form ColumnForm) (*Column, error) {
	in, err := s.columnInput(ctx, form)
	if err != nil {
		return nil, err
	}
	return s.store.CreateColumn(ctx, matrixID, in)
}

// UpdateColumn updates a column directly.
func (s *Service) UpdateColumn(ctx context.Context, matrixID, columnID string, form ColumnForm) error {
	in, err := s.columnInput(ctx, form)
	if err != nil {
		return err
	}
	return s.store.UpdateColumn(ctx, matrixID, columnID, in)
}

// DeleteColumn deletes a column and its cells directly.
func (s *Service) DeleteColumn(ctx context.Context, matrixID, columnID string) error {
	return s.store.DeleteColumn(ctx, matrixID, columnID)
}

// UpdateCell writes one cell directly.
func (s *Service) UpdateCell(ctx context.Context, update CellUpdate) error {
	if update.RowID == "" || update.ColumnID == "" {
		return invalidField("cell", "row_id and column_id are required")
	}
	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()
	err := s.store.UpdateCell(ctx, update.MatrixID, update.RowID, update.ColumnID, update.Value)
	if s.metrics != nil {
		if err != nil {
			s.metrics.ObserveCellUpdate("failed")
		} else {
			s.metrics.ObserveCellUpdate("applied")
		}
	}
	return err
}

func (s *Service) columnInput(ctx context.Context, form ColumnForm) (ColumnInput, error) {
	in, err := form.Validate()
	if err != nil {
		return ColumnInput{}, err
	}
	if in.BinID != nil && s.resources != nil {
		bin, err := s.resources.Bin(ctx, *in.BinID)
		if err != nil {
			return ColumnInput{}, err
		}
		width := bin.Width
		in.Width = &width
	}
	return in, nil
}

// Export writes the matrix as XLSX.
func (s *Service) Export(ctx context.Context, id string, w io.Writer) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	return WriteXLSX(m, w)
}

// SessionView is a grid view bound to an edit session.
type SessionView struct {
	SessionID string `json:"session_id,omitempty"`
	View
}

// BeginSession opens an edit session on a matrix.
func (s *Service) BeginSession(ctx context.Context, matrixID string) (SessionView, error) {
	m, err := s.Get(ctx, matrixID)
	if err != nil {
		return SessionView{}, err
	}
	grid, err := s.newGrid(m)
	if err != nil {
		return SessionView{}, err
	}
	if err := grid.BeginEdit(); err != nil {
		return SessionView{}, err
	}
	sess, err := s.drafts.Create(ctx, matrixID)
	if err != nil {
		return SessionView{}, err
	}
	s.logger.Info("edit session opened", slog.String("matrix_id", matrixID), slog.String("session_id", sess.ID))
	return SessionView{SessionID: sess.ID, View: grid.View()}, nil
}

// resume loads a session and rebuilds its grid in Editing state.
func (s *Service) resume(ctx context.Context, matrixID, sessionID string) (Session, *Grid, error) {
	sess, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return Session{}, nil, err
	}
	if sess.MatrixID != matrixID {
		return Session{}, nil, ErrSessionNotFound
	}
	m, err := s.store.FetchMatrix(ctx, matrixID)
	if err != nil {
		return Session{}, nil, err
	}
	grid, err := s.newGrid(m)
	if err != nil {
		return Session{}, nil, err
	}
	grid.Resume(sess.Draft)
	return sess, grid, nil
}

// SessionView renders the grid of a session with its pending values.
func (s *Service) SessionView(ctx context.Context, matrixID, sessionID string) (SessionView, error) {
	_, grid, err := s.resume(ctx, matrixID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	return SessionView{SessionID: sessionID, View: grid.View()}, nil
}

// Mutate runs fn against the session grid and persists the resulting draft.
func (s *Service) Mutate(ctx context.Context, matrixID, sessionID string, fn func(context.Context, *Grid) error) (SessionView, error) {
	sess, grid, err := s.resume(ctx, matrixID, sessionID)
	if err != nil {
		return SessionView{}, err
	}
	if err := fn(ctx, grid); err != nil {
		return SessionView{}, err
	}
	sess.Draft = grid.Draft()
	if err := s.drafts.Save(ctx, sess); err != nil {
		return SessionView{}, err
	}
	return SessionView{SessionID: sessionID, View: grid.View()}, nil
}

// SetCell records a pending cell value in the session through the cell
// editor selected by edit.Options.
func (s *Service) SetCell(ctx context.Context, matrixID, sessionID string, edit CellEdit) (SessionView, error) {
	options, err := LoadOptions(ctx, s.resources, edit.Options)
	if err != nil {
		return SessionView{}, err
	}
	return s.Mutate(ctx, matrixID, sessionID, func(_ context.Context, g *Grid) error {
		return g.Edit(edit, options)
	})
}

// SaveOutcome is the result of saving a session.
type SaveOutcome struct {
	Result SaveResult  `json:"result"`
	View   SessionView `json:"view"`
}

// Save flushes the session draft under the matrix save lock. When every
// update persisted the session is closed; otherwise it keeps the failures.
func (s *Service) Save(ctx context.Context, matrixID, sessionID string, deferFailures bool) (SaveOutcome, error) {
	sess, grid, err := s.resume(ctx, matrixID, sessionID)
	if err != nil {
		return SaveOutcome{}, err
	}
	pending := len(sess.Draft)
	if s.locker != nil {
		ttl := s.saveTimeout*time.Duration(pending+1) + 5*time.Second
		release, err := s.locker.Lock(ctx, matrixID, ttl)
		if err != nil {
			return SaveOutcome{}, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				s.logger.Warn("release save lock", slog.String("matrix_id", matrixID), slog.Any("error", err))
			}
		}()
	}

	var opts []SaveOption
	if deferFailures && s.retrier != nil {
		opts = append(opts, DeferFailures(s.retrier))
	}
	result, err := grid.Save(ctx, opts...)
	if err != nil {
		return SaveOutcome{}, err
	}
	s.logger.Info("edit session saved",
		slog.String("matrix_id", matrixID),
		slog.String("session_id", sessionID),
		slog.Int("applied", len(result.Applied)),
		slog.Int("failed", len(result.Failures)))

	out := SaveOutcome{Result: result, View: SessionView{View: grid.View()}}
	if result.State == StateViewing {
		if err := s.drafts.Delete(ctx, sessionID); err != nil {
			s.logger.Warn("delete saved session", slog.String("session_id", sessionID), slog.Any("error", err))
		}
		return out, nil
	}
	sess.Draft = grid.Draft()
	if err := s.drafts.Save(ctx, sess); err != nil {
		return SaveOutcome{}, fmt.Errorf("keep failed draft: %w", err)
	}
	out.View.SessionID = sessionID
	return out, nil
}

// Cancel discards a session without touching the store.
func (s *Service) Cancel(ctx context.Context, matrixID, sessionID string) error {
	sess, err := s.drafts.Load(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.MatrixID != matrixID {
		return ErrSessionNotFound
	}
	return s.drafts.Delete(ctx, sessionID)
}

// IsInvalid reports whether err stems from malformed matrix data.
func IsInvalid(err error) bool {
	status, _ := httpx.Classify(err)
	return status == http.StatusUnprocessableEntity
}
