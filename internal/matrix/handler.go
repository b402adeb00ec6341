package matrix

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// Handler exposes matrices, their structure and edit sessions over JSON.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers matrix routes under the API router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/rooms/{roomID}/matrix", h.getByRoom)
	r.Route("/matrices", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Get("/editor", h.editor)
			r.Get("/export.xlsx", h.export)

			r.Post("/rows", h.addRow)
			r.Patch("/rows/{rowID}", h.updateRow)
			r.Delete("/rows/{rowID}", h.deleteRow)
			r.Post("/columns", h.addColumn)
			r.Patch("/columns/{columnID}", h.updateColumn)
			r.Delete("/columns/{columnID}", h.deleteColumn)
			r.Put("/cells", h.updateCell)

			r.Post("/sessions", h.beginSession)
			r.Route("/sessions/{sid}", func(r chi.Router) {
				r.Get("/", h.sessionView)
				r.Delete("/", h.cancelSession)
				r.Put("/cells", h.sessionCell)
				r.Post("/save", h.saveSession)
				r.Post("/rows", h.sessionAddRow)
				r.Patch("/rows/{rowID}", h.sessionUpdateRow)
				r.Delete("/rows/{rowID}", h.sessionDeleteRow)
				r.Post("/columns", h.sessionAddColumn)
				r.Patch("/columns/{columnID}", h.sessionUpdateColumn)
				r.Delete("/columns/{columnID}", h.sessionDeleteColumn)
			})
		})
	})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	if IsInvalid(err) {
		h.logger.Warn(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.JSON(w, http.StatusUnprocessableEntity, map[string]string{"state": "invalid", "detail": err.Error()})
		return
	}
	status, _ := httpx.Classify(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	} else {
		h.logger.Debug(msg, slog.String("path", r.URL.Path), slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MatrixFilter{RoomID: q.Get("room_id"), Search: q.Get("search")}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Invalid limit", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	items, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, "list matrices failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"matrices": items})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var in MatrixInput
	if !h.decode(w, r, &in) {
		return
	}
	m, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create matrix failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "get matrix failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) getByRoom(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetByRoom(r.Context(), chi.URLParam(r, "roomID"))
	if err != nil {
		h.fail(w, r, "get room matrix failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) editor(w http.ResponseWriter, r *http.Request) {
	payload, err := h.service.Editor(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "load editor failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, payload)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var buf bytes.Buffer
	if err := h.service.Export(r.Context(), id, &buf); err != nil {
		h.fail(w, r, "export matrix failed", err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="matrix-`+id+`.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) addRow(w http.ResponseWriter, r *http.Request) {
	var form RowForm
	if !h.decode(w, r, &form) {
		return
	}
	row, err := h.service.AddRow(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		h.fail(w, r, "add row failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, row)
}

func (h *Handler) updateRow(w http.ResponseWriter, r *http.Request) {
	var patch RowPatch
	if !h.decode(w, r, &patch) {
		return
	}
	if err := h.service.UpdateRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rowID"), patch); err != nil {
		h.fail(w, r, "update row failed", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deleteRow(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteRow(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "rowID")); err != nil {
		h.fail(w, r, "delete row failed", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) addColumn(w http.ResponseWriter, r *http.Request) {
	var form ColumnForm
	if !h.decode(w, r, &form) {
		return
	}
	col, err := h.service.AddColumn(r.Context(), chi.URLParam(r, "id"), form)
	if err != nil {
		h.fail(w, r, "add column failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, col)
}

func (h *Handler) updateColumn(w http.ResponseWriter, r *http.Request) {
	var form ColumnForm
	if !h.decode(w, r, &form) {
		return
	}
	if err := h.service.UpdateColumn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "columnID"), form); err != nil {
		h.fail(w, r, "update column failed", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) deleteColumn(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteColumn(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "columnID")); err != nil {
		h.fail(w, r, "delete column failed", err)
		return
	}
	httpx.NoContent(w)
}

type cellRequest struct {
	RowID    string `json:"row_id"`
	ColumnID string `json:"column_id"`
	Value    string `json:"value"`
}

func (h *Handler) updateCell(w http.ResponseWriter, r *http.Request) {
	var req cellRequest
	if !h.decode(w, r, &req) {
		return
	}
	update := CellUpdate{MatrixID: chi.URLParam(r, "id"), RowID: req.RowID, ColumnID: req.ColumnID, Value: req.Value}
	if err := h.service.UpdateCell(r.Context(), update); err != nil {
		h.fail(w, r, "update cell failed", err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) beginSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.BeginSession(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, "begin edit session failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, view)
}

func (h *Handler) sessionView(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.SessionView(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"))
	if err != nil {
		h.fail(w, r, "load edit session failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

func (h *Handler) cancelSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Cancel(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid")); err != nil {
		h.fail(w, r, "cancel edit session failed", err)
		return
	}
	httpx.NoContent(w)
}

type sessionCellRequest struct {
	cellRequest
	Options OptionSet `json:"options,omitempty"`
}

func (h *Handler) sessionCell(w http.ResponseWriter, r *http.Request) {
	var req sessionCellRequest
	if !h.decode(w, r, &req) {
		return
	}
	edit := CellEdit{RowID: req.RowID, ColumnID: req.ColumnID, Value: req.Value, Options: req.Options}
	view, err := h.service.SetCell(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"), edit)
	if err != nil {
		h.fail(w, r, "set session cell failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, view)
}

type saveRequest struct {
	DeferFailures bool `json:"defer_failures"`
}

func (h *Handler) saveSession(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	out, err := h.service.Save(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"), req.DeferFailures)
	if err != nil {
		h.fail(w, r, "save edit session failed", err)
		return
	}
	status := http.StatusOK
	if !out.Result.OK() {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, out)
}

// mutate runs a structural change inside a session and answers with the view.
func (h *Handler) mutate(w http.ResponseWriter, r *http.Request, status int, msg string, fn func(*http.Request, *Grid) error) {
	view, err := h.service.Mutate(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "sid"), func(_ context.Context, g *Grid) error {
		return fn(r, g)
	})
	if err != nil {
		h.fail(w, r, msg, err)
		return
	}
	httpx.JSON(w, status, view)
}

func (h *Handler) sessionAddRow(w http.ResponseWriter, r *http.Request) {
	var form RowForm
	if !h.decode(w, r, &form) {
		return
	}
	h.mutate(w, r, http.StatusCreated, "session add row failed", func(r *http.Request, g *Grid) error {
		_, err := g.AddRow(r.Context(), form)
		return err
	})
}

func (h *Handler) sessionUpdateRow(w http.ResponseWriter, r *http.Request) {
	var patch RowPatch
	if !h.decode(w, r, &patch) {
		return
	}
	h.mutate(w, r, http.StatusOK, "session update row failed", func(r *http.Request, g *Grid) error {
		return g.UpdateRow(r.Context(), chi.URLParam(r, "rowID"), patch)
	})
}

func (h *Handler) sessionDeleteRow(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, "session delete row failed", func(r *http.Request, g *Grid) error {
		return g.DeleteRow(r.Context(), chi.URLParam(r, "rowID"))
	})
}

func (h *Handler) sessionAddColumn(w http.ResponseWriter, r *http.Request) {
	var form ColumnForm
	if !h.decode(w, r, &form) {
		return
	}
	h.mutate(w, r, http.StatusCreated, "session add column failed", func(r *http.Request, g *Grid) error {
		_, err := g.AddColumn(r.Context(), form)
		return err
	})
}

func (h *Handler) sessionUpdateColumn(w http.ResponseWriter, r *http.Request) {
	var form ColumnForm
	if !h.decode(w, r, &form) {
		return
	}
	h.mutate(w, r, http.StatusOK, "session update column failed", func(r *http.Request, g *Grid) error {
		return g.UpdateColumn(r.Context(), chi.URLParam(r, "columnID"), form)
	})
}

func (h *Handler) sessionDeleteColumn(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, http.StatusOK, "session delete column failed", func(r *http.Request, g *Grid) error {
		return g.DeleteColumn(r.Context(), chi.URLParam(r, "columnID"))
	})
}
