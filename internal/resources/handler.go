package resources

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/slotbook/internal/platform/httpx"
)

// Handler exposes the read-only resource lookups.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers resource routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/bins", h.listBins)
	r.Get("/products", h.listProducts)
}

func (h *Handler) listBins(w http.ResponseWriter, r *http.Request) {
	bins, err := h.service.Bins(r.Context())
	if err != nil {
		h.logger.Error("list bins failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bins": bins})
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.Products(r.Context())
	if err != nil {
		h.logger.Error("list products failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"products": products})
}
