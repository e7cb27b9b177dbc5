package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/koopa0/recall/internal/knowledge"
)

// ResourceHandler handles direct knowledge-base ingestion, bypassing the
// conversation loop. Useful for bulk loading and automation.
type ResourceHandler struct {
	knowledge *knowledge.System
	logger    *slog.Logger
}

// NewResourceHandler creates a resource handler.
func NewResourceHandler(kb *knowledge.System, logger *slog.Logger) *ResourceHandler {
	return &ResourceHandler{knowledge: kb, logger: logger}
}

// RegisterRoutes registers resource routes on the given mux.
func (h *ResourceHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/resources", h.handleAdd)
}

// ResourceRequest is the POST /api/resources request body.
type ResourceRequest struct {
	Content string `json:"content"`
}

// ResourceResponse reports how many chunks the resource produced.
type ResourceResponse struct {
	Chunks int `json:"chunks"`
}

func (h *ResourceHandler) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req ResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", fmt.Sprintf("invalid request body: %v", err), h.logger)
		return
	}

	n, err := h.knowledge.AddResource(r.Context(), req.Content)
	if err != nil {
		if errors.Is(err, knowledge.ErrEmptyResource) {
			writeError(w, http.StatusBadRequest, "EMPTY_RESOURCE", "content produced no chunks", h.logger)
			return
		}
		h.logger.Error("resource ingestion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "INGESTION_FAILED", "failed to add resource", h.logger)
		return
	}

	writeJSON(w, http.StatusCreated, ResourceResponse{Chunks: n}, h.logger)
}
