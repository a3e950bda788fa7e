package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"notto/internal/admin/reconcile"
	drawservice "notto/internal/draw/service"
	prompt "notto/internal/prompt/models"
	promptservice "notto/internal/prompt/service"
	"notto/pkg/platform/httputil"
)

type adminHandler struct {
	draw    *drawservice.Service
	prompts *promptservice.Service
	engine  *reconcile.Engine
	logger  *slog.Logger
}

func (h *adminHandler) Register(r chi.Router) {
	r.Post("/process-pending", h.handleProcessPending)
	r.Post("/draw", h.handleDraw)
	r.Post("/backfill", h.handleBackfill)
	r.Post("/winning", h.handleWinning)

	r.Get("/changes", h.handleSnapshot)
	r.Post("/changes", h.handleCommit)

	r.Get("/prompts", h.handleListPrompts)
	r.Post("/prompts", h.handleCreatePrompt)
	r.Post("/prompts/{id}/activate", h.handleActivatePrompt)
}

func (h *adminHandler) handleProcessPending(w http.ResponseWriter, r *http.Request) {
	result, err := h.draw.ProcessPending(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "process pending failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type drawRequest struct {
	RoundNumber int    `json:"round_number,omitempty"`
	DrawDate    string `json:"draw_date,omitempty"`
}

func (h *adminHandler) handleDraw(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[drawRequest](w, r)
	if !ok {
		return
	}

	result, err := h.draw.DrawWeekly(r.Context(), req.RoundNumber, req.DrawDate)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "weekly draw failed",
			"round", req.RoundNumber, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type backfillRequest struct {
	RoundNumber int `json:"round_number"`
}

func (h *adminHandler) handleBackfill(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[backfillRequest](w, r)
	if !ok {
		return
	}

	result, err := h.draw.BackfillRound(r.Context(), req.RoundNumber)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "backfill failed",
			"round", req.RoundNumber, "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

type winningRequest struct {
	RoundNumber int   `json:"round_number"`
	Numbers     []int `json:"numbers"`
	BonusNumber *int  `json:"bonus_number,omitempty"`
}

func (h *adminHandler) handleWinning(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[winningRequest](w, r)
	if !ok {
		return
	}

	result, err := h.draw.SetWinningNumbers(r.Context(), req.RoundNumber, req.Numbers, req.BonusNumber)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *adminHandler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.engine.Snapshot(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, snap)
}

type commitRequest struct {
	BaseVersion string              `json:"base_version"`
	Changes     reconcile.ChangeSet `json:"changes"`
}

func (h *adminHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[commitRequest](w, r)
	if !ok {
		return
	}

	result, err := h.engine.Commit(r.Context(), req.BaseVersion, req.Changes)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "commit failed", "error", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *adminHandler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	prompts, err := h.prompts.List(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"prompts": prompts})
}

type createPromptRequest struct {
	Type     string `json:"type"`
	Content  string `json:"content"`
	Activate bool   `json:"activate,omitempty"`
}

func (h *adminHandler) handleCreatePrompt(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[createPromptRequest](w, r)
	if !ok {
		return
	}

	created, err := h.prompts.Create(r.Context(), prompt.Type(req.Type), req.Content, req.Activate)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *adminHandler) handleActivatePrompt(w http.ResponseWriter, r *http.Request) {
	if err := h.prompts.Activate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "activated"})
}
