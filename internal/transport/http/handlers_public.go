package httptransport

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	drawservice "notto/internal/draw/service"
	identityservice "notto/internal/identity/service"
	"notto/pkg/platform/httputil"
)

type publicHandler struct {
	identity *identityservice.Service
	draw     *drawservice.Service
	logger   *slog.Logger
}

func (h *publicHandler) Register(r chi.Router) {
	r.Post("/register", h.handleRegister)
	r.Get("/check-name", h.handleCheckName)
	r.Get("/fixed", h.handleFixed)
	r.Get("/search", h.handleSearch)
	r.Get("/users", h.handleUsers)
	r.Get("/round", h.handleRound)
}

type registerRequest struct {
	Name string `json:"name"`
}

func (h *publicHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	req, ok := httputil.Decode[registerRequest](w, r)
	if !ok {
		return
	}

	result, err := h.identity.Register(r.Context(), req.Name)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, result)
}

func (h *publicHandler) handleCheckName(w http.ResponseWriter, r *http.Request) {
	result, err := h.identity.CheckName(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *publicHandler) handleFixed(w http.ResponseWriter, r *http.Request) {
	result, err := h.identity.Lookup(r.Context(), r.URL.Query().Get("name"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *publicHandler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.identity.Search(r.Context(), q.Get("q"), queryInt(q.Get("page")), queryInt(q.Get("per_page")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *publicHandler) handleUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.identity.List(r.Context(), q.Get("sort"), queryInt(q.Get("page")), queryInt(q.Get("per_page")))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, result)
}

func (h *publicHandler) handleRound(w http.ResponseWriter, r *http.Request) {
	info, err := h.draw.RoundInfo(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, info)
}

// queryInt parses an optional numeric query parameter; anything unparsable
// falls back to zero and the service applies its defaults.
func queryInt(raw string) int {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return n
}
