// Package httptransport wires the public and admin APIs onto one chi router.
// Handlers stay thin: decode, delegate to a service, encode.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notto/internal/admin/reconcile"
	drawservice "notto/internal/draw/service"
	identityservice "notto/internal/identity/service"
	"notto/internal/platform/middleware"
	promptservice "notto/internal/prompt/service"
	"notto/pkg/platform/httputil"
	adminmw "notto/pkg/platform/middleware/admin"
)

// Deps collects everything the router serves.
type Deps struct {
	Identity   *identityservice.Service
	Draw       *drawservice.Service
	Prompts    *promptservice.Service
	Engine     *reconcile.Engine
	AdminToken string
	Logger     *slog.Logger
	// Health reports storage reachability for the health endpoint; nil means
	// no dependency check.
	Health func(ctx context.Context) error
}

// NewRouter builds the full route tree.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestMeta)
	r.Use(middleware.RequestLogger(deps.Logger))

	r.Get("/healthz", handleHealth(deps.Health))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	public := &publicHandler{identity: deps.Identity, draw: deps.Draw, logger: deps.Logger}
	admin := &adminHandler{
		draw:    deps.Draw,
		prompts: deps.Prompts,
		engine:  deps.Engine,
		logger:  deps.Logger,
	}

	r.Route("/api", func(r chi.Router) {
		public.Register(r)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminmw.RequireToken(deps.AdminToken, deps.Logger))
			admin.Register(r)
		})
	})

	return r
}

func handleHealth(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				httputil.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
				return
			}
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
