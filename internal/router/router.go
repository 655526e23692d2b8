package router

import (
	"io/fs"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arko-chat/pedometer/components/assets"
	"github.com/arko-chat/pedometer/internal/handlers"
	"github.com/arko-chat/pedometer/internal/middleware"
)

// New wires the bridge endpoints. The shim is always served from shim;
// every other path goes to pages, which is either the same file system
// or a frontend dev server proxy.
func New(h *handlers.Handler, shim fs.FS, pages http.Handler, token string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestID)

	r.Get("/healthz", h.HandleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.With(middleware.Token(token)).Get("/ws", h.HandleWS)
	r.Get(assets.ShimPath, func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		http.ServeFileFS(w, req, shim, assets.ShimPath[1:])
	})

	if pages != nil {
		r.Handle("/*", pages)
	}

	return r
}

// Pages picks the handler for everything outside the bridge endpoints.
func Pages(static fs.FS, devProxy http.Handler) http.Handler {
	if devProxy != nil {
		return devProxy
	}
	return http.FileServer(http.FS(static))
}
