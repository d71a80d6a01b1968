// Package httpapi exposes the engine over HTTP: batch submission, marker
// inspection and a health check.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts every route on a chi router.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware)
	r.Use(logMiddleware)
	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/batches", h.submitBatch)
		r.Get("/markers/{hbx_enrollment_id}", h.listMarkers)
	})
	return r
}
