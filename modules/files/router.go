package files

import "github.com/go-chi/chi/v5"

// Routes returns the file API router, intended to be mounted under a
// versioned prefix (e.g. /v1/files).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.upload)
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Get("/{id}/download", h.download)
	r.Patch("/{id}/tags", h.updateTags)
	r.Delete("/{id}", h.delete)

	return r
}
