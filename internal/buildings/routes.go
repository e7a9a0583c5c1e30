package buildings

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrentals/rentals-backend/internal/middleware"
)

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListHandler)
	r.Get("/{id}", h.GetHandler)
	r.Get("/{id}/profiles", h.ListProfilesHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(h.Sessions))
		r.Post("/", h.CreateHandler)
		r.Patch("/{id}", h.PatchHandler)
		r.Delete("/{id}", h.DeleteHandler)
		r.Put("/{id}/profiles/{user_id}", h.LinkProfileHandler)
		r.Patch("/{id}/profiles/{user_id}", h.LinkProfileHandler)
		r.Delete("/{id}/profiles/{user_id}", h.UnlinkProfileHandler)
	})

	return r
}
