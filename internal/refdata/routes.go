package refdata

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrentals/rentals-backend/internal/middleware"
)

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Get("/", h.ListDistricts)
	r.Get("/{name}", h.GetDistrict)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(h.Sessions))
		r.Use(middleware.AdminMiddleware)
		r.Delete("/{name}", h.DeleteDistrict)
		r.Post("/reload", h.ReloadHandler)
	})

	return r
}
