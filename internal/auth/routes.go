package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrentals/rentals-backend/internal/middleware"
)

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()

	r.Group(func(r chi.Router) {
		if h.LoginRate > 0 {
			r.Use(middleware.RateLimit(h.LoginRate, h.LoginBurst))
		}
		r.Post("/login", h.LoginHandler)
		r.Post("/register", h.RegisterHandler)
	})
	r.Post("/logout", h.LogoutHandler)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionMiddleware(h.Sessions))
		r.Get("/me", h.MeHandler)
		r.Post("/password", h.PasswordHandler)
	})

	return r
}

// UserRoutes is returned as a chi.Router so other features can hang
// per-user endpoints off /{user_id}.
func (h *Handler) UserRoutes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.SessionMiddleware(h.Sessions))

	r.With(middleware.AdminMiddleware).Get("/", h.ListUsersHandler)
	r.Get("/{user_id}", h.GetUserHandler)
	r.Patch("/{user_id}", h.PatchUserHandler)
	r.Delete("/{user_id}", h.DeleteUserHandler)
	r.Get("/{user_id}/profile", h.GetProfileHandler)
	r.Patch("/{user_id}/profile", h.PatchProfileHandler)
	r.Delete("/{user_id}/profile", h.DeleteProfileHandler)

	return r
}
