package proximity

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openrentals/rentals-backend/internal/geo"
	"github.com/openrentals/rentals-backend/internal/utils"
)

type Handler struct {
	Resolver *Resolver
}

type NearbyResponse struct {
	Location   string                 `json:"location"`
	NearbyPOIs map[string][]NearbyPOI `json:"nearby_pois"`
}

// NearbyHandler resolves POIs around an arbitrary ?location=lat,lon.
func (h *Handler) NearbyHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p, err := geo.ParseCoordinate(q.Get("location"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp := NearbyResponse{
		Location:   geo.FormatCoordinate(p),
		NearbyPOIs: h.Resolver.Resolve(r.Context(), p, ParseConstraints(q)),
	}
	utils.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) SetupRoutes() http.Handler {
	r := chi.NewRouter()
	r.Get("/nearby", h.NearbyHandler)
	return r
}
