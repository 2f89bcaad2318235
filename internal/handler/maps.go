package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dukerupert/niramay/internal/maps"
)

type MapsHandler struct {
	service *maps.Service
	logger  *slog.Logger
}

func NewMapsHandler(svc *maps.Service, logger *slog.Logger) *MapsHandler {
	return &MapsHandler{service: svc, logger: logger}
}

// Config handles GET /api/maps/config
func (h *MapsHandler) Config(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.BrowserConfig())
}

// Reverse handles GET /api/maps/reverse?lat=&lng=
func (h *MapsHandler) Reverse(w http.ResponseWriter, r *http.Request) {
	p, err := parsePoint(r.URL.Query().Get("lat"), r.URL.Query().Get("lng"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	place, err := h.service.ReverseGeocode(r.Context(), p)
	if errors.Is(err, maps.ErrNotConfigured) {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	if err != nil {
		h.logger.Warn("reverse geocode", "lat", p.Lat, "lng", p.Lng, "error", err)
		writeError(w, http.StatusBadGateway, "address lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, place)
}
