package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/models"
	"github.com/tanzawa/locationpicker/internal/service"
)

type LocationResponse struct {
	models.Location
	Point   string `json:"point"`
	Summary string `json:"summary"`
}

// @Summary Stored location of an entry
// @Tags locations
// @Produce json
// @Param entry_id path string true "Entry ID"
// @Success 200 {object} LocationResponse
// @Failure 404 {object} map[string]any
// @Router /api/locations/{entry_id} [get]
func (h *Handler) GetLocation(c *gin.Context) {
	loc, err := h.Locations.Get(c.Request.Context(), c.Param("entry_id"))
	if errors.Is(err, service.ErrLocationNotFound) {
		writeError(c, http.StatusNotFound, "LOCATION_NOT_FOUND", "Location not found", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load location", err.Error())
		return
	}
	c.JSON(http.StatusOK, LocationResponse{
		Location: loc,
		Point:    geo.MarshalPoint(loc.Point()),
		Summary:  loc.Summary(),
	})
}

// @Summary Reverse geocode a point
// @Tags geocode
// @Produce json
// @Param lat query number true "Latitude"
// @Param lng query number true "Longitude"
// @Success 200 {object} geocode.AddressFields
// @Failure 404 {object} map[string]any
// @Failure 502 {object} map[string]any
// @Router /api/geocode/reverse [get]
func (h *Handler) ReverseGeocode(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	p := geo.Point{Lat: lat, Lng: lng}
	if errLat != nil || errLng != nil || !p.Valid() {
		writeError(c, http.StatusBadRequest, "INVALID_POINT", "lat and lng must be valid coordinates", nil)
		return
	}

	addr, err := h.Locations.Reverse(c.Request.Context(), p)
	if errors.Is(err, geocode.ErrNotFound) {
		writeError(c, http.StatusNotFound, "ADDRESS_NOT_FOUND", "No address at this point", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusBadGateway, "GEOCODER_ERROR", "Reverse geocoding failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, addr)
}
