package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/mapview"
	"github.com/tanzawa/locationpicker/internal/picker"
	"github.com/tanzawa/locationpicker/internal/service"
	"github.com/tanzawa/locationpicker/internal/session"
)

type LatLngRequest struct {
	Lat *float64 `json:"lat" validate:"required,min=-90,max=90"`
	Lng *float64 `json:"lng" validate:"required,min=-180,max=180"`
}

func (r LatLngRequest) Point() geo.Point {
	return geo.Point{Lat: *r.Lat, Lng: *r.Lng}
}

type CreatePickerRequest struct {
	EntryID string                `json:"entry_id" validate:"omitempty,max=64"`
	Point   string                `json:"point"`
	Address geocode.AddressFields `json:"address"`
	Center  *LatLngRequest        `json:"center"`
	Zoom    *int                  `json:"zoom" validate:"omitempty,min=0,max=22"`
}

// ClickRequest is a map click; Zoom optionally changes the view zoom first.
type ClickRequest struct {
	LatLngRequest
	Zoom *int `json:"zoom" validate:"omitempty,min=0,max=22"`
}

type SelectResultRequest struct {
	Index *int `json:"index" validate:"required,min=0"`
	Zoom  *int `json:"zoom" validate:"omitempty,min=0,max=22"`
}

// LocateRequest carries the browser's geolocation outcome: either a position or
// the error the device reported.
type LocateRequest struct {
	Lat   *float64 `json:"lat" validate:"omitempty,min=-90,max=90"`
	Lng   *float64 `json:"lng" validate:"omitempty,min=-180,max=180"`
	Error string   `json:"error" validate:"max=256"`
}

type SubmitRequest struct {
	EntryID string `json:"entry_id" validate:"required,max=64"`
}

type PickerResponse struct {
	ID     string        `json:"id"`
	Picker picker.State  `json:"picker"`
	Map    mapview.State `json:"map"`
}

// @Summary Open a location picker
// @Description Creates a picker, optionally prefilled from a stored entry location or explicit form values
// @Tags pickers
// @Accept json
// @Produce json
// @Param payload body CreatePickerRequest true "Picker options"
// @Success 201 {object} PickerResponse
// @Failure 400 {object} map[string]any
// @Router /api/pickers [post]
func (h *Handler) CreatePicker(c *gin.Context) {
	var req CreatePickerRequest
	if !h.bind(c, &req) {
		return
	}

	opts := session.OpenOptions{Point: req.Point, Address: req.Address, Zoom: req.Zoom}
	if req.Center != nil {
		center := req.Center.Point()
		opts.Center = &center
	}
	if req.EntryID != "" && req.Point == "" {
		loc, err := h.Locations.Get(c.Request.Context(), req.EntryID)
		switch {
		case err == nil:
			opts.Point = geo.MarshalPoint(loc.Point())
			opts.Address = loc.Address()
		case errors.Is(err, service.ErrLocationNotFound):
		default:
			writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to load location", err.Error())
			return
		}
	}

	s, err := h.Sessions.Open(opts)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "PICKER_ERROR", "Failed to open picker", err.Error())
		return
	}
	h.Logger.Debug().Str("picker_id", s.ID).Str("entry_id", req.EntryID).Msg("picker opened")
	render(c, http.StatusCreated, s)
}

// @Summary Picker state
// @Tags pickers
// @Produce json
// @Param id path string true "Picker ID"
// @Success 200 {object} PickerResponse
// @Failure 404 {object} map[string]any
// @Router /api/pickers/{id} [get]
func (h *Handler) GetPicker(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	render(c, http.StatusOK, s)
}

// @Summary Click the map
// @Description Places or moves the marker; pass wait=1 to return after the address lookup settles
// @Tags pickers
// @Accept json
// @Produce json
// @Param id path string true "Picker ID"
// @Param wait query bool false "Wait for reverse geocoding"
// @Param payload body ClickRequest true "Clicked position"
// @Success 200 {object} PickerResponse
// @Failure 400 {object} map[string]any
// @Router /api/pickers/{id}/click [post]
func (h *Handler) Click(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req ClickRequest
	if !h.bind(c, &req) {
		return
	}
	if h.closed(c, s) {
		return
	}
	if req.Zoom != nil {
		s.Map.SetZoom(*req.Zoom)
	}
	if err := s.Map.Click(req.Point()); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_POINT", "Invalid point", err.Error())
		return
	}
	if h.closed(c, s) {
		return
	}
	h.settle(c, s)
}

type SearchResponse struct {
	Query   string              `json:"query"`
	Results []geocode.Candidate `json:"results"`
}

// @Summary Search places
// @Description Runs the map search control; results are ordered nearest to the current view first
// @Tags pickers
// @Produce json
// @Param id path string true "Picker ID"
// @Param q query string false "Free-form query"
// @Param street query string false "Street"
// @Param locality query string false "Locality"
// @Param region query string false "Region"
// @Param country query string false "Country"
// @Param postal_code query string false "Postal code"
// @Param limit query int false "Max results"
// @Success 200 {object} SearchResponse
// @Failure 502 {object} map[string]any
// @Router /api/pickers/{id}/search [get]
func (h *Handler) Search(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	q := geocode.BuildSearchQuery(
		c.Query("q"),
		c.Query("street"),
		c.Query("locality"),
		c.Query("region"),
		c.Query("country"),
		c.Query("postal_code"),
	)
	if q == "" {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "q or an address part is required", nil)
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	results, err := s.Map.Search(c.Request.Context(), q, limit)
	if errors.Is(err, mapview.ErrNoSearchControl) {
		writeError(c, http.StatusNotImplemented, "SEARCH_UNAVAILABLE", "Search is not configured", nil)
		return
	}
	if err != nil {
		writeError(c, http.StatusBadGateway, "GEOCODER_ERROR", "Search failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, SearchResponse{Query: q, Results: results})
}

// @Summary Select a search result
// @Tags pickers
// @Accept json
// @Produce json
// @Param id path string true "Picker ID"
// @Param wait query bool false "Wait for reverse geocoding"
// @Param payload body SelectResultRequest true "Result index"
// @Success 200 {object} PickerResponse
// @Failure 404 {object} map[string]any
// @Router /api/pickers/{id}/search/select [post]
func (h *Handler) SelectResult(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req SelectResultRequest
	if !h.bind(c, &req) {
		return
	}
	if h.closed(c, s) {
		return
	}
	if req.Zoom != nil {
		s.Map.SetZoom(*req.Zoom)
	}
	if err := s.Map.SelectResult(*req.Index); err != nil {
		writeError(c, http.StatusNotFound, "RESULT_NOT_FOUND", "No such search result", err.Error())
		return
	}
	if h.closed(c, s) {
		return
	}
	h.settle(c, s)
}

// @Summary Use current location
// @Description Reports the device position (or the error the device gave) to the picker
// @Tags pickers
// @Accept json
// @Produce json
// @Param id path string true "Picker ID"
// @Param wait query bool false "Wait for reverse geocoding"
// @Param payload body LocateRequest true "Device position"
// @Success 200 {object} PickerResponse
// @Failure 422 {object} map[string]any
// @Router /api/pickers/{id}/locate [post]
func (h *Handler) Locate(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req LocateRequest
	if !h.bind(c, &req) {
		return
	}
	if req.Error == "" && (req.Lat == nil || req.Lng == nil) {
		writeError(c, http.StatusBadRequest, "VALIDATION_ERROR", "lat and lng or error is required", nil)
		return
	}

	locator := picker.LocatorFunc(func(context.Context) (geo.Point, error) {
		if req.Error != "" {
			return geo.Point{}, errors.New(req.Error)
		}
		return geo.Point{Lat: *req.Lat, Lng: *req.Lng}, nil
	})
	err := s.Picker.UseCurrentLocation(c.Request.Context(), locator)
	switch {
	case errors.Is(err, picker.ErrLocationUnavailable):
		writeError(c, http.StatusUnprocessableEntity, "LOCATION_UNAVAILABLE", "Current location unavailable", err.Error())
		return
	case err != nil:
		h.pickerError(c, err)
		return
	}
	h.settle(c, s)
}

// @Summary Reset the picker
// @Tags pickers
// @Produce json
// @Param id path string true "Picker ID"
// @Success 200 {object} PickerResponse
// @Router /api/pickers/{id}/reset [post]
func (h *Handler) Reset(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Picker.Reset(); err != nil {
		h.pickerError(c, err)
		return
	}
	render(c, http.StatusOK, s)
}

// @Summary Remove the location
// @Tags pickers
// @Produce json
// @Param id path string true "Picker ID"
// @Success 200 {object} PickerResponse
// @Router /api/pickers/{id}/remove [post]
func (h *Handler) Remove(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	if err := s.Picker.Remove(); err != nil {
		h.pickerError(c, err)
		return
	}
	render(c, http.StatusOK, s)
}

// @Summary Save the picked location
// @Description Stores the form's point and address for an entry; an empty point deletes the stored location
// @Tags pickers
// @Accept json
// @Produce json
// @Param id path string true "Picker ID"
// @Param payload body SubmitRequest true "Target entry"
// @Success 200 {object} service.SubmitResult
// @Failure 400 {object} map[string]any
// @Router /api/pickers/{id}/submit [post]
func (h *Handler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	var req SubmitRequest
	if !h.bind(c, &req) {
		return
	}

	s.Picker.Wait()
	snap := s.Form.Snapshot()
	res, err := h.Locations.Submit(c.Request.Context(), req.EntryID, snap.Point, snap.Address)
	if errors.Is(err, service.ErrInvalidPoint) {
		writeError(c, http.StatusBadRequest, "INVALID_POINT", "Invalid point", err.Error())
		return
	}
	if err != nil {
		writeError(c, http.StatusInternalServerError, "DB_ERROR", "Failed to save location", err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

// @Summary Close a picker
// @Tags pickers
// @Param id path string true "Picker ID"
// @Success 204
// @Failure 404 {object} map[string]any
// @Router /api/pickers/{id} [delete]
func (h *Handler) DeletePicker(c *gin.Context) {
	if err := h.Sessions.Delete(c.Param("id")); err != nil {
		writeError(c, http.StatusNotFound, "PICKER_NOT_FOUND", "Picker not found", nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) session(c *gin.Context) (*session.Session, bool) {
	s, err := h.Sessions.Get(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusNotFound, "PICKER_NOT_FOUND", "Picker not found", nil)
		return nil, false
	}
	return s, true
}

// closed answers 410 when the picker was closed under the session, e.g. by the
// idle sweep.
func (h *Handler) closed(c *gin.Context, s *session.Session) bool {
	if !s.Picker.Closed() {
		return false
	}
	h.pickerError(c, picker.ErrClosed)
	return true
}

func (h *Handler) settle(c *gin.Context, s *session.Session) {
	if wait, _ := strconv.ParseBool(c.Query("wait")); wait {
		s.Picker.Wait()
	}
	render(c, http.StatusOK, s)
}

func (h *Handler) pickerError(c *gin.Context, err error) {
	if errors.Is(err, picker.ErrClosed) {
		writeError(c, http.StatusGone, "PICKER_CLOSED", "Picker closed", nil)
		return
	}
	writeError(c, http.StatusInternalServerError, "PICKER_ERROR", "Picker error", err.Error())
}

func render(c *gin.Context, status int, s *session.Session) {
	c.JSON(status, PickerResponse{ID: s.ID, Picker: s.Picker.State(), Map: s.Map.State()})
}
