package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/go-cmp/cmp"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/tanzawa/locationpicker/internal/form"
	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/models"
	"github.com/tanzawa/locationpicker/internal/service"
	"github.com/tanzawa/locationpicker/internal/session"
)

var hadano = map[string]string{
	"town":     "Hadano",
	"state":    "Kanagawa",
	"country":  "Japan",
	"postcode": "257-0000",
}

type stubGeocoder struct{}

func (stubGeocoder) Reverse(ctx context.Context, p geo.Point) ([]geocode.Candidate, error) {
	if p.Lat < 0 {
		return nil, nil
	}
	return []geocode.Candidate{{Point: p, DisplayName: "Hadano", Address: hadano}}, nil
}

func (stubGeocoder) Search(ctx context.Context, query string, limit int) ([]geocode.Candidate, error) {
	return []geocode.Candidate{
		{Point: geo.Point{Lat: 43.06, Lng: 141.35}, DisplayName: "Sapporo"},
		{Point: geo.Point{Lat: 35.44, Lng: 139.14}, DisplayName: "Tonodake"},
	}, nil
}

type memStore struct {
	rows map[string]models.Location
}

func (m *memStore) GetLocation(ctx context.Context, entryID string) (models.Location, error) {
	l, ok := m.rows[entryID]
	if !ok {
		return models.Location{}, pgx.ErrNoRows
	}
	return l, nil
}

func (m *memStore) UpsertLocation(ctx context.Context, l models.Location) (models.Location, error) {
	m.rows[l.EntryID] = l
	return l, nil
}

func (m *memStore) DeleteLocation(ctx context.Context, entryID string) (bool, error) {
	_, ok := m.rows[entryID]
	delete(m.rows, entryID)
	return ok, nil
}

func (m *memStore) Ping(ctx context.Context) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *memStore, *Handler) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := &memStore{rows: map[string]models.Location{}}
	sessions := &session.Registry{
		Geocoder: stubGeocoder{},
		Defaults: session.MapDefaults{Center: geo.Point{Lat: 35.4, Lng: 139.1}, Zoom: 9, MinZoom: 1, MaxZoom: 18},
		Logger:   zerolog.Nop(),
	}
	t.Cleanup(func() { sessions.Sweep(-1) })
	h := &Handler{
		Sessions:  sessions,
		Locations: &service.LocationService{Store: store, Geocoder: stubGeocoder{}, Logger: zerolog.Nop()},
		Store:     store,
		Validator: validator.New(),
		Logger:    zerolog.Nop(),
	}

	r := gin.New()
	r.GET("/healthz", h.Healthz)
	r.POST("/api/pickers", h.CreatePicker)
	r.GET("/api/pickers/:id", h.GetPicker)
	r.DELETE("/api/pickers/:id", h.DeletePicker)
	r.POST("/api/pickers/:id/click", h.Click)
	r.GET("/api/pickers/:id/search", h.Search)
	r.POST("/api/pickers/:id/search/select", h.SelectResult)
	r.POST("/api/pickers/:id/locate", h.Locate)
	r.POST("/api/pickers/:id/reset", h.Reset)
	r.POST("/api/pickers/:id/remove", h.Remove)
	r.POST("/api/pickers/:id/submit", h.Submit)
	r.GET("/api/locations/:entry_id", h.GetLocation)
	r.GET("/api/geocode/reverse", h.ReverseGeocode)
	return r, store, h
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodePicker(t *testing.T, w *httptest.ResponseRecorder, wantStatus int) PickerResponse {
	t.Helper()
	if w.Code != wantStatus {
		t.Fatalf("expected %d, got %d: %s", wantStatus, w.Code, w.Body.String())
	}
	var resp PickerResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return resp
}

func TestPickerLifecycle(t *testing.T) {
	r, _, _ := newTestRouter(t)

	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	if created.Picker.Point != "" || created.Picker.Marker != nil {
		t.Fatalf("fresh picker should be empty: %+v", created.Picker)
	}
	if created.Picker.Controls[form.ControlReset] || created.Picker.Controls[form.ControlRemove] || !created.Picker.Controls[form.ControlLocate] {
		t.Fatalf("unexpected initial controls: %v", created.Picker.Controls)
	}
	if created.Map.Zoom != 9 {
		t.Fatalf("expected default zoom 9, got %d", created.Map.Zoom)
	}
	base := "/api/pickers/" + created.ID

	clicked := decodePicker(t, do(t, r, http.MethodPost, base+"/click?wait=1", map[string]any{"lat": 35.37, "lng": 139.22}), http.StatusOK)
	want := geo.MarshalPoint(geo.Point{Lat: 35.37, Lng: 139.22})
	if clicked.Picker.Point != want {
		t.Fatalf("expected point %s, got %s", want, clicked.Picker.Point)
	}
	wantAddr := geocode.AddressFields{StreetAddress: " ", Locality: "Hadano", Region: "Kanagawa", Country: "Japan", PostalCode: "257-0000"}
	if diff := cmp.Diff(wantAddr, clicked.Picker.Address); diff != "" {
		t.Fatalf("address mismatch (-want +got):\n%s", diff)
	}
	if !clicked.Picker.Controls[form.ControlReset] || !clicked.Picker.Controls[form.ControlRemove] {
		t.Fatalf("reset and remove should be visible: %v", clicked.Picker.Controls)
	}
	if len(clicked.Map.Markers) != 1 || clicked.Map.Center != (geo.Point{Lat: 35.37, Lng: 139.22}) {
		t.Fatalf("unexpected map state: %+v", clicked.Map)
	}

	removed := decodePicker(t, do(t, r, http.MethodPost, base+"/remove", nil), http.StatusOK)
	if removed.Picker.Point != "" || !removed.Picker.Address.IsZero() || len(removed.Map.Markers) != 0 {
		t.Fatalf("remove should clear everything: %+v", removed)
	}
	if removed.Picker.Controls[form.ControlReset] || removed.Picker.Controls[form.ControlRemove] {
		t.Fatalf("no initial point, reset and remove should be hidden: %v", removed.Picker.Controls)
	}

	if w := do(t, r, http.MethodDelete, base, nil); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, base, nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", w.Code)
	}
}

func TestClickValidation(t *testing.T) {
	r, _, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID

	if w := do(t, r, http.MethodPost, base+"/click", map[string]any{"lat": 95, "lng": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range lat, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/click", map[string]any{"lng": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing lat, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, "/api/pickers/missing/click", map[string]any{"lat": 1, "lng": 1}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown picker, got %d", w.Code)
	}
}

func TestSubmitAndReopen(t *testing.T) {
	r, store, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID

	do(t, r, http.MethodPost, base+"/click", map[string]any{"lat": 35.37, "lng": 139.22})
	w := do(t, r, http.MethodPost, base+"/submit", map[string]any{"entry_id": "e1"})
	if w.Code != http.StatusOK {
		t.Fatalf("submit: %d %s", w.Code, w.Body.String())
	}
	var res service.SubmitResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != service.SubmitSaved || store.rows["e1"].Locality != "Hadano" {
		t.Fatalf("unexpected submit result %+v rows %+v", res, store.rows)
	}

	w = do(t, r, http.MethodGet, "/api/locations/e1", nil)
	var loc LocationResponse
	if err := json.Unmarshal(w.Body.Bytes(), &loc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if loc.Summary != "Hadano, Kanagawa, Japan" {
		t.Fatalf("unexpected summary %q", loc.Summary)
	}

	reopened := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{"entry_id": "e1"}), http.StatusCreated)
	if reopened.Picker.Point != loc.Point || reopened.Picker.Marker == nil {
		t.Fatalf("reopened picker should carry the stored point: %+v", reopened.Picker)
	}
	if reopened.Picker.Controls[form.ControlReset] || !reopened.Picker.Controls[form.ControlRemove] {
		t.Fatalf("unexpected controls: %v", reopened.Picker.Controls)
	}
	rbase := "/api/pickers/" + reopened.ID

	decodePicker(t, do(t, r, http.MethodPost, rbase+"/click?wait=1", map[string]any{"lat": -10, "lng": 10}), http.StatusOK)
	reset := decodePicker(t, do(t, r, http.MethodPost, rbase+"/reset", nil), http.StatusOK)
	if reset.Picker.Point != loc.Point || reset.Picker.Address.Locality != "Hadano" {
		t.Fatalf("reset should restore the stored location: %+v", reset.Picker)
	}

	do(t, r, http.MethodPost, rbase+"/remove", nil)
	w = do(t, r, http.MethodPost, rbase+"/submit", map[string]any{"entry_id": "e1"})
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Status != service.SubmitDeleted {
		t.Fatalf("expected DELETED, got %+v", res)
	}
	if w := do(t, r, http.MethodGet, "/api/locations/e1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestLocate(t *testing.T) {
	r, _, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID

	if w := do(t, r, http.MethodPost, base+"/locate", map[string]any{"error": "User denied Geolocation"}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/locate", map[string]any{}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty body, got %d", w.Code)
	}
	unchanged := decodePicker(t, do(t, r, http.MethodGet, base, nil), http.StatusOK)
	if unchanged.Picker.Point != "" || !unchanged.Picker.Controls[form.ControlLocate] {
		t.Fatalf("denied location must not change the picker: %+v", unchanged.Picker)
	}

	located := decodePicker(t, do(t, r, http.MethodPost, base+"/locate?wait=1", map[string]any{"lat": 35.37, "lng": 139.22}), http.StatusOK)
	if located.Picker.Controls[form.ControlLocate] {
		t.Fatalf("locate should be hidden after use")
	}
	if located.Picker.Address.Locality != "Hadano" {
		t.Fatalf("expected address lookup, got %+v", located.Picker.Address)
	}
}

func TestSearchAndSelect(t *testing.T) {
	r, _, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID

	if w := do(t, r, http.MethodGet, base+"/search", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without q, got %d", w.Code)
	}
	w := do(t, r, http.MethodGet, base+"/search?q=tonodake", nil)
	var sr SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sr.Results) != 2 || sr.Results[0].DisplayName != "Tonodake" {
		t.Fatalf("expected nearest result first, got %+v", sr.Results)
	}

	if w := do(t, r, http.MethodPost, base+"/search/select", map[string]any{"index": 5}); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown index, got %d", w.Code)
	}
	selected := decodePicker(t, do(t, r, http.MethodPost, base+"/search/select?wait=1", map[string]any{"index": 0}), http.StatusOK)
	if selected.Picker.Point != geo.MarshalPoint(sr.Results[0].Point) {
		t.Fatalf("selection should place the marker at the result: %s", selected.Picker.Point)
	}
	if selected.Picker.Address.Locality != "Hadano" {
		t.Fatalf("selection should trigger a reverse lookup: %+v", selected.Picker.Address)
	}
}

func TestReverseGeocode(t *testing.T) {
	r, _, _ := newTestRouter(t)

	w := do(t, r, http.MethodGet, "/api/geocode/reverse?lat=35.37&lng=139.22", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var addr geocode.AddressFields
	if err := json.Unmarshal(w.Body.Bytes(), &addr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if addr.Region != "Kanagawa" {
		t.Fatalf("unexpected address %+v", addr)
	}

	if w := do(t, r, http.MethodGet, "/api/geocode/reverse?lat=-1&lng=1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when nothing is found, got %d", w.Code)
	}
	if w := do(t, r, http.MethodGet, "/api/geocode/reverse?lat=abc&lng=1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestHealthz(t *testing.T) {
	r, _, _ := newTestRouter(t)
	if w := do(t, r, http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestClosedPickerAnswersGone(t *testing.T) {
	r, _, h := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID
	do(t, r, http.MethodGet, base+"/search?q=tonodake", nil)

	s, err := h.Sessions.Get(created.ID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	s.Picker.Close()

	if w := do(t, r, http.MethodPost, base+"/click", map[string]any{"lat": 35.37, "lng": 139.22}); w.Code != http.StatusGone {
		t.Fatalf("expected 410 for click, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/search/select", map[string]any{"index": 0}); w.Code != http.StatusGone {
		t.Fatalf("expected 410 for select, got %d", w.Code)
	}
	if w := do(t, r, http.MethodPost, base+"/reset", nil); w.Code != http.StatusGone {
		t.Fatalf("expected 410 for reset, got %d", w.Code)
	}
	if st := s.Picker.State(); st.Point != "" || st.Marker != nil {
		t.Fatalf("closed picker must not change: %+v", st)
	}
}

func TestClickWithZoom(t *testing.T) {
	r, _, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)
	base := "/api/pickers/" + created.ID

	clicked := decodePicker(t, do(t, r, http.MethodPost, base+"/click", map[string]any{"lat": 35.37, "lng": 139.22, "zoom": 14}), http.StatusOK)
	if clicked.Map.Zoom != 14 {
		t.Fatalf("expected zoom 14, got %d", clicked.Map.Zoom)
	}
	if clicked.Picker.Marker == nil {
		t.Fatalf("expected marker after click")
	}
	if w := do(t, r, http.MethodPost, base+"/click", map[string]any{"lat": 35.37, "lng": 139.22, "zoom": 40}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zoom out of range, got %d", w.Code)
	}
}

func TestSearchStructuredQuery(t *testing.T) {
	r, _, _ := newTestRouter(t)
	created := decodePicker(t, do(t, r, http.MethodPost, "/api/pickers", map[string]any{}), http.StatusCreated)

	w := do(t, r, http.MethodGet, "/api/pickers/"+created.ID+"/search?locality=Hadano&region=&country=Japan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var sr SearchResponse
	if err := json.Unmarshal(w.Body.Bytes(), &sr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sr.Query != "Hadano, Japan" {
		t.Fatalf("unexpected joined query %q", sr.Query)
	}
}
