package geo

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	ErrEmpty        = errors.New("point is empty")
	ErrInvalidPoint = errors.New("invalid geojson point")
)

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

func (p Point) String() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}

// geoJSONPoint is the wire shape stored in the form's point field.
// Coordinates are [longitude, latitude].
type geoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

func MarshalPoint(p Point) string {
	b, _ := json.Marshal(geoJSONPoint{Type: "Point", Coordinates: []float64{p.Lng, p.Lat}})
	return string(b)
}

func ParsePoint(raw string) (Point, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Point{}, ErrEmpty
	}
	var g geoJSONPoint
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		return Point{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}
	if g.Type != "Point" {
		return Point{}, fmt.Errorf("%w: type %q", ErrInvalidPoint, g.Type)
	}
	if len(g.Coordinates) < 2 {
		return Point{}, fmt.Errorf("%w: need 2 coordinates, got %d", ErrInvalidPoint, len(g.Coordinates))
	}
	p := Point{Lat: g.Coordinates[1], Lng: g.Coordinates[0]}
	if !p.Valid() {
		return Point{}, fmt.Errorf("%w: out of range %s", ErrInvalidPoint, p)
	}
	return p, nil
}
