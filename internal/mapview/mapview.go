// Package mapview is a headless map widget: it tracks the view, the markers placed
// on it and dispatches click and search-result events to registered handlers.
package mapview

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
)

var (
	ErrNoSearchControl = errors.New("map has no search control")
	ErrNoSuchResult    = errors.New("no such search result")
)

type Options struct {
	Center  geo.Point
	Zoom    int
	MinZoom int
	MaxZoom int
}

type View struct {
	mu       sync.RWMutex
	center   geo.Point
	zoom     int
	minZoom  int
	maxZoom  int
	markers  map[*pin]struct{}
	onClick  []func(geo.Point)
	onResult []func(geocode.Candidate)

	searcher geocode.Searcher
	results  []geocode.Candidate
}

func New(opts Options, searcher geocode.Searcher) *View {
	if opts.MaxZoom < opts.MinZoom {
		opts.MinZoom, opts.MaxZoom = opts.MaxZoom, opts.MinZoom
	}
	v := &View{
		center:   opts.Center,
		minZoom:  opts.MinZoom,
		maxZoom:  opts.MaxZoom,
		markers:  map[*pin]struct{}{},
		searcher: searcher,
	}
	v.zoom = v.clampZoom(opts.Zoom)
	return v
}

func (v *View) SetView(center geo.Point, zoom int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = center
	v.zoom = v.clampZoom(zoom)
}

func (v *View) PanTo(center geo.Point) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = center
}

func (v *View) SetZoom(zoom int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = v.clampZoom(zoom)
}

func (v *View) clampZoom(z int) int {
	if z < v.minZoom {
		return v.minZoom
	}
	if z > v.maxZoom {
		return v.maxZoom
	}
	return z
}

func (v *View) AddMarker(p geo.Point) Marker {
	m := &pin{view: v, pos: p}
	v.mu.Lock()
	v.markers[m] = struct{}{}
	v.mu.Unlock()
	return m
}

func (v *View) OnClick(fn func(geo.Point)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onClick = append(v.onClick, fn)
}

func (v *View) OnSearchResult(fn func(geocode.Candidate)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onResult = append(v.onResult, fn)
}

// Click delivers a map-surface click to every click handler.
func (v *View) Click(p geo.Point) error {
	if !p.Valid() {
		return fmt.Errorf("click: %w", geo.ErrInvalidPoint)
	}
	v.mu.RLock()
	handlers := append([]func(geo.Point){}, v.onClick...)
	v.mu.RUnlock()
	for _, fn := range handlers {
		fn(p)
	}
	return nil
}

// Search runs the search control. Results are ordered nearest-first relative to
// the current view center and kept for SelectResult.
func (v *View) Search(ctx context.Context, query string, limit int) ([]geocode.Candidate, error) {
	if v.searcher == nil {
		return nil, ErrNoSearchControl
	}
	results, err := v.searcher.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	center := v.center
	sorted := append([]geocode.Candidate{}, results...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return geo.HaversineKm(center, sorted[i].Point) < geo.HaversineKm(center, sorted[j].Point)
	})
	v.results = sorted
	return sorted, nil
}

func (v *View) SelectResult(i int) error {
	v.mu.RLock()
	if i < 0 || i >= len(v.results) {
		v.mu.RUnlock()
		return ErrNoSuchResult
	}
	res := v.results[i]
	handlers := append([]func(geocode.Candidate){}, v.onResult...)
	v.mu.RUnlock()
	for _, fn := range handlers {
		fn(res)
	}
	return nil
}

type State struct {
	Center  geo.Point   `json:"center"`
	Zoom    int         `json:"zoom"`
	MinZoom int         `json:"min_zoom"`
	MaxZoom int         `json:"max_zoom"`
	Markers []geo.Point `json:"markers"`
}

func (v *View) State() State {
	v.mu.RLock()
	defer v.mu.RUnlock()
	markers := make([]geo.Point, 0, len(v.markers))
	for m := range v.markers {
		markers = append(markers, m.pos)
	}
	return State{
		Center:  v.center,
		Zoom:    v.zoom,
		MinZoom: v.minZoom,
		MaxZoom: v.maxZoom,
		Markers: markers,
	}
}

// Marker is a point indicator placed on a map.
type Marker interface {
	LatLng() geo.Point
	SetLatLng(p geo.Point)
	Remove()
}

type pin struct {
	view *View
	pos  geo.Point
}

func (m *pin) LatLng() geo.Point {
	m.view.mu.RLock()
	defer m.view.mu.RUnlock()
	return m.pos
}

func (m *pin) SetLatLng(p geo.Point) {
	m.view.mu.Lock()
	defer m.view.mu.Unlock()
	m.pos = p
}

func (m *pin) Remove() {
	m.view.mu.Lock()
	defer m.view.mu.Unlock()
	delete(m.view.markers, m)
}
