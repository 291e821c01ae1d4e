// Package session keeps the live pickers the HTTP layer talks to.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tanzawa/locationpicker/internal/form"
	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/mapview"
	"github.com/tanzawa/locationpicker/internal/picker"
)

var ErrNotFound = errors.New("picker session not found")

type MapDefaults struct {
	Center  geo.Point
	Zoom    int
	MinZoom int
	MaxZoom int
}

type Session struct {
	ID        string
	Picker    *picker.Picker
	Map       *mapview.View
	Form      *form.Fields
	CreatedAt time.Time

	lastSeen time.Time
}

// OpenOptions describe the page a picker is mounted on. Center and Zoom override
// the registry defaults; Point and Address prefill the bound form fields.
type OpenOptions struct {
	Center  *geo.Point
	Zoom    *int
	Point   string
	Address geocode.AddressFields
}

type Registry struct {
	Geocoder      geocode.Geocoder
	Defaults      MapDefaults
	LookupTimeout time.Duration
	Logger        zerolog.Logger

	mu    sync.Mutex
	items map[string]*Session
	now   func() time.Time
}

func (r *Registry) Open(opts OpenOptions) (*Session, error) {
	center := r.Defaults.Center
	if opts.Center != nil {
		center = *opts.Center
	}
	zoom := r.Defaults.Zoom
	if opts.Zoom != nil {
		zoom = *opts.Zoom
	}

	view := mapview.New(mapview.Options{
		Center:  center,
		Zoom:    zoom,
		MinZoom: r.Defaults.MinZoom,
		MaxZoom: r.Defaults.MaxZoom,
	}, r.Geocoder)
	fields := form.Prefilled(opts.Point, opts.Address)

	id := uuid.NewString()
	p, err := picker.New(picker.Options{
		Map:           view,
		Form:          fields,
		Geocoder:      r.Geocoder,
		DefaultCenter: center,
		DefaultZoom:   zoom,
		LookupTimeout: r.LookupTimeout,
		Logger:        r.Logger.With().Str("picker_id", id).Logger(),
	})
	if err != nil {
		return nil, err
	}

	now := r.clock()
	s := &Session{ID: id, Picker: p, Map: view, Form: fields, CreatedAt: now, lastSeen: now}
	r.mu.Lock()
	if r.items == nil {
		r.items = map[string]*Session{}
	}
	r.items[id] = s
	r.mu.Unlock()
	return s, nil
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.lastSeen = r.clock()
	return s, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	s, ok := r.items[id]
	delete(r.items, id)
	r.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Picker.Close()
	return nil
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.items)
}

// Sweep closes sessions not touched for longer than idle.
func (r *Registry) Sweep(idle time.Duration) int {
	cutoff := r.clock().Add(-idle)
	var expired []*Session
	r.mu.Lock()
	for id, s := range r.items {
		if s.lastSeen.Before(cutoff) {
			expired = append(expired, s)
			delete(r.items, id)
		}
	}
	r.mu.Unlock()
	for _, s := range expired {
		s.Picker.Close()
	}
	return len(expired)
}

func (r *Registry) Run(ctx context.Context, every, idle time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		case <-ticker.C:
			if n := r.Sweep(idle); n > 0 {
				r.Logger.Info().Int("count", n).Msg("expired idle pickers")
			}
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	items := r.items
	r.items = map[string]*Session{}
	r.mu.Unlock()
	for _, s := range items {
		s.Picker.Close()
	}
}

func (r *Registry) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
