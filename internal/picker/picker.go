// Package picker implements the interactive location picker: a single marker on a
// map, the GeoJSON point it serializes into the form, and the address fields filled
// in by reverse geocoding.
//
// Marker changes are applied synchronously. Reverse lookups run in the background
// and every placement, reset or removal bumps a token so that only the lookup for
// the most recent placement may write the address fields.
package picker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tanzawa/locationpicker/internal/form"
	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/mapview"
)

var (
	ErrLocationUnavailable = errors.New("current location unavailable")
	ErrClosed              = errors.New("picker closed")
)

const defaultLookupTimeout = 10 * time.Second

type Map interface {
	SetView(center geo.Point, zoom int)
	PanTo(center geo.Point)
	AddMarker(p geo.Point) mapview.Marker
	OnClick(fn func(geo.Point))
	OnSearchResult(fn func(geocode.Candidate))
}

type Form interface {
	Value(field form.Field) string
	SetValue(field form.Field, v string)
	Visible(c form.Control) bool
	SetVisible(c form.Control, visible bool)
}

// Locator reports the device's current position.
type Locator interface {
	Locate(ctx context.Context) (geo.Point, error)
}

type LocatorFunc func(ctx context.Context) (geo.Point, error)

func (f LocatorFunc) Locate(ctx context.Context) (geo.Point, error) {
	return f(ctx)
}

type Options struct {
	Map           Map
	Form          Form
	Geocoder      geocode.Reverser
	DefaultCenter geo.Point
	DefaultZoom   int
	LookupTimeout time.Duration
	Logger        zerolog.Logger
}

type initialState struct {
	point    *geo.Point
	rawPoint string
	address  geocode.AddressFields
}

type Picker struct {
	m        Map
	f        Form
	geocoder geocode.Reverser
	logger   zerolog.Logger
	timeout  time.Duration
	zoom     int

	mu           sync.Mutex
	marker       mapview.Marker
	initial      initialState
	token        uint64
	cancelLookup context.CancelFunc
	pending      bool
	closed       bool

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup
}

func New(opts Options) (*Picker, error) {
	if opts.Map == nil || opts.Form == nil || opts.Geocoder == nil {
		return nil, errors.New("picker: map, form and geocoder are required")
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = defaultLookupTimeout
	}
	ctx, stop := context.WithCancel(context.Background())
	p := &Picker{
		m:        opts.Map,
		f:        opts.Form,
		geocoder: opts.Geocoder,
		logger:   opts.Logger,
		timeout:  opts.LookupTimeout,
		zoom:     opts.DefaultZoom,
		ctx:      ctx,
		stop:     stop,
	}

	p.m.SetView(opts.DefaultCenter, opts.DefaultZoom)

	raw := p.f.Value(form.FieldPoint)
	pt, err := geo.ParsePoint(raw)
	switch {
	case err == nil:
		p.marker = p.m.AddMarker(pt)
		p.m.SetView(pt, opts.DefaultZoom)
		p.initial.point = &pt
		p.initial.rawPoint = raw
	case errors.Is(err, geo.ErrEmpty):
	default:
		// a broken stored value is treated as no value at all
		p.logger.Warn().Err(err).Str("raw", raw).Msg("ignoring malformed initial point")
		p.f.SetValue(form.FieldPoint, "")
	}
	p.initial.address = form.Address(p.f)

	p.f.SetVisible(form.ControlReset, false)
	p.f.SetVisible(form.ControlRemove, p.initial.point != nil)
	p.f.SetVisible(form.ControlLocate, true)

	p.m.OnClick(func(pt geo.Point) {
		if err := p.Place(pt); err != nil {
			p.logger.Debug().Err(err).Msg("click ignored")
		}
	})
	p.m.OnSearchResult(func(c geocode.Candidate) {
		if err := p.Place(c.Point); err != nil {
			p.logger.Debug().Err(err).Msg("search result ignored")
		}
	})
	return p, nil
}

// Place creates or moves the marker to pt and starts a reverse lookup for it.
func (p *Picker) Place(pt geo.Point) error {
	if !pt.Valid() {
		return fmt.Errorf("place: %w", geo.ErrInvalidPoint)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.placeLocked(pt)
	return nil
}

func (p *Picker) placeLocked(pt geo.Point) {
	if p.marker == nil {
		p.marker = p.m.AddMarker(pt)
	} else {
		p.marker.SetLatLng(pt)
	}
	p.m.PanTo(pt)
	p.f.SetValue(form.FieldPoint, geo.MarshalPoint(pt))
	p.f.SetVisible(form.ControlReset, true)
	p.f.SetVisible(form.ControlRemove, true)

	token := p.invalidateLocked()
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	p.cancelLookup = cancel
	p.pending = true
	p.wg.Add(1)
	go p.lookup(ctx, cancel, token, pt)
}

func (p *Picker) lookup(ctx context.Context, cancel context.CancelFunc, token uint64, pt geo.Point) {
	defer p.wg.Done()
	defer cancel()

	candidates, err := p.geocoder.Reverse(ctx, pt)

	p.mu.Lock()
	defer p.mu.Unlock()
	if token != p.token || p.closed {
		p.logger.Debug().Uint64("token", token).Uint64("latest", p.token).Msg("discarding stale reverse geocode")
		return
	}
	p.pending = false
	p.cancelLookup = nil

	if err != nil {
		p.logger.Warn().Err(err).Str("point", pt.String()).Msg("reverse geocode failed")
		form.SetAddress(p.f, geocode.AddressFields{})
		return
	}
	first, err := geocode.First(candidates)
	if err != nil {
		p.logger.Info().Str("point", pt.String()).Msg("reverse geocode returned no candidates")
		form.SetAddress(p.f, geocode.AddressFields{})
		return
	}
	form.SetAddress(p.f, geocode.ExtractAddress(first.Address))
}

// invalidateLocked cancels the outstanding lookup, if any, and returns a fresh token.
func (p *Picker) invalidateLocked() uint64 {
	if p.cancelLookup != nil {
		p.cancelLookup()
		p.cancelLookup = nil
	}
	p.pending = false
	p.token++
	return p.token
}

// Reset restores the marker and address to what the form held when the picker
// was created. No lookup is made.
func (p *Picker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.invalidateLocked()

	if pt := p.initial.point; pt != nil {
		if p.marker == nil {
			p.marker = p.m.AddMarker(*pt)
		} else {
			p.marker.SetLatLng(*pt)
		}
		p.m.PanTo(*pt)
		p.f.SetValue(form.FieldPoint, p.initial.rawPoint)
	} else {
		p.removeMarkerLocked()
		p.f.SetValue(form.FieldPoint, "")
	}
	form.SetAddress(p.f, p.initial.address)

	p.f.SetVisible(form.ControlReset, false)
	p.f.SetVisible(form.ControlRemove, p.initial.point != nil)
	p.f.SetVisible(form.ControlLocate, true)
	return nil
}

// Remove clears the marker, the serialized point and every address field.
func (p *Picker) Remove() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.invalidateLocked()
	p.removeMarkerLocked()
	p.f.SetValue(form.FieldPoint, "")
	form.SetAddress(p.f, geocode.AddressFields{})

	p.f.SetVisible(form.ControlRemove, false)
	p.f.SetVisible(form.ControlReset, p.initial.point != nil)
	p.f.SetVisible(form.ControlLocate, true)
	return nil
}

func (p *Picker) removeMarkerLocked() {
	if p.marker != nil {
		p.marker.Remove()
		p.marker = nil
	}
}

// UseCurrentLocation places the marker at the device position. A failed or denied
// request leaves the picker untouched.
func (p *Picker) UseCurrentLocation(ctx context.Context, loc Locator) error {
	if loc == nil {
		return ErrLocationUnavailable
	}
	pt, err := loc.Locate(ctx)
	if err != nil {
		p.logger.Info().Err(err).Msg("current location request failed")
		return fmt.Errorf("%w: %v", ErrLocationUnavailable, err)
	}
	if !pt.Valid() {
		return fmt.Errorf("%w: %v", ErrLocationUnavailable, geo.ErrInvalidPoint)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.placeLocked(pt)
	p.f.SetVisible(form.ControlLocate, false)
	return nil
}

type State struct {
	Point         string                `json:"point"`
	Address       geocode.AddressFields `json:"address"`
	Marker        *geo.Point            `json:"marker"`
	Controls      map[form.Control]bool `json:"controls"`
	LookupPending bool                  `json:"lookup_pending"`
}

func (p *Picker) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	var marker *geo.Point
	if p.marker != nil {
		pt := p.marker.LatLng()
		marker = &pt
	}
	return State{
		Point:   p.f.Value(form.FieldPoint),
		Address: form.Address(p.f),
		Marker:  marker,
		Controls: map[form.Control]bool{
			form.ControlReset:  p.f.Visible(form.ControlReset),
			form.ControlRemove: p.f.Visible(form.ControlRemove),
			form.ControlLocate: p.f.Visible(form.ControlLocate),
		},
		LookupPending: p.pending,
	}
}

// Closed reports whether Close has been called. Map events reaching a closed
// picker are dropped.
func (p *Picker) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Wait blocks until every lookup started so far has finished.
func (p *Picker) Wait() {
	p.wg.Wait()
}

func (p *Picker) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.invalidateLocked()
	p.stop()
	p.mu.Unlock()
	p.wg.Wait()
}
