package mapview

import (
	"context"
	"errors"
	"testing"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
)

type stubSearcher struct {
	results []geocode.Candidate
}

func (s stubSearcher) Search(ctx context.Context, query string, limit int) ([]geocode.Candidate, error) {
	return s.results, nil
}

func TestZoomIsClamped(t *testing.T) {
	v := New(Options{Center: geo.Point{Lat: 35, Lng: 139}, Zoom: 25, MinZoom: 2, MaxZoom: 12}, nil)
	if v.State().Zoom != 12 {
		t.Fatalf("expected zoom clamped to 12, got %d", v.State().Zoom)
	}
	v.SetView(geo.Point{}, -3)
	if v.State().Zoom != 2 {
		t.Fatalf("expected zoom clamped to 2, got %d", v.State().Zoom)
	}
	v.PanTo(geo.Point{Lat: 1, Lng: 2})
	if v.State().Zoom != 2 || v.State().Center != (geo.Point{Lat: 1, Lng: 2}) {
		t.Fatalf("pan must keep zoom: %+v", v.State())
	}
}

func TestMarkerLifecycle(t *testing.T) {
	v := New(Options{MaxZoom: 18}, nil)
	m := v.AddMarker(geo.Point{Lat: 1, Lng: 1})
	m.SetLatLng(geo.Point{Lat: 2, Lng: 2})
	if got := v.State().Markers; len(got) != 1 || got[0] != (geo.Point{Lat: 2, Lng: 2}) {
		t.Fatalf("unexpected markers: %+v", got)
	}
	m.Remove()
	if len(v.State().Markers) != 0 {
		t.Fatalf("expected marker removed")
	}
}

func TestClickDispatches(t *testing.T) {
	v := New(Options{MaxZoom: 18}, nil)
	var got []geo.Point
	v.OnClick(func(p geo.Point) { got = append(got, p) })
	if err := v.Click(geo.Point{Lat: 10, Lng: 20}); err != nil {
		t.Fatalf("click: %v", err)
	}
	if err := v.Click(geo.Point{Lat: 99, Lng: 20}); err == nil {
		t.Fatalf("expected invalid click to fail")
	}
	if len(got) != 1 {
		t.Fatalf("expected one dispatched click, got %d", len(got))
	}
}

func TestSearchOrdersByDistanceAndSelects(t *testing.T) {
	far := geocode.Candidate{Point: geo.Point{Lat: 43.06, Lng: 141.35}, DisplayName: "Sapporo"}
	near := geocode.Candidate{Point: geo.Point{Lat: 35.37, Lng: 139.22}, DisplayName: "Hadano"}
	v := New(Options{Center: geo.Point{Lat: 35.68, Lng: 139.69}, MaxZoom: 18}, stubSearcher{results: []geocode.Candidate{far, near}})

	res, err := v.Search(context.Background(), "somewhere", 5)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if res[0].DisplayName != "Hadano" {
		t.Fatalf("expected nearest first, got %+v", res)
	}

	var selected geocode.Candidate
	v.OnSearchResult(func(c geocode.Candidate) { selected = c })
	if err := v.SelectResult(1); err != nil {
		t.Fatalf("select: %v", err)
	}
	if selected.DisplayName != "Sapporo" {
		t.Fatalf("unexpected selection: %+v", selected)
	}
	if err := v.SelectResult(5); !errors.Is(err, ErrNoSuchResult) {
		t.Fatalf("expected ErrNoSuchResult, got %v", err)
	}
}

func TestSearchWithoutControl(t *testing.T) {
	v := New(Options{MaxZoom: 18}, nil)
	if _, err := v.Search(context.Background(), "x", 1); !errors.Is(err, ErrNoSearchControl) {
		t.Fatalf("expected ErrNoSearchControl, got %v", err)
	}
}
