package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
)

// Column limits of t_location.
const (
	MaxStreetAddress = 128
	MaxLocality      = 128
	MaxRegion        = 64
	MaxCountryName   = 64
	MaxPostalCode    = 16
)

// Location is the submitted location of a blog entry.
type Location struct {
	EntryID       string    `json:"entry_id"`
	StreetAddress string    `json:"street_address"`
	Locality      string    `json:"locality"`
	Region        string    `json:"region"`
	CountryName   string    `json:"country_name"`
	PostalCode    string    `json:"postal_code"`
	Lat           float64   `json:"lat"`
	Lng           float64   `json:"lng"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewLocation(entryID string, p geo.Point, addr geocode.AddressFields) Location {
	return Location{
		EntryID:       entryID,
		StreetAddress: clip(addr.StreetAddress, MaxStreetAddress),
		Locality:      clip(addr.Locality, MaxLocality),
		Region:        clip(addr.Region, MaxRegion),
		CountryName:   clip(addr.Country, MaxCountryName),
		PostalCode:    clip(addr.PostalCode, MaxPostalCode),
		Lat:           p.Lat,
		Lng:           p.Lng,
	}
}

func (l Location) Point() geo.Point {
	return geo.Point{Lat: l.Lat, Lng: l.Lng}
}

func (l Location) Address() geocode.AddressFields {
	return geocode.AddressFields{
		StreetAddress: l.StreetAddress,
		Locality:      l.Locality,
		Region:        l.Region,
		Country:       l.CountryName,
		PostalCode:    l.PostalCode,
	}
}

// Summary is the short human label shown next to an entry.
func (l Location) Summary() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{l.Locality, l.Region, l.CountryName} {
		if strings.TrimSpace(p) != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, ", ")
	}
	return fmt.Sprintf("%v,%v", l.Lat, l.Lng)
}

// clip trims s to max runes; invalid UTF-8 is dropped since Postgres rejects it.
func clip(s string, max int) string {
	s = strings.ToValidUTF8(s, "")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
