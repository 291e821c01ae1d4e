// Package form models the location form fields the picker writes into and the
// controls whose visibility it toggles.
package form

import (
	"sync"

	"github.com/tanzawa/locationpicker/internal/geocode"
)

type Field string

const (
	FieldPoint         Field = "point"
	FieldStreetAddress Field = "street_address"
	FieldLocality      Field = "locality"
	FieldRegion        Field = "region"
	FieldCountry       Field = "country_name"
	FieldPostalCode    Field = "postal_code"
)

// addressFieldList is the set of fields derived from geocoding.
var addressFieldList = []Field{FieldStreetAddress, FieldLocality, FieldRegion, FieldCountry, FieldPostalCode}

type Control string

const (
	ControlReset  Control = "reset"
	ControlRemove Control = "remove"
	ControlLocate Control = "locate"
)

type Fields struct {
	mu      sync.RWMutex
	values  map[Field]string
	visible map[Control]bool
}

func New() *Fields {
	return &Fields{
		values:  map[Field]string{},
		visible: map[Control]bool{ControlLocate: true},
	}
}

// Prefilled returns fields as a server-rendered form would arrive: the serialized
// point plus the stored address.
func Prefilled(point string, addr geocode.AddressFields) *Fields {
	f := New()
	f.values[FieldPoint] = point
	SetAddress(f, addr)
	return f
}

func (f *Fields) Value(field Field) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.values[field]
}

func (f *Fields) SetValue(field Field, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[field] = v
}

func (f *Fields) Visible(c Control) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.visible[c]
}

func (f *Fields) SetVisible(c Control, visible bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible[c] = visible
}

type Snapshot struct {
	Point    string                `json:"point"`
	Address  geocode.AddressFields `json:"address"`
	Controls map[Control]bool      `json:"controls"`
}

func (f *Fields) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	controls := map[Control]bool{
		ControlReset:  f.visible[ControlReset],
		ControlRemove: f.visible[ControlRemove],
		ControlLocate: f.visible[ControlLocate],
	}
	return Snapshot{
		Point:    f.values[FieldPoint],
		Address:  Address(values(f.values)),
		Controls: controls,
	}
}

// Setter is the write half of a form; the picker depends on it rather than *Fields.
type Setter interface {
	SetValue(field Field, v string)
}

type Getter interface {
	Value(field Field) string
}

func SetAddress(f Setter, a geocode.AddressFields) {
	slots := addressSlots(&a)
	for _, field := range addressFieldList {
		f.SetValue(field, *slots[field])
	}
}

func Address(f Getter) geocode.AddressFields {
	var a geocode.AddressFields
	slots := addressSlots(&a)
	for _, field := range addressFieldList {
		*slots[field] = f.Value(field)
	}
	return a
}

// values reads a field map that the caller already holds the lock for.
type values map[Field]string

func (v values) Value(field Field) string {
	return v[field]
}

func addressSlots(a *geocode.AddressFields) map[Field]*string {
	return map[Field]*string{
		FieldStreetAddress: &a.StreetAddress,
		FieldLocality:      &a.Locality,
		FieldRegion:        &a.Region,
		FieldCountry:       &a.Country,
		FieldPostalCode:    &a.PostalCode,
	}
}
