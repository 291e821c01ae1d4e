package geocode

import (
	"context"
	"errors"
	"strings"

	"github.com/tanzawa/locationpicker/internal/geo"
)

var ErrNotFound = errors.New("geocode not found")

// Candidate is one geocoder hit. Address holds the provider's raw key/value
// payload; key vocabulary differs between providers.
type Candidate struct {
	Point       geo.Point         `json:"point"`
	DisplayName string            `json:"display_name"`
	Address     map[string]string `json:"address"`
}

type Reverser interface {
	Reverse(ctx context.Context, p geo.Point) ([]Candidate, error)
}

type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

type Geocoder interface {
	Reverser
	Searcher
}

// Cache stores lookup results by key. A cached empty slice is a valid
// "nothing here" answer and must be returned with ok=true.
type Cache interface {
	Get(ctx context.Context, key string) ([]Candidate, bool, error)
	Set(ctx context.Context, key string, candidates []Candidate) error
}

func BuildSearchQuery(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ", ")
}

// First returns the first candidate or ErrNotFound.
func First(candidates []Candidate) (Candidate, error) {
	if len(candidates) == 0 {
		return Candidate{}, ErrNotFound
	}
	return candidates[0], nil
}
