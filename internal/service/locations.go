package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	"github.com/tanzawa/locationpicker/internal/models"
)

const (
	SubmitSaved     = "SAVED"
	SubmitDeleted   = "DELETED"
	SubmitUnchanged = "UNCHANGED"
)

var (
	ErrLocationNotFound = errors.New("location not found")
	ErrInvalidPoint     = errors.New("submitted point is not a valid geojson point")
)

type LocationStore interface {
	GetLocation(ctx context.Context, entryID string) (models.Location, error)
	UpsertLocation(ctx context.Context, l models.Location) (models.Location, error)
	DeleteLocation(ctx context.Context, entryID string) (bool, error)
}

type LocationService struct {
	Store    LocationStore
	Geocoder geocode.Reverser
	Logger   zerolog.Logger
}

type SubmitResult struct {
	Status   string           `json:"status"`
	Location *models.Location `json:"location,omitempty"`
}

func (s *LocationService) Get(ctx context.Context, entryID string) (models.Location, error) {
	l, err := s.Store.GetLocation(ctx, entryID)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Location{}, ErrLocationNotFound
	}
	return l, err
}

// Submit stores what the location form holds. An empty point removes the
// entry's location, since a location cannot exist without one.
func (s *LocationService) Submit(ctx context.Context, entryID string, rawPoint string, addr geocode.AddressFields) (SubmitResult, error) {
	p, err := geo.ParsePoint(rawPoint)
	if errors.Is(err, geo.ErrEmpty) {
		deleted, err := s.Store.DeleteLocation(ctx, entryID)
		if err != nil {
			return SubmitResult{}, err
		}
		if !deleted {
			return SubmitResult{Status: SubmitUnchanged}, nil
		}
		s.Logger.Info().Str("entry_id", entryID).Msg("location removed")
		return SubmitResult{Status: SubmitDeleted}, nil
	}
	if err != nil {
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidPoint, err)
	}

	saved, err := s.Store.UpsertLocation(ctx, models.NewLocation(entryID, p, addr))
	if err != nil {
		return SubmitResult{}, err
	}
	s.Logger.Info().Str("entry_id", entryID).Str("summary", saved.Summary()).Msg("location saved")
	return SubmitResult{Status: SubmitSaved, Location: &saved}, nil
}

// Reverse looks up the address for a point outside of any picker.
func (s *LocationService) Reverse(ctx context.Context, p geo.Point) (geocode.AddressFields, error) {
	candidates, err := s.Geocoder.Reverse(ctx, p)
	if err != nil {
		return geocode.AddressFields{}, err
	}
	first, err := geocode.First(candidates)
	if err != nil {
		return geocode.AddressFields{}, err
	}
	return geocode.ExtractAddress(first.Address), nil
}
