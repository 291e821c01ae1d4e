package db

import (
	"context"
	_ "embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tanzawa/locationpicker/internal/models"
)

//go:embed schema.sql
var schemaSQL string

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.Pool.Ping(ctx)
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schemaSQL)
	return err
}

func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetLocation returns pgx.ErrNoRows when the entry has no location.
func (s *Store) GetLocation(ctx context.Context, entryID string) (models.Location, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT entry_id, street_address, locality, region, country_name, postal_code, lat, lng, created_at, updated_at
		FROM t_location
		WHERE entry_id = $1
	`, entryID)
	var l models.Location
	err := row.Scan(&l.EntryID, &l.StreetAddress, &l.Locality, &l.Region, &l.CountryName, &l.PostalCode, &l.Lat, &l.Lng, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (s *Store) UpsertLocation(ctx context.Context, l models.Location) (models.Location, error) {
	var out models.Location
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
			INSERT INTO t_location (entry_id, street_address, locality, region, country_name, postal_code, lat, lng)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (entry_id) DO UPDATE SET
				street_address = EXCLUDED.street_address,
				locality = EXCLUDED.locality,
				region = EXCLUDED.region,
				country_name = EXCLUDED.country_name,
				postal_code = EXCLUDED.postal_code,
				lat = EXCLUDED.lat,
				lng = EXCLUDED.lng,
				updated_at = NOW()
			RETURNING entry_id, street_address, locality, region, country_name, postal_code, lat, lng, created_at, updated_at
		`, l.EntryID, l.StreetAddress, l.Locality, l.Region, l.CountryName, l.PostalCode, l.Lat, l.Lng).
			Scan(&out.EntryID, &out.StreetAddress, &out.Locality, &out.Region, &out.CountryName, &out.PostalCode, &out.Lat, &out.Lng, &out.CreatedAt, &out.UpdatedAt)
	})
	return out, err
}

// DeleteLocation reports whether a row existed.
func (s *Store) DeleteLocation(ctx context.Context, entryID string) (bool, error) {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM t_location WHERE entry_id = $1`, entryID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
