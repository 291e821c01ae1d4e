package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tanzawa/locationpicker/internal/cache"
	"github.com/tanzawa/locationpicker/internal/config"
	"github.com/tanzawa/locationpicker/internal/db"
	"github.com/tanzawa/locationpicker/internal/geo"
	"github.com/tanzawa/locationpicker/internal/geocode"
	httpapi "github.com/tanzawa/locationpicker/internal/http"
	"github.com/tanzawa/locationpicker/internal/service"
	"github.com/tanzawa/locationpicker/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	zerolog.TimeFieldFormat = time.RFC3339
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger := log.Level(level).With().Str("service", "location-picker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect db")
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to apply schema")
	}

	deps := httpapi.Deps{Store: store}
	var geocodeCache geocode.Cache = geocode.NewMemoryCache(cfg.GeocodeCacheTTL, 4096)
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.GeocodeCacheTTL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect redis")
		}
		defer rc.Close()
		geocodeCache = rc
		deps.Cache = rc
		logger.Info().Msg("using redis geocode cache")
	}

	geocoder := &geocode.NominatimGeocoder{
		BaseURL:     cfg.NominatimURL,
		UserAgent:   cfg.NominatimUserAgent,
		Language:    cfg.NominatimLanguage,
		MinInterval: cfg.GeocodeMinInterval,
		Client:      &http.Client{Timeout: cfg.GeocodeTimeout},
		Cache:       geocodeCache,
		Logger:      logger.With().Str("component", "geocode").Logger(),
	}

	deps.Sessions = &session.Registry{
		Geocoder: geocoder,
		Defaults: session.MapDefaults{
			Center:  geo.Point{Lat: cfg.MapDefaultLat, Lng: cfg.MapDefaultLon},
			Zoom:    cfg.MapDefaultZoom,
			MinZoom: cfg.MapMinZoom,
			MaxZoom: cfg.MapMaxZoom,
		},
		LookupTimeout: cfg.GeocodeTimeout,
		Logger:        logger.With().Str("component", "picker").Logger(),
	}
	deps.Locations = &service.LocationService{Store: store, Geocoder: geocoder, Logger: logger}

	router := httpapi.Router(cfg, deps, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("port", cfg.Port).Msg("server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return deps.Sessions.Run(gctx, time.Minute, cfg.SessionIdleTimeout)
	})
	g.Go(func() error {
		<-gctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(ctxShutdown)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	logger.Info().Msg("server stopped")
}
