package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string        `mapstructure:"ENV"`
	Port           string        `mapstructure:"PORT"`
	DatabaseURL    string        `mapstructure:"DATABASE_URL"`
	RedisURL       string        `mapstructure:"REDIS_URL"`
	AdminKey       string        `mapstructure:"ADMIN_KEY"`
	CORSAllowed    string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel       string        `mapstructure:"LOG_LEVEL"`

	NominatimURL       string        `mapstructure:"NOMINATIM_URL"`
	NominatimUserAgent string        `mapstructure:"NOMINATIM_USER_AGENT"`
	NominatimLanguage  string        `mapstructure:"NOMINATIM_LANGUAGE"`
	GeocodeMinInterval time.Duration `mapstructure:"GEOCODE_MIN_INTERVAL"`
	GeocodeTimeout     time.Duration `mapstructure:"GEOCODE_TIMEOUT"`
	GeocodeCacheTTL    time.Duration `mapstructure:"GEOCODE_CACHE_TTL"`

	MapDefaultLat  float64 `mapstructure:"MAP_DEFAULT_LAT"`
	MapDefaultLon  float64 `mapstructure:"MAP_DEFAULT_LON"`
	MapDefaultZoom int     `mapstructure:"MAP_DEFAULT_ZOOM"`
	MapMinZoom     int     `mapstructure:"MAP_MIN_ZOOM"`
	MapMaxZoom     int     `mapstructure:"MAP_MAX_ZOOM"`

	SessionIdleTimeout time.Duration `mapstructure:"SESSION_IDLE_TIMEOUT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ADMIN_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("NOMINATIM_USER_AGENT", "tanzawa-location-picker")
	v.SetDefault("NOMINATIM_LANGUAGE", "")
	v.SetDefault("GEOCODE_MIN_INTERVAL", "1s")
	v.SetDefault("GEOCODE_TIMEOUT", "10s")
	v.SetDefault("GEOCODE_CACHE_TTL", "24h")

	// Tanzawa, Kanagawa.
	v.SetDefault("MAP_DEFAULT_LAT", 35.4)
	v.SetDefault("MAP_DEFAULT_LON", 139.1)
	v.SetDefault("MAP_DEFAULT_ZOOM", 9)
	v.SetDefault("MAP_MIN_ZOOM", 1)
	v.SetDefault("MAP_MAX_ZOOM", 18)

	v.SetDefault("SESSION_IDLE_TIMEOUT", "30m")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
