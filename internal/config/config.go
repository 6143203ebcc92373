// Package config loads service settings from environment variables, with
// optional .env support for local runs.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultCDSURL is the Copernicus Climate Data Store retrieve API root.
const DefaultCDSURL = "https://cds.climate.copernicus.eu/api"

// Config holds all settings for one invocation, populated from environment
// variables.
type Config struct {
	DataDir string

	// The fixed point of interest all providers are queried for.
	Latitude  float64
	Longitude float64

	LogLevel  string
	LogFormat string

	// FetchTimeout bounds each individual upstream request.
	FetchTimeout time.Duration

	CDSAPIURL       string
	CDSAPIKey       string
	CDSPollInterval time.Duration

	// PushgatewayURL enables metrics push when non-empty.
	PushgatewayURL string

	// Providers lists the providers to run, in order.
	Providers []string
}

// Load reads configuration from the environment, applying defaults where
// unset. A .env file in the working directory is honored when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	lat, err := parseFloat("POINT_LAT", 38.57)
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("POINT_LON", -7.91)
	if err != nil {
		return nil, err
	}
	timeout, err := parseDuration("FETCH_TIMEOUT", time.Minute)
	if err != nil {
		return nil, err
	}
	pollInterval, err := parseDuration("CDS_POLL_INTERVAL", 5*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:         envOrDefault("DATA_DIR", "data"),
		Latitude:        lat,
		Longitude:       lon,
		LogLevel:        envOrDefault("LOG_LEVEL", "info"),
		LogFormat:       envOrDefault("LOG_FORMAT", "json"),
		FetchTimeout:    timeout,
		CDSAPIURL:       envOrDefault("CDS_API_URL", DefaultCDSURL),
		CDSAPIKey:       os.Getenv("CDS_API_KEY"),
		CDSPollInterval: pollInterval,
		PushgatewayURL:  os.Getenv("PUSHGATEWAY_URL"),
		Providers:       splitList(envOrDefault("PROVIDERS", "era5,nasa_power,openmeteo,ipma")),
	}

	if cfg.Latitude < -90 || cfg.Latitude > 90 {
		return nil, fmt.Errorf("POINT_LAT %v out of range [-90, 90]", cfg.Latitude)
	}
	if cfg.Longitude < -180 || cfg.Longitude >= 360 {
		return nil, fmt.Errorf("POINT_LON %v out of range [-180, 360)", cfg.Longitude)
	}
	if len(cfg.Providers) == 0 {
		return nil, errors.New("PROVIDERS must name at least one provider")
	}
	for _, name := range cfg.Providers {
		if name == "era5" && cfg.CDSAPIKey == "" {
			return nil, errors.New("provider era5 requires CDS_API_KEY")
		}
	}
	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseFloat(key string, fallback float64) (float64, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return v, nil
}

func parseDuration(key string, fallback time.Duration) (time.Duration, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
