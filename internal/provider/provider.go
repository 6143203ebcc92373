// Package provider declares the upstream sources as data: vocabularies,
// unit conversions, chunking policies, epochs, and lag buffers. Adding a
// provider means adding an entry here, not changing pipeline code.
package provider

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/smartproduce/weather-etl/internal/adapter/cds"
	"github.com/smartproduce/weather-etl/internal/adapter/ipma"
	"github.com/smartproduce/weather-etl/internal/adapter/openmeteo"
	"github.com/smartproduce/weather-etl/internal/adapter/power"
	"github.com/smartproduce/weather-etl/internal/config"
	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

// era5Vocabulary accepts both the CDS long parameter names and the NetCDF
// short names; payloads have carried either depending on product version.
var era5Vocabulary = domain.Vocabulary{
	"2m_temperature":                    domain.FieldTemperature,
	"2m_dewpoint_temperature":           domain.FieldDewpoint,
	"surface_pressure":                  domain.FieldPressure,
	"10m_u_component_of_wind":           domain.FieldUWind,
	"10m_v_component_of_wind":           domain.FieldVWind,
	"total_precipitation":               domain.FieldPrecipitation,
	"surface_solar_radiation_downwards": domain.FieldRadiation,

	"t2m":  domain.FieldTemperature,
	"d2m":  domain.FieldDewpoint,
	"sp":   domain.FieldPressure,
	"u10":  domain.FieldUWind,
	"v10":  domain.FieldVWind,
	"tp":   domain.FieldPrecipitation,
	"ssrd": domain.FieldRadiation,
}

// era5Conversions move Kelvin/Pa/m/J-per-m² native values to canonical units.
var era5Conversions = []domain.Conversion{
	{Field: domain.FieldTemperature, Apply: domain.KelvinToCelsius},
	{Field: domain.FieldDewpoint, Apply: domain.KelvinToCelsius},
	{Field: domain.FieldPressure, Apply: domain.PaToKilopascal},
	{Field: domain.FieldPrecipitation, Apply: domain.MetersToMillimeters},
	{Field: domain.FieldRadiation, Apply: domain.JoulesToMegajoules},
}

var powerVocabulary = domain.Vocabulary{
	"T2M":               domain.FieldTemperature,
	"RH2M":              domain.FieldHumidity,
	"WS2M":              domain.FieldWindSpeed,
	"WD2M":              domain.FieldWindDirection,
	"PRECTOTCORR":       domain.FieldPrecipitation,
	"ALLSKY_SFC_SW_DWN": domain.FieldRadiation,
}

var openMeteoVocabulary = domain.Vocabulary{
	"temperature_2m":       domain.FieldTemperature,
	"relative_humidity_2m": domain.FieldHumidity,
	"wind_direction_10m":   domain.FieldWindDirection,
	"wind_speed_10m":       domain.FieldWindSpeed,
	"precipitation":        domain.FieldPrecipitation,
	"shortwave_radiation":  domain.FieldRadiation,
	"pressure_msl":         domain.FieldPressure,
}

var ipmaVocabulary = domain.Vocabulary{
	"media": domain.FieldTemperature,
}

// epoch2024 is the fixed historical start used by all providers on their
// first run.
var epoch2024 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// Build constructs the providers named in cfg.Providers, in order.
func Build(cfg *config.Config, logger *slog.Logger) ([]pipeline.Provider, error) {
	providers := make([]pipeline.Provider, 0, len(cfg.Providers))
	for _, name := range cfg.Providers {
		p, err := build(name, cfg, logger)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func build(name string, cfg *config.Config, logger *slog.Logger) (pipeline.Provider, error) {
	switch name {
	case "era5":
		return pipeline.Provider{
			Name:        "era5",
			StoreFile:   "era5_data.csv",
			Epoch:       epoch2024,
			LagDays:     5,
			Chunking:    pipeline.Chunking{Policy: pipeline.ChunkCalendarMonth},
			Vocabulary:  era5Vocabulary,
			Conversions: era5Conversions,
			Fields: []domain.Field{
				domain.FieldTemperature, domain.FieldDewpoint, domain.FieldPressure,
				domain.FieldWindSpeed, domain.FieldPrecipitation, domain.FieldRadiation,
			},
			DailyAggregate: true,
			TimeColumn:     "date",
			TimeLayout:     "2006-01-02",
			Fetcher: cds.NewClient(cfg.CDSAPIURL, cfg.CDSAPIKey,
				cfg.Latitude, cfg.Longitude, cfg.FetchTimeout, cfg.CDSPollInterval, logger),
		}, nil

	case "nasa_power":
		return pipeline.Provider{
			Name:       "nasa_power",
			StoreFile:  "nasa_power_data.csv",
			Epoch:      epoch2024,
			LagDays:    5,
			Chunking:   pipeline.Chunking{Policy: pipeline.ChunkMonths, Months: 6},
			Vocabulary: powerVocabulary,
			Fields: []domain.Field{
				domain.FieldTemperature, domain.FieldHumidity, domain.FieldWindSpeed,
				domain.FieldWindDirection, domain.FieldPrecipitation, domain.FieldRadiation,
			},
			TimeColumn: "datetime",
			TimeLayout: "2006-01-02",
			Fetcher:    power.NewClient(cfg.Latitude, cfg.Longitude, cfg.FetchTimeout, logger),
		}, nil

	case "openmeteo":
		return pipeline.Provider{
			Name:       "openmeteo",
			StoreFile:  "open_meteo.csv",
			Epoch:      epoch2024,
			LagDays:    1,
			Chunking:   pipeline.Chunking{Policy: pipeline.ChunkFixedDays, Days: 30},
			Vocabulary: openMeteoVocabulary,
			Fields: []domain.Field{
				domain.FieldTemperature, domain.FieldHumidity, domain.FieldWindDirection,
				domain.FieldWindSpeed, domain.FieldPrecipitation, domain.FieldRadiation,
				domain.FieldPressure, domain.FieldUVIndex,
			},
			TimeColumn:  "datetime",
			TimeLayout:  "2006-01-02T15:04",
			Fetcher:     openmeteo.NewClient(cfg.Latitude, cfg.Longitude, cfg.FetchTimeout, logger),
			Enricher:    power.NewClient(cfg.Latitude, cfg.Longitude, cfg.FetchTimeout, logger),
			EnrichField: domain.FieldUVIndex,
		}, nil

	case "ipma":
		return pipeline.Provider{
			Name:       "ipma",
			StoreFile:  "ipma.csv",
			Epoch:      epoch2024,
			LagDays:    0,
			Chunking:   pipeline.Chunking{Policy: pipeline.ChunkNone},
			Vocabulary: ipmaVocabulary,
			Fields:     []domain.Field{domain.FieldTemperature},
			TimeColumn: "datetime",
			TimeLayout: "2006-01-02",
			Fetcher:    ipma.NewClient("", cfg.FetchTimeout, logger),
		}, nil

	default:
		return pipeline.Provider{}, fmt.Errorf("unknown provider %q", name)
	}
}
