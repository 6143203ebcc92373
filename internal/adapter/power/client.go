// Package power fetches daily point observations from the NASA POWER API.
// The same client serves as the primary fetcher for the nasa_power provider
// and as the daily UV-index enrichment source for others.
package power

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

// missingSentinel is POWER's fill value for unavailable observations.
const missingSentinel = -999.0

// dailyParameters are the valid daily-cadence parameters requested for the
// primary dataset.
var dailyParameters = []string{
	"T2M",              // temperature at 2 m
	"RH2M",             // relative humidity at 2 m
	"WS2M",             // wind speed at 2 m
	"WD2M",             // wind direction at 2 m
	"PRECTOTCORR",      // corrected precipitation, mm/day
	"ALLSKY_SFC_SW_DWN", // all-sky surface shortwave radiation
}

const uvParameter = "ALLSKY_SFC_UV_INDEX"

// Client talks to the POWER temporal daily point endpoint.
type Client struct {
	baseURL    string
	lat, lon   float64
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a POWER client for the fixed point of interest.
func NewClient(lat, lon float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    "https://power.larc.nasa.gov/api/temporal/daily/point",
		lat:        lat,
		lon:        lon,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch retrieves the primary daily parameters for one window.
func (c *Client) Fetch(ctx context.Context, w pipeline.Window) ([]domain.Sample, error) {
	byDate, err := c.fetchParameters(ctx, w.Start, w.End, dailyParameters)
	if err != nil {
		return nil, err
	}

	samples := make([]domain.Sample, 0, len(byDate))
	for dateKey, values := range byDate {
		ts, err := time.Parse("20060102", dateKey)
		if err != nil {
			continue
		}
		if len(values) == 0 {
			continue
		}
		samples = append(samples, domain.Sample{Time: ts, Values: values})
	}
	if len(samples) == 0 {
		return nil, domain.ErrEmptyResult
	}
	c.logger.Debug("power window fetched",
		"start", w.Start.UTC().Format("2006-01-02"),
		"end", w.End.UTC().Format("2006-01-02"),
		"days", len(samples))
	return samples, nil
}

// FetchDaily retrieves the daily UV index over [start, end], keyed by
// YYYY-MM-DD. Dates upstream marks missing are absent from the map.
func (c *Client) FetchDaily(ctx context.Context, start, end time.Time) (map[string]float64, error) {
	byDate, err := c.fetchParameters(ctx, start, end, []string{uvParameter})
	if err != nil {
		return nil, err
	}

	lookup := make(map[string]float64, len(byDate))
	for dateKey, values := range byDate {
		ts, err := time.Parse("20060102", dateKey)
		if err != nil {
			continue
		}
		if uv, ok := values[uvParameter]; ok {
			lookup[ts.Format("2006-01-02")] = uv
		}
	}
	c.logger.Debug("uv lookup fetched", "days", len(lookup))
	return lookup, nil
}

// response is the subset of the POWER payload the pipeline consumes:
// properties.parameter.<NAME>.<YYYYMMDD> = value.
type response struct {
	Properties struct {
		Parameter map[string]map[string]float64 `json:"parameter"`
	} `json:"properties"`
}

func (c *Client) fetchParameters(ctx context.Context, start, end time.Time, parameters []string) (map[string]map[string]float64, error) {
	params := url.Values{
		"parameters": {strings.Join(parameters, ",")},
		"community":  {"AG"},
		"latitude":   {fmt.Sprintf("%g", c.lat)},
		"longitude":  {fmt.Sprintf("%g", c.lon)},
		"start":      {start.UTC().Format("20060102")},
		"end":        {end.UTC().Format("20060102")},
		"format":     {"JSON"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create power request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transient("power request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Transientf("power request", "status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.Transient("decode power response", err)
	}
	if payload.Properties.Parameter == nil {
		return nil, &domain.SchemaError{Reason: "power response missing properties.parameter"}
	}

	byDate := make(map[string]map[string]float64)
	for param, series := range payload.Properties.Parameter {
		for dateKey, value := range series {
			if value == missingSentinel {
				continue
			}
			if byDate[dateKey] == nil {
				byDate[dateKey] = make(map[string]float64)
			}
			byDate[dateKey][param] = value
		}
	}
	return byDate, nil
}

