// Package openmeteo fetches hourly archive observations from the Open-Meteo
// historical weather API.
package openmeteo

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

// hourlyParameters are the archive variables requested per window.
var hourlyParameters = []string{
	"temperature_2m",
	"relative_humidity_2m",
	"wind_direction_10m",
	"wind_speed_10m",
	"precipitation",
	"shortwave_radiation",
	"pressure_msl",
}

// hourLayout is Open-Meteo's hourly timestamp format.
const hourLayout = "2006-01-02T15:04"

// Client talks to the Open-Meteo archive endpoint.
type Client struct {
	baseURL    string
	lat, lon   float64
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates an archive client for the fixed point of interest.
func NewClient(lat, lon float64, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    "https://archive-api.open-meteo.com/v1/archive",
		lat:        lat,
		lon:        lon,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// response mirrors the hourly block of the archive payload. Parameter
// arrays are positionally aligned with the time array; null entries are
// missing observations.
type response struct {
	Hourly map[string]json.RawMessage `json:"hourly"`
}

// Fetch retrieves one window of hourly observations. A response without an
// hourly time series is a valid "no data for range", not an error.
func (c *Client) Fetch(ctx context.Context, w pipeline.Window) ([]domain.Sample, error) {
	params := url.Values{
		"latitude":   {fmt.Sprintf("%g", c.lat)},
		"longitude":  {fmt.Sprintf("%g", c.lon)},
		"start_date": {w.Start.UTC().Format("2006-01-02")},
		"end_date":   {w.End.UTC().Format("2006-01-02")},
		"hourly":     {strings.Join(hourlyParameters, ",")},
		"timezone":   {"UTC"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create archive request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transient("archive request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Transientf("archive request", "status %d: %s", resp.StatusCode, body)
	}

	var payload response
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, domain.Transient("decode archive response", err)
	}

	samples, err := samplesFromHourly(payload.Hourly)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("archive window fetched",
		"start", w.Start.UTC().Format("2006-01-02"),
		"end", w.End.UTC().Format("2006-01-02"),
		"hours", len(samples))
	return samples, nil
}

func samplesFromHourly(hourly map[string]json.RawMessage) ([]domain.Sample, error) {
	rawTimes, ok := hourly["time"]
	if !ok {
		return nil, domain.ErrEmptyResult
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return nil, domain.Transient("decode hourly time axis", err)
	}
	if len(times) == 0 {
		return nil, domain.ErrEmptyResult
	}

	series := make(map[string][]*float64, len(hourly))
	for name, raw := range hourly {
		if name == "time" {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil || len(values) != len(times) {
			// A malformed or misaligned series drops out rather than
			// corrupting the aligned ones.
			continue
		}
		series[name] = values
	}

	samples := make([]domain.Sample, 0, len(times))
	for i, stamp := range times {
		ts, err := time.Parse(hourLayout, stamp)
		if err != nil {
			return nil, domain.Transientf("parse hourly timestamp", "%q: %v", stamp, err)
		}
		values := make(map[string]float64)
		for name, col := range series {
			if col[i] != nil {
				values[name] = *col[i]
			}
		}
		if len(values) == 0 {
			continue
		}
		samples = append(samples, domain.Sample{Time: ts.UTC(), Values: values})
	}
	if len(samples) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return samples, nil
}
