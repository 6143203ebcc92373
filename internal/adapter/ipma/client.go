// Package ipma fetches station climate observations from IPMA's open-data
// CSV endpoint. Unlike the other providers the series is published whole, so
// every run fetches the full file and relies on the merge to deduplicate.
package ipma

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

// DefaultURL is the mean-temperature climate series for the Palmela station.
const DefaultURL = "https://api.ipma.pt/open-data/observation/climate/temperature-mean/setubal/palmela.csv"

// timeAliases are the column names accepted as the observation timestamp.
var timeAliases = []string{"dataHora", "data", "datetime", "date"}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Client downloads and parses one station series.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given series URL; an empty url selects
// the default Palmela series.
func NewClient(seriesURL string, timeout time.Duration, logger *slog.Logger) *Client {
	if seriesURL == "" {
		seriesURL = DefaultURL
	}
	return &Client{
		url:        seriesURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Fetch downloads the entire published series. The window is ignored: IPMA
// does not support range queries, and the incremental merge drops rows the
// store already holds.
func (c *Client) Fetch(ctx context.Context, _ pipeline.Window) ([]domain.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create ipma request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.Transient("ipma request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Transientf("ipma request", "status %d: %s", resp.StatusCode, body)
	}

	rows, err := csv.NewReader(resp.Body).ReadAll()
	if err != nil {
		return nil, domain.Transient("parse ipma csv", err)
	}
	if len(rows) < 2 {
		return nil, domain.ErrEmptyResult
	}

	header := rows[0]
	timeIdx := -1
	for _, alias := range timeAliases {
		for i, col := range header {
			if col == alias {
				timeIdx = i
				break
			}
		}
		if timeIdx >= 0 {
			break
		}
	}
	if timeIdx < 0 {
		return nil, &domain.SchemaError{Reason: "no time column in ipma csv", Columns: header}
	}

	samples := make([]domain.Sample, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			continue
		}
		ts, err := parseTime(row[timeIdx])
		if err != nil {
			continue
		}
		values := make(map[string]float64)
		for i, cell := range row {
			if i == timeIdx || cell == "" {
				continue
			}
			if v, err := strconv.ParseFloat(cell, 64); err == nil {
				values[header[i]] = v
			}
		}
		if len(values) == 0 {
			continue
		}
		samples = append(samples, domain.Sample{Time: ts, Values: values})
	}
	if len(samples) == 0 {
		return nil, domain.ErrEmptyResult
	}
	c.logger.Debug("ipma series fetched",
		"rows", len(samples), "skipped", len(rows)-1-len(samples))
	return samples, nil
}

func parseTime(cell string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", cell)
}
