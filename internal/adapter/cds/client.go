// Package cds fetches ERA5 reanalysis data from the Copernicus Climate Data
// Store retrieve API. A fetch is an asynchronous job: submit, poll until the
// job completes, download the resulting archive into a per-window temporary
// directory, and decode the NetCDF payload down to the grid cell nearest the
// point of interest. Temporary artifacts never outlive the window.
package cds

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

const (
	processID = "reanalysis-era5-single-levels"

	// minPayloadBytes is the smallest plausible NetCDF download. Anything
	// below this is a truncated file or an HTML error body.
	minPayloadBytes = 10_000

	// areaMargin pads the requested bounding box around the point of
	// interest so the grid always contains at least one full cell.
	areaMargin = 0.1
)

// variables are the single-level parameters requested per window.
var variables = []string{
	"2m_temperature",
	"2m_dewpoint_temperature",
	"surface_pressure",
	"10m_u_component_of_wind",
	"10m_v_component_of_wind",
	"total_precipitation",
	"surface_solar_radiation_downwards",
}

// Client drives the CDS retrieve job lifecycle for one point of interest.
type Client struct {
	baseURL      string
	key          string
	lat, lon     float64
	httpClient   *http.Client
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewClient creates a CDS client. baseURL is the API root (no trailing
// slash); key is the personal access token.
func NewClient(baseURL, key string, lat, lon float64, timeout, pollInterval time.Duration, logger *slog.Logger) *Client {
	return &Client{
		baseURL:      baseURL,
		key:          key,
		lat:          lat,
		lon:          lon,
		httpClient:   &http.Client{Timeout: timeout},
		pollInterval: pollInterval,
		logger:       logger,
	}
}

// Fetch retrieves one window (at most one calendar month) of hourly ERA5
// data and reduces it to samples at the nearest grid cell.
func (c *Client) Fetch(ctx context.Context, w pipeline.Window) ([]domain.Sample, error) {
	jobID, err := c.submit(ctx, w)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("cds job submitted", "job", jobID,
		"start", w.Start.Format("2006-01-02"), "end", w.End.Format("2006-01-02"))

	href, err := c.await(ctx, jobID)
	if err != nil {
		return nil, err
	}

	tmpDir, err := os.MkdirTemp("", "era5_dl_")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	target := filepath.Join(tmpDir, "era5_"+w.Start.UTC().Format("200601")+".download")
	size, err := c.download(ctx, href, target)
	if err != nil {
		return nil, err
	}
	if size < minPayloadBytes {
		return nil, domain.Transientf("cds download", "payload is %d bytes, too small to be NetCDF", size)
	}
	c.logger.Debug("cds payload downloaded", "job", jobID, "bytes", size)

	ds, err := openDataset(target, tmpDir)
	if err != nil {
		return nil, err
	}
	point, err := ds.SelectNearest(c.lat, c.lon)
	if err != nil {
		return nil, err
	}
	return samplesFromDataset(point)
}

// retrieveInputs is the CDS request body for one window.
func (c *Client) retrieveInputs(w pipeline.Window) map[string]any {
	start := w.Start.UTC()
	days := make([]string, 0, 31)
	for d := start; !d.After(w.End.UTC()); d = d.AddDate(0, 0, 1) {
		days = append(days, fmt.Sprintf("%02d", d.Day()))
	}
	hours := make([]string, 24)
	for h := range hours {
		hours[h] = fmt.Sprintf("%02d:00", h)
	}

	return map[string]any{
		"product_type": "reanalysis",
		"variable":     variables,
		"year":         fmt.Sprintf("%04d", start.Year()),
		"month":        fmt.Sprintf("%02d", int(start.Month())),
		"day":          days,
		"time":         hours,
		"area":         []float64{c.lat + areaMargin, c.lon - areaMargin, c.lat - areaMargin, c.lon + areaMargin},
		"data_format":  "netcdf",
	}
}

type jobStatus struct {
	JobID  string `json:"jobID"`
	Status string `json:"status"`
}

func (c *Client) submit(ctx context.Context, w pipeline.Window) (string, error) {
	body, err := json.Marshal(map[string]any{"inputs": c.retrieveInputs(w)})
	if err != nil {
		return "", fmt.Errorf("encode retrieve request: %w", err)
	}

	u := fmt.Sprintf("%s/retrieve/v1/processes/%s/execution", c.baseURL, processID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create retrieve request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", domain.Transient("cds submit", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", domain.Transientf("cds submit", "status %d: %s", resp.StatusCode, msg)
	}

	var job jobStatus
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		return "", domain.Transient("decode cds job", err)
	}
	if job.JobID == "" {
		return "", domain.Transientf("cds submit", "response carries no job id")
	}
	return job.JobID, nil
}

// await polls the job until it completes and returns the result asset URL.
func (c *Client) await(ctx context.Context, jobID string) (string, error) {
	for {
		status, err := c.status(ctx, jobID)
		if err != nil {
			return "", err
		}
		switch status {
		case "successful":
			return c.resultHref(ctx, jobID)
		case "failed", "dismissed":
			return "", domain.Transientf("cds job", "job %s ended %s", jobID, status)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(c.pollInterval):
		}
	}
}

func (c *Client) status(ctx context.Context, jobID string) (string, error) {
	var job jobStatus
	if err := c.getJSON(ctx, fmt.Sprintf("%s/retrieve/v1/jobs/%s", c.baseURL, jobID), &job); err != nil {
		return "", err
	}
	return job.Status, nil
}

func (c *Client) resultHref(ctx context.Context, jobID string) (string, error) {
	var results struct {
		Asset struct {
			Value struct {
				Href string `json:"href"`
			} `json:"value"`
		} `json:"asset"`
	}
	if err := c.getJSON(ctx, fmt.Sprintf("%s/retrieve/v1/jobs/%s/results", c.baseURL, jobID), &results); err != nil {
		return "", err
	}
	if results.Asset.Value.Href == "" {
		return "", domain.Transientf("cds results", "job %s has no result asset", jobID)
	}
	return results.Asset.Value.Href, nil
}

func (c *Client) getJSON(ctx context.Context, u string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create cds request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Transient("cds request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Transientf("cds request", "status %d: %s", resp.StatusCode, msg)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.Transient("decode cds response", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, href, target string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, href, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}
	req.Header.Set("PRIVATE-TOKEN", c.key)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, domain.Transient("cds download", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, domain.Transientf("cds download", "status %d: %s", resp.StatusCode, msg)
	}

	f, err := os.Create(target)
	if err != nil {
		return 0, fmt.Errorf("create download target: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		return 0, domain.Transient("cds download", err)
	}
	return n, nil
}
