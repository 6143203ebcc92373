package cds

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

const testBaseURL = "https://cds.test/api"

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(testBaseURL, "test-token", 38.57, -7.91,
		5*time.Second, time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func februaryWindow() pipeline.Window {
	return pipeline.Window{
		Start: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC),
	}
}

func TestRetrieveInputs(t *testing.T) {
	c := newMockedClient(t)
	inputs := c.retrieveInputs(februaryWindow())

	assert.Equal(t, "reanalysis", inputs["product_type"])
	assert.Equal(t, "2024", inputs["year"])
	assert.Equal(t, "02", inputs["month"])
	assert.Equal(t, "netcdf", inputs["data_format"])
	assert.Equal(t, variables, inputs["variable"])

	days := inputs["day"].([]string)
	require.Len(t, days, 29)
	assert.Equal(t, "01", days[0])
	assert.Equal(t, "29", days[28])

	hours := inputs["time"].([]string)
	require.Len(t, hours, 24)
	assert.Equal(t, "00:00", hours[0])
	assert.Equal(t, "23:00", hours[23])

	// area is north, west, south, east around the point.
	area := inputs["area"].([]float64)
	require.Len(t, area, 4)
	assert.InDelta(t, 38.67, area[0], 1e-9)
	assert.InDelta(t, -8.01, area[1], 1e-9)
	assert.InDelta(t, 38.47, area[2], 1e-9)
	assert.InDelta(t, -7.81, area[3], 1e-9)
}

func TestSubmit(t *testing.T) {
	executionURL := testBaseURL + "/retrieve/v1/processes/" + processID + "/execution"

	t.Run("returns the job id and authenticates", func(t *testing.T) {
		c := newMockedClient(t)
		var gotToken string
		var gotBody map[string]any
		httpmock.RegisterResponder(http.MethodPost, executionURL,
			func(req *http.Request) (*http.Response, error) {
				gotToken = req.Header.Get("PRIVATE-TOKEN")
				require.NoError(t, json.NewDecoder(req.Body).Decode(&gotBody))
				return httpmock.NewJsonResponse(http.StatusCreated,
					map[string]string{"jobID": "job-42", "status": "accepted"})
			})

		jobID, err := c.submit(context.Background(), februaryWindow())
		require.NoError(t, err)
		assert.Equal(t, "job-42", jobID)
		assert.Equal(t, "test-token", gotToken)
		assert.Contains(t, gotBody, "inputs")
	})

	t.Run("rejection is transient", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodPost, executionURL,
			httpmock.NewStringResponder(http.StatusForbidden, "quota exceeded"))

		_, err := c.submit(context.Background(), februaryWindow())
		var transient *domain.TransientFetchError
		require.ErrorAs(t, err, &transient)
		assert.Contains(t, err.Error(), "quota exceeded")
	})
}

func TestAwait(t *testing.T) {
	jobURL := testBaseURL + "/retrieve/v1/jobs/job-42"

	t.Run("polls until successful and resolves the asset href", func(t *testing.T) {
		c := newMockedClient(t)
		polls := 0
		httpmock.RegisterResponder(http.MethodGet, jobURL,
			func(req *http.Request) (*http.Response, error) {
				polls++
				status := "running"
				if polls >= 3 {
					status = "successful"
				}
				return httpmock.NewJsonResponse(http.StatusOK,
					map[string]string{"jobID": "job-42", "status": status})
			})
		httpmock.RegisterResponder(http.MethodGet, jobURL+"/results",
			httpmock.NewStringResponder(http.StatusOK,
				`{"asset": {"value": {"href": "https://cds.test/results/job-42.zip"}}}`))

		href, err := c.await(context.Background(), "job-42")
		require.NoError(t, err)
		assert.Equal(t, "https://cds.test/results/job-42.zip", href)
		assert.GreaterOrEqual(t, polls, 3)
	})

	t.Run("failed job is transient", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, jobURL,
			httpmock.NewStringResponder(http.StatusOK, `{"jobID": "job-42", "status": "failed"}`))

		_, err := c.await(context.Background(), "job-42")
		var transient *domain.TransientFetchError
		require.ErrorAs(t, err, &transient)
	})

	t.Run("cancellation stops polling", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, jobURL,
			httpmock.NewStringResponder(http.StatusOK, `{"jobID": "job-42", "status": "running"}`))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := c.await(ctx, "job-42")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFetchRejectsTruncatedPayload(t *testing.T) {
	c := newMockedClient(t)
	httpmock.RegisterResponder(http.MethodPost,
		testBaseURL+"/retrieve/v1/processes/"+processID+"/execution",
		httpmock.NewStringResponder(http.StatusOK, `{"jobID": "job-42", "status": "accepted"}`))
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/retrieve/v1/jobs/job-42",
		httpmock.NewStringResponder(http.StatusOK, `{"jobID": "job-42", "status": "successful"}`))
	httpmock.RegisterResponder(http.MethodGet, testBaseURL+"/retrieve/v1/jobs/job-42/results",
		httpmock.NewStringResponder(http.StatusOK,
			`{"asset": {"value": {"href": "https://cds.test/results/job-42.nc"}}}`))
	httpmock.RegisterResponder(http.MethodGet, "https://cds.test/results/job-42.nc",
		httpmock.NewStringResponder(http.StatusOK, strings.Repeat("x", 100)))

	_, err := c.Fetch(context.Background(), februaryWindow())
	var transient *domain.TransientFetchError
	require.ErrorAs(t, err, &transient)
	assert.Contains(t, err.Error(), "too small")
}
