package power

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/pipeline"
)

func newMockedClient(t *testing.T) *Client {
	t.Helper()
	c := NewClient(38.57, -7.91, 5*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	httpmock.ActivateNonDefault(c.httpClient)
	t.Cleanup(httpmock.DeactivateAndReset)
	return c
}

func testWindow() pipeline.Window {
	return pipeline.Window{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestFetch(t *testing.T) {
	t.Run("parses daily parameters into samples", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{
				"properties": {"parameter": {
					"T2M": {"20240101": 12.5, "20240102": 13.0},
					"PRECTOTCORR": {"20240101": 0.4, "20240102": -999.0}
				}}
			}`))

		samples, err := c.Fetch(context.Background(), testWindow())
		require.NoError(t, err)
		require.Len(t, samples, 2)

		byDate := map[string]domain.Sample{}
		for _, s := range samples {
			byDate[s.Time.Format("2006-01-02")] = s
		}
		assert.InDelta(t, 12.5, byDate["2024-01-01"].Values["T2M"], 1e-9)
		assert.InDelta(t, 0.4, byDate["2024-01-01"].Values["PRECTOTCORR"], 1e-9)
		// -999 is POWER's missing marker, not a value.
		assert.NotContains(t, byDate["2024-01-02"].Values, "PRECTOTCORR")
	})

	t.Run("all values missing is an empty result", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{
				"properties": {"parameter": {"T2M": {"20240101": -999.0}}}
			}`))

		_, err := c.Fetch(context.Background(), testWindow())
		assert.ErrorIs(t, err, domain.ErrEmptyResult)
	})

	t.Run("server error is transient", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			httpmock.NewStringResponder(http.StatusBadGateway, "upstream unavailable"))

		_, err := c.Fetch(context.Background(), testWindow())
		var transient *domain.TransientFetchError
		require.ErrorAs(t, err, &transient)
	})

	t.Run("missing parameter object is a schema error", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{"messages": ["layout changed"]}`))

		_, err := c.Fetch(context.Background(), testWindow())
		var schemaErr *domain.SchemaError
		require.ErrorAs(t, err, &schemaErr)
		assert.False(t, errors.Is(err, domain.ErrEmptyResult))
	})
}

func TestFetchDaily(t *testing.T) {
	t.Run("builds a date-keyed UV lookup", func(t *testing.T) {
		c := newMockedClient(t)
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			httpmock.NewStringResponder(http.StatusOK, `{
				"properties": {"parameter": {
					"ALLSKY_SFC_UV_INDEX": {"20240101": 3.2, "20240102": -999.0, "20240103": 4.1}
				}}
			}`))

		lookup, err := c.FetchDaily(context.Background(),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)

		assert.Len(t, lookup, 2)
		assert.InDelta(t, 3.2, lookup["2024-01-01"], 1e-9)
		assert.InDelta(t, 4.1, lookup["2024-01-03"], 1e-9)
		assert.NotContains(t, lookup, "2024-01-02")
	})

	t.Run("requests only the UV parameter", func(t *testing.T) {
		c := newMockedClient(t)
		var gotParams string
		httpmock.RegisterResponder(http.MethodGet, c.baseURL,
			func(req *http.Request) (*http.Response, error) {
				gotParams = req.URL.Query().Get("parameters")
				return httpmock.NewStringResponse(http.StatusOK,
					`{"properties": {"parameter": {"ALLSKY_SFC_UV_INDEX": {}}}}`), nil
			})

		_, err := c.FetchDaily(context.Background(),
			time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Equal(t, "ALLSKY_SFC_UV_INDEX", gotParams)
	})
}
