package cds

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/grid"
)

func writeZip(t *testing.T, path string, members map[string][]byte) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, data := range members {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
}

func TestIsZip(t *testing.T) {
	dir := t.TempDir()

	zipPath := filepath.Join(dir, "payload.download")
	writeZip(t, zipPath, map[string][]byte{"data.nc": []byte("netcdf bytes")})
	assert.True(t, isZip(zipPath))

	plainPath := filepath.Join(dir, "plain.download")
	require.NoError(t, os.WriteFile(plainPath, []byte("CDF\x01 not a zip"), 0o644))
	assert.False(t, isZip(plainPath))

	assert.False(t, isZip(filepath.Join(dir, "missing")))
}

func TestExtractNetCDF(t *testing.T) {
	t.Run("extracts the first nc member", func(t *testing.T) {
		dir := t.TempDir()
		zipPath := filepath.Join(dir, "payload.zip")
		writeZip(t, zipPath, map[string][]byte{
			"README.txt":     []byte("about this archive"),
			"data_stream.nc": []byte("netcdf content"),
		})

		extracted, err := extractNetCDF(zipPath, dir)
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(dir, "data_stream.nc"), extracted)

		data, err := os.ReadFile(extracted)
		require.NoError(t, err)
		assert.Equal(t, []byte("netcdf content"), data)
	})

	t.Run("archive without nc member is transient", func(t *testing.T) {
		dir := t.TempDir()
		zipPath := filepath.Join(dir, "payload.zip")
		writeZip(t, zipPath, map[string][]byte{"README.txt": []byte("nothing here")})

		_, err := extractNetCDF(zipPath, dir)
		var transient *domain.TransientFetchError
		require.ErrorAs(t, err, &transient)
	})

	t.Run("corrupt archive is transient", func(t *testing.T) {
		dir := t.TempDir()
		zipPath := filepath.Join(dir, "payload.zip")
		require.NoError(t, os.WriteFile(zipPath, []byte("PK\x03\x04truncated"), 0o644))

		_, err := extractNetCDF(zipPath, dir)
		var transient *domain.TransientFetchError
		require.ErrorAs(t, err, &transient)
	})
}

func TestDecodeTime(t *testing.T) {
	t.Run("valid_time holds unix seconds", func(t *testing.T) {
		got := decodeTime("valid_time", 1706745600)
		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("time holds hours since 1900", func(t *testing.T) {
		got := decodeTime("time", 24)
		assert.Equal(t, time.Date(1900, 1, 2, 0, 0, 0, 0, time.UTC), got)
	})
}

func TestSamplesFromDataset(t *testing.T) {
	t.Run("emits one sample per time step", func(t *testing.T) {
		ds := &grid.Dataset{
			Axes: map[string][]float64{"valid_time": {1706745600, 1706749200}},
			Vars: map[string]grid.Variable{
				"t2m": {Dims: []string{"valid_time"}, Values: []float64{280.0, 281.5}},
				"sp":  {Dims: []string{"valid_time"}, Values: []float64{101300, 101250}},
			},
		}

		samples, err := samplesFromDataset(ds)
		require.NoError(t, err)
		require.Len(t, samples, 2)

		assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), samples[0].Time)
		assert.InDelta(t, 280.0, samples[0].Values["t2m"], 1e-9)
		assert.InDelta(t, 101250.0, samples[1].Values["sp"], 1e-9)
	})

	t.Run("dataset without time axis is a schema error", func(t *testing.T) {
		ds := &grid.Dataset{Axes: map[string][]float64{}, Vars: map[string]grid.Variable{}}

		_, err := samplesFromDataset(ds)
		var schemaErr *domain.SchemaError
		require.ErrorAs(t, err, &schemaErr)
	})

	t.Run("empty time axis is an empty result", func(t *testing.T) {
		ds := &grid.Dataset{
			Axes: map[string][]float64{"valid_time": {}},
			Vars: map[string]grid.Variable{},
		}

		_, err := samplesFromDataset(ds)
		assert.ErrorIs(t, err, domain.ErrEmptyResult)
	})
}
