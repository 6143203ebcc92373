package cds

import (
	"archive/zip"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fhs/go-netcdf/netcdf"

	"github.com/smartproduce/weather-etl/internal/domain"
	"github.com/smartproduce/weather-etl/internal/grid"
)

// axisCandidates are the coordinate variables lifted into the dataset's axes
// when present.
var axisCandidates = []string{
	"latitude", "lat",
	"longitude", "lon",
	"valid_time", "time",
	"expver", "number",
}

// dataVarCandidates are the NetCDF short names ERA5 uses for the requested
// parameters. Whichever exist in the payload are decoded; the vocabulary
// renames them downstream.
var dataVarCandidates = []string{"t2m", "d2m", "sp", "u10", "v10", "tp", "ssrd"}

// openDataset decodes a downloaded payload into a gridded dataset. The
// payload may be a bare NetCDF file or a ZIP archive holding one; archives
// are unwrapped into scratchDir, which the caller owns and removes.
func openDataset(path, scratchDir string) (*grid.Dataset, error) {
	ncPath := path
	if isZip(path) {
		extracted, err := extractNetCDF(path, scratchDir)
		if err != nil {
			return nil, err
		}
		ncPath = extracted
	}

	nc, err := netcdf.OpenFile(ncPath, netcdf.NOWRITE)
	if err != nil {
		return nil, domain.Transient("open netcdf", err)
	}
	defer nc.Close()

	ds := &grid.Dataset{
		Axes: make(map[string][]float64),
		Vars: make(map[string]grid.Variable),
	}

	for _, name := range axisCandidates {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		values, err := readFloat1D(v)
		if err != nil {
			// An axis that exists but does not decode as numbers (ERA5
			// encodes expver as strings in some products) is replaced by an
			// index axis below.
			continue
		}
		ds.Axes[name] = values
	}

	for _, name := range dataVarCandidates {
		v, err := nc.Var(name)
		if err != nil {
			continue
		}
		variable, err := readVariable(v)
		if err != nil {
			return nil, domain.Transient("read netcdf variable "+name, err)
		}
		ds.Vars[name] = variable
	}
	if len(ds.Vars) == 0 {
		return nil, &domain.SchemaError{
			Reason:  "no recognized data variables in netcdf payload",
			Columns: ds.AxisNames(),
		}
	}

	fillIndexAxes(ds)
	return ds, nil
}

// fillIndexAxes gives every dimension an axis entry. Dimensions without a
// decodable coordinate variable get index values so reductions can still
// compute shapes.
func fillIndexAxes(ds *grid.Dataset) {
	for _, v := range ds.Vars {
		total := len(v.Values)
		known := 1
		missing := ""
		for _, dim := range v.Dims {
			if axis, ok := ds.Axes[dim]; ok {
				known *= len(axis)
			} else {
				missing = dim
			}
		}
		if missing == "" || known == 0 {
			continue
		}
		n := total / known
		axis := make([]float64, n)
		for i := range axis {
			axis[i] = float64(i)
		}
		ds.Axes[missing] = axis
	}
}

// samplesFromDataset flattens a spatially reduced dataset into time-keyed
// samples, skipping missing cells.
func samplesFromDataset(ds *grid.Dataset) ([]domain.Sample, error) {
	timeName, timeVals, err := ds.TimeAxis()
	if err != nil {
		return nil, err
	}

	samples := make([]domain.Sample, 0, len(timeVals))
	for i := range timeVals {
		values := make(map[string]float64)
		for name, v := range ds.Vars {
			if len(v.Dims) != 1 || v.Dims[0] != timeName {
				continue
			}
			if val := v.Values[i]; !math.IsNaN(val) {
				values[name] = val
			}
		}
		if len(values) == 0 {
			continue
		}
		samples = append(samples, domain.Sample{Time: decodeTime(timeName, timeVals[i]), Values: values})
	}
	if len(samples) == 0 {
		return nil, domain.ErrEmptyResult
	}
	return samples, nil
}

// decodeTime converts a raw time-axis value to an instant. CDS encodes
// valid_time as seconds since the Unix epoch; the legacy time axis is hours
// since 1900-01-01.
func decodeTime(axisName string, v float64) time.Time {
	if axisName == "time" {
		base := time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)
		return base.Add(time.Duration(v) * time.Hour)
	}
	return time.Unix(int64(v), 0).UTC()
}

func isZip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	sig := make([]byte, 4)
	if _, err := io.ReadFull(f, sig); err != nil {
		return false
	}
	return sig[0] == 'P' && sig[1] == 'K' && sig[2] == 3 && sig[3] == 4
}

// extractNetCDF unpacks the first .nc member of a ZIP archive into dir.
func extractNetCDF(path, dir string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", domain.Transient("open zip payload", err)
	}
	defer zr.Close()

	for _, member := range zr.File {
		if !strings.HasSuffix(strings.ToLower(member.Name), ".nc") {
			continue
		}
		src, err := member.Open()
		if err != nil {
			return "", domain.Transient("read zip member", err)
		}
		target := filepath.Join(dir, filepath.Base(member.Name))
		dst, err := os.Create(target)
		if err != nil {
			src.Close()
			return "", fmt.Errorf("create extracted file: %w", err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		dst.Close()
		if err != nil {
			return "", domain.Transient("extract zip member", err)
		}
		return target, nil
	}
	return "", domain.Transientf("open zip payload", "archive has no .nc member")
}

// readFloat1D reads a one-dimensional coordinate variable as float64.
func readFloat1D(v netcdf.Var) ([]float64, error) {
	dims, err := v.Dims()
	if err != nil {
		return nil, err
	}
	if len(dims) != 1 {
		return nil, fmt.Errorf("expected 1D variable, got %dD", len(dims))
	}
	n, err := dims[0].Len()
	if err != nil {
		return nil, err
	}
	return readValues(v, int(n))
}

// readVariable reads an n-dimensional data variable, applying the packing
// attributes (scale_factor, add_offset) and mapping fill values to NaN.
func readVariable(v netcdf.Var) (grid.Variable, error) {
	dims, err := v.Dims()
	if err != nil {
		return grid.Variable{}, err
	}

	names := make([]string, len(dims))
	total := 1
	for i, d := range dims {
		name, err := d.Name()
		if err != nil {
			return grid.Variable{}, err
		}
		n, err := d.Len()
		if err != nil {
			return grid.Variable{}, err
		}
		names[i] = name
		total *= int(n)
	}

	raw, err := readValues(v, total)
	if err != nil {
		return grid.Variable{}, err
	}

	scale, hasScale := attrFloat(v, "scale_factor")
	offset, hasOffset := attrFloat(v, "add_offset")
	fill, hasFill := attrFloat(v, "_FillValue")
	if !hasFill {
		fill, hasFill = attrFloat(v, "missing_value")
	}

	for i, val := range raw {
		if hasFill && val == fill {
			raw[i] = math.NaN()
			continue
		}
		if hasScale {
			val *= scale
		}
		if hasOffset {
			val += offset
		}
		raw[i] = val
	}
	return grid.Variable{Dims: names, Values: raw}, nil
}

// readValues reads n values of any numeric NetCDF type as float64.
func readValues(v netcdf.Var, n int) ([]float64, error) {
	t, err := v.Type()
	if err != nil {
		return nil, err
	}

	switch t {
	case netcdf.DOUBLE:
		out := make([]float64, n)
		if err := v.ReadFloat64s(out); err != nil {
			return nil, err
		}
		return out, nil
	case netcdf.FLOAT:
		tmp := make([]float32, n)
		if err := v.ReadFloat32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.INT:
		tmp := make([]int32, n)
		if err := v.ReadInt32s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.SHORT:
		tmp := make([]int16, n)
		if err := v.ReadInt16s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	case netcdf.INT64:
		tmp := make([]int64, n)
		if err := v.ReadInt64s(tmp); err != nil {
			return nil, err
		}
		return widen(tmp), nil
	default:
		return nil, fmt.Errorf("unsupported netcdf type %v", t)
	}
}

func widen[T int16 | int32 | int64 | float32](in []T) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

// attrFloat reads a numeric scalar attribute, tolerating the handful of
// numeric types ERA5 files use for packing metadata.
func attrFloat(v netcdf.Var, name string) (float64, bool) {
	a := v.Attr(name)
	n, err := a.Len()
	if err != nil || n == 0 {
		return 0, false
	}

	buf64 := make([]float64, 1)
	if err := a.ReadFloat64s(buf64); err == nil {
		return buf64[0], true
	}
	buf32 := make([]float32, 1)
	if err := a.ReadFloat32s(buf32); err == nil {
		return float64(buf32[0]), true
	}
	bufI := make([]int32, 1)
	if err := a.ReadInt32s(bufI); err == nil {
		return float64(bufI[0]), true
	}
	bufS := make([]int16, 1)
	if err := a.ReadInt16s(bufS); err == nil {
		return float64(bufS[0]), true
	}
	return 0, false
}
