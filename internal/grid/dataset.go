// Package grid models gridded scientific payloads and reduces them to the
// single cell nearest a fixed point of interest.
package grid

import (
	"math"
	"sort"

	"github.com/smartproduce/weather-etl/internal/domain"
)

// ensembleAxis is the redundant experiment-version axis present in
// near-real-time ERA5 payloads. It is eliminated by averaging, not selection.
const ensembleAxis = "expver"

var (
	latAliases  = []string{"latitude", "lat"}
	lonAliases  = []string{"longitude", "lon"}
	timeAliases = []string{"time", "valid_time", "datetime", "date_time"}
)

// Variable is one data variable with its dimension names in storage order
// and its values flattened row-major. Missing cells are NaN.
type Variable struct {
	Dims   []string
	Values []float64
}

// Dataset is a decoded gridded payload: named coordinate axes plus data
// variables dimensioned over them. Every dimension of every variable must
// have an axis entry (index-valued axes stand in for dimensions without
// coordinate variables).
type Dataset struct {
	Axes map[string][]float64
	Vars map[string]Variable
}

// AxisNames returns the sorted names of all axes, for error reporting.
func (d *Dataset) AxisNames() []string {
	names := make([]string, 0, len(d.Axes))
	for name := range d.Axes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dataset) findAxis(aliases []string) (string, bool) {
	for _, name := range aliases {
		if _, ok := d.Axes[name]; ok {
			return name, true
		}
	}
	return "", false
}

// TimeAxis locates the time coordinate among the recognized aliases and
// returns its name and raw numeric values. The encoding of the values is the
// caller's concern; it varies by axis name upstream.
func (d *Dataset) TimeAxis() (string, []float64, error) {
	name, ok := d.findAxis(timeAliases)
	if !ok {
		return "", nil, &domain.SchemaError{Reason: "no time coordinate axis", Columns: d.AxisNames()}
	}
	return name, d.Axes[name], nil
}

// SelectNearest collapses the spatial axes to the grid cell nearest
// (lat, lon), minimizing distance independently on each axis rather than
// jointly — at the grid spacings in use the difference is immaterial.
// Longitude candidates are compared under both the [-180,180] and [0,360]
// conventions and the smaller distance wins. An ensemble axis, when present,
// is averaged away (ignoring NaN). Variables not dimensioned over the
// spatial axes pass through with the ensemble axis still averaged.
func (d *Dataset) SelectNearest(lat, lon float64) (*Dataset, error) {
	latName, latOK := d.findAxis(latAliases)
	lonName, lonOK := d.findAxis(lonAliases)
	if !latOK || !lonOK {
		return nil, &domain.SchemaError{Reason: "no spatial coordinate axis", Columns: d.AxisNames()}
	}

	latIdx := nearestIndex(d.Axes[latName], lat)
	lonIdx := nearestLonIndex(d.Axes[lonName], lon)
	if latIdx < 0 || lonIdx < 0 {
		return nil, &domain.SchemaError{Reason: "spatial coordinate axis has no finite values", Columns: d.AxisNames()}
	}

	fixed := map[string]int{latName: latIdx, lonName: lonIdx}

	out := &Dataset{Axes: make(map[string][]float64), Vars: make(map[string]Variable)}
	for name, values := range d.Axes {
		if name == latName || name == lonName || name == ensembleAxis {
			continue
		}
		out.Axes[name] = values
	}
	for name, v := range d.Vars {
		out.Vars[name] = d.reduceVar(v, fixed)
	}
	return out, nil
}

// reduceVar collapses the fixed axes to single indices and averages across
// the ensemble axis.
func (d *Dataset) reduceVar(v Variable, fixed map[string]int) Variable {
	keptDims := make([]string, 0, len(v.Dims))
	for _, dim := range v.Dims {
		if _, isFixed := fixed[dim]; isFixed || dim == ensembleAxis {
			continue
		}
		keptDims = append(keptDims, dim)
	}

	keptLens := make([]int, len(keptDims))
	outLen := 1
	for i, dim := range keptDims {
		keptLens[i] = len(d.Axes[dim])
		outLen *= keptLens[i]
	}

	ensembleLen := 0
	for _, dim := range v.Dims {
		if dim == ensembleAxis {
			ensembleLen = d.dimLen(dim, v)
		}
	}

	strides := d.strides(v)
	out := make([]float64, outLen)
	idx := make(map[string]int, len(v.Dims))

	for flat := 0; flat < outLen; flat++ {
		rem := flat
		for i := len(keptDims) - 1; i >= 0; i-- {
			idx[keptDims[i]] = rem % keptLens[i]
			rem /= keptLens[i]
		}
		for dim, fi := range fixed {
			idx[dim] = fi
		}

		if ensembleLen > 0 {
			sum, count := 0.0, 0
			for e := 0; e < ensembleLen; e++ {
				idx[ensembleAxis] = e
				val := v.Values[flatIndex(v.Dims, strides, idx)]
				if !math.IsNaN(val) {
					sum += val
					count++
				}
			}
			if count == 0 {
				out[flat] = math.NaN()
			} else {
				out[flat] = sum / float64(count)
			}
		} else {
			out[flat] = v.Values[flatIndex(v.Dims, strides, idx)]
		}
	}

	return Variable{Dims: keptDims, Values: out}
}

// dimLen resolves a dimension's length from its axis, falling back to the
// variable's own shape for axis-less dimensions.
func (d *Dataset) dimLen(dim string, v Variable) int {
	if axis, ok := d.Axes[dim]; ok {
		return len(axis)
	}
	// Derive from total size and the other dimensions.
	n := len(v.Values)
	for _, other := range v.Dims {
		if other == dim {
			continue
		}
		if axis, ok := d.Axes[other]; ok && len(axis) > 0 {
			n /= len(axis)
		}
	}
	return n
}

func (d *Dataset) strides(v Variable) []int {
	strides := make([]int, len(v.Dims))
	acc := 1
	for i := len(v.Dims) - 1; i >= 0; i-- {
		strides[i] = acc
		acc *= d.dimLen(v.Dims[i], v)
	}
	return strides
}

func flatIndex(dims []string, strides []int, idx map[string]int) int {
	flat := 0
	for i, dim := range dims {
		flat += idx[dim] * strides[i]
	}
	return flat
}

// nearestIndex returns the index of the finite axis value closest to target,
// or -1 when the axis has no finite values.
func nearestIndex(axis []float64, target float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, v := range axis {
		if math.IsNaN(v) {
			continue
		}
		if dist := math.Abs(v - target); dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}

// nearestLonIndex matches a longitude against an axis that may use either
// the signed [-180,180] or the wrapped [0,360] convention. The target and
// axis conventions can differ in either direction, so each candidate's
// distance is taken as the minimum over the target and its ±360 aliases.
func nearestLonIndex(axis []float64, lon float64) int {
	best, bestDist := -1, math.Inf(1)
	for i, v := range axis {
		if math.IsNaN(v) {
			continue
		}
		dist := math.Abs(v - lon)
		if d := math.Abs(v - (lon - 360)); d < dist {
			dist = d
		}
		if d := math.Abs(v - (lon + 360)); d < dist {
			dist = d
		}
		if dist < bestDist {
			best, bestDist = i, dist
		}
	}
	return best
}
