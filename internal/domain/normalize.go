package domain

import (
	"math"
	"sort"
)

// Vocabulary maps a provider's native field identifiers to canonical fields.
// Many-to-one is allowed (short and long upstream names for the same
// quantity); one-to-many is not. Identifiers absent from the table pass
// through unrenamed and are dropped by field selection.
type Vocabulary map[string]Field

// Conversion rescales one canonical field from a provider's native unit
// system to the canonical unit. Conversions apply only to fields present in
// a record; each payload is assumed to originate in one known upstream unit
// system, so a conversion is applied exactly once and never auto-detected.
type Conversion struct {
	Field Field
	Apply func(float64) float64
}

// Unit conversion primitives for the upstream unit systems in use.
func KelvinToCelsius(v float64) float64     { return v - 273.15 }
func PaToKilopascal(v float64) float64      { return v / 1000.0 }
func MetersToMillimeters(v float64) float64 { return v * 1000.0 }
func JoulesToMegajoules(v float64) float64  { return v / 1e6 }

// Normalize renames provider fields to the canonical vocabulary, derives
// wind speed from orthogonal components when both are present (discarding
// the components), applies unit conversions to present fields, and selects
// the provider's canonical field set. Samples with no surviving values are
// dropped.
func Normalize(samples []Sample, vocab Vocabulary, conversions []Conversion, fields []Field, source string) []Record {
	selected := make(map[Field]bool, len(fields))
	for _, f := range fields {
		selected[f] = true
	}

	records := make([]Record, 0, len(samples))
	for _, s := range samples {
		values := make(map[Field]float64, len(s.Values))
		for name, v := range s.Values {
			if canonical, ok := vocab[name]; ok {
				values[canonical] = v
			} else {
				values[Field(name)] = v
			}
		}

		deriveWindSpeed(values)

		for _, c := range conversions {
			if v, ok := values[c.Field]; ok {
				values[c.Field] = c.Apply(v)
			}
		}

		for f := range values {
			if !selected[f] {
				delete(values, f)
			}
		}
		if len(values) == 0 {
			continue
		}
		records = append(records, Record{Time: s.Time, Values: values, Source: source})
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Time.Before(records[j].Time) })
	return records
}

// deriveWindSpeed computes the vector magnitude of the u/v wind components
// when both are present, then removes the components.
func deriveWindSpeed(values map[Field]float64) {
	u, hasU := values[FieldUWind]
	v, hasV := values[FieldVWind]
	if !hasU || !hasV {
		return
	}
	values[FieldWindSpeed] = math.Sqrt(u*u + v*v)
	delete(values, FieldUWind)
	delete(values, FieldVWind)
}
