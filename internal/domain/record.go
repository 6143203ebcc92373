package domain

import "time"

// Field is a canonical, provider-independent name for a physical quantity.
type Field string

// Canonical fields. Values are always held in canonical units: °C for
// temperature kinds, kPa for pressure, mm for precipitation, MJ/m² for
// radiation, m/s for wind speed, degrees for wind direction, percent for
// humidity.
const (
	FieldTemperature   Field = "temperature"
	FieldDewpoint      Field = "dewpoint"
	FieldPressure      Field = "pressure"
	FieldWindSpeed     Field = "wind_speed"
	FieldWindDirection Field = "wind_direction"
	FieldHumidity      Field = "humidity"
	FieldPrecipitation Field = "precipitation"
	FieldRadiation     Field = "radiation"
	FieldUVIndex       Field = "uv_index"

	// Orthogonal wind components. Intermediate only: they exist between
	// renaming and wind-speed derivation and never reach a store.
	FieldUWind Field = "u_wind"
	FieldVWind Field = "v_wind"
)

// Sample is one provider-native observation: a timestamp plus values keyed by
// the provider's own field identifiers. Absent keys mean missing values.
type Sample struct {
	Time   time.Time
	Values map[string]float64
}

// Record is one canonical observation. Within a provider's dataset Time is
// unique. Absent keys in Values mean missing values, never zero.
type Record struct {
	Time   time.Time
	Values map[Field]float64
	Source string
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	values := make(map[Field]float64, len(r.Values))
	for k, v := range r.Values {
		values[k] = v
	}
	return Record{Time: r.Time, Values: values, Source: r.Source}
}

// DateKey returns the record's calendar date in UTC, formatted YYYY-MM-DD.
func (r Record) DateKey() string {
	return r.Time.UTC().Format("2006-01-02")
}
