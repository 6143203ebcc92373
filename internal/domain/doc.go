// Package domain models point-location environmental observations and the
// pure transforms that carry them from provider-native payloads to the
// canonical dataset.
//
// # Canonical Fields
//
// Every upstream field identifier maps to exactly one canonical [Field]
// through a per-provider [Vocabulary]. Different providers may expose the
// same physical quantity under different names (ERA5 "t2m" and NASA POWER
// "T2M" both become [FieldTemperature]); the reverse is disallowed. Values
// are always held in canonical units once normalized:
//
//	temperature, dewpoint   °C
//	pressure                kPa
//	precipitation           mm
//	radiation               MJ/m²
//	wind_speed              m/s
//	wind_direction          degrees
//	humidity                percent
//	uv_index                dimensionless
//
// # Unit Systems
//
// Each provider publishes in one known unit system, so conversions are
// declared per provider and applied exactly once — there is no unit
// auto-detection. ERA5 is Kelvin/Pa/m/J-per-m² native; NASA POWER and
// Open-Meteo already publish canonical units.
//
// # Missing Values
//
// A missing value is an absent map key, never a zero. Aggregation omits
// fields absent from a day's samples, and enrichment leaves dates without a
// secondary value missing rather than zero-filling them.
//
// # Error Taxonomy
//
// Failures divide into four kinds with different blast radii:
//
//	TransientFetchError   skip the affected fetch window, continue the run
//	ErrEmptyResult        skip the window silently; valid but data-sparse
//	SchemaError           abort the provider run; upstream shape changed
//	StoreCorruptionError  abort the provider run; never merge onto unknown state
//
// No error aborts the surrounding multi-provider orchestration.
package domain
