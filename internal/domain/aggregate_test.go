package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hourlyRecords(date time.Time, values map[Field]float64) []Record {
	records := make([]Record, 0, 24)
	for h := 0; h < 24; h++ {
		copied := make(map[Field]float64, len(values))
		for f, v := range values {
			copied[f] = v
		}
		records = append(records, Record{
			Time:   date.Add(time.Duration(h) * time.Hour),
			Values: copied,
			Source: "era5",
		})
	}
	return records
}

func TestAggregateDaily(t *testing.T) {
	day := time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)

	t.Run("means instantaneous fields and sums accumulated ones", func(t *testing.T) {
		records := hourlyRecords(day, map[Field]float64{
			FieldTemperature:   10.0,
			FieldPrecipitation: 0.5,
		})
		daily := AggregateDaily(records)

		require.Len(t, daily, 1)
		assert.Equal(t, day, daily[0].Time)
		assert.InDelta(t, 10.0, daily[0].Values[FieldTemperature], 1e-9)
		assert.InDelta(t, 12.0, daily[0].Values[FieldPrecipitation], 1e-9)
		assert.Equal(t, "era5", daily[0].Source)
	})

	t.Run("omits fields absent from a day", func(t *testing.T) {
		records := hourlyRecords(day, map[Field]float64{FieldTemperature: 20.0})
		daily := AggregateDaily(records)

		require.Len(t, daily, 1)
		assert.NotContains(t, daily[0].Values, FieldPrecipitation)
	})

	t.Run("mean ignores hours missing the field", func(t *testing.T) {
		records := hourlyRecords(day, map[Field]float64{FieldTemperature: 10.0})
		// Strip the field from half the hours; the mean must stay 10.
		for i := 0; i < 12; i++ {
			delete(records[i].Values, FieldTemperature)
		}
		daily := AggregateDaily(records)

		require.Len(t, daily, 1)
		assert.InDelta(t, 10.0, daily[0].Values[FieldTemperature], 1e-9)
	})

	t.Run("fields without a policy are dropped", func(t *testing.T) {
		records := []Record{{
			Time:   day,
			Values: map[Field]float64{FieldWindDirection: 270.0, FieldTemperature: 5.0},
		}}
		daily := AggregateDaily(records)

		require.Len(t, daily, 1)
		assert.NotContains(t, daily[0].Values, FieldWindDirection)
	})

	t.Run("one record per date sorted ascending", func(t *testing.T) {
		var records []Record
		for d := 3; d >= 1; d-- {
			date := time.Date(2024, 6, d, 0, 0, 0, 0, time.UTC)
			records = append(records, hourlyRecords(date, map[Field]float64{
				FieldTemperature: float64(d),
			})...)
		}
		daily := AggregateDaily(records)

		require.Len(t, daily, 3)
		for i, r := range daily {
			assert.Equal(t, fmt.Sprintf("2024-06-0%d", i+1), r.DateKey())
			assert.InDelta(t, float64(i+1), r.Values[FieldTemperature], 1e-9)
		}
	})
}
