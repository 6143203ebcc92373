package domain

import (
	"sort"
	"time"
)

// reduction is the per-field policy for collapsing sub-daily samples into a
// daily record.
type reduction int

const (
	reduceMean reduction = iota
	reduceSum
)

// dailyReductions fixes how each canonical field aggregates to daily cadence.
// Instantaneous quantities average; accumulated quantities sum. Fields
// without a policy are omitted from daily aggregates.
var dailyReductions = map[Field]reduction{
	FieldTemperature:   reduceMean,
	FieldDewpoint:      reduceMean,
	FieldPressure:      reduceMean,
	FieldWindSpeed:     reduceMean,
	FieldHumidity:      reduceMean,
	FieldPrecipitation: reduceSum,
	FieldRadiation:     reduceSum,
}

// AggregateDaily reduces sub-daily records to exactly one record per
// distinct UTC calendar date present in the input. Fields absent from a
// day's records are omitted from that day's aggregate, never zero-filled.
// Output is sorted ascending by date.
func AggregateDaily(records []Record) []Record {
	type accum struct {
		sum   map[Field]float64
		count map[Field]int
	}

	days := make(map[string]*accum)
	sources := make(map[string]string)
	for _, r := range records {
		key := r.DateKey()
		a, ok := days[key]
		if !ok {
			a = &accum{sum: make(map[Field]float64), count: make(map[Field]int)}
			days[key] = a
			sources[key] = r.Source
		}
		for f, v := range r.Values {
			if _, known := dailyReductions[f]; !known {
				continue
			}
			a.sum[f] += v
			a.count[f]++
		}
	}

	keys := make([]string, 0, len(days))
	for k := range days {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Record, 0, len(keys))
	for _, key := range keys {
		a := days[key]
		date, err := time.Parse("2006-01-02", key)
		if err != nil {
			continue
		}
		values := make(map[Field]float64, len(a.sum))
		for f, sum := range a.sum {
			if dailyReductions[f] == reduceMean {
				values[f] = sum / float64(a.count[f])
			} else {
				values[f] = sum
			}
		}
		out = append(out, Record{Time: date, Values: values, Source: sources[key]})
	}
	return out
}
