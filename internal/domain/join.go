package domain

// NeedsEnrichment reports whether any record in the batch is missing the
// target field. When every row already carries it, the enrichment step is a
// no-op and the secondary signal must not be re-fetched.
func NeedsEnrichment(records []Record, field Field) bool {
	return anyMissing(records, field)
}

func anyMissing(records []Record, field Field) bool {
	for _, r := range records {
		if _, ok := r.Values[field]; !ok {
			return true
		}
	}
	return false
}

// JoinDaily fills field on each record from a date-keyed lookup, matching on
// the record's UTC calendar date. Values already present are never
// overwritten; dates absent from the lookup stay missing. The input slice is
// returned unchanged when the field is already densely populated.
func JoinDaily(records []Record, field Field, lookup map[string]float64) []Record {
	if !anyMissing(records, field) {
		return records
	}
	for i := range records {
		if _, ok := records[i].Values[field]; ok {
			continue
		}
		if v, ok := lookup[records[i].DateKey()]; ok {
			records[i].Values[field] = v
		}
	}
	return records
}
