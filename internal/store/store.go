// Package store persists one provider's observation history as a flat CSV
// table: a header of the time column, the provider's canonical fields, and a
// source tag, with rows sorted ascending by timestamp. The file is read
// fully, amended in memory, and rewritten whole; there are no partial or
// streaming writes.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/smartproduce/weather-etl/internal/domain"
)

// loadLayouts are the timestamp formats accepted when reading a store back.
// Writing always uses the store's own layout; reading is lenient so a store
// written by the original tooling still parses.
var loadLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Store reads and rewrites the historical CSV for one provider.
type Store struct {
	path    string
	timeCol string // "date" for daily cadence, "datetime" otherwise
	layout  string
	fields  []domain.Field
	source  string
}

// New creates a store handle. The file need not exist yet; it is created on
// the first Save.
func New(path, timeCol, layout string, fields []domain.Field, source string) *Store {
	return &Store{path: path, timeCol: timeCol, layout: layout, fields: fields, source: source}
}

// Path returns the backing file path.
func (s *Store) Path() string { return s.path }

// Load reads the full history into memory. A missing file yields an empty
// history; an unreadable or unparseable file yields a StoreCorruptionError,
// since merging against an unknown state must never happen.
func (s *Store) Load() ([]domain.Record, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &domain.StoreCorruptionError{Path: s.path, Err: err}
	}
	defer f.Close()

	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, &domain.StoreCorruptionError{Path: s.path, Err: err}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	timeIdx, sourceIdx := -1, -1
	fieldIdx := make(map[int]domain.Field)
	for i, col := range header {
		switch col {
		case s.timeCol, "timestamp", "date", "datetime":
			timeIdx = i
		case "source":
			sourceIdx = i
		default:
			fieldIdx[i] = domain.Field(col)
		}
	}
	if timeIdx < 0 {
		return nil, &domain.StoreCorruptionError{Path: s.path, Err: fmt.Errorf("no %q column in header %v", s.timeCol, header)}
	}

	records := make([]domain.Record, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, &domain.StoreCorruptionError{Path: s.path, Err: fmt.Errorf("row has %d cells, header has %d", len(row), len(header))}
		}
		ts, err := parseTime(row[timeIdx])
		if err != nil {
			return nil, &domain.StoreCorruptionError{Path: s.path, Err: err}
		}
		rec := domain.Record{Time: ts, Values: make(map[domain.Field]float64), Source: s.source}
		if sourceIdx >= 0 && row[sourceIdx] != "" {
			rec.Source = row[sourceIdx]
		}
		for i, field := range fieldIdx {
			cell := row[i]
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				return nil, &domain.StoreCorruptionError{Path: s.path, Err: fmt.Errorf("column %s: %w", field, err)}
			}
			rec.Values[field] = v
		}
		records = append(records, rec)
	}
	return records, nil
}

// LastTime returns the maximum timestamp in the history, or false when the
// history is empty. Load returns rows sorted, but the scan does not rely on
// that.
func LastTime(records []domain.Record) (time.Time, bool) {
	var last time.Time
	for _, r := range records {
		if r.Time.After(last) {
			last = r.Time
		}
	}
	return last, !last.IsZero()
}

// Merge reconciles freshly fetched records with the existing history. For a
// timestamp present in both, the incoming record wins: upstream backfill
// corrections authoritatively supersede earlier values. The result holds at
// most one record per timestamp, sorted ascending. Inputs are not mutated.
func Merge(existing, incoming []domain.Record) []domain.Record {
	byTime := make(map[int64]domain.Record, len(existing)+len(incoming))
	for _, r := range existing {
		byTime[r.Time.UTC().Unix()] = r
	}
	for _, r := range incoming {
		byTime[r.Time.UTC().Unix()] = r
	}

	merged := make([]domain.Record, 0, len(byTime))
	for _, r := range byTime {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Time.Before(merged[j].Time) })
	return merged
}

// Save rewrites the store atomically: the full table is written to a
// temporary file in the same directory, then renamed over the target.
func (s *Store) Save(records []domain.Record) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp store: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	header := make([]string, 0, len(s.fields)+2)
	header = append(header, s.timeCol)
	for _, f := range s.fields {
		header = append(header, string(f))
	}
	header = append(header, "source")
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("write store header: %w", err)
	}

	row := make([]string, len(header))
	for _, r := range records {
		row[0] = r.Time.UTC().Format(s.layout)
		for i, f := range s.fields {
			if v, ok := r.Values[f]; ok {
				row[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
			} else {
				row[i+1] = ""
			}
		}
		row[len(row)-1] = r.Source
		if err := w.Write(row); err != nil {
			tmp.Close()
			return fmt.Errorf("write store row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flush store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace store: %w", err)
	}
	return nil
}

func parseTime(cell string) (time.Time, error) {
	for _, layout := range loadLayouts {
		if t, err := time.Parse(layout, cell); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", cell)
}
