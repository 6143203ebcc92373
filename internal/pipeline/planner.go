package pipeline

import "time"

// Window is one bounded fetch request: inclusive start and end calendar
// dates at UTC midnight.
type Window struct {
	Start time.Time
	End   time.Time
}

// ChunkPolicy selects how a requested range is partitioned into provider-
// appropriate fetch windows.
type ChunkPolicy int

const (
	// ChunkNone issues the whole range as a single window.
	ChunkNone ChunkPolicy = iota
	// ChunkCalendarMonth splits at calendar month boundaries.
	ChunkCalendarMonth
	// ChunkFixedDays cuts fixed-length windows of Chunking.Days days.
	ChunkFixedDays
	// ChunkMonths cuts rolling windows of Chunking.Months calendar months.
	ChunkMonths
)

// Chunking is a provider's maximum request window.
type Chunking struct {
	Policy ChunkPolicy
	Days   int
	Months int
}

// Plan partitions [start, end] into non-overlapping, contiguous windows that
// tile the range exactly, in chronological order. A start strictly after end
// yields no windows: the caller has nothing to do, which is not an error.
func Plan(start, end time.Time, c Chunking) []Window {
	start = midnightUTC(start)
	end = midnightUTC(end)
	if start.After(end) {
		return nil
	}

	var windows []Window
	cur := start
	for !cur.After(end) {
		var next time.Time
		switch c.Policy {
		case ChunkCalendarMonth:
			next = endOfMonth(cur)
		case ChunkFixedDays:
			next = cur.AddDate(0, 0, c.Days-1)
		case ChunkMonths:
			next = cur.AddDate(0, c.Months, -1)
		default:
			next = end
		}
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cur, End: next})
		cur = next.AddDate(0, 0, 1)
	}
	return windows
}

func midnightUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func endOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1)
}
