// Package bars slices minute-bar sequences by wall-clock windows.
package bars

import (
	"sort"
	"time"

	"orbot/models"
)

// Slice returns the bars whose time of day falls in [start, end], in order.
// Dates are not compared; callers pass one local day at a time.
func Slice(src []models.Bar, start, end models.Clock) []models.Bar {
	out := make([]models.Bar, 0)
	lo, hi := start.Minutes(), end.Minutes()
	for _, b := range src {
		m := models.ClockOf(b.Time).Minutes()
		if m >= lo && m <= hi {
			out = append(out, b)
		}
	}
	return out
}

// FindAt returns the bar stamped exactly at the given time of day.
func FindAt(src []models.Bar, at models.Clock) (models.Bar, bool) {
	for _, b := range src {
		if models.ClockOf(b.Time) == at {
			return b, true
		}
	}
	return models.Bar{}, false
}

// After returns bars strictly later than t whose time of day is not past until.
func After(src []models.Bar, t time.Time, until models.Clock) []models.Bar {
	out := make([]models.Bar, 0)
	for _, b := range src {
		if !b.Time.After(t) {
			continue
		}
		if models.ClockOf(b.Time).After(until) {
			continue
		}
		out = append(out, b)
	}
	return out
}

// Between returns bars in (from, to].
func Between(src []models.Bar, from, to time.Time) []models.Bar {
	out := make([]models.Bar, 0)
	for _, b := range src {
		if b.Time.After(from) && !b.Time.After(to) {
			out = append(out, b)
		}
	}
	return out
}

// DateKey is the YYYY-MM-DD of t in loc.
func DateKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// ForDate keeps the bars of one local calendar date.
func ForDate(src []models.Bar, date string, loc *time.Location) []models.Bar {
	out := make([]models.Bar, 0)
	for _, b := range src {
		if DateKey(b.Time, loc) == date {
			out = append(out, b)
		}
	}
	return out
}

// GroupByDate splits bars by local date and returns the dates in ascending order.
func GroupByDate(src []models.Bar, loc *time.Location) ([]string, map[string][]models.Bar) {
	groups := make(map[string][]models.Bar)
	var dates []string
	for _, b := range src {
		key := DateKey(b.Time, loc)
		if _, ok := groups[key]; !ok {
			dates = append(dates, key)
		}
		groups[key] = append(groups[key], b)
	}
	sort.Strings(dates)
	return dates, groups
}

// Sort orders bars by timestamp in place.
func Sort(src []models.Bar) {
	sort.SliceStable(src, func(i, j int) bool { return src[i].Time.Before(src[j].Time) })
}

// Dedupe drops repeated timestamps from a sorted sequence, keeping the last copy.
func Dedupe(src []models.Bar) []models.Bar {
	if len(src) == 0 {
		return src
	}
	out := make([]models.Bar, 0, len(src))
	for _, b := range src {
		if n := len(out); n > 0 && out[n-1].Time.Equal(b.Time) {
			out[n-1] = b
			continue
		}
		out = append(out, b)
	}
	return out
}

// MissingMinutes lists the HH:MM stamps in [start, end] with no bar.
func MissingMinutes(window []models.Bar, start, end models.Clock) []string {
	seen := make(map[int]bool, len(window))
	for _, b := range window {
		seen[models.ClockOf(b.Time).Minutes()] = true
	}
	var missing []string
	for m := start.Minutes(); m <= end.Minutes(); m++ {
		if !seen[m] {
			missing = append(missing, models.Clock{Hour: m / 60, Minute: m % 60}.String())
		}
	}
	return missing
}

// InLocation rewrites bar stamps into loc.
func InLocation(src []models.Bar, loc *time.Location) []models.Bar {
	out := make([]models.Bar, len(src))
	for i, b := range src {
		b.Time = b.Time.In(loc)
		out[i] = b
	}
	return out
}

// Last returns the most recent bar.
func Last(src []models.Bar) (models.Bar, bool) {
	if len(src) == 0 {
		return models.Bar{}, false
	}
	return src[len(src)-1], true
}
