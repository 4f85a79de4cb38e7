package bars

import (
	"testing"
	"time"

	"orbot/models"
)

var ny = time.FixedZone("EST", -5*3600)

func bar(day int, hhmm string, price float64) models.Bar {
	c := models.MustClock(hhmm)
	return models.Bar{
		Time:     time.Date(2024, 1, day, c.Hour, c.Minute, 0, 0, ny),
		Open:     price,
		High:     price + 1,
		Low:      price - 1,
		Close:    price,
		Complete: true,
	}
}

func TestSliceInclusive(t *testing.T) {
	src := []models.Bar{bar(2, "09:29", 1), bar(2, "09:30", 2), bar(2, "09:45", 3), bar(2, "10:00", 4), bar(2, "10:01", 5)}
	got := Slice(src, models.MustClock("09:30"), models.MustClock("10:00"))
	if len(got) != 3 || got[0].Close != 2 || got[2].Close != 4 {
		t.Fatalf("unexpected slice: %+v", got)
	}
	if len(src) != 5 {
		t.Fatalf("source mutated")
	}
	got[0].Close = 99
	if src[1].Close != 2 {
		t.Fatalf("slice aliases source")
	}
}

func TestSliceEmpty(t *testing.T) {
	if got := Slice(nil, models.MustClock("09:30"), models.MustClock("10:00")); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
	src := []models.Bar{bar(2, "11:00", 1)}
	if got := Slice(src, models.MustClock("09:30"), models.MustClock("10:00")); len(got) != 0 {
		t.Fatalf("expected no bars, got %d", len(got))
	}
}

func TestFindAtAndAfter(t *testing.T) {
	src := []models.Bar{bar(2, "10:21", 1), bar(2, "10:22", 2), bar(2, "10:23", 3), bar(2, "12:00", 4), bar(2, "12:01", 5)}
	entry, ok := FindAt(src, models.MustClock("10:22"))
	if !ok || entry.Close != 2 {
		t.Fatalf("FindAt: %+v %v", entry, ok)
	}
	if _, ok := FindAt(src, models.MustClock("10:30")); ok {
		t.Fatalf("FindAt found a missing bar")
	}
	path := After(src, entry.Time, models.MustClock("12:00"))
	if len(path) != 2 || path[0].Close != 3 || path[1].Close != 4 {
		t.Fatalf("After: %+v", path)
	}
}

func TestGroupByDate(t *testing.T) {
	src := []models.Bar{bar(3, "09:30", 1), bar(2, "09:30", 2), bar(3, "09:31", 3)}
	dates, groups := GroupByDate(src, ny)
	if len(dates) != 2 || dates[0] != "2024-01-02" || dates[1] != "2024-01-03" {
		t.Fatalf("dates: %v", dates)
	}
	if len(groups["2024-01-03"]) != 2 {
		t.Fatalf("group size: %d", len(groups["2024-01-03"]))
	}
	if got := ForDate(src, "2024-01-02", ny); len(got) != 1 || got[0].Close != 2 {
		t.Fatalf("ForDate: %+v", got)
	}
}

func TestSortDedupe(t *testing.T) {
	src := []models.Bar{bar(2, "09:31", 1), bar(2, "09:30", 2), bar(2, "09:31", 3)}
	Sort(src)
	got := Dedupe(src)
	if len(got) != 2 || got[0].Close != 2 || got[1].Close != 3 {
		t.Fatalf("Dedupe: %+v", got)
	}
}

func TestMissingMinutes(t *testing.T) {
	src := []models.Bar{bar(2, "09:30", 1), bar(2, "09:32", 2)}
	got := MissingMinutes(src, models.MustClock("09:30"), models.MustClock("09:33"))
	if len(got) != 2 || got[0] != "09:31" || got[1] != "09:33" {
		t.Fatalf("MissingMinutes: %v", got)
	}
}
