package indicators

import (
	"math"
	"testing"
	"time"

	"orbot/models"
)

func mk(h, l, c float64, i int) models.Bar {
	return models.Bar{Time: time.Date(2024, 1, 2, 9, 30+i, 0, 0, time.UTC), High: h, Low: l, Close: c, Complete: true}
}

func TestTrueRanges(t *testing.T) {
	src := []models.Bar{mk(10, 8, 9, 0), mk(12, 10, 11, 1), mk(11, 6, 7, 2)}
	got := TrueRanges(src)
	want := []float64{3, 5}
	if len(got) != len(want) {
		t.Fatalf("expected %d ranges, got %d", len(want), len(got))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("tr[%d]=%f want %f", i, got[i], want[i])
		}
	}
}

func TestATR(t *testing.T) {
	src := []models.Bar{mk(10, 8, 9, 0), mk(12, 10, 11, 1), mk(11, 6, 7, 2)}
	if got := ATR(src, 2); math.Abs(got-4) > 1e-9 {
		t.Fatalf("ATR=%f want 4", got)
	}
	if got := ATR(src, 14); got != 0 {
		t.Fatalf("ATR with short history should be 0, got %f", got)
	}
}

func TestMaxSlice(t *testing.T) {
	if MaxSlice(nil) != 0 || MaxSlice([]float64{1, 5, 3}) != 5 {
		t.Fatalf("MaxSlice wrong")
	}
}
