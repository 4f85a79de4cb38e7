package models

import (
	"encoding/json"
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	cases := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:30", want: Clock{9, 30}},
		{in: " 12:00 ", want: Clock{12, 0}},
		{in: "24:00", wantErr: true},
		{in: "9", wantErr: true},
		{in: "10:61", wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseClock(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseClock(%q) expected error", tc.in)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParseClock(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
}

func TestMinutesInclusive(t *testing.T) {
	if n := MinutesInclusive(MustClock("09:30"), MustClock("10:00")); n != 31 {
		t.Fatalf("expected 31 minutes, got %d", n)
	}
	if n := MinutesInclusive(MustClock("10:00"), MustClock("09:30")); n != 0 {
		t.Fatalf("expected 0 for reversed window, got %d", n)
	}
}

func TestClockJSON(t *testing.T) {
	b, err := json.Marshal(struct{ At Clock }{MustClock("10:22")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != `{"At":"10:22"}` {
		t.Fatalf("unexpected json %s", b)
	}
	var back struct{ At Clock }
	if err := json.Unmarshal(b, &back); err != nil || back.At != MustClock("10:22") {
		t.Fatalf("unmarshal: %v %v", back, err)
	}
}

func TestClockOn(t *testing.T) {
	loc := time.FixedZone("NY", -5*3600)
	day := time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC)
	got := MustClock("09:30").On(day, loc)
	if got.Day() != 4 || got.Hour() != 9 || got.Minute() != 30 {
		t.Fatalf("unexpected instant %v", got)
	}
}

func TestRealignKeepsOffsets(t *testing.T) {
	long := Signal{Decision: DecisionLong, EntryPrice: 170, StopPrice: 145, TargetPrice: 245}
	got := long.Realign(172.5)
	if got.Entry != 172.5 || got.Stop != 147.5 || got.Target != 247.5 {
		t.Fatalf("long realign: %+v", got)
	}
	if long.EntryPrice != 170 {
		t.Fatalf("signal mutated: %+v", long)
	}

	short := Signal{Decision: DecisionShort, EntryPrice: 120, StopPrice: 145, TargetPrice: 45}
	got = short.Realign(119)
	if got.Stop != 144 || got.Target != 44 {
		t.Fatalf("short realign: %+v", got)
	}
}

func TestOpeningRangeFlags(t *testing.T) {
	or := OpeningRange{High: 10, Low: 10, Expected: 31, Actual: 29, Tolerance: 2}
	if !or.ZeroRange() || or.Incomplete() || or.Valid() {
		t.Fatalf("unexpected flags for %+v", or)
	}
	empty := OpeningRange{Expected: 31}
	if empty.ZeroRange() || !empty.Incomplete() || empty.Valid() {
		t.Fatalf("unexpected flags for empty range")
	}
}

func TestPhaseRank(t *testing.T) {
	order := []Phase{PhaseIdle, PhaseSessionAnnounced, PhaseAwaitingEntry, PhaseSignalDecided, PhaseOrderPlaced, PhaseMonitoring, PhaseExitSettled, PhaseSummaryFlushed}
	for i := 1; i < len(order); i++ {
		if order[i].Rank() <= order[i-1].Rank() {
			t.Fatalf("%s should rank after %s", order[i], order[i-1])
		}
	}
	if !PhaseSkipped.Terminal() || PhaseMonitoring.Terminal() {
		t.Fatalf("terminal flags wrong")
	}
}
