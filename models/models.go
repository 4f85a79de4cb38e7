package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a wall-clock time of day at minute resolution.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid clock %q: bad hour", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid clock %q: bad minute", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

// MustClock is ParseClock for constants; it panics on bad input.
func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the time of day of t in t's own location.
func ClockOf(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Minutes returns minutes since midnight.
func (c Clock) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c Clock) Before(o Clock) bool { return c.Minutes() < o.Minutes() }

func (c Clock) After(o Clock) bool { return c.Minutes() > o.Minutes() }

// Add shifts the clock by d, truncated to minutes. It does not wrap past midnight.
func (c Clock) Add(d time.Duration) Clock {
	m := c.Minutes() + int(d/time.Minute)
	if m < 0 {
		m = 0
	}
	if m > 23*60+59 {
		m = 23*60 + 59
	}
	return Clock{Hour: m / 60, Minute: m % 60}
}

// On returns the instant of c on the calendar day of day, in loc.
func (c Clock) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

// MarshalText lets clocks round-trip through JSON and YAML as "HH:MM".
func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	parsed, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// MinutesInclusive counts the minute bars expected in [start, end].
func MinutesInclusive(start, end Clock) int {
	n := end.Minutes() - start.Minutes() + 1
	if n < 0 {
		return 0
	}
	return n
}

// Bar is one OHLC minute candle. Time carries the market location.
type Bar struct {
	Time     time.Time `json:"time"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume,omitempty"`
	Complete bool      `json:"complete"`
}

// Side is the direction of a position.
type Side string

const (
	Long  Side = "long"
	Short Side = "short"
)

// Sign returns +1 for long and -1 for short.
func (s Side) Sign() float64 {
	if s == Short {
		return -1
	}
	return 1
}

// OpeningRange is the high/low band of the opening window.
type OpeningRange struct {
	High      float64  `json:"high"`
	Low       float64  `json:"low"`
	Range     float64  `json:"range"`
	Expected  int      `json:"expected_bars"`
	Actual    int      `json:"actual_bars"`
	Tolerance int      `json:"tolerance"`
	Missing   []string `json:"missing,omitempty"`
}

// Empty reports whether no bar fell inside the window.
func (or OpeningRange) Empty() bool { return or.Actual == 0 }

// ZeroRange reports a flat window. An empty window is not zero-range.
func (or OpeningRange) ZeroRange() bool { return !or.Empty() && or.High == or.Low }

// Incomplete reports a bar count short of expected beyond the tolerance.
func (or OpeningRange) Incomplete() bool {
	return or.Actual < or.Expected-or.Tolerance
}

// Valid is the decision engine's view: non-empty with positive range.
func (or OpeningRange) Valid() bool { return !or.Empty() && or.Range > 0 }

// Completeness renders "actual/expected".
func (or OpeningRange) Completeness() string {
	return fmt.Sprintf("%d/%d", or.Actual, or.Expected)
}

// Decision classifies a trading day.
type Decision string

const (
	DecisionLong            Decision = "long"
	DecisionShort           Decision = "short"
	DecisionNone            Decision = "none"
	DecisionInvalidOR       Decision = "invalid_or"
	DecisionMissingEntry    Decision = "missing_entry"
	DecisionEntryIncomplete Decision = "entry_incomplete"
)

// Levels are absolute entry/stop/target prices.
type Levels struct {
	Entry  float64 `json:"entry"`
	Stop   float64 `json:"stop"`
	Target float64 `json:"target"`
}

// Signal is the immutable result of one decision.
type Signal struct {
	Decision     Decision  `json:"decision"`
	EntryTime    time.Time `json:"entry_time,omitempty"`
	EntryPrice   float64   `json:"entry_price,omitempty"`
	StopPrice    float64   `json:"stop_price,omitempty"`
	TargetPrice  float64   `json:"target_price,omitempty"`
	TopCutoff    float64   `json:"top_cutoff,omitempty"`
	BottomCutoff float64   `json:"bottom_cutoff,omitempty"`
}

// IsTrade reports a long or short decision.
func (s Signal) IsTrade() bool {
	return s.Decision == DecisionLong || s.Decision == DecisionShort
}

// Side is only meaningful when IsTrade is true.
func (s Signal) Side() Side {
	if s.Decision == DecisionShort {
		return Short
	}
	return Long
}

func (s Signal) Levels() Levels {
	return Levels{Entry: s.EntryPrice, Stop: s.StopPrice, Target: s.TargetPrice}
}

// StopOffset and TargetOffset are the fixed point distances from entry.
func (s Signal) StopOffset() float64 {
	d := s.EntryPrice - s.StopPrice
	if d < 0 {
		d = -d
	}
	return d
}

func (s Signal) TargetOffset() float64 {
	d := s.TargetPrice - s.EntryPrice
	if d < 0 {
		d = -d
	}
	return d
}

// Realign returns levels moved to fillPrice keeping the signal's offsets.
func (s Signal) Realign(fillPrice float64) Levels {
	sign := s.Side().Sign()
	return Levels{
		Entry:  fillPrice,
		Stop:   fillPrice - sign*s.StopOffset(),
		Target: fillPrice + sign*s.TargetOffset(),
	}
}

// ExitReason says how a position ended.
type ExitReason string

const (
	ExitTarget  ExitReason = "tp"
	ExitStop    ExitReason = "sl"
	ExitTime    ExitReason = "time"
	ExitNoTrade ExitReason = "no_trade"
)

// Execution is the realized outcome of a day.
type Execution struct {
	Side        Side       `json:"side,omitempty"`
	EntryPrice  float64    `json:"entry_price,omitempty"`
	StopPrice   float64    `json:"stop_price,omitempty"`
	TargetPrice float64    `json:"target_price,omitempty"`
	ExitTime    time.Time  `json:"exit_time,omitempty"`
	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitReason  ExitReason `json:"exit_reason"`
	PnLPoints   float64    `json:"pnl_points"`
	PnLCurrency float64    `json:"pnl_currency"`
	MFEPoints   float64    `json:"mfe_points"`
	MAEPoints   float64    `json:"mae_points"`
	BarsWalked  int        `json:"bars_walked"`
}

// Position is one open trade at the counterparty.
type Position struct {
	ID           string    `json:"id"`
	Instrument   string    `json:"instrument"`
	Units        float64   `json:"units"`
	Price        float64   `json:"price"`
	UnrealizedPL float64   `json:"unrealized_pl"`
	OpenTime     time.Time `json:"open_time,omitempty"`
}

// Side derives the direction from the signed units.
func (p Position) Side() Side {
	if p.Units < 0 {
		return Short
	}
	return Long
}

// Fill is an accepted market order.
type Fill struct {
	OrderID string    `json:"order_id"`
	TradeID string    `json:"trade_id"`
	Price   float64   `json:"price"`
	Units   float64   `json:"units"`
	Time    time.Time `json:"time"`
	Levels  Levels    `json:"adjusted_levels"`
}

// Closed is a position closed by CloseAllPositions.
type Closed struct {
	ID         string  `json:"id"`
	Price      float64 `json:"price"`
	RealizedPL float64 `json:"realized_pl"`
	Units      float64 `json:"units"`
}

// AccountSnapshot is the account state at one instant.
type AccountSnapshot struct {
	Time            time.Time `json:"time"`
	Balance         float64   `json:"balance"`
	NAV             float64   `json:"nav"`
	UnrealizedPL    float64   `json:"unrealized_pl"`
	MarginAvailable float64   `json:"margin_available"`
	OpenCount       int       `json:"open_count"`
	Currency        string    `json:"currency"`
}

// Delivery is the outcome of one notification.
type Delivery struct {
	ID     string `json:"id,omitempty"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	DeliveryPosted  = "posted"
	DeliverySkipped = "skipped"
	DeliveryError   = "error"
)

// Heartbeat is a liveness sample. It never drives state.
type Heartbeat struct {
	Time          time.Time `json:"time"`
	LastBarTime   time.Time `json:"last_bar_time,omitempty"`
	LastPrice     float64   `json:"last_price"`
	FetchLatency  int64     `json:"fetch_latency_ms"`
	OpenPositions int       `json:"open_positions"`
	InSession     bool      `json:"in_session"`
	Phase         Phase     `json:"phase"`
}
