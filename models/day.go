package models

import "time"

// Phase is the lifecycle position of one trading day.
type Phase string

const (
	PhaseIdle             Phase = "idle"
	PhaseSessionAnnounced Phase = "session_announced"
	PhaseAwaitingEntry    Phase = "awaiting_entry_bar"
	PhaseSignalDecided    Phase = "signal_decided"
	PhaseOrderPlaced      Phase = "order_placed"
	PhaseLogOnly          Phase = "log_only"
	PhaseMonitoring       Phase = "monitoring"
	PhaseExitSettled      Phase = "exit_settled"
	PhaseSkipped          Phase = "skipped"
	PhaseSummaryFlushed   Phase = "summary_flushed"
)

var phaseRank = map[Phase]int{
	PhaseIdle:             0,
	PhaseSessionAnnounced: 1,
	PhaseAwaitingEntry:    2,
	PhaseSignalDecided:    3,
	PhaseOrderPlaced:      4,
	PhaseLogOnly:          4,
	PhaseMonitoring:       5,
	PhaseExitSettled:      6,
	PhaseSkipped:          6,
	PhaseSummaryFlushed:   7,
}

// Rank orders phases; unknown phases rank below idle.
func (p Phase) Rank() int {
	if r, ok := phaseRank[p]; ok {
		return r
	}
	return -1
}

// Terminal reports a phase after which the day takes no further trading action.
func (p Phase) Terminal() bool {
	return p == PhaseExitSettled || p == PhaseSkipped || p == PhaseSummaryFlushed
}

// InTrade reports a phase that may hold an open position.
func (p Phase) InTrade() bool {
	return p == PhaseOrderPlaced || p == PhaseLogOnly || p == PhaseMonitoring
}

// SkipReason names why a day produced no decision.
type SkipReason string

const (
	SkipWeekend         SkipReason = "weekend"
	SkipMissingEntryBar SkipReason = "missing_entry_bar"
	SkipMissingExitBar  SkipReason = "missing_exit_bar"
	SkipPastHardExit    SkipReason = "past_hard_exit"
	SkipORIncomplete    SkipReason = "or_incomplete"
	SkipORZeroRange     SkipReason = "or_zero_range"
	SkipInvalidOR       SkipReason = "invalid_or"
)

// Counters are the per-day tallies written to the summary row.
type Counters struct {
	Signals int `json:"signals"`
	Orders  int `json:"orders"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// SessionSetup is captured once the opening range is validated.
type SessionSetup struct {
	Instrument   string       `json:"instrument"`
	ORStart      Clock        `json:"or_start"`
	OREnd        Clock        `json:"or_end"`
	Entry        Clock        `json:"entry"`
	HardExit     Clock        `json:"hard_exit"`
	TopPct       float64      `json:"top_pct"`
	BottomPct    float64      `json:"bottom_pct"`
	SLPoints     float64      `json:"sl_points"`
	TPPoints     float64      `json:"tp_points"`
	Size         float64      `json:"size"`
	PointValue   float64      `json:"point_value"`
	OrdersOn     bool         `json:"orders_enabled"`
	Range        OpeningRange `json:"opening_range"`
	Completeness string       `json:"completeness"`
	ORBars       []Bar        `json:"or_bars,omitempty"`
	RecordedAt   time.Time    `json:"recorded_at"`
}

// PreTradeChecks are diagnostics taken right before the decision.
type PreTradeChecks struct {
	ATR14     float64   `json:"atr14"`
	LastClose float64   `json:"last_close"`
	Bars      int       `json:"bars"`
	Time      time.Time `json:"time"`
}

// DayRecord is the persisted control record of one trading day.
type DayRecord struct {
	Date           string           `json:"date"`
	Phase          Phase            `json:"phase"`
	SkipReason     SkipReason       `json:"skip_reason,omitempty"`
	SkipDetail     string           `json:"skip_detail,omitempty"`
	SessionStarted bool             `json:"session_started"`
	ORAnnounced    bool             `json:"or_announced"`
	Counters       Counters         `json:"counters"`
	LastSignal     string           `json:"last_signal,omitempty"`
	StartAccount   *AccountSnapshot `json:"start_account,omitempty"`
	EndAccount     *AccountSnapshot `json:"end_account,omitempty"`
	Setup          *SessionSetup    `json:"session_setup,omitempty"`
	PreTrade       *PreTradeChecks  `json:"pre_trade_checks,omitempty"`
	Signal         *Signal          `json:"signal_decision,omitempty"`
	Fill           *Fill            `json:"fill,omitempty"`
	Execution      *Execution       `json:"trade_result,omitempty"`
	PnLBalance     float64          `json:"pnl_balance"`
	PnLNAV         float64          `json:"pnl_nav"`
	FlushedAt      *time.Time       `json:"flushed_at,omitempty"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// NewDayRecord returns an idle record for date (YYYY-MM-DD).
func NewDayRecord(date string) *DayRecord {
	return &DayRecord{Date: date, Phase: PhaseIdle}
}

// Flushed reports whether the end-of-day summary was written.
func (r *DayRecord) Flushed() bool {
	return r.FlushedAt != nil || r.Phase == PhaseSummaryFlushed
}

// Clone returns a deep enough copy for concurrent readers.
func (r *DayRecord) Clone() *DayRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.StartAccount != nil {
		s := *r.StartAccount
		c.StartAccount = &s
	}
	if r.EndAccount != nil {
		e := *r.EndAccount
		c.EndAccount = &e
	}
	if r.Setup != nil {
		s := *r.Setup
		s.ORBars = append([]Bar(nil), r.Setup.ORBars...)
		s.Range.Missing = append([]string(nil), r.Setup.Range.Missing...)
		c.Setup = &s
	}
	if r.PreTrade != nil {
		p := *r.PreTrade
		c.PreTrade = &p
	}
	if r.Signal != nil {
		s := *r.Signal
		c.Signal = &s
	}
	if r.Fill != nil {
		f := *r.Fill
		c.Fill = &f
	}
	if r.Execution != nil {
		e := *r.Execution
		c.Execution = &e
	}
	if r.FlushedAt != nil {
		t := *r.FlushedAt
		c.FlushedAt = &t
	}
	return &c
}
