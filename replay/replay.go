package replay

import (
	"encoding/csv"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orbot/bars"
	"orbot/config"
	"orbot/indicators"
	"orbot/models"
	"orbot/strategy"
)

// DayResult is the outcome of one replayed day.
type DayResult struct {
	Date       string
	Range      models.OpeningRange
	Signal     models.Signal
	Execution  models.Execution
	SkipReason models.SkipReason
	Report     string
}

// Traded reports a day that opened a position.
func (r DayResult) Traded() bool {
	return r.Signal.IsTrade() && r.Execution.ExitReason != models.ExitNoTrade
}

func params(cfg *config.Config) strategy.Params {
	return strategy.Params{TopPct: cfg.TopPct, BottomPct: cfg.BottomPct, SLPoints: cfg.SLPoints, TPPoints: cfg.TPPoints}
}

// RunDay replays the bars of one local date.
func RunDay(cfg *config.Config, date string, day []models.Bar) DayResult {
	res := DayResult{Date: date, Execution: strategy.NoTrade()}
	var rep strings.Builder
	p := func(v float64) string { return fmt.Sprintf("%.2f", v) }

	fmt.Fprintf(&rep, "--- SESSION %s ---\n", date)
	fmt.Fprintf(&rep, "%s OR %s-%s, entry %s, exit %s, zones %.0f%%/%.0f%%, SL %s, TP %s, profile %s (tolerance %d)\n",
		cfg.Instrument, cfg.ORStart, cfg.OREnd, cfg.Entry, cfg.HardExit, cfg.TopPct*100, cfg.BottomPct*100,
		p(cfg.SLPoints), p(cfg.TPPoints), cfg.Profile, cfg.ORTolerance)

	window := bars.Slice(day, cfg.ORStart, cfg.OREnd)
	res.Range = strategy.Aggregate(window, cfg.ORStart, cfg.OREnd, cfg.ORTolerance)
	skip := func(reason models.SkipReason, detail string) DayResult {
		res.SkipReason = reason
		res.Signal = models.Signal{Decision: models.DecisionNone}
		fmt.Fprintf(&rep, "\n[SKIPPED] %s\n", detail)
		res.Report = finishReport(&rep, res)
		return res
	}

	switch {
	case res.Range.Incomplete():
		return skip(models.SkipORIncomplete, fmt.Sprintf("OR incomplete (%s bars)", res.Range.Completeness()))
	case res.Range.ZeroRange():
		return skip(models.SkipORZeroRange, "OR has zero range")
	}

	bottom, top := strategy.Cutoffs(res.Range, params(cfg))
	rep.WriteString("\n--- OR LEVELS ---\n")
	fmt.Fprintf(&rep, "Range: %s-%s (%s bars)\n", p(res.Range.Low), p(res.Range.High), res.Range.Completeness())
	fmt.Fprintf(&rep, "Long >= %s | Short <= %s\n", p(top), p(bottom))

	trade := bars.Slice(day, cfg.Entry, cfg.HardExit)
	sig := strategy.Decide(trade, res.Range, cfg.Entry, params(cfg))
	res.Signal = sig
	switch sig.Decision {
	case models.DecisionMissingEntry, models.DecisionEntryIncomplete:
		return skip(models.SkipMissingEntryBar, "missing entry bar "+cfg.Entry.String())
	case models.DecisionInvalidOR:
		return skip(models.SkipInvalidOR, "invalid OR")
	case models.DecisionNone:
		fmt.Fprintf(&rep, "\n[NO TRADE] close %s inside %s-%s\n", p(sig.EntryPrice), p(bottom), p(top))
		res.Report = finishReport(&rep, res)
		return res
	}

	fmt.Fprintf(&rep, "\n--- SIGNAL ---\n%s @ %s | SL %s | TP %s\n", strings.ToUpper(string(sig.Decision)), p(sig.EntryPrice), p(sig.StopPrice), p(sig.TargetPrice))
	path := bars.After(day, sig.EntryTime, cfg.HardExit)
	res.Execution = strategy.Simulate(path, sig.Side(), sig.Levels(), cfg.PointValue, cfg.PositionSize)
	e := res.Execution
	rep.WriteString("\n--- EXIT ---\n")
	fmt.Fprintf(&rep, "%s @ %s (%s)\n", e.ExitReason, p(e.ExitPrice), e.ExitTime.Format("15:04"))
	fmt.Fprintf(&rep, "PnL: $%s (%s pts)\nStats: MFE +%s | MAE -%s\n", p(e.PnLCurrency), p(e.PnLPoints), p(e.MFEPoints), p(e.MAEPoints))
	res.Report = finishReport(&rep, res)
	return res
}

func finishReport(rep *strings.Builder, res DayResult) string {
	traded := 0
	if res.Traded() {
		traded = 1
	}
	rep.WriteString("\n--- RECAP ---\n")
	fmt.Fprintf(rep, "Signals: %d | Orders: %d\n", traded, traded)
	fmt.Fprintf(rep, "PnL: $%.2f (Simulated)", res.Execution.PnLCurrency)
	return rep.String()
}

// RunRange replays every weekday in [from, to] that has bars. Empty bounds
// are open.
func RunRange(cfg *config.Config, src []models.Bar, from, to string) []DayResult {
	dates, groups := bars.GroupByDate(src, cfg.Location)
	var out []DayResult
	for _, d := range dates {
		if (from != "" && d < from) || (to != "" && d > to) {
			continue
		}
		day, err := time.ParseInLocation("2006-01-02", d, cfg.Location)
		if err == nil && (day.Weekday() == time.Saturday || day.Weekday() == time.Sunday) {
			continue
		}
		out = append(out, RunDay(cfg, d, groups[d]))
	}
	return out
}

// Summary aggregates replayed days.
type Summary struct {
	Days          int
	Trades        int
	Wins          int
	Losses        int
	WinRate       float64
	TotalPoints   float64
	TotalCurrency float64
	BestDay       float64
	WorstDay      float64
	MaxDrawdown   float64
	MaxMFE        float64
	Exits         map[models.ExitReason]int
	Skips         map[models.SkipReason]int
}

// Summarize totals results. Money is summed in decimal and rounded to cents.
func Summarize(results []DayResult) Summary {
	s := Summary{Days: len(results), Exits: map[models.ExitReason]int{}, Skips: map[models.SkipReason]int{}}
	points, money := decimal.Zero, decimal.Zero
	var dayPnL, mfes, losses []float64
	peak, equity := decimal.Zero, decimal.Zero
	maxDD := decimal.Zero
	for _, r := range results {
		if r.SkipReason != "" {
			s.Skips[r.SkipReason]++
			continue
		}
		s.Exits[r.Execution.ExitReason]++
		if !r.Traded() {
			continue
		}
		s.Trades++
		e := r.Execution
		if e.PnLCurrency > 0 {
			s.Wins++
		} else if e.PnLCurrency < 0 {
			s.Losses++
		}
		pnl := decimal.NewFromFloat(e.PnLCurrency)
		points = points.Add(decimal.NewFromFloat(e.PnLPoints))
		money = money.Add(pnl)
		dayPnL = append(dayPnL, e.PnLCurrency)
		losses = append(losses, -e.PnLCurrency)
		mfes = append(mfes, e.MFEPoints)

		equity = equity.Add(pnl)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		if dd := peak.Sub(equity); dd.GreaterThan(maxDD) {
			maxDD = dd
		}
	}
	s.TotalPoints = points.Round(2).InexactFloat64()
	s.TotalCurrency = money.Round(2).InexactFloat64()
	s.MaxDrawdown = maxDD.Round(2).InexactFloat64()
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
		s.BestDay = indicators.MaxSlice(dayPnL)
		s.WorstDay = -indicators.MaxSlice(losses)
		s.MaxMFE = indicators.MaxSlice(mfes)
	}
	return s
}

// String renders the summary for logs.
func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "days=%d trades=%d wins=%d losses=%d win_rate=%.1f%% pnl_pts=%.2f pnl=%.2f best=%.2f worst=%.2f max_dd=%.2f",
		s.Days, s.Trades, s.Wins, s.Losses, s.WinRate*100, s.TotalPoints, s.TotalCurrency, s.BestDay, s.WorstDay, s.MaxDrawdown)
	exits := make([]string, 0, len(s.Exits))
	for k, v := range s.Exits {
		exits = append(exits, fmt.Sprintf("%s=%d", k, v))
	}
	sort.Strings(exits)
	skips := make([]string, 0, len(s.Skips))
	for k, v := range s.Skips {
		skips = append(skips, fmt.Sprintf("%s=%d", k, v))
	}
	sort.Strings(skips)
	fmt.Fprintf(&b, " exits[%s] skips[%s]", strings.Join(exits, " "), strings.Join(skips, " "))
	return b.String()
}

// ResultsHeader is the column set of the results file.
var ResultsHeader = []string{
	"date", "decision", "skip_reason", "or_high", "or_low", "or_bars",
	"entry_time", "entry", "stop", "target", "exit_time", "exit", "exit_reason",
	"pnl_points", "pnl_currency", "mfe_points", "mae_points",
}

// WriteResults writes one row per day to path.
func WriteResults(path string, results []DayResult) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(ResultsHeader); err != nil {
		return err
	}
	num := func(v float64) string { return decimal.NewFromFloat(v).StringFixed(2) }
	stamp := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format("2006-01-02 15:04")
	}
	for _, r := range results {
		e := r.Execution
		row := []string{
			r.Date, string(r.Signal.Decision), string(r.SkipReason),
			num(r.Range.High), num(r.Range.Low), r.Range.Completeness(),
			stamp(r.Signal.EntryTime), num(r.Signal.EntryPrice), num(r.Signal.StopPrice), num(r.Signal.TargetPrice),
			stamp(e.ExitTime), num(e.ExitPrice), string(e.ExitReason),
			num(e.PnLPoints), num(e.PnLCurrency), num(e.MFEPoints), num(e.MAEPoints),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
