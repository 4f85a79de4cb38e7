package session

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"orbot/metrics"
	"orbot/models"
)

// Flush writes the end-of-day summary once the day is settled and the hard
// exit has passed. It reports whether anything was written; a second call on
// the same day is a no-op.
func (m *Machine) Flush(ctx context.Context) (bool, error) {
	rec := m.rec
	if rec == nil || rec.Flushed() || !rec.SessionStarted {
		return false, nil
	}
	if rec.Phase != models.PhaseExitSettled && rec.Phase != models.PhaseSkipped {
		return false, nil
	}
	day, err := time.ParseInLocation("2006-01-02", rec.Date, m.loc)
	if err != nil {
		return false, fmt.Errorf("flush: bad record date %q: %w", rec.Date, err)
	}
	now := m.now().In(m.loc)
	if now.Before(m.cfg.HardExit.On(day, m.loc)) {
		return false, nil
	}

	if snap, err := m.gateway.AccountSnapshot(ctx); err != nil {
		m.logger.Warning("End-of-day account snapshot unavailable: %v", err)
	} else {
		rec.EndAccount = &snap
	}
	if rec.StartAccount != nil && rec.EndAccount != nil {
		rec.PnLBalance = money(rec.EndAccount.Balance, rec.StartAccount.Balance)
		rec.PnLNAV = money(rec.EndAccount.NAV, rec.StartAccount.NAV)
		// The account delta is the realized result when a real order filled.
		if rec.Fill != nil && rec.Execution != nil && rec.Execution.ExitReason != models.ExitNoTrade {
			rec.Execution.PnLCurrency = rec.PnLBalance
			if denom := m.cfg.PointValue * m.cfg.PositionSize; denom != 0 {
				rec.Execution.PnLPoints = rec.PnLBalance / denom
			}
		}
	}

	m.logger.Info("SESSION_END date=%s phase=%s signals=%d orders=%d skipped=%d errors=%d pnl_balance=%.2f pnl_nav=%.2f",
		rec.Date, rec.Phase, rec.Counters.Signals, rec.Counters.Orders, rec.Counters.Skipped, rec.Counters.Errors, rec.PnLBalance, rec.PnLNAV)

	if err := m.store.AppendRow(rec.Date, summaryRow(rec)); err != nil {
		m.logger.Error("Append summary row for %s failed: %v", rec.Date, err)
	}
	if err := m.store.AppendSummary(rec.Date, summaryLine(rec)); err != nil {
		m.logger.Error("Append summary log for %s failed: %v", rec.Date, err)
	}

	flushedAt := now
	rec.FlushedAt = &flushedAt
	if err := m.advance(models.PhaseSummaryFlushed); err != nil {
		return false, err
	}
	metrics.Flush()
	m.notify(ctx, recapMessage(m.cfg, rec))
	return true, nil
}

// money is a-b rounded to cents without float drift.
func money(a, b float64) float64 {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).InexactFloat64()
}

func cents(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// summaryRow follows the trade_days.csv column order.
func summaryRow(rec *models.DayRecord) []string {
	var balStart, navStart, balEnd, navEnd, openEnd, currency string
	if s := rec.StartAccount; s != nil {
		balStart, navStart = cents(s.Balance), cents(s.NAV)
		currency = s.Currency
	}
	if e := rec.EndAccount; e != nil {
		balEnd, navEnd = cents(e.Balance), cents(e.NAV)
		openEnd = strconv.Itoa(e.OpenCount)
		if currency == "" {
			currency = e.Currency
		}
	}
	return []string{
		rec.Date,
		strconv.Itoa(rec.Counters.Signals),
		strconv.Itoa(rec.Counters.Orders),
		strconv.Itoa(rec.Counters.Skipped),
		strconv.Itoa(rec.Counters.Errors),
		rec.LastSignal,
		balStart, navStart, balEnd, navEnd,
		cents(rec.PnLBalance),
		cents(rec.PnLNAV),
		openEnd,
		currency,
	}
}

func summaryLine(rec *models.DayRecord) string {
	line := fmt.Sprintf("date=%s phase=%s signals=%d orders=%d skipped=%d errors=%d last_signal=%s pnl_balance=%s pnl_nav=%s",
		rec.Date, rec.Phase, rec.Counters.Signals, rec.Counters.Orders, rec.Counters.Skipped, rec.Counters.Errors,
		rec.LastSignal, cents(rec.PnLBalance), cents(rec.PnLNAV))
	if rec.SkipReason != "" {
		line += " skip=" + string(rec.SkipReason)
	}
	if e := rec.Execution; e != nil {
		line += fmt.Sprintf(" exit=%s pnl_pts=%.2f", e.ExitReason, e.PnLPoints)
	}
	return line
}
