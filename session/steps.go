package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"orbot/bars"
	"orbot/config"
	"orbot/indicators"
	"orbot/interfaces"
	"orbot/internal/utils"
	"orbot/metrics"
	"orbot/models"
	"orbot/order"
	"orbot/position"
	"orbot/strategy"
)

var errORIncomplete = errors.New("opening range incomplete")

func params(cfg *config.Config) strategy.Params {
	return strategy.Params{
		TopPct:    cfg.TopPct,
		BottomPct: cfg.BottomPct,
		SLPoints:  cfg.SLPoints,
		TPPoints:  cfg.TPPoints,
	}
}

// announce starts the session: the book is flattened, the opening balance
// recorded and the overview sent.
func (m *Machine) announce(ctx context.Context, now time.Time) error {
	if _, err := m.positions.EnsureFlat(ctx, "stale position at session start"); err != nil {
		return err
	}
	if snap, err := m.gateway.AccountSnapshot(ctx); err != nil {
		m.logger.Warning("Start-of-day account snapshot unavailable: %v", err)
	} else {
		m.rec.StartAccount = &snap
	}
	m.rec.SessionStarted = true
	m.logger.Info("SESSION_START date=%s instrument=%s profile=%s orders=%t", m.rec.Date, m.cfg.Instrument, m.cfg.Profile, m.cfg.PlaceOrders)
	if err := m.advance(models.PhaseSessionAnnounced); err != nil {
		return err
	}
	m.notify(ctx, sessionMessage(m.cfg, now))
	return nil
}

func (m *Machine) awaitEntry(ctx context.Context, now time.Time, today []models.Bar) error {
	if !now.Before(m.at(now, m.cfg.HardExit)) {
		if _, err := m.positions.EnsureFlat(ctx, "hard exit reached before entry"); err != nil {
			return err
		}
		if _, ok := bars.FindAt(today, m.cfg.HardExit); !ok {
			return m.skip(ctx, models.SkipMissingExitBar, "no bar at the hard exit "+m.cfg.HardExit.String())
		}
		return m.skip(ctx, models.SkipPastHardExit, "hard exit reached before a decision")
	}
	if now.Before(m.at(now, m.cfg.OREnd.Add(time.Minute))) {
		return nil
	}

	if !m.rec.ORAnnounced {
		or, window, err := m.checkOpeningRange(ctx, today)
		if err != nil {
			return err
		}
		if or.Incomplete() {
			detail := fmt.Sprintf("opening range incomplete (%s bars), missing %s", or.Completeness(), strings.Join(or.Missing, ", "))
			return m.skip(ctx, models.SkipORIncomplete, utils.Truncate(detail, m.cfg.NotifyMaxLen))
		}
		if or.ZeroRange() {
			return m.skip(ctx, models.SkipORZeroRange, fmt.Sprintf("opening range has zero width at %.2f", or.High))
		}
		m.recordSetup(ctx, now, or, window)
	}

	entryReady := m.at(now, m.cfg.Entry.Add(time.Minute))
	if now.Before(entryReady) {
		return nil
	}
	window := bars.Slice(today, m.cfg.Entry, m.cfg.HardExit)
	sig := strategy.Decide(window, m.rec.Setup.Range, m.cfg.Entry, params(m.cfg))

	switch sig.Decision {
	case models.DecisionEntryIncomplete:
		m.logger.Debug("Entry bar %s not complete yet", m.cfg.Entry)
		return nil
	case models.DecisionMissingEntry:
		if now.Before(entryReady.Add(m.cfg.EntryGrace)) {
			m.logger.Debug("Entry bar %s not published yet", m.cfg.Entry)
			return nil
		}
		return m.skip(ctx, models.SkipMissingEntryBar, "no bar at the entry time "+m.cfg.Entry.String())
	case models.DecisionInvalidOR:
		return m.skip(ctx, models.SkipInvalidOR, "opening range is not usable for a decision")
	}

	pre := bars.Slice(today, models.Clock{}, m.cfg.Entry)
	last, _ := bars.Last(pre)
	m.rec.PreTrade = &models.PreTradeChecks{
		ATR14:     indicators.ATR(pre, m.cfg.ATRPeriod),
		LastClose: last.Close,
		Bars:      len(pre),
		Time:      now,
	}
	m.rec.Signal = &sig
	m.rec.LastSignal = string(sig.Decision)
	if sig.IsTrade() {
		m.rec.Counters.Signals++
	} else {
		m.rec.Counters.Skipped++
	}
	metrics.Decision(sig.Decision)
	m.logger.Info("SIGNAL decision=%s close=%.2f top=%.2f bottom=%.2f atr=%.2f", sig.Decision, sig.EntryPrice, sig.TopCutoff, sig.BottomCutoff, m.rec.PreTrade.ATR14)
	if err := m.advance(models.PhaseSignalDecided); err != nil {
		return err
	}
	m.notify(ctx, signalMessage(m.cfg, sig))
	return nil
}

// checkOpeningRange aggregates the opening window, re-fetching while it is
// short of bars. An incomplete range after the last attempt is returned
// without error for the caller to skip on.
func (m *Machine) checkOpeningRange(ctx context.Context, today []models.Bar) (models.OpeningRange, []models.Bar, error) {
	var or models.OpeningRange
	var window []models.Bar
	err := m.cfg.ORRecheckRetry.Do(ctx, func(attempt int) error {
		if attempt > 1 {
			fresh, _, err := m.fetch(ctx)
			if err != nil {
				return err
			}
			today = bars.ForDate(fresh, m.rec.Date, m.loc)
		}
		window = bars.Slice(today, m.cfg.ORStart, m.cfg.OREnd)
		or = strategy.Aggregate(window, m.cfg.ORStart, m.cfg.OREnd, m.cfg.ORTolerance)
		if or.Incomplete() {
			m.logger.Warning("Opening range %s on attempt %d, missing %d bar(s)", or.Completeness(), attempt, len(or.Missing))
			return errORIncomplete
		}
		return nil
	})
	if err != nil && !errors.Is(err, errORIncomplete) {
		return or, window, err
	}
	return or, window, nil
}

func (m *Machine) recordSetup(ctx context.Context, now time.Time, or models.OpeningRange, window []models.Bar) {
	m.rec.Setup = &models.SessionSetup{
		Instrument:   m.cfg.Instrument,
		ORStart:      m.cfg.ORStart,
		OREnd:        m.cfg.OREnd,
		Entry:        m.cfg.Entry,
		HardExit:     m.cfg.HardExit,
		TopPct:       m.cfg.TopPct,
		BottomPct:    m.cfg.BottomPct,
		SLPoints:     m.cfg.SLPoints,
		TPPoints:     m.cfg.TPPoints,
		Size:         m.cfg.PositionSize,
		PointValue:   m.cfg.PointValue,
		OrdersOn:     m.cfg.PlaceOrders,
		Range:        or,
		Completeness: or.Completeness(),
		ORBars:       window,
		RecordedAt:   now,
	}
	m.rec.ORAnnounced = true
	m.persist()
	m.archive("or", window)

	bottom, top := strategy.Cutoffs(or, params(m.cfg))
	m.logger.Info("OR_LEVELS high=%.2f low=%.2f range=%.2f top=%.2f bottom=%.2f bars=%s", or.High, or.Low, or.Range, top, bottom, or.Completeness())
	m.notify(ctx, levelsMessage(m.cfg, or, bottom, top))
}

// act carries out a decided signal.
func (m *Machine) act(ctx context.Context, now time.Time) error {
	sig := *m.rec.Signal
	if !sig.IsTrade() {
		return m.settle(ctx, strategy.NoTrade(), "No trade taken: entry close inside the neutral zone.")
	}
	if !m.cfg.PlaceOrders {
		return m.advance(models.PhaseLogOnly)
	}
	if !now.Before(m.at(now, m.cfg.HardExit)) {
		return m.settle(ctx, strategy.NoTrade(), "No trade taken: hard exit reached before the order went out.")
	}

	out, err := m.orders.Submit(ctx, sig)
	if err != nil {
		metrics.Order("error")
		return err
	}
	if out.Rejection != nil {
		metrics.Order("rejected")
		m.notify(ctx, order.AlertText(m.cfg.Instrument, out.Rejection))
		return m.settle(ctx, strategy.NoTrade(), "")
	}

	metrics.Order("filled")
	m.rec.Fill = out.Fill
	m.rec.Counters.Orders++
	if err := m.advance(models.PhaseOrderPlaced); err != nil {
		return err
	}
	m.notify(ctx, fillMessage(m.cfg, sig.Side(), *out.Fill))
	return nil
}

// monitor settles the day once the position is gone or the hard exit passes.
func (m *Machine) monitor(ctx context.Context, now time.Time, today []models.Bar) error {
	sig := *m.rec.Signal
	side := sig.Side()
	lv := sig.Levels()
	if m.rec.Fill != nil {
		lv = m.rec.Fill.Levels
	}
	exitAt := m.at(now, m.cfg.HardExit)
	pv, size := m.cfg.PointValue, m.cfg.PositionSize
	defer func() {
		if m.rec.Phase == models.PhaseExitSettled {
			m.archive("session", today)
		}
	}()

	if m.rec.Fill == nil {
		if now.Before(exitAt) {
			return nil
		}
		path := completed(bars.After(today, sig.EntryTime, m.cfg.HardExit))
		if _, ok := bars.FindAt(path, m.cfg.HardExit); !ok && now.Before(exitAt.Add(m.cfg.ExitBarWait)) {
			return nil
		}
		return m.settle(ctx, strategy.Simulate(path, side, lv, pv, size), "")
	}

	path := bars.Between(today, sig.EntryTime, now)
	if now.Before(exitAt) {
		open, err := m.gateway.ListOpenPositions(ctx)
		if err != nil {
			return fmt.Errorf("list open positions: %w", err)
		}
		if len(open) > 0 {
			return nil
		}
		m.logger.Info("Position closed by the counterparty bracket")
		return m.settle(ctx, strategy.Simulate(path, side, lv, pv, size), "")
	}

	closed, err := m.positions.EnsureFlat(ctx, "hard exit")
	if err != nil {
		return err
	}
	if len(closed) == 0 {
		return m.settle(ctx, strategy.Simulate(path, side, lv, pv, size), "")
	}
	exec := strategy.ClosedAt(path, side, lv, position.ExitPrice(closed), models.ExitTime, pv, size)
	exec.ExitTime = now
	m.logger.Info("Hard exit closed %d trade(s) @ %.2f, counterparty realized %.2f",
		len(closed), exec.ExitPrice, position.RealizedPL(closed))
	return m.settle(ctx, exec, "")
}

// settle records the execution and moves to exit_settled. note replaces the
// default exit message when set.
func (m *Machine) settle(ctx context.Context, exec models.Execution, note string) error {
	if m.rec.Phase == models.PhaseOrderPlaced || m.rec.Phase == models.PhaseLogOnly {
		if err := m.advance(models.PhaseMonitoring); err != nil {
			return err
		}
	}
	m.rec.Execution = &exec
	metrics.Exit(exec)
	m.logger.Info("EXIT reason=%s side=%s entry=%.2f exit=%.2f pnl_pts=%.2f pnl=%.2f mfe=%.2f mae=%.2f",
		exec.ExitReason, exec.Side, exec.EntryPrice, exec.ExitPrice, exec.PnLPoints, exec.PnLCurrency, exec.MFEPoints, exec.MAEPoints)
	if err := m.advance(models.PhaseExitSettled); err != nil {
		return err
	}
	if note == "" {
		note = exitMessage(m.cfg, exec)
	}
	m.notify(ctx, note)
	return nil
}

// skip ends the day without a decision.
func (m *Machine) skip(ctx context.Context, reason models.SkipReason, detail string) error {
	m.rec.SkipReason = reason
	m.rec.SkipDetail = detail
	m.rec.Counters.Skipped++
	if m.rec.LastSignal == "" {
		m.rec.LastSignal = string(reason)
	}
	if err := m.advance(models.PhaseSkipped); err != nil {
		return err
	}
	metrics.Skip(reason)
	m.logger.Warning("SKIP reason=%s detail=%s", reason, detail)
	if reason != models.SkipWeekend {
		m.notify(ctx, fmt.Sprintf("%s: skipping today, %s.", m.cfg.Instrument, detail))
	}
	return nil
}

func (m *Machine) archive(label string, src []models.Bar) {
	a, ok := m.store.(interfaces.BarArchiver)
	if !ok || len(src) == 0 {
		return
	}
	if err := a.ArchiveBars(m.rec.Date, label, src); err != nil {
		m.logger.Warning("Archive %s bars for %s failed: %v", label, m.rec.Date, err)
	}
}

func (m *Machine) heartbeatDue(now time.Time) bool {
	interval := m.cfg.HeartbeatIdle
	if m.inSession(now) {
		interval = m.cfg.HeartbeatSession
	}
	return m.lastHBAt.IsZero() || now.Sub(m.lastHBAt) >= interval
}

// idleHeartbeat fetches only when a heartbeat is due.
func (m *Machine) idleHeartbeat(ctx context.Context, now time.Time) error {
	if !m.heartbeatDue(now) {
		return nil
	}
	all, latency, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	m.heartbeat(ctx, now, all, latency)
	return nil
}

func (m *Machine) heartbeat(ctx context.Context, now time.Time, all []models.Bar, latency time.Duration) {
	hb := models.Heartbeat{
		Time:         now,
		FetchLatency: latency.Milliseconds(),
		InSession:    m.inSession(now),
		Phase:        m.rec.Phase,
	}
	if last, ok := bars.Last(all); ok {
		hb.LastBarTime = last.Time
		hb.LastPrice = last.Close
	}
	n, err := m.positions.OpenCount(ctx)
	if err != nil {
		m.logger.Warning("Heartbeat position count failed: %v", err)
		n = -1
	}
	hb.OpenPositions = n
	m.lastHBAt = now

	m.logger.Info("HEARTBEAT last_bar=%s last_px=%.2f latency_ms=%d open_trades=%d phase=%s",
		hb.LastBarTime.Format("15:04"), hb.LastPrice, hb.FetchLatency, hb.OpenPositions, hb.Phase)
	metrics.Heartbeat(hb)
	m.mu.Lock()
	m.lastHB = &hb
	m.mu.Unlock()
	if m.events != nil {
		m.events.Publish("heartbeat", hb)
	}
}

func completed(src []models.Bar) []models.Bar {
	out := make([]models.Bar, 0, len(src))
	for _, b := range src {
		if b.Complete {
			out = append(out, b)
		}
	}
	return out
}
