// Package session runs the per-day lifecycle of the opening-range bot: it
// announces the session, guards the opening range, takes at most one decision,
// watches the position until it is settled and writes the end-of-day summary
// exactly once. Every step is persisted so a restart resumes where it left off.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"orbot/bars"
	"orbot/config"
	"orbot/interfaces"
	"orbot/logging"
	"orbot/metrics"
	"orbot/models"
	"orbot/order"
	"orbot/position"
)

// ErrIllegalTransition is returned when a phase change is not a forward edge.
var ErrIllegalTransition = errors.New("illegal phase transition")

var transitions = map[models.Phase][]models.Phase{
	models.PhaseIdle:             {models.PhaseSessionAnnounced, models.PhaseSkipped},
	models.PhaseSessionAnnounced: {models.PhaseAwaitingEntry, models.PhaseSkipped},
	models.PhaseAwaitingEntry:    {models.PhaseSignalDecided, models.PhaseSkipped},
	models.PhaseSignalDecided:    {models.PhaseOrderPlaced, models.PhaseLogOnly, models.PhaseExitSettled},
	models.PhaseOrderPlaced:      {models.PhaseMonitoring},
	models.PhaseLogOnly:          {models.PhaseMonitoring},
	models.PhaseMonitoring:       {models.PhaseExitSettled},
	models.PhaseExitSettled:      {models.PhaseSummaryFlushed},
	models.PhaseSkipped:          {models.PhaseSummaryFlushed},
}

// Deps are the collaborators of a Machine. Events and Now are optional.
type Deps struct {
	Source   interfaces.BarSource
	Gateway  interfaces.Gateway
	Notifier interfaces.Notifier
	Store    interfaces.DayStore
	Events   interfaces.EventSink
	Logger   logging.LoggerInterface
	Now      func() time.Time
}

// Snapshot is a read-only view for the status server.
type Snapshot struct {
	Time        time.Time         `json:"time"`
	Instrument  string            `json:"instrument"`
	Profile     string            `json:"profile"`
	PlaceOrders bool              `json:"place_orders"`
	Record      *models.DayRecord `json:"day,omitempty"`
	Heartbeat   *models.Heartbeat `json:"heartbeat,omitempty"`
}

// Machine owns the record of the current trading day. Tick and Run must be
// called from one goroutine; Snapshot is safe from any goroutine.
type Machine struct {
	cfg       *config.Config
	loc       *time.Location
	source    interfaces.BarSource
	gateway   interfaces.Gateway
	notifier  interfaces.Notifier
	store     interfaces.DayStore
	events    interfaces.EventSink
	logger    logging.LoggerInterface
	orders    *order.OrderManager
	positions *position.PositionManager
	now       func() time.Time

	rec      *models.DayRecord
	lastHBAt time.Time

	mu     sync.RWMutex
	snap   *models.DayRecord
	lastHB *models.Heartbeat
}

// New wires a Machine. cfg is not copied and must not change afterwards.
func New(cfg *config.Config, d Deps) *Machine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Machine{
		cfg:       cfg,
		loc:       loc,
		source:    d.Source,
		gateway:   d.Gateway,
		notifier:  d.Notifier,
		store:     d.Store,
		events:    d.Events,
		logger:    d.Logger,
		orders:    order.NewOrderManager(d.Gateway, cfg, d.Logger),
		positions: position.NewPositionManager(d.Gateway, cfg, d.Logger),
		now:       now,
	}
}

// Record returns a copy of the current day record.
func (m *Machine) Record() *models.DayRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snap.Clone()
}

// Snapshot returns the latest published state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := Snapshot{
		Time:        m.now().In(m.loc),
		Instrument:  m.cfg.Instrument,
		Profile:     m.cfg.Profile,
		PlaceOrders: m.cfg.PlaceOrders,
		Record:      m.snap.Clone(),
	}
	if m.lastHB != nil {
		hb := *m.lastHB
		s.Heartbeat = &hb
	}
	return s
}

// Run recovers the current day and then ticks until ctx ends. An error or
// panic inside one tick is counted, logged and followed by the error backoff.
func (m *Machine) Run(ctx context.Context) error {
	if err := m.Recover(ctx); err != nil {
		m.logger.Error("Recovery incomplete: %v", err)
	}
	m.notify(ctx, startupMessage(m.cfg))

	for {
		err := m.safeTick(ctx)
		wait := m.interval()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.recordError(err)
			wait = m.cfg.ErrorBackoff
		}
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			m.logger.Info("Session loop stopping: %v", ctx.Err())
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (m *Machine) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return m.Tick(ctx)
}

func (m *Machine) recordError(err error) {
	metrics.LoopError()
	m.logger.Error("Loop iteration failed: %v", err)
	if m.rec == nil {
		return
	}
	m.rec.Counters.Errors++
	m.persist()
}

// interval is the sleep before the next tick.
func (m *Machine) interval() time.Duration {
	if m.rec == nil {
		return m.cfg.PollInterval
	}
	switch m.rec.Phase {
	case models.PhaseSessionAnnounced, models.PhaseAwaitingEntry:
		return m.cfg.EntryPollInterval
	case models.PhaseOrderPlaced, models.PhaseLogOnly, models.PhaseMonitoring, models.PhaseSignalDecided:
		return m.cfg.MonitorInterval
	default:
		return m.cfg.PollInterval
	}
}

// Tick runs one iteration against the current wall clock.
func (m *Machine) Tick(ctx context.Context) error {
	now := m.now().In(m.loc)
	m.rollover(ctx, now)
	defer func() {
		if _, err := m.Flush(ctx); err != nil {
			m.logger.Error("End-of-day flush failed: %v", err)
		}
	}()

	if isWeekend(now) {
		if m.rec.Phase == models.PhaseIdle {
			if err := m.skip(ctx, models.SkipWeekend, "no session on weekends"); err != nil {
				return err
			}
		}
		return m.idleHeartbeat(ctx, now)
	}

	if m.rec.Phase == models.PhaseIdle {
		switch {
		case !now.Before(m.at(now, m.cfg.HardExit)):
			if _, err := m.positions.EnsureFlat(ctx, "past hard exit"); err != nil {
				return err
			}
			if err := m.skip(ctx, models.SkipPastHardExit, "started after the hard exit "+m.cfg.HardExit.String()); err != nil {
				return err
			}
		case m.inSession(now):
			if err := m.announce(ctx, now); err != nil {
				return err
			}
		}
	}

	if m.rec.Phase == models.PhaseIdle || m.rec.Phase.Terminal() {
		return m.idleHeartbeat(ctx, now)
	}

	all, latency, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	m.observe(all)
	if m.heartbeatDue(now) {
		m.heartbeat(ctx, now, all, latency)
	}
	today := bars.ForDate(all, m.rec.Date, m.loc)

	// A tick may cross several phases; stop once a step leaves it unchanged.
	for i := 0; i < len(transitions); i++ {
		before := m.rec.Phase
		if err := m.step(ctx, now, today); err != nil {
			return err
		}
		if m.rec.Phase == before || m.rec.Phase.Terminal() {
			return nil
		}
	}
	return nil
}

func (m *Machine) step(ctx context.Context, now time.Time, today []models.Bar) error {
	switch m.rec.Phase {
	case models.PhaseSessionAnnounced:
		return m.advance(models.PhaseAwaitingEntry)
	case models.PhaseAwaitingEntry:
		return m.awaitEntry(ctx, now, today)
	case models.PhaseSignalDecided:
		return m.act(ctx, now)
	case models.PhaseOrderPlaced, models.PhaseLogOnly:
		return m.advance(models.PhaseMonitoring)
	case models.PhaseMonitoring:
		return m.monitor(ctx, now, today)
	}
	return nil
}

// advance moves the record along one edge of the phase graph and persists it.
func (m *Machine) advance(to models.Phase) error {
	from := m.rec.Phase
	for _, allowed := range transitions[from] {
		if allowed == to {
			m.rec.Phase = to
			m.logger.Info("Day %s: %s -> %s", m.rec.Date, from, to)
			m.persist()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// persist saves the record and publishes a copy. A failed save is logged
// only; the next persist retries with the full record.
func (m *Machine) persist() {
	m.rec.UpdatedAt = m.now().In(m.loc)
	if err := m.store.Save(m.rec.Date, m.rec); err != nil {
		m.logger.Error("Persist day %s failed: %v", m.rec.Date, err)
	}
	m.mu.Lock()
	m.snap = m.rec.Clone()
	m.mu.Unlock()
	metrics.Phase(m.rec.Phase)
	if m.events != nil {
		m.events.Publish("phase", map[string]interface{}{"date": m.rec.Date, "phase": m.rec.Phase, "skip_reason": m.rec.SkipReason})
	}
}

// rollover switches to the record of now's date, flushing the outgoing day.
func (m *Machine) rollover(ctx context.Context, now time.Time) {
	date := now.Format("2006-01-02")
	if m.rec != nil && m.rec.Date == date {
		return
	}
	if m.rec != nil {
		if _, err := m.Flush(ctx); err != nil {
			m.logger.Error("Flush of %s on rollover failed: %v", m.rec.Date, err)
		}
	}
	m.rec = m.loadOrNew(date)
	m.mu.Lock()
	m.snap = m.rec.Clone()
	m.mu.Unlock()
	metrics.Phase(m.rec.Phase)
}

func (m *Machine) loadOrNew(date string) *models.DayRecord {
	rec, ok, err := m.store.Load(date)
	if err != nil {
		m.logger.Error("Load day %s failed, starting fresh: %v", date, err)
		return models.NewDayRecord(date)
	}
	if !ok {
		return models.NewDayRecord(date)
	}
	m.logger.Info("Recovered day %s in phase %s", date, rec.Phase)
	return rec
}

func (m *Machine) fetch(ctx context.Context) ([]models.Bar, time.Duration, error) {
	start := time.Now()
	got, err := m.source.FetchRecent(ctx, m.cfg.FetchCount)
	latency := time.Since(start)
	if err != nil {
		return nil, latency, fmt.Errorf("fetch bars: %w", err)
	}
	out := bars.InLocation(got, m.loc)
	bars.Sort(out)
	return bars.Dedupe(out), latency, nil
}

// observe feeds closed bars to gateways that price positions themselves.
func (m *Machine) observe(all []models.Bar) {
	o, ok := m.gateway.(interfaces.BarObserver)
	if !ok {
		return
	}
	closed := make([]models.Bar, 0, len(all))
	for _, b := range all {
		if b.Complete {
			closed = append(closed, b)
		}
	}
	o.Observe(closed)
}

func (m *Machine) notify(ctx context.Context, msg string, images ...[]byte) {
	if m.notifier == nil || msg == "" {
		return
	}
	d := m.notifier.Notify(ctx, msg, images...)
	if d.Status == models.DeliveryError {
		m.logger.Warning("Notification not delivered: %s", d.Error)
	}
}

func (m *Machine) at(now time.Time, c models.Clock) time.Time {
	return c.On(now, m.loc)
}

func (m *Machine) inSession(now time.Time) bool {
	return !now.Before(m.at(now, m.cfg.ORStart)) && now.Before(m.at(now, m.cfg.HardExit))
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}
