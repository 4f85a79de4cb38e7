package session

import (
	"context"
	"errors"
	"fmt"

	"orbot/bars"
	"orbot/metrics"
	"orbot/models"
	"orbot/position"
	"orbot/strategy"
)

// Recover loads today's record and reconciles it with the counterparty after
// a restart. A day whose order landed without its fill being saved adopts the
// open trade. A day that was holding a position is settled at once; positions
// the record does not explain are closed.
func (m *Machine) Recover(ctx context.Context) error {
	now := m.now().In(m.loc)
	m.rollover(ctx, now)

	open, err := m.gateway.ListOpenPositions(ctx)
	if err != nil {
		return fmt.Errorf("recover: list open positions: %w", err)
	}

	if len(open) > 0 && m.orderInFlight() {
		fill, err := m.orders.Adopt(ctx, *m.rec.Signal)
		if err != nil {
			return fmt.Errorf("recover: adopt open trade: %w", err)
		}
		if fill != nil {
			return m.adoptFill(ctx, fill)
		}
	}

	switch {
	case m.rec.Phase.InTrade() && m.rec.Fill != nil:
		return m.recoverTrade(ctx, len(open) > 0)
	case len(open) > 0:
		m.logger.Warning("Recovery found %d position(s) with no active trade on record", len(open))
		if _, err := m.positions.EnsureFlat(ctx, "restart recovery"); err != nil {
			return err
		}
	}
	m.logger.Info("Recovery done: day %s in phase %s", m.rec.Date, m.rec.Phase)
	return nil
}

func (m *Machine) recoverTrade(ctx context.Context, stillOpen bool) error {
	now := m.now().In(m.loc)
	var path []models.Bar
	if all, _, err := m.fetch(ctx); err != nil {
		if !stillOpen {
			return fmt.Errorf("recover: %w", err)
		}
		m.logger.Warning("Recovery bar fetch failed, closing without a path: %v", err)
	} else {
		path = bars.Between(bars.ForDate(all, m.rec.Date, m.loc), m.rec.Signal.EntryTime, now)
	}

	sig := *m.rec.Signal
	lv := m.rec.Fill.Levels
	pv, size := m.cfg.PointValue, m.cfg.PositionSize

	var exec models.Execution
	if stillOpen {
		closed, err := m.positions.EnsureFlat(ctx, "restart recovery")
		if err != nil {
			return err
		}
		price := position.ExitPrice(closed)
		if price == 0 {
			return errors.New("recover: close returned no price")
		}
		exec = strategy.ClosedAt(path, sig.Side(), lv, price, models.ExitTime, pv, size)
		exec.ExitTime = now
		m.logger.Info("Recovery closed %d trade(s), counterparty realized %.2f", len(closed), position.RealizedPL(closed))
	} else {
		exec = strategy.Simulate(path, sig.Side(), lv, pv, size)
		if exec.ExitReason == models.ExitNoTrade {
			exec = strategy.ClosedAt(nil, sig.Side(), lv, lv.Entry, models.ExitTime, pv, size)
			exec.ExitTime = now
		}
	}
	m.logger.Warning("Recovered open trade of %s settled as %s", m.rec.Date, exec.ExitReason)
	return m.settle(ctx, exec, "")
}

// orderInFlight reports a day whose order may have landed without the fill
// reaching the record.
func (m *Machine) orderInFlight() bool {
	return m.cfg.PlaceOrders && m.rec.Phase == models.PhaseSignalDecided &&
		m.rec.Signal != nil && m.rec.Signal.IsTrade() && m.rec.Fill == nil
}

// adoptFill records a trade found open at the counterparty as the day's fill.
func (m *Machine) adoptFill(ctx context.Context, fill *models.Fill) error {
	m.logger.Warning("Recovery adopted open trade %s @ %.2f for %s", fill.TradeID, fill.Price, m.rec.Date)
	metrics.Order("adopted")
	m.rec.Fill = fill
	m.rec.Counters.Orders++
	if err := m.advance(models.PhaseOrderPlaced); err != nil {
		return err
	}
	m.notify(ctx, fillMessage(m.cfg, m.rec.Signal.Side(), *fill))
	return nil
}
