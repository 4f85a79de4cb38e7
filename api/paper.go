package api

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"orbot/interfaces"
	"orbot/logging"
	"orbot/models"
)

// PaperClient is an in-memory gateway. Orders fill at the last observed close
// and brackets are checked against every newly observed bar, stop first.
type PaperClient struct {
	Instrument string
	Currency   string
	Logger     logging.LoggerInterface

	mu       sync.Mutex
	balance  float64
	mark     float64
	markTime time.Time
	trades   map[string]*paperTrade
}

type paperTrade struct {
	pos    models.Position
	stop   float64
	target float64
}

var (
	_ interfaces.Gateway     = (*PaperClient)(nil)
	_ interfaces.BarObserver = (*PaperClient)(nil)
)

// ErrNoMark is returned when an order arrives before any price was observed.
var ErrNoMark = errors.New("paper: no price observed yet")

// NewPaperClient starts a paper account with balance.
func NewPaperClient(instrument string, balance float64, logger logging.LoggerInterface) *PaperClient {
	return &PaperClient{
		Instrument: instrument,
		Currency:   "USD",
		Logger:     logger,
		balance:    balance,
		trades:     make(map[string]*paperTrade),
	}
}

// Observe marks positions to the new bars and settles touched brackets.
func (p *PaperClient) Observe(bars []models.Bar) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, b := range bars {
		if !b.Time.After(p.markTime) {
			continue
		}
		p.markTime = b.Time
		p.mark = b.Close
		for id, t := range p.trades {
			exit, hit := bracketHit(t, b)
			if !hit {
				continue
			}
			pl := t.pos.Units * (exit - t.pos.Price)
			p.balance += pl
			delete(p.trades, id)
			if p.Logger != nil {
				p.Logger.Info("Paper trade %s closed by bracket at %.2f, PnL %.2f", id, exit, pl)
			}
		}
	}
}

func bracketHit(t *paperTrade, b models.Bar) (float64, bool) {
	if t.pos.Units > 0 {
		if b.Low <= t.stop {
			return t.stop, true
		}
		if b.High >= t.target {
			return t.target, true
		}
		return 0, false
	}
	if b.High >= t.stop {
		return t.stop, true
	}
	if b.Low <= t.target {
		return t.target, true
	}
	return 0, false
}

func (p *PaperClient) OpenMarketPosition(_ context.Context, side models.Side, units, stopOffset, targetOffset float64) (models.Fill, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mark <= 0 {
		return models.Fill{}, ErrNoMark
	}
	units = side.Sign() * abs(units)
	sign := side.Sign()
	id := uuid.New().String()
	now := p.markTime
	p.trades[id] = &paperTrade{
		pos: models.Position{
			ID:         id,
			Instrument: p.Instrument,
			Units:      units,
			Price:      p.mark,
			OpenTime:   now,
		},
		stop:   p.mark - sign*stopOffset,
		target: p.mark + sign*targetOffset,
	}
	if p.Logger != nil {
		p.Logger.Info("Paper fill %s: %s %.0f @ %.2f", id, side, units, p.mark)
	}
	return models.Fill{OrderID: uuid.New().String(), TradeID: id, Price: p.mark, Units: units, Time: now}, nil
}

func (p *PaperClient) ListOpenPositions(context.Context) ([]models.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Position, 0, len(p.trades))
	for _, t := range p.trades {
		pos := t.pos
		pos.UnrealizedPL = pos.Units * (p.mark - pos.Price)
		out = append(out, pos)
	}
	return out, nil
}

func (p *PaperClient) CloseAllPositions(context.Context) ([]models.Closed, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]models.Closed, 0, len(p.trades))
	for id, t := range p.trades {
		pl := t.pos.Units * (p.mark - t.pos.Price)
		p.balance += pl
		out = append(out, models.Closed{ID: id, Price: p.mark, RealizedPL: pl, Units: -t.pos.Units})
		delete(p.trades, id)
	}
	return out, nil
}

func (p *PaperClient) AccountSnapshot(context.Context) (models.AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var upl float64
	for _, t := range p.trades {
		upl += t.pos.Units * (p.mark - t.pos.Price)
	}
	return models.AccountSnapshot{
		Time:            p.markTime,
		Balance:         p.balance,
		NAV:             p.balance + upl,
		UnrealizedPL:    upl,
		MarginAvailable: p.balance + upl,
		OpenCount:       len(p.trades),
		Currency:        p.Currency,
	}, nil
}
