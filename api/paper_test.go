package api

import (
	"context"
	"errors"
	"testing"
	"time"

	"orbot/models"
)

func paperBar(min int, h, l, c float64) models.Bar {
	return models.Bar{Time: time.Date(2024, 1, 2, 10, min, 0, 0, time.UTC), High: h, Low: l, Close: c, Complete: true}
}

func TestPaperNeedsMark(t *testing.T) {
	p := NewPaperClient("NAS100_USD", 1000, nopLogger{})
	if _, err := p.OpenMarketPosition(context.Background(), models.Long, 80, 25, 75); !errors.Is(err, ErrNoMark) {
		t.Fatalf("expected ErrNoMark, got %v", err)
	}
}

func TestPaperBracketStopFirst(t *testing.T) {
	ctx := context.Background()
	p := NewPaperClient("NAS100_USD", 1000, nopLogger{})
	p.Observe([]models.Bar{paperBar(22, 101, 99, 100)})
	fill, err := p.OpenMarketPosition(ctx, models.Long, 2, 10, 30)
	if err != nil || fill.Price != 100 || fill.Units != 2 {
		t.Fatalf("unexpected fill %+v %v", fill, err)
	}

	// Replaying an old bar does nothing.
	p.Observe([]models.Bar{paperBar(22, 200, 0, 100)})
	if open, _ := p.ListOpenPositions(ctx); len(open) != 1 {
		t.Fatalf("old bar should be ignored")
	}

	p.Observe([]models.Bar{paperBar(23, 135, 85, 110)})
	open, _ := p.ListOpenPositions(ctx)
	if len(open) != 0 {
		t.Fatalf("position should be closed, got %+v", open)
	}
	snap, _ := p.AccountSnapshot(ctx)
	if snap.Balance != 980 {
		t.Fatalf("expected stop loss of 20, balance %f", snap.Balance)
	}
}

func TestPaperCloseAll(t *testing.T) {
	ctx := context.Background()
	p := NewPaperClient("NAS100_USD", 1000, nopLogger{})
	p.Observe([]models.Bar{paperBar(22, 101, 99, 100)})
	if _, err := p.OpenMarketPosition(ctx, models.Short, 1, 10, 30); err != nil {
		t.Fatalf("open: %v", err)
	}
	p.Observe([]models.Bar{paperBar(23, 96, 94, 95)})
	snap, _ := p.AccountSnapshot(ctx)
	if snap.UnrealizedPL != 5 || snap.OpenCount != 1 || snap.NAV != 1005 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	closed, err := p.CloseAllPositions(ctx)
	if err != nil || len(closed) != 1 || closed[0].Price != 95 || closed[0].RealizedPL != 5 {
		t.Fatalf("unexpected close %+v %v", closed, err)
	}
	snap, _ = p.AccountSnapshot(ctx)
	if snap.Balance != 1005 || snap.OpenCount != 0 {
		t.Fatalf("unexpected final snapshot %+v", snap)
	}
}
