package order

import (
	"context"
	"errors"
	"fmt"

	"orbot/config"
	"orbot/interfaces"
	"orbot/logging"
	"orbot/models"
)

// OrderManager turns a trade signal into one bracketed market order.
type OrderManager struct {
	Gateway interfaces.Gateway
	Config  *config.Config
	Logger  logging.LoggerInterface
}

// NewOrderManager creates a new order manager
func NewOrderManager(gw interfaces.Gateway, cfg *config.Config, logger logging.LoggerInterface) *OrderManager {
	return &OrderManager{
		Gateway: gw,
		Config:  cfg,
		Logger:  logger,
	}
}

// Outcome is either an accepted fill or a counterparty rejection.
type Outcome struct {
	Fill      *models.Fill
	Rejection *interfaces.RejectionError
}

// Submit places the order for sig. A rejection is an Outcome, not an error.
// On a transport error the counterparty is asked whether the order landed
// anyway; if it did the open trade is adopted as the fill.
func (om *OrderManager) Submit(ctx context.Context, sig models.Signal) (Outcome, error) {
	if !sig.IsTrade() {
		return Outcome{}, fmt.Errorf("submit: decision %s is not a trade", sig.Decision)
	}
	side := sig.Side()
	units := om.Config.Units(side)
	if units == 0 {
		return Outcome{}, errors.New("submit: order size rounds to zero units")
	}

	om.Logger.Info("Placing %s market order: units=%.0f sl=%.2f tp=%.2f", side, units, sig.StopOffset(), sig.TargetOffset())
	fill, err := om.Gateway.OpenMarketPosition(ctx, side, units, sig.StopOffset(), sig.TargetOffset())

	var rej *interfaces.RejectionError
	switch {
	case errors.As(err, &rej):
		if rej.InsufficientMargin() {
			if snap, serr := om.Gateway.AccountSnapshot(ctx); serr == nil {
				rej.MarginAvailable = snap.MarginAvailable
			}
		}
		om.Logger.Error("CRITICAL order rejected: %s (margin available %.2f)", rej.Reason, rej.MarginAvailable)
		return Outcome{Rejection: rej}, nil
	case err != nil:
		adopted, aerr := om.adopt(ctx, side)
		if aerr != nil || adopted == nil {
			return Outcome{}, fmt.Errorf("submit %s order: %w", side, err)
		}
		om.Logger.Warning("Order call failed (%v) but trade %s is open; adopting it", err, adopted.TradeID)
		fill = *adopted
	}

	fill.Levels = sig.Realign(fill.Price)
	om.Logger.Info("Filled %s @ %.2f, levels realigned: sl=%.2f tp=%.2f", side, fill.Price, fill.Levels.Stop, fill.Levels.Target)
	return Outcome{Fill: &fill}, nil
}

// Adopt looks for an open trade on sig's side and returns it as the fill with
// levels realigned to its price. It returns nil when no such trade is open.
func (om *OrderManager) Adopt(ctx context.Context, sig models.Signal) (*models.Fill, error) {
	if !sig.IsTrade() {
		return nil, nil
	}
	fill, err := om.adopt(ctx, sig.Side())
	if err != nil || fill == nil {
		return nil, err
	}
	fill.Levels = sig.Realign(fill.Price)
	return fill, nil
}

func (om *OrderManager) adopt(ctx context.Context, side models.Side) (*models.Fill, error) {
	open, err := om.Gateway.ListOpenPositions(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range open {
		if p.Side() == side {
			return &models.Fill{TradeID: p.ID, Price: p.Price, Units: p.Units, Time: p.OpenTime}, nil
		}
	}
	return nil, nil
}

// AlertText is the user-facing message for a rejection.
func AlertText(instrument string, rej *interfaces.RejectionError) string {
	if rej.InsufficientMargin() {
		return fmt.Sprintf("CRITICAL: %s order cancelled, insufficient margin (available %.2f). No trade today.", instrument, rej.MarginAvailable)
	}
	return fmt.Sprintf("CRITICAL: %s order rejected (%s). No trade today.", instrument, rej.Reason)
}
