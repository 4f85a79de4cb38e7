package position

import (
	"context"
	"fmt"

	"orbot/config"
	"orbot/interfaces"
	"orbot/logging"
	"orbot/models"
)

// PositionManager watches and flattens open positions at the counterparty.
type PositionManager struct {
	Gateway interfaces.Gateway
	Config  *config.Config
	Logger  logging.LoggerInterface
}

// NewPositionManager creates a new position manager
func NewPositionManager(gw interfaces.Gateway, cfg *config.Config, logger logging.LoggerInterface) *PositionManager {
	return &PositionManager{
		Gateway: gw,
		Config:  cfg,
		Logger:  logger,
	}
}

// OpenCount returns the number of open positions.
func (pm *PositionManager) OpenCount(ctx context.Context) (int, error) {
	open, err := pm.Gateway.ListOpenPositions(ctx)
	if err != nil {
		return 0, err
	}
	return len(open), nil
}

// EnsureFlat closes whatever is open. It returns nothing when already flat.
func (pm *PositionManager) EnsureFlat(ctx context.Context, reason string) ([]models.Closed, error) {
	open, err := pm.Gateway.ListOpenPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("list open positions: %w", err)
	}
	if len(open) == 0 {
		return nil, nil
	}
	pm.Logger.Warning("Closing %d open position(s): %s", len(open), reason)
	closed, err := pm.Gateway.CloseAllPositions(ctx)
	if err != nil {
		return closed, fmt.Errorf("close positions (%s): %w", reason, err)
	}
	for _, c := range closed {
		pm.Logger.Info("Closed trade %s @ %.2f, realized %.2f", c.ID, c.Price, c.RealizedPL)
	}
	return closed, nil
}

// ExitPrice is the unit-weighted close price of closed, or 0 when empty.
func ExitPrice(closed []models.Closed) float64 {
	var units, notional float64
	for _, c := range closed {
		u := c.Units
		if u < 0 {
			u = -u
		}
		if u == 0 {
			u = 1
		}
		units += u
		notional += u * c.Price
	}
	if units == 0 {
		return 0
	}
	return notional / units
}

// RealizedPL sums the realized profit of closed.
func RealizedPL(closed []models.Closed) float64 {
	var total float64
	for _, c := range closed {
		total += c.RealizedPL
	}
	return total
}
