package interfaces

import (
	"context"
	"fmt"

	"orbot/models"
)

// BarSource returns the most recent minute bars in ascending time order.
type BarSource interface {
	FetchRecent(ctx context.Context, n int) ([]models.Bar, error)
}

// Gateway is the counterparty that holds positions.
type Gateway interface {
	OpenMarketPosition(ctx context.Context, side models.Side, units, stopOffset, targetOffset float64) (models.Fill, error)
	ListOpenPositions(ctx context.Context) ([]models.Position, error)
	CloseAllPositions(ctx context.Context) ([]models.Closed, error)
	AccountSnapshot(ctx context.Context) (models.AccountSnapshot, error)
}

// BarObserver is implemented by gateways that price positions from observed bars.
type BarObserver interface {
	Observe(bars []models.Bar)
}

// Notifier delivers user-facing messages. It never fails the caller.
type Notifier interface {
	Notify(ctx context.Context, message string, images ...[]byte) models.Delivery
}

// DayStore persists per-day records and the history row of each day.
type DayStore interface {
	Load(date string) (*models.DayRecord, bool, error)
	Save(date string, rec *models.DayRecord) error
	AppendRow(date string, row []string) error
	AppendSummary(date, line string) error
}

// BarArchiver keeps the raw bars of a day for later replay.
type BarArchiver interface {
	ArchiveBars(date, label string, bars []models.Bar) error
}

// EventSink receives live status events.
type EventSink interface {
	Publish(kind string, data interface{})
}

// RejectionError is a counterparty refusal of an order.
type RejectionError struct {
	Reason          string
	MarginAvailable float64
	Detail          string
}

func (e *RejectionError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("order rejected: %s (%s)", e.Reason, e.Detail)
	}
	return "order rejected: " + e.Reason
}

// InsufficientMargin reports the margin rejection reason.
func (e *RejectionError) InsufficientMargin() bool {
	return e.Reason == "INSUFFICIENT_MARGIN"
}
