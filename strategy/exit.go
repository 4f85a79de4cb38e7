package strategy

import (
	"math"

	"orbot/models"
)

// NoTrade is the zero-P&L outcome of a day without a position.
func NoTrade() models.Execution {
	return models.Execution{ExitReason: models.ExitNoTrade}
}

// Simulate walks path bar by bar until the stop or target is touched. When one
// bar touches both, the stop is taken. Without a touch the position leaves at
// the last bar's close. An empty path is a no-trade day.
func Simulate(path []models.Bar, side models.Side, lv models.Levels, pointValue, size float64) models.Execution {
	if len(path) == 0 {
		return NoTrade()
	}
	exec := models.Execution{
		Side:        side,
		EntryPrice:  lv.Entry,
		StopPrice:   lv.Stop,
		TargetPrice: lv.Target,
	}

	var mfe, mae float64
	for i, b := range path {
		var favorable, adverse float64
		var hitTarget, hitStop bool
		if side == models.Long {
			favorable = b.High - lv.Entry
			adverse = lv.Entry - b.Low
			hitTarget = b.High >= lv.Target
			hitStop = b.Low <= lv.Stop
		} else {
			favorable = lv.Entry - b.Low
			adverse = b.High - lv.Entry
			hitTarget = b.Low <= lv.Target
			hitStop = b.High >= lv.Stop
		}
		mfe = math.Max(mfe, favorable)
		mae = math.Max(mae, adverse)

		exec.BarsWalked = i + 1
		exec.ExitTime = b.Time
		if hitStop {
			exec.ExitReason = models.ExitStop
			exec.ExitPrice = lv.Stop
			break
		}
		if hitTarget {
			exec.ExitReason = models.ExitTarget
			exec.ExitPrice = lv.Target
			break
		}
		if i == len(path)-1 {
			exec.ExitReason = models.ExitTime
			exec.ExitPrice = b.Close
		}
	}

	exec.PnLPoints = side.Sign() * (exec.ExitPrice - lv.Entry)
	exec.PnLCurrency = exec.PnLPoints * pointValue * size
	exec.MFEPoints = mfe
	exec.MAEPoints = mae
	return exec
}

// ClosedAt builds a time exit at a known price, used when the counterparty
// flattened the position. Excursions still come from the walked path.
func ClosedAt(path []models.Bar, side models.Side, lv models.Levels, price float64, reason models.ExitReason, pointValue, size float64) models.Execution {
	exec := Simulate(path, side, lv, pointValue, size)
	if exec.ExitReason == models.ExitNoTrade {
		exec = models.Execution{Side: side, EntryPrice: lv.Entry, StopPrice: lv.Stop, TargetPrice: lv.Target}
	}
	exec.ExitReason = reason
	exec.ExitPrice = price
	exec.PnLPoints = side.Sign() * (price - lv.Entry)
	exec.PnLCurrency = exec.PnLPoints * pointValue * size
	return exec
}
