// Package metrics holds the Prometheus series the session updates:
//
//	orb_decisions_total{decision}   days by decision
//	orb_skips_total{reason}         skipped days by reason
//	orb_orders_total{result}        order submissions (filled|rejected|error)
//	orb_exits_total{reason,side}    settled exits
//	orb_loop_errors_total           iterations abandoned on error
//	orb_flushes_total               end-of-day summaries written
//	orb_last_price                  last observed close
//	orb_fetch_latency_ms            last bar fetch latency
//	orb_open_positions              open positions at the counterparty
//	orb_day_pnl                     last settled P&L in account currency
//	orb_phase{phase}                1 for the current phase, 0 otherwise
//
// They are registered in init() and served at /metrics by the status server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"orbot/models"
)

var (
	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_decisions_total",
			Help: "Days by decision",
		},
		[]string{"decision"},
	)

	mtxSkips = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_skips_total",
			Help: "Skipped days by reason",
		},
		[]string{"reason"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_orders_total",
			Help: "Order submissions by result",
		},
		[]string{"result"},
	)

	mtxExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "orb_exits_total",
			Help: "Settled exits split by reason and side",
		},
		[]string{"reason", "side"},
	)

	mtxLoopErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orb_loop_errors_total",
			Help: "Loop iterations abandoned on error",
		},
	)

	mtxFlushes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orb_flushes_total",
			Help: "End-of-day summaries written",
		},
	)

	mtxLastPrice = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_last_price",
			Help: "Last observed close",
		},
	)

	mtxFetchLatency = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_fetch_latency_ms",
			Help: "Latency of the last bar fetch in milliseconds",
		},
	)

	mtxOpenPositions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_open_positions",
			Help: "Open positions at the counterparty",
		},
	)

	mtxDayPnL = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "orb_day_pnl",
			Help: "Last settled day P&L in account currency",
		},
	)

	mtxPhase = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "orb_phase",
			Help: "Current day phase as labeled 0/1 series",
		},
		[]string{"phase"},
	)
)

var allPhases = []models.Phase{
	models.PhaseIdle, models.PhaseSessionAnnounced, models.PhaseAwaitingEntry,
	models.PhaseSignalDecided, models.PhaseOrderPlaced, models.PhaseLogOnly,
	models.PhaseMonitoring, models.PhaseExitSettled, models.PhaseSkipped,
	models.PhaseSummaryFlushed,
}

func init() {
	prometheus.MustRegister(
		mtxDecisions, mtxSkips, mtxOrders, mtxExits, mtxLoopErrors, mtxFlushes,
		mtxLastPrice, mtxFetchLatency, mtxOpenPositions, mtxDayPnL, mtxPhase,
	)
}

func Decision(d models.Decision) { mtxDecisions.WithLabelValues(string(d)).Inc() }

func Skip(r models.SkipReason) { mtxSkips.WithLabelValues(string(r)).Inc() }

func Order(result string) { mtxOrders.WithLabelValues(result).Inc() }

// Exit counts a settled execution and records its P&L.
func Exit(e models.Execution) {
	side := string(e.Side)
	if side == "" {
		side = "flat"
	}
	mtxExits.WithLabelValues(string(e.ExitReason), side).Inc()
	mtxDayPnL.Set(e.PnLCurrency)
}

func LoopError() { mtxLoopErrors.Inc() }

func Flush() { mtxFlushes.Inc() }

// Heartbeat copies the liveness sample into the gauges.
func Heartbeat(hb models.Heartbeat) {
	mtxLastPrice.Set(hb.LastPrice)
	mtxFetchLatency.Set(float64(hb.FetchLatency))
	mtxOpenPositions.Set(float64(hb.OpenPositions))
}

// Phase flips the phase series so exactly one is 1.
func Phase(p models.Phase) {
	for _, ph := range allPhases {
		v := 0.0
		if ph == p {
			v = 1
		}
		mtxPhase.WithLabelValues(string(ph)).Set(v)
	}
}
