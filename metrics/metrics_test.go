package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"orbot/models"
)

func TestPhaseIsOneHot(t *testing.T) {
	Phase(models.PhaseMonitoring)
	if v := testutil.ToFloat64(mtxPhase.WithLabelValues(string(models.PhaseMonitoring))); v != 1 {
		t.Fatalf("monitoring=%v", v)
	}
	Phase(models.PhaseExitSettled)
	if v := testutil.ToFloat64(mtxPhase.WithLabelValues(string(models.PhaseMonitoring))); v != 0 {
		t.Fatalf("monitoring should reset, got %v", v)
	}
	if v := testutil.ToFloat64(mtxPhase.WithLabelValues(string(models.PhaseExitSettled))); v != 1 {
		t.Fatalf("exit_settled=%v", v)
	}
}

func TestExitCountsFlatSide(t *testing.T) {
	before := testutil.ToFloat64(mtxExits.WithLabelValues("no_trade", "flat"))
	Exit(models.Execution{ExitReason: models.ExitNoTrade})
	if after := testutil.ToFloat64(mtxExits.WithLabelValues("no_trade", "flat")); after != before+1 {
		t.Fatalf("exit counter %v -> %v", before, after)
	}
	Exit(models.Execution{Side: models.Long, ExitReason: models.ExitTarget, PnLCurrency: 6000})
	if v := testutil.ToFloat64(mtxDayPnL); v != 6000 {
		t.Fatalf("day pnl %v", v)
	}
}

func TestHeartbeatGauges(t *testing.T) {
	Heartbeat(models.Heartbeat{LastPrice: 17000.5, FetchLatency: 120, OpenPositions: 1})
	if testutil.ToFloat64(mtxLastPrice) != 17000.5 || testutil.ToFloat64(mtxFetchLatency) != 120 || testutil.ToFloat64(mtxOpenPositions) != 1 {
		t.Fatalf("heartbeat gauges not set")
	}
}
