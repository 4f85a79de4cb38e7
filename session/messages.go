package session

import (
	"fmt"
	"strings"
	"time"

	"orbot/config"
	"orbot/internal/utils"
	"orbot/models"
)

func mode(cfg *config.Config) string {
	switch {
	case !cfg.PlaceOrders:
		return "log-only"
	case cfg.Paper:
		return "paper orders"
	default:
		return "live orders"
	}
}

func startupMessage(cfg *config.Config) string {
	return fmt.Sprintf("ORB bot online: %s, %s profile, %s.", cfg.Instrument, cfg.Profile, mode(cfg))
}

func sessionMessage(cfg *config.Config, now time.Time) string {
	return fmt.Sprintf("%s session %s (%s)\nOR %s-%s, entry %s, hard exit %s %s\nZones top %.0f%% / bottom %.0f%%, SL %.0f pts, TP %.0f pts, size %s",
		cfg.Instrument, now.Format("Mon 2006-01-02"), mode(cfg),
		cfg.ORStart, cfg.OREnd, cfg.Entry, cfg.HardExit, cfg.Timezone,
		cfg.TopPct*100, cfg.BottomPct*100, cfg.SLPoints, cfg.TPPoints,
		utils.FormatUnits(cfg.Units(models.Long)))
}

func levelsMessage(cfg *config.Config, or models.OpeningRange, bottom, top float64) string {
	p := func(v float64) string { return utils.FormatPriceToString(v, cfg.PriceTick) }
	return fmt.Sprintf("OR levels %s-%s: high %s, low %s, range %s (%s bars)\nLong at or above %s, short at or below %s",
		cfg.ORStart, cfg.OREnd, p(or.High), p(or.Low), p(or.Range), or.Completeness(), p(top), p(bottom))
}

func signalMessage(cfg *config.Config, sig models.Signal) string {
	p := func(v float64) string { return utils.FormatPriceToString(v, cfg.PriceTick) }
	if !sig.IsTrade() {
		return fmt.Sprintf("%s close %s between %s and %s: no signal.", cfg.Entry, p(sig.EntryPrice), p(sig.BottomCutoff), p(sig.TopCutoff))
	}
	return fmt.Sprintf("Signal %s at %s close %s, SL %s, TP %s",
		strings.ToUpper(string(sig.Decision)), cfg.Entry, p(sig.EntryPrice), p(sig.StopPrice), p(sig.TargetPrice))
}

func fillMessage(cfg *config.Config, side models.Side, f models.Fill) string {
	p := func(v float64) string { return utils.FormatPriceToString(v, cfg.PriceTick) }
	return fmt.Sprintf("Entered %s %s units @ %s, SL %s, TP %s",
		strings.ToUpper(string(side)), utils.FormatUnits(f.Units), p(f.Price), p(f.Levels.Stop), p(f.Levels.Target))
}

var exitLabels = map[models.ExitReason]string{
	models.ExitTarget:  "target hit",
	models.ExitStop:    "stop hit",
	models.ExitTime:    "time exit",
	models.ExitNoTrade: "no trade",
}

func exitMessage(cfg *config.Config, e models.Execution) string {
	if e.ExitReason == models.ExitNoTrade {
		return "No trade taken today."
	}
	p := func(v float64) string { return utils.FormatPriceToString(v, cfg.PriceTick) }
	return fmt.Sprintf("Exit %s: %s %s -> %s, %+.2f pts (%+.2f), MFE %.2f MAE %.2f",
		exitLabels[e.ExitReason], strings.ToUpper(string(e.Side)), p(e.EntryPrice), p(e.ExitPrice),
		e.PnLPoints, e.PnLCurrency, e.MFEPoints, e.MAEPoints)
}

func recapMessage(cfg *config.Config, rec *models.DayRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s recap %s: ", cfg.Instrument, rec.Date)
	switch {
	case rec.SkipReason != "":
		fmt.Fprintf(&b, "skipped (%s)", rec.SkipReason)
	case rec.Execution != nil:
		fmt.Fprintf(&b, "%s, %+.2f pts", exitLabels[rec.Execution.ExitReason], rec.Execution.PnLPoints)
	default:
		b.WriteString("no decision")
	}
	if rec.EndAccount != nil {
		fmt.Fprintf(&b, "\nBalance %.2f (%+.2f), NAV %.2f (%+.2f) %s",
			rec.EndAccount.Balance, rec.PnLBalance, rec.EndAccount.NAV, rec.PnLNAV, rec.EndAccount.Currency)
	}
	return b.String()
}
