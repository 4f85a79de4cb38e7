// Package strategy holds the opening-range rules: aggregation, the entry
// decision and the bar-walk exit.
package strategy

import (
	"orbot/bars"
	"orbot/models"
)

// Params are the zone and bracket settings of the decision.
type Params struct {
	TopPct    float64
	BottomPct float64
	SLPoints  float64
	TPPoints  float64
}

// Aggregate reduces the opening-window slice to its range. expected is the
// minute count of the window; tolerance is the number of bars it may miss.
func Aggregate(window []models.Bar, start, end models.Clock, tolerance int) models.OpeningRange {
	or := models.OpeningRange{
		Expected:  models.MinutesInclusive(start, end),
		Actual:    len(window),
		Tolerance: tolerance,
	}
	if len(window) == 0 {
		or.Missing = bars.MissingMinutes(window, start, end)
		return or
	}
	or.High = window[0].High
	or.Low = window[0].Low
	for _, b := range window[1:] {
		if b.High > or.High {
			or.High = b.High
		}
		if b.Low < or.Low {
			or.Low = b.Low
		}
	}
	or.Range = or.High - or.Low
	if or.Actual < or.Expected {
		or.Missing = bars.MissingMinutes(window, start, end)
	}
	return or
}

// Cutoffs returns the short and long trigger levels of or.
func Cutoffs(or models.OpeningRange, p Params) (bottom, top float64) {
	bottom = or.Low + p.BottomPct*or.Range
	top = or.High - p.TopPct*or.Range
	return bottom, top
}

// Decide classifies the day from the entry bar's close. It is pure: the same
// inputs always give the same Signal. Long is tested before short, so when the
// zones overlap a close inside both goes long.
func Decide(window []models.Bar, or models.OpeningRange, entry models.Clock, p Params) models.Signal {
	if !or.Valid() {
		return models.Signal{Decision: models.DecisionInvalidOR}
	}
	bar, ok := bars.FindAt(window, entry)
	if !ok {
		return models.Signal{Decision: models.DecisionMissingEntry}
	}
	if !bar.Complete {
		return models.Signal{Decision: models.DecisionEntryIncomplete, EntryTime: bar.Time}
	}

	bottom, top := Cutoffs(or, p)
	sig := models.Signal{
		Decision:     models.DecisionNone,
		EntryTime:    bar.Time,
		EntryPrice:   bar.Close,
		TopCutoff:    top,
		BottomCutoff: bottom,
	}
	switch {
	case bar.Close >= top:
		sig.Decision = models.DecisionLong
		sig.StopPrice = bar.Close - p.SLPoints
		sig.TargetPrice = bar.Close + p.TPPoints
	case bar.Close <= bottom:
		sig.Decision = models.DecisionShort
		sig.StopPrice = bar.Close + p.SLPoints
		sig.TargetPrice = bar.Close - p.TPPoints
	}
	return sig
}
