package indicators

import (
	"math"

	"orbot/models"
)

// TrueRanges returns the true range of every bar after the first.
func TrueRanges(src []models.Bar) []float64 {
	if len(src) < 2 {
		return nil
	}
	out := make([]float64, 0, len(src)-1)
	for i := 1; i < len(src); i++ {
		prev := src[i-1].Close
		b := src[i]
		tr := math.Max(
			b.High-b.Low,
			math.Max(
				math.Abs(b.High-prev),
				math.Abs(b.Low-prev),
			),
		)
		out = append(out, tr)
	}
	return out
}

// ATR calculates the Average True Range over the last period true ranges.
// It returns 0 when there are not enough bars.
func ATR(src []models.Bar, period int) float64 {
	trs := TrueRanges(src)
	if period <= 0 || len(trs) < period {
		return 0
	}
	var sum float64
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// MaxSlice returns the maximum value in a slice
func MaxSlice(arr []float64) float64 {
	if len(arr) == 0 {
		return 0
	}
	maxVal := arr[0]
	for _, v := range arr[1:] {
		if v > maxVal {
			maxVal = v
		}
	}
	return maxVal
}
