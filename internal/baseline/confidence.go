package baseline

import (
	"time"

	"github.com/mikey/mailsentry/internal/core"
)

// Confidence weighting: observation count dominates so sparse profiles
// can never look confident, whatever their variance.
const (
	weightDataPoints  = 0.6
	weightRecency     = 0.2
	weightConsistency = 0.2

	// saturationPoints is where the data-points factor reaches 1.0
	saturationPoints = 30
)

// recomputeConfidence refreshes the baseline's confidence score and its
// factor breakdown. Confidence is non-decreasing in data points for
// fixed recency and degrades as the profile goes stale.
func recomputeConfidence(b *core.UserBaseline, now time.Time, stalenessWindow time.Duration) {
	points := b.DailySendVolume.DataPoints

	dataFactor := float64(points) / saturationPoints
	if dataFactor > 1 {
		dataFactor = 1
	}

	recencyFactor := 1.0
	b.DataRecency = core.RecencyFresh
	if !b.LastUpdated.IsZero() {
		age := now.Sub(b.LastUpdated)
		if age > stalenessWindow {
			b.DataRecency = core.RecencyStale
			// linear decay past the window, floored at 0.2
			over := float64(age-stalenessWindow) / float64(stalenessWindow)
			recencyFactor = 1 - over
			if recencyFactor < 0.2 {
				recencyFactor = 0.2
			}
		}
	}

	consistencyFactor := 1.0
	if b.DailySendVolume.Mean > 0 {
		cv := b.DailySendVolume.StdDev / b.DailySendVolume.Mean
		consistencyFactor = 1 - cv
		if consistencyFactor < 0 {
			consistencyFactor = 0
		}
	}

	b.ConfidenceFactors = core.ConfidenceFactors{
		DataPoints:  dataFactor,
		Recency:     recencyFactor,
		Consistency: consistencyFactor,
	}
	b.Confidence = weightDataPoints*dataFactor +
		weightRecency*recencyFactor +
		weightConsistency*consistencyFactor
}
