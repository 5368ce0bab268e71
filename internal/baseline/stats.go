package baseline

import (
	"math"

	"github.com/mikey/mailsentry/internal/core"
)

// updateVolume folds one daily-count observation into the volume stats:
// EMA for the recency-weighted trend, plus mean/stddev over a bounded
// window of retained raw samples. A seeded profile starts the EMA at
// the org default, and the seed keeps a (1-alpha)^n share of the mean
// so cold-start expectations wash out gradually instead of vanishing on
// the first observation.
func updateVolume(v *core.VolumeStats, value float64, alpha float64, maxSamples int) {
	if v.DataPoints == 0 && v.SeedMean == 0 {
		v.EMA = value
	} else {
		v.EMA = alpha*value + (1-alpha)*v.EMA
	}
	v.DataPoints++

	v.Samples = append(v.Samples, value)
	if maxSamples > 0 && len(v.Samples) > maxSamples {
		v.Samples = v.Samples[len(v.Samples)-maxSamples:]
	}
	v.Mean, v.StdDev = meanStdDev(v.Samples)
	if v.SeedMean > 0 {
		w := math.Pow(1-alpha, float64(v.DataPoints))
		v.Mean = w*v.SeedMean + (1-w)*v.Mean
	}
}

func meanStdDev(samples []float64) (float64, float64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var sq float64
	for _, s := range samples {
		d := s - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(samples)))
}

// recordSendHour bumps the sender's hour-of-day histogram
func recordSendHour(d *core.SendTimeDistribution, hour int) {
	if hour < 0 || hour > 23 {
		return
	}
	d.HourCounts[hour]++
	d.Total++
}

// recordRecipients bumps recipient counters, evicting the rarest entry
// once the map exceeds its bound
func recordRecipients(freq map[string]int, recipients []string, maxEntries int) {
	for _, r := range recipients {
		if _, known := freq[r]; !known && maxEntries > 0 && len(freq) >= maxEntries {
			evictRarest(freq)
		}
		freq[r]++
	}
}

func evictRarest(freq map[string]int) {
	rarest := ""
	min := math.MaxInt
	for k, v := range freq {
		if v < min {
			min = v
			rarest = k
		}
	}
	if rarest != "" {
		delete(freq, rarest)
	}
}

// recordSubject folds one subject line into the sender's pattern stats
func recordSubject(p *core.SubjectPatterns, subject string) {
	n := float64(p.Observations)
	isReply := hasPrefixFold(subject, "re:")
	isForward := hasPrefixFold(subject, "fwd:") || hasPrefixFold(subject, "fw:")

	p.ReplyPercentage = (p.ReplyPercentage*n + boolTo1(isReply)) / (n + 1)
	p.ForwardPercentage = (p.ForwardPercentage*n + boolTo1(isForward)) / (n + 1)
	p.AverageLength = (p.AverageLength*n + float64(len(subject))) / (n + 1)
	p.Observations++
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if 'A' <= a && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

func boolTo1(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
