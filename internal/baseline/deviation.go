package baseline

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/mikey/mailsentry/internal/core"
)

// minHourObservations is how many sends a profile needs before the
// hour distribution is trusted for unusual-time checks
const minHourObservations = 10

// DetectDeviation checks one observation against the sender's profile.
// A normal observation inside established ranges reports no deviation;
// severity rises with the number and magnitude of simultaneous anomalies.
func (e *Engine) DetectDeviation(b *core.UserBaseline, obs core.Observation) core.DeviationResult {
	var deviations []core.Deviation

	if d := e.checkVolume(b, obs); d != nil {
		deviations = append(deviations, *d)
	}
	if d := e.checkSendHour(b, obs); d != nil {
		deviations = append(deviations, *d)
	}
	deviations = append(deviations, e.checkRecipients(b, obs)...)
	if d := e.checkSubject(b, obs); d != nil {
		deviations = append(deviations, *d)
	}

	result := core.DeviationResult{
		HasDeviation: len(deviations) > 0,
		Deviations:   deviations,
	}
	result.Severity = deviationSeverity(deviations)
	return result
}

func (e *Engine) checkVolume(b *core.UserBaseline, obs core.Observation) *core.Deviation {
	stats := b.DailySendVolume
	if stats.DataPoints < e.cfg.MinDataPoints || obs.DailyCount <= 0 {
		return nil
	}
	sigma := stats.StdDev
	if sigma < 1 {
		sigma = 1
	}
	z := (float64(obs.DailyCount) - stats.Mean) / sigma
	if z < e.cfg.VolumeZScoreThreshold {
		return nil
	}
	return &core.Deviation{
		Type:      core.DeviationVolumeSpike,
		Magnitude: z,
		Detail:    fmt.Sprintf("daily volume %d vs mean %.1f (z=%.1f)", obs.DailyCount, stats.Mean, z),
	}
}

func (e *Engine) checkSendHour(b *core.UserBaseline, obs core.Observation) *core.Deviation {
	if b.SendTime.Total < minHourObservations {
		return nil
	}
	hour := obs.SentAt.UTC().Hour()
	pct := b.SendTime.HourPercentages()
	if pct[hour] >= e.cfg.MinHourProbability {
		return nil
	}
	return &core.Deviation{
		Type:      core.DeviationUnusualTime,
		Magnitude: 1 - pct[hour],
		Detail:    fmt.Sprintf("send at hour %02d, seen in %.1f%% of prior traffic", hour, pct[hour]*100),
	}
}

func (e *Engine) checkRecipients(b *core.UserBaseline, obs core.Observation) []core.Deviation {
	if len(b.RecipientFrequency) < e.cfg.MinEstablishedRecipients {
		return nil
	}
	var deviations []core.Deviation
	for _, r := range obs.Recipients {
		if _, known := b.RecipientFrequency[strings.ToLower(r)]; !known {
			deviations = append(deviations, core.Deviation{
				Type:      core.DeviationNewRecipient,
				Magnitude: 1,
				Detail:    fmt.Sprintf("recipient %s not in established set", r),
			})
		}
	}
	return deviations
}

func (e *Engine) checkSubject(b *core.UserBaseline, obs core.Observation) *core.Deviation {
	patterns := b.SubjectPatterns
	if patterns.Observations < e.cfg.MinDataPoints || obs.Subject == "" {
		return nil
	}

	length := float64(len(obs.Subject))
	if patterns.AverageLength > 0 && length > patterns.AverageLength*2.5 {
		return &core.Deviation{
			Type:      core.DeviationSubject,
			Magnitude: length / patterns.AverageLength,
			Detail:    fmt.Sprintf("subject length %.0f vs average %.0f", length, patterns.AverageLength),
		}
	}
	if ratio := upperRatio(obs.Subject); ratio > 0.7 && len(obs.Subject) > 8 {
		return &core.Deviation{
			Type:      core.DeviationSubject,
			Magnitude: ratio,
			Detail:    "subject is mostly uppercase, unlike prior traffic",
		}
	}
	if kw := urgencyKeyword(obs.Subject); kw != "" {
		return &core.Deviation{
			Type:      core.DeviationSubject,
			Magnitude: 1,
			Detail:    fmt.Sprintf("urgency phrase %q absent from prior subjects", kw),
		}
	}
	return nil
}

var subjectUrgencyKeywords = []string{
	"urgent", "immediately", "asap", "action required", "final notice",
	"account suspended", "expires today",
}

func urgencyKeyword(subject string) string {
	lower := strings.ToLower(subject)
	for _, kw := range subjectUrgencyKeywords {
		if strings.Contains(lower, kw) {
			return kw
		}
	}
	return ""
}

func upperRatio(s string) float64 {
	letters, upper := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

// deviationSeverity escalates with the count and magnitude of anomalies
func deviationSeverity(deviations []core.Deviation) core.Severity {
	if len(deviations) == 0 {
		return core.SeverityInfo
	}
	score := float64(len(deviations))
	for _, d := range deviations {
		if d.Magnitude >= 4 {
			score++
		}
	}
	switch {
	case score >= 4:
		return core.SeverityCritical
	case score >= 2:
		return core.SeverityHigh
	default:
		return core.SeverityWarning
	}
}
