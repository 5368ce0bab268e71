package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Pipeline runs the full verdict pipeline for one message: classify,
// authenticate, deterministic detection, behavioral deviation, optional
// deep analysis, then aggregation. It is safe for concurrent use across
// messages; per-sender baseline updates are serialized by the store.
type Pipeline struct {
	classifier Classifier
	auth       AuthEvaluator
	detectors  []SignalDetector
	behavior   BehaviorEngine
	store      BaselineStore
	gate       AnalysisGate
	aggregator Aggregator
	logger     *zap.Logger
}

// NewPipeline creates a new verdict pipeline
func NewPipeline(
	classifier Classifier,
	auth AuthEvaluator,
	detectors []SignalDetector,
	behavior BehaviorEngine,
	store BaselineStore,
	gate AnalysisGate,
	aggregator Aggregator,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		classifier: classifier,
		auth:       auth,
		detectors:  detectors,
		behavior:   behavior,
		store:      store,
		gate:       gate,
		aggregator: aggregator,
		logger:     logger,
	}
}

// Analyze produces a verdict for one message. It never returns an error:
// a failing layer is marked skipped and aggregation proceeds with the
// remaining layers, biasing toward a conservative outcome.
func (p *Pipeline) Analyze(ctx context.Context, email *ParsedEmail) *EmailVerdict {
	cls := p.classify(email)

	var layers []LayerResult

	authResult, authLayer := p.runAuthentication(ctx, email)
	layers = append(layers, authLayer)

	layers = append(layers, p.runDeterministic(email, cls))

	baseline := p.loadBaseline(ctx, email)
	layers = append(layers, p.runBehavioral(baseline, email))

	// Gate sees the deterministic+behavioral picture before deciding
	// whether the costly semantic pass is worth it
	prelimScore, prelimConf := preliminary(layers)
	if p.gate != nil {
		layers = append(layers, *p.gate.Evaluate(ctx, email, prelimScore, prelimConf))
	}

	verdict := p.aggregate(AggregationInput{
		Email:          email,
		Classification: cls,
		AuthResult:     authResult,
		LayerResults:   layers,
	})

	// Recording is deliberately outside the pure scoring path: the
	// verdict is a function of the snapshot loaded above
	p.record(ctx, email)

	p.logger.Info("Verdict produced",
		zap.String("message_id", email.MessageID),
		zap.String("tenant_id", email.TenantID),
		zap.String("verdict", string(verdict.Verdict)),
		zap.Float64("score", verdict.OverallScore),
		zap.Float64("confidence", verdict.Confidence),
		zap.Int("signals", len(verdict.Signals)))

	return verdict
}

func (p *Pipeline) classify(email *ParsedEmail) *Classification {
	cls := safeRun(p.logger, "classification", func() *Classification {
		return p.classifier.Classify(email)
	})
	if cls == nil {
		// Conservative default: no skips, full score weight
		cls = &Classification{Type: TypeUnknown, ThreatScoreModifier: 1.0}
	}
	return cls
}

func (p *Pipeline) runAuthentication(ctx context.Context, email *ParsedEmail) (*DMARCResult, LayerResult) {
	if p.auth == nil {
		return nil, LayerResult{
			Layer:      LayerAuthentication,
			Skipped:    true,
			SkipReason: "authentication disabled",
		}
	}

	start := time.Now()
	input := authInputFromEmail(email)

	result := safeRun(p.logger, "authentication", func() *DMARCResult {
		return p.auth.Evaluate(ctx, input)
	})
	if result == nil {
		return nil, LayerResult{
			Layer:      LayerAuthentication,
			Skipped:    true,
			SkipReason: "evaluator error",
		}
	}

	signals := authSignals(result)
	confidence := 0.5
	if result.Record != nil {
		confidence = 0.9
	}
	return result, LayerResult{
		Layer:            LayerAuthentication,
		Score:            sumScores(signals),
		Confidence:       confidence,
		Signals:          signals,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Pipeline) runDeterministic(email *ParsedEmail, cls *Classification) LayerResult {
	start := time.Now()
	var signals []Signal
	failed := 0
	for _, det := range p.detectors {
		found := safeRun(p.logger, det.Name(), func() []Signal {
			return det.Detect(email, cls)
		})
		if found == nil {
			failed++
			continue
		}
		signals = append(signals, found...)
	}

	confidence := 0.85
	if len(p.detectors) > 0 && failed > 0 {
		confidence *= float64(len(p.detectors)-failed) / float64(len(p.detectors))
	}
	return LayerResult{
		Layer:            LayerDeterministic,
		Score:            sumScores(signals),
		Confidence:       confidence,
		Signals:          signals,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Pipeline) loadBaseline(ctx context.Context, email *ParsedEmail) *UserBaseline {
	if p.store == nil {
		return nil
	}
	baseline, err := p.store.Get(ctx, email.TenantID, email.From.Address)
	if errors.Is(err, ErrBaselineNotFound) {
		return nil
	}
	if err != nil {
		p.logger.Warn("Baseline lookup failed, treating sender as unknown",
			zap.String("sender", email.From.Address),
			zap.Error(err))
		return nil
	}
	return baseline
}

func (p *Pipeline) runBehavioral(baseline *UserBaseline, email *ParsedEmail) LayerResult {
	start := time.Now()
	obs := observationFromEmail(email)

	var signals []Signal
	confidence := 0.3

	if baseline == nil || baseline.DailySendVolume.DataPoints == 0 {
		signals = append(signals, Signal{
			Type:     SignalFirstContact,
			Severity: SeverityInfo,
			Score:    15,
			Detail:   "no prior history for this sender",
		})
	} else {
		confidence = baseline.Confidence
		result := safeRun(p.logger, "behavioral", func() *DeviationResult {
			r := p.behavior.DetectDeviation(baseline, obs)
			return &r
		})
		if result == nil {
			return LayerResult{
				Layer:      LayerBehavioral,
				Skipped:    true,
				SkipReason: "deviation engine error",
			}
		}
		if result.HasDeviation {
			signals = append(signals, deviationSignals(*result)...)
		}
	}

	return LayerResult{
		Layer:            LayerBehavioral,
		Score:            sumScores(signals),
		Confidence:       confidence,
		Signals:          signals,
		ProcessingTimeMs: time.Since(start).Milliseconds(),
	}
}

func (p *Pipeline) aggregate(input AggregationInput) *EmailVerdict {
	verdict := safeRun(p.logger, "aggregation", func() *EmailVerdict {
		return p.aggregator.Aggregate(input)
	})
	if verdict != nil {
		return verdict
	}

	// Aggregation must never suppress verdict emission: fall back to
	// the raw deterministic signals with a conservative mapping
	var signals []Signal
	var score float64
	for _, lr := range input.LayerResults {
		signals = append(signals, lr.Signals...)
		score += lr.Score
	}
	v := VerdictSuspicious
	if score < 10 {
		v = VerdictPass
	}
	return &EmailVerdict{
		ID:           uuid.New(),
		MessageID:    input.Email.MessageID,
		TenantID:     input.Email.TenantID,
		Verdict:      v,
		OverallScore: score,
		Confidence:   0.2,
		Signals:      signals,
		LayerResults: input.LayerResults,
		AnalyzedAt:   time.Now().UTC(),
	}
}

func (p *Pipeline) record(ctx context.Context, email *ParsedEmail) {
	if p.behavior == nil {
		return
	}
	obs := observationFromEmail(email)
	if err := p.behavior.RecordObservation(ctx, email.TenantID, email.From.Address, obs); err != nil {
		p.logger.Error("Failed to record observation",
			zap.String("sender", email.From.Address),
			zap.Error(err))
	}
}

// safeRun executes fn and converts a panic into a nil result so one
// broken layer cannot abort verdict production
func safeRun[T any](logger *zap.Logger, stage string, fn func() T) (result T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Pipeline stage panicked",
				zap.String("stage", stage),
				zap.Any("panic", r))
			var zero T
			result = zero
		}
	}()
	return fn()
}

func sumScores(signals []Signal) float64 {
	var total float64
	for _, s := range signals {
		total += s.Score
	}
	return total
}

// preliminary reports the combined score and the weakest confidence of
// the layers run so far
func preliminary(layers []LayerResult) (float64, float64) {
	score := 0.0
	confidence := 1.0
	for _, lr := range layers {
		if lr.Skipped {
			continue
		}
		score += lr.Score
		if lr.Confidence < confidence {
			confidence = lr.Confidence
		}
	}
	return score, confidence
}

func authInputFromEmail(email *ParsedEmail) AuthenticationInput {
	input := AuthenticationInput{
		HeaderFromDomain: email.From.Domain,
		MailFromDomain:   email.From.Domain,
		SPF:              SPFNone,
	}

	// Authentication-Results is the receiving MTA's verdict; fall back
	// to Received-SPF when absent
	for _, raw := range email.Headers["Authentication-Results"] {
		parseAuthenticationResults(raw, &input)
	}
	if input.SPF == SPFNone {
		for _, raw := range email.Headers["Received-Spf"] {
			lower := strings.ToLower(raw)
			switch {
			case strings.HasPrefix(lower, "pass"):
				input.SPF = SPFPass
			case strings.HasPrefix(lower, "softfail"):
				input.SPF = SPFSoftFail
			case strings.HasPrefix(lower, "fail"):
				input.SPF = SPFFail
			case strings.HasPrefix(lower, "neutral"):
				input.SPF = SPFNeutral
			}
		}
	}
	if rp := email.Headers["Return-Path"]; len(rp) > 0 {
		if at := strings.LastIndex(rp[0], "@"); at >= 0 {
			input.MailFromDomain = strings.Trim(strings.ToLower(rp[0][at+1:]), "<> ")
		}
	}
	return input
}

// parseAuthenticationResults extracts spf= and dkim= clauses from an
// RFC 8601 Authentication-Results header value
func parseAuthenticationResults(raw string, input *AuthenticationInput) {
	for _, clause := range strings.Split(raw, ";") {
		clause = strings.TrimSpace(strings.ToLower(clause))
		switch {
		case strings.HasPrefix(clause, "spf="):
			fields := strings.Fields(clause)
			result := strings.TrimPrefix(fields[0], "spf=")
			switch result {
			case "pass":
				input.SPF = SPFPass
			case "fail":
				input.SPF = SPFFail
			case "softfail":
				input.SPF = SPFSoftFail
			case "neutral":
				input.SPF = SPFNeutral
			}
			for _, f := range fields[1:] {
				if strings.HasPrefix(f, "smtp.mailfrom=") {
					dom := strings.TrimPrefix(f, "smtp.mailfrom=")
					if at := strings.LastIndex(dom, "@"); at >= 0 {
						dom = dom[at+1:]
					}
					input.MailFromDomain = dom
				}
			}
		case strings.HasPrefix(clause, "dkim="):
			fields := strings.Fields(clause)
			sig := DKIMSignature{Result: DKIMNone}
			switch strings.TrimPrefix(fields[0], "dkim=") {
			case "pass":
				sig.Result = DKIMPass
			case "fail":
				sig.Result = DKIMFail
			}
			for _, f := range fields[1:] {
				if strings.HasPrefix(f, "header.d=") {
					sig.Domain = strings.TrimPrefix(f, "header.d=")
				}
				if strings.HasPrefix(f, "header.s=") {
					sig.Selector = strings.TrimPrefix(f, "header.s=")
				}
			}
			input.DKIM = append(input.DKIM, sig)
		}
	}
}

// authSignals converts the DMARC evaluation into threat signals
func authSignals(result *DMARCResult) []Signal {
	if result.Result != DMARCFail {
		return nil
	}
	signals := []Signal{{
		Type:     SignalAuthFailure,
		Severity: SeverityWarning,
		Score:    12,
		Detail:   "neither SPF nor DKIM passed with alignment",
		Evidence: map[string]any{
			"spf_aligned":  result.SPFAligned,
			"dkim_aligned": result.DKIMAligned,
		},
	}}
	if result.AppliedPolicy == PolicyQuarantine || result.AppliedPolicy == PolicyReject {
		severity := SeverityHigh
		score := 18.0
		if result.AppliedPolicy == PolicyReject {
			severity = SeverityCritical
			score = 25
		}
		signals = append(signals, Signal{
			Type:     SignalDMARCViolation,
			Severity: severity,
			Score:    score,
			Detail:   fmt.Sprintf("domain owner requests %s for unauthenticated mail", result.AppliedPolicy),
			Evidence: map[string]any{"policy_domain": result.PolicyDomain},
		})
	}
	return signals
}

func deviationSignals(result DeviationResult) []Signal {
	var signals []Signal
	for _, d := range result.Deviations {
		sig := Signal{
			Severity: result.Severity,
			Detail:   d.Detail,
			Evidence: map[string]any{"magnitude": d.Magnitude},
		}
		switch d.Type {
		case DeviationVolumeSpike:
			sig.Type = SignalVolumeSpike
			sig.Score = 15
		case DeviationUnusualTime:
			sig.Type = SignalUnusualTime
			sig.Score = 10
		case DeviationNewRecipient:
			sig.Type = SignalNewRecipient
			sig.Score = 8
		case DeviationSubject:
			sig.Type = SignalSubjectAnomaly
			sig.Score = 8
		}
		signals = append(signals, sig)
	}
	return signals
}

func observationFromEmail(email *ParsedEmail) Observation {
	recipients := make([]string, 0, len(email.To))
	for _, to := range email.To {
		recipients = append(recipients, strings.ToLower(to.Address))
	}
	return Observation{
		SentAt:     email.SentAt,
		Recipients: recipients,
		Subject:    email.Subject,
		DailyCount: 1,
	}
}
