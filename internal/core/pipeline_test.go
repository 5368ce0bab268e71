package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubClassifier struct {
	cls    *Classification
	panics bool
}

func (s *stubClassifier) Classify(email *ParsedEmail) *Classification {
	if s.panics {
		panic("classifier down")
	}
	return s.cls
}

type stubAuth struct {
	result *DMARCResult
}

func (s *stubAuth) Evaluate(ctx context.Context, input AuthenticationInput) *DMARCResult {
	return s.result
}

type stubDetector struct {
	name    string
	signals []Signal
	panics  bool
}

func (s *stubDetector) Name() string { return s.name }

func (s *stubDetector) Detect(email *ParsedEmail, cls *Classification) []Signal {
	if s.panics {
		panic("detector down")
	}
	return s.signals
}

type stubBehavior struct {
	deviation DeviationResult
	recorded  []Observation
	panics    bool
}

func (s *stubBehavior) RecordObservation(ctx context.Context, tenantID, senderEmail string, obs Observation) error {
	s.recorded = append(s.recorded, obs)
	return nil
}

func (s *stubBehavior) DetectDeviation(baseline *UserBaseline, obs Observation) DeviationResult {
	if s.panics {
		panic("deviation engine down")
	}
	return s.deviation
}

type stubStore struct {
	baseline *UserBaseline
	err      error
}

func (s *stubStore) Get(ctx context.Context, tenantID, senderEmail string) (*UserBaseline, error) {
	return s.baseline, s.err
}

func (s *stubStore) Update(ctx context.Context, tenantID, senderEmail string, seed *UserBaseline, merge MergeFunc) error {
	return nil
}

func (s *stubStore) Close() error { return nil }

type stubGate struct {
	layer LayerResult
}

func (s *stubGate) Evaluate(ctx context.Context, email *ParsedEmail, score, confidence float64) *LayerResult {
	out := s.layer
	return &out
}

// summingAggregator adds up layer scores so tests can reason about the
// exact number without pulling in the real fusion logic
type summingAggregator struct {
	lastInput AggregationInput
	panics    bool
}

func (s *summingAggregator) Aggregate(input AggregationInput) *EmailVerdict {
	if s.panics {
		panic("aggregator down")
	}
	s.lastInput = input
	var score float64
	var signals []Signal
	for _, lr := range input.LayerResults {
		score += lr.Score
		signals = append(signals, lr.Signals...)
	}
	return &EmailVerdict{
		MessageID:    input.Email.MessageID,
		TenantID:     input.Email.TenantID,
		Verdict:      VerdictSuspicious,
		OverallScore: score,
		Signals:      signals,
		LayerResults: input.LayerResults,
	}
}

func pipelineEmail() *ParsedEmail {
	return &ParsedEmail{
		MessageID: "<m1@example.com>",
		TenantID:  "acme",
		From:      EmailAddress{Address: "sender@other.net", Domain: "other.net"},
		To:        []EmailAddress{{Address: "Bob@acme.com"}},
		Subject:   "hello",
		SentAt:    time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
		Headers:   map[string][]string{},
	}
}

func defaultClassification() *Classification {
	return &Classification{Type: TypePersonal, ThreatScoreModifier: 1.0}
}

func TestAnalyze_UnknownSenderGetsFirstContact(t *testing.T) {
	behavior := &stubBehavior{}
	agg := &summingAggregator{}
	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		[]SignalDetector{&stubDetector{name: "bec"}},
		behavior,
		&stubStore{err: ErrBaselineNotFound},
		nil,
		agg,
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	require.NotNil(t, verdict)
	var behavioral *LayerResult
	for i := range verdict.LayerResults {
		if verdict.LayerResults[i].Layer == LayerBehavioral {
			behavioral = &verdict.LayerResults[i]
		}
	}
	require.NotNil(t, behavioral)
	require.Len(t, behavioral.Signals, 1)
	assert.Equal(t, SignalFirstContact, behavioral.Signals[0].Type)

	// the observation is recorded once, with lowercased recipients
	require.Len(t, behavior.recorded, 1)
	assert.Equal(t, []string{"bob@acme.com"}, behavior.recorded[0].Recipients)
}

func TestAnalyze_EstablishedSenderDeviations(t *testing.T) {
	baseline := &UserBaseline{Confidence: 0.8}
	baseline.DailySendVolume.DataPoints = 20

	behavior := &stubBehavior{deviation: DeviationResult{
		HasDeviation: true,
		Severity:     SeverityHigh,
		Deviations: []Deviation{
			{Type: DeviationVolumeSpike, Magnitude: 5},
			{Type: DeviationUnusualTime, Magnitude: 1},
		},
	}}

	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		nil,
		behavior,
		&stubStore{baseline: baseline},
		nil,
		&summingAggregator{},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	var behavioral *LayerResult
	for i := range verdict.LayerResults {
		if verdict.LayerResults[i].Layer == LayerBehavioral {
			behavioral = &verdict.LayerResults[i]
		}
	}
	require.NotNil(t, behavioral)
	assert.Equal(t, 0.8, behavioral.Confidence)
	require.Len(t, behavioral.Signals, 2)
	assert.Equal(t, SignalVolumeSpike, behavioral.Signals[0].Type)
	assert.Equal(t, SignalUnusualTime, behavioral.Signals[1].Type)
	assert.Equal(t, SeverityHigh, behavioral.Signals[0].Severity)
}

func TestAnalyze_PanickingDetectorDoesNotAbort(t *testing.T) {
	working := &stubDetector{name: "attachments", signals: []Signal{
		{Type: SignalDangerousAttachment, Score: 35},
	}}
	broken := &stubDetector{name: "urls", panics: true}

	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		[]SignalDetector{working, broken},
		&stubBehavior{},
		&stubStore{err: ErrBaselineNotFound},
		nil,
		&summingAggregator{},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	require.NotNil(t, verdict)
	var det *LayerResult
	for i := range verdict.LayerResults {
		if verdict.LayerResults[i].Layer == LayerDeterministic {
			det = &verdict.LayerResults[i]
		}
	}
	require.NotNil(t, det)
	assert.False(t, det.Skipped)
	require.Len(t, det.Signals, 1)
	assert.Equal(t, SignalDangerousAttachment, det.Signals[0].Type)
	// half the detectors failed, so confidence drops accordingly
	assert.InDelta(t, 0.425, det.Confidence, 1e-9)
}

func TestAnalyze_PanickingBehaviorSkipsLayer(t *testing.T) {
	baseline := &UserBaseline{Confidence: 0.8}
	baseline.DailySendVolume.DataPoints = 20

	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		nil,
		&stubBehavior{panics: true},
		&stubStore{baseline: baseline},
		nil,
		&summingAggregator{},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	require.NotNil(t, verdict)
	var behavioral *LayerResult
	for i := range verdict.LayerResults {
		if verdict.LayerResults[i].Layer == LayerBehavioral {
			behavioral = &verdict.LayerResults[i]
		}
	}
	require.NotNil(t, behavioral)
	assert.True(t, behavioral.Skipped)
	assert.Equal(t, "deviation engine error", behavioral.SkipReason)
}

func TestAnalyze_PanickingClassifierFallsBack(t *testing.T) {
	agg := &summingAggregator{}
	p := NewPipeline(
		&stubClassifier{panics: true},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		nil,
		&stubBehavior{},
		&stubStore{err: ErrBaselineNotFound},
		nil,
		agg,
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	require.NotNil(t, verdict)
	require.NotNil(t, agg.lastInput.Classification)
	assert.Equal(t, TypeUnknown, agg.lastInput.Classification.Type)
	assert.Equal(t, 1.0, agg.lastInput.Classification.ThreatScoreModifier)
}

func TestAnalyze_AggregatorPanicFallback(t *testing.T) {
	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		[]SignalDetector{&stubDetector{name: "bec", signals: []Signal{
			{Type: SignalWireTransferRequest, Score: 30},
		}}},
		&stubBehavior{},
		&stubStore{err: ErrBaselineNotFound},
		nil,
		&summingAggregator{panics: true},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	require.NotNil(t, verdict)
	assert.Equal(t, VerdictSuspicious, verdict.Verdict)
	assert.Equal(t, 0.2, verdict.Confidence)
	types := make([]SignalType, 0, len(verdict.Signals))
	for _, s := range verdict.Signals {
		types = append(types, s.Type)
	}
	assert.Contains(t, types, SignalWireTransferRequest)
}

func TestAnalyze_NilAuthSkipsLayer(t *testing.T) {
	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		nil,
		nil,
		&stubBehavior{},
		&stubStore{err: ErrBaselineNotFound},
		nil,
		&summingAggregator{},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	var auth *LayerResult
	for i := range verdict.LayerResults {
		if verdict.LayerResults[i].Layer == LayerAuthentication {
			auth = &verdict.LayerResults[i]
		}
	}
	require.NotNil(t, auth)
	assert.True(t, auth.Skipped)
	assert.Equal(t, "authentication disabled", auth.SkipReason)
}

func TestAnalyze_GateLayerIncluded(t *testing.T) {
	gate := &stubGate{layer: LayerResult{
		Layer:   LayerDeepAnalysis,
		Signals: []Signal{{Type: SignalSemanticThreat, Score: 22}},
	}}

	p := NewPipeline(
		&stubClassifier{cls: defaultClassification()},
		&stubAuth{result: &DMARCResult{Result: DMARCNone}},
		nil,
		&stubBehavior{},
		&stubStore{err: ErrBaselineNotFound},
		gate,
		&summingAggregator{},
		zap.NewNop(),
	)

	verdict := p.Analyze(context.Background(), pipelineEmail())

	tags := make([]LayerTag, 0, len(verdict.LayerResults))
	for _, lr := range verdict.LayerResults {
		tags = append(tags, lr.Layer)
	}
	assert.Contains(t, tags, LayerDeepAnalysis)
}

func TestPreliminary(t *testing.T) {
	layers := []LayerResult{
		{Layer: LayerAuthentication, Score: 12, Confidence: 0.9},
		{Layer: LayerDeterministic, Score: 30, Confidence: 0.85},
		{Layer: LayerBehavioral, Score: 15, Confidence: 0.3},
		{Layer: LayerDeepAnalysis, Score: 99, Confidence: 0.1, Skipped: true},
	}

	score, confidence := preliminary(layers)
	assert.Equal(t, 57.0, score)
	assert.Equal(t, 0.3, confidence)
}

func TestAuthInputFromEmail(t *testing.T) {
	t.Run("authentication results header", func(t *testing.T) {
		email := pipelineEmail()
		email.Headers["Authentication-Results"] = []string{
			"mx.acme.com; spf=pass smtp.mailfrom=bounce@mail.other.net; dkim=pass header.d=other.net header.s=s1",
		}

		input := authInputFromEmail(email)

		assert.Equal(t, SPFPass, input.SPF)
		assert.Equal(t, "mail.other.net", input.MailFromDomain)
		require.Len(t, input.DKIM, 1)
		assert.Equal(t, DKIMPass, input.DKIM[0].Result)
		assert.Equal(t, "other.net", input.DKIM[0].Domain)
		assert.Equal(t, "s1", input.DKIM[0].Selector)
	})

	t.Run("received-spf fallback", func(t *testing.T) {
		email := pipelineEmail()
		email.Headers["Received-Spf"] = []string{"softfail (domain transitioning)"}

		input := authInputFromEmail(email)
		assert.Equal(t, SPFSoftFail, input.SPF)
	})

	t.Run("return-path overrides mail-from domain", func(t *testing.T) {
		email := pipelineEmail()
		email.Headers["Return-Path"] = []string{"<bounce@envelope.example>"}

		input := authInputFromEmail(email)
		assert.Equal(t, "envelope.example", input.MailFromDomain)
	})

	t.Run("bare headers default to header-from domain", func(t *testing.T) {
		input := authInputFromEmail(pipelineEmail())
		assert.Equal(t, SPFNone, input.SPF)
		assert.Equal(t, "other.net", input.MailFromDomain)
	})
}

func TestAuthSignals(t *testing.T) {
	t.Run("pass emits nothing", func(t *testing.T) {
		assert.Empty(t, authSignals(&DMARCResult{Result: DMARCPass}))
	})

	t.Run("fail under reject policy", func(t *testing.T) {
		signals := authSignals(&DMARCResult{
			Result:        DMARCFail,
			AppliedPolicy: PolicyReject,
			PolicyDomain:  "other.net",
		})

		require.Len(t, signals, 2)
		assert.Equal(t, SignalAuthFailure, signals[0].Type)
		assert.Equal(t, SignalDMARCViolation, signals[1].Type)
		assert.Equal(t, SeverityCritical, signals[1].Severity)
		assert.Equal(t, 25.0, signals[1].Score)
	})

	t.Run("fail under none policy", func(t *testing.T) {
		signals := authSignals(&DMARCResult{Result: DMARCFail, AppliedPolicy: PolicyNone})
		require.Len(t, signals, 1)
		assert.Equal(t, SignalAuthFailure, signals[0].Type)
	})
}
