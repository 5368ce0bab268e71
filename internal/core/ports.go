package core

import (
	"context"
)

// DNSResolver resolves TXT records. Implementations must honor the
// context deadline; the authentication evaluator treats any error as
// "record absent" rather than failing the message.
type DNSResolver interface {
	ResolveTXT(ctx context.Context, name string) ([]string, error)
}

// MergeFunc mutates a baseline in place during a store update
type MergeFunc func(baseline *UserBaseline)

// BaselineStore persists per-(tenant, sender) behavioral baselines.
// Update performs a read-merge-write that the store serializes per key,
// so concurrent messages from the same sender never lose updates.
type BaselineStore interface {
	// Get returns the current baseline snapshot, or ErrBaselineNotFound
	// when the sender has never been observed
	Get(ctx context.Context, tenantID, senderEmail string) (*UserBaseline, error)

	// Update applies merge to the stored baseline (creating it first
	// via the supplied seed when absent) and persists the result
	Update(ctx context.Context, tenantID, senderEmail string, seed *UserBaseline, merge MergeFunc) error

	// Close releases store resources
	Close() error
}

// DeepAnalyzer is the high-cost semantic analysis pass. Callers bound
// invocations with a hard timeout; the gate decides whether to call at all.
type DeepAnalyzer interface {
	AnalyzeThreat(ctx context.Context, email *ParsedEmail) (*DeepAnalysisResult, error)
}

// AuthEvaluator evaluates SPF/DKIM evidence against DMARC policy
type AuthEvaluator interface {
	Evaluate(ctx context.Context, input AuthenticationInput) *DMARCResult
}

// Classifier determines the message category and score modifier
type Classifier interface {
	Classify(email *ParsedEmail) *Classification
}

// SignalDetector is one deterministic rule engine. Detectors are pure
// and order-independent; each returns only its own typed signals.
type SignalDetector interface {
	Name() string
	Detect(email *ParsedEmail, cls *Classification) []Signal
}

// BehaviorEngine records observations into baselines and checks
// incoming messages against the sender's established profile
type BehaviorEngine interface {
	RecordObservation(ctx context.Context, tenantID, senderEmail string, obs Observation) error
	DetectDeviation(baseline *UserBaseline, obs Observation) DeviationResult
}

// AnalysisGate decides whether the costly semantic pass runs, and runs
// it under a hard timeout when it does
type AnalysisGate interface {
	Evaluate(ctx context.Context, email *ParsedEmail, preliminaryScore, preliminaryConfidence float64) *LayerResult
}

// Aggregator fuses layer results into the final verdict. It must be a
// pure function of its input so re-running it yields an identical verdict.
type Aggregator interface {
	Aggregate(input AggregationInput) *EmailVerdict
}

// AggregationInput is everything the aggregator is allowed to see
type AggregationInput struct {
	Email          *ParsedEmail
	Classification *Classification
	AuthResult     *DMARCResult
	LayerResults   []LayerResult
}
