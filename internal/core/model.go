package core

import (
	"time"

	"github.com/google/uuid"
)

// EmailAddress is a structured mailbox address
type EmailAddress struct {
	Address     string `json:"address"`
	DisplayName string `json:"display_name,omitempty"`
	Domain      string `json:"domain"`
}

// Attachment is a single attachment carried by a parsed email
type Attachment struct {
	Filename string `json:"filename"`
	MIMEType string `json:"mime_type"`
	Content  []byte `json:"-"`
}

// ParsedEmail is the canonical message representation produced by the
// normalizer. It is immutable once constructed and owned exclusively by
// the pipeline invocation that analyzes it.
type ParsedEmail struct {
	MessageID   string              `json:"message_id"`
	TenantID    string              `json:"tenant_id"`
	From        EmailAddress        `json:"from"`
	To          []EmailAddress      `json:"to"`
	ReplyTo     *EmailAddress       `json:"reply_to,omitempty"`
	Subject     string              `json:"subject"`
	TextBody    string              `json:"text_body"`
	HTMLBody    string              `json:"html_body"`
	Headers     map[string][]string `json:"headers"`
	Attachments []Attachment        `json:"attachments"`
	SentAt      time.Time           `json:"sent_at"`
}

// SignalType is the closed set of threat-signal tags. Aggregation logic
// switches on these, so new detectors must add their tag here.
type SignalType string

const (
	SignalUrgencyLanguage     SignalType = "urgency_language"
	SignalFinancialRequest    SignalType = "financial_request"
	SignalImpersonation       SignalType = "impersonation"
	SignalWireTransferRequest SignalType = "wire_transfer_request"
	SignalSecrecyRequest      SignalType = "secrecy_request"
	SignalVIPTargeting        SignalType = "vip_targeting"
	SignalGiftCardRequest     SignalType = "gift_card_request"
	SignalDangerousAttachment SignalType = "dangerous_attachment"
	SignalDoubleExtension     SignalType = "double_extension"
	SignalFilenameSpoofing    SignalType = "filename_spoofing"
	SignalMacroDocument       SignalType = "macro_document"
	SignalTypeMismatch        SignalType = "attachment_type_mismatch"
	SignalSuspiciousURL       SignalType = "suspicious_url"
	SignalAuthFailure         SignalType = "auth_failure"
	SignalDMARCViolation      SignalType = "dmarc_policy_violation"
	SignalVolumeSpike         SignalType = "volume_spike"
	SignalUnusualTime         SignalType = "unusual_time"
	SignalNewRecipient        SignalType = "new_recipient"
	SignalSubjectAnomaly      SignalType = "subject_anomaly"
	SignalFirstContact        SignalType = "first_contact"
	SignalSemanticThreat      SignalType = "semantic_threat"
)

// Severity classifies how serious a signal is on its own
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Signal is a single typed threat indicator emitted by a detection layer
type Signal struct {
	Type     SignalType     `json:"type"`
	Severity Severity       `json:"severity"`
	Score    float64        `json:"score"`
	Detail   string         `json:"detail"`
	Evidence map[string]any `json:"evidence,omitempty"`
}

// LayerTag identifies a pipeline layer in results and logs
type LayerTag string

const (
	LayerAuthentication LayerTag = "authentication"
	LayerClassification LayerTag = "classification"
	LayerDeterministic  LayerTag = "deterministic"
	LayerBehavioral     LayerTag = "behavioral"
	LayerDeepAnalysis   LayerTag = "deep_analysis"
)

// LayerResult is the per-layer contribution to the final verdict
type LayerResult struct {
	Layer            LayerTag `json:"layer"`
	Score            float64  `json:"score"`
	Confidence       float64  `json:"confidence"`
	Signals          []Signal `json:"signals"`
	ProcessingTimeMs int64    `json:"processing_time_ms"`
	Skipped          bool     `json:"skipped"`
	SkipReason       string   `json:"skip_reason,omitempty"`
}

// SPFStatus is the SPF evaluation outcome from the receiving MTA
type SPFStatus string

const (
	SPFPass     SPFStatus = "pass"
	SPFFail     SPFStatus = "fail"
	SPFNeutral  SPFStatus = "neutral"
	SPFSoftFail SPFStatus = "softfail"
	SPFNone     SPFStatus = "none"
)

// DKIMStatus is a single DKIM signature verification outcome
type DKIMStatus string

const (
	DKIMPass DKIMStatus = "pass"
	DKIMFail DKIMStatus = "fail"
	DKIMNone DKIMStatus = "none"
)

// DKIMSignature is one verified (or failed) DKIM signature
type DKIMSignature struct {
	Result   DKIMStatus `json:"result"`
	Domain   string     `json:"domain"`
	Selector string     `json:"selector"`
}

// DMARCPolicy is the policy requested by a domain owner
type DMARCPolicy string

const (
	PolicyNone       DMARCPolicy = "none"
	PolicyQuarantine DMARCPolicy = "quarantine"
	PolicyReject     DMARCPolicy = "reject"
)

// AlignmentMode controls how strictly authenticated domains must match
// the visible From domain
type AlignmentMode string

const (
	AlignmentRelaxed AlignmentMode = "relaxed"
	AlignmentStrict  AlignmentMode = "strict"
)

// DMARCRecord is a parsed _dmarc TXT record
type DMARCRecord struct {
	Version          string        `json:"version"`
	Policy           DMARCPolicy   `json:"policy"`
	SubdomainPolicy  DMARCPolicy   `json:"subdomain_policy,omitempty"`
	Percentage       int           `json:"percentage"`
	DKIMAlignment    AlignmentMode `json:"adkim"`
	SPFAlignment     AlignmentMode `json:"aspf"`
	AggregateReports []string      `json:"rua,omitempty"`
	ForensicReports  []string      `json:"ruf,omitempty"`
}

// AuthenticationInput carries the raw authentication evidence for one message
type AuthenticationInput struct {
	HeaderFromDomain string
	MailFromDomain   string
	SPF              SPFStatus
	DKIM             []DKIMSignature
}

// DMARCOutcome is the overall DMARC evaluation result
type DMARCOutcome string

const (
	DMARCPass DMARCOutcome = "pass"
	DMARCFail DMARCOutcome = "fail"
	DMARCNone DMARCOutcome = "none"
)

// DMARCResult is the authentication evaluator's verdict for one message
type DMARCResult struct {
	Result        DMARCOutcome `json:"result"`
	Policy        DMARCPolicy  `json:"policy"`
	AppliedPolicy DMARCPolicy  `json:"applied_policy"`
	SPFAligned    bool         `json:"spf_aligned"`
	DKIMAligned   bool         `json:"dkim_aligned"`
	Record        *DMARCRecord `json:"record,omitempty"`
	PolicyDomain  string       `json:"policy_domain,omitempty"`
}

// VolumeStats tracks a sender's daily send volume. Samples keeps a
// bounded window of raw observations for the rolling mean/stddev.
// SeedMean carries the org-default volume used to bootstrap cold-start
// profiles; its influence on Mean and EMA decays as real observations
// accumulate.
type VolumeStats struct {
	Mean       float64   `json:"mean"`
	StdDev     float64   `json:"std_dev"`
	EMA        float64   `json:"ema"`
	SeedMean   float64   `json:"seed_mean,omitempty"`
	DataPoints int       `json:"data_points"`
	Samples    []float64 `json:"samples,omitempty"`
}

// SendTimeDistribution tracks which hours of the day a sender is active
type SendTimeDistribution struct {
	HourCounts [24]int `json:"hour_counts"`
	Total      int     `json:"total"`
}

// HourPercentages returns the normalized per-hour probabilities
func (d *SendTimeDistribution) HourPercentages() [24]float64 {
	var pct [24]float64
	if d.Total == 0 {
		return pct
	}
	for h, c := range d.HourCounts {
		pct[h] = float64(c) / float64(d.Total)
	}
	return pct
}

// SubjectPatterns tracks stylistic subject-line habits of a sender
type SubjectPatterns struct {
	ReplyPercentage   float64 `json:"reply_percentage"`
	ForwardPercentage float64 `json:"forward_percentage"`
	AverageLength     float64 `json:"average_length"`
	Observations      int     `json:"observations"`
}

// ConfidenceFactors breaks down how baseline confidence was computed
type ConfidenceFactors struct {
	DataPoints  float64 `json:"data_points"`
	Recency     float64 `json:"recency"`
	Consistency float64 `json:"consistency"`
}

// DataRecency marks whether a baseline has seen recent traffic
type DataRecency string

const (
	RecencyFresh DataRecency = "fresh"
	RecencyStale DataRecency = "stale"
)

// UserBaseline is the rolling behavioral profile for one (tenant, sender)
// pair. The pipeline only ever sees an immutable snapshot; updates go
// through the BaselineStore with per-key serialization.
type UserBaseline struct {
	TenantID           string               `json:"tenant_id"`
	SenderEmail        string               `json:"sender_email"`
	DailySendVolume    VolumeStats          `json:"daily_send_volume"`
	SendTime           SendTimeDistribution `json:"send_time_distribution"`
	RecipientFrequency map[string]int       `json:"recipient_frequency"`
	SubjectPatterns    SubjectPatterns      `json:"subject_patterns"`
	Confidence         float64              `json:"confidence"`
	ConfidenceFactors  ConfidenceFactors    `json:"confidence_factors"`
	DataRecency        DataRecency          `json:"data_recency"`
	IsBootstrapped     bool                 `json:"is_bootstrapped"`
	FirstSeen          time.Time            `json:"first_seen"`
	LastUpdated        time.Time            `json:"last_updated"`
}

// Clone returns a deep copy so callers can mutate freely without
// affecting the stored baseline
func (b *UserBaseline) Clone() *UserBaseline {
	if b == nil {
		return nil
	}
	out := *b
	if b.DailySendVolume.Samples != nil {
		out.DailySendVolume.Samples = append([]float64(nil), b.DailySendVolume.Samples...)
	}
	if b.RecipientFrequency != nil {
		out.RecipientFrequency = make(map[string]int, len(b.RecipientFrequency))
		for k, v := range b.RecipientFrequency {
			out.RecipientFrequency[k] = v
		}
	}
	return &out
}

// Observation is one incoming message reduced to the quantities the
// baseline engine records and checks deviations against
type Observation struct {
	SentAt     time.Time
	Recipients []string
	Subject    string
	DailyCount int
}

// EmailType is the classifier's message category
type EmailType string

const (
	TypeMarketing     EmailType = "marketing"
	TypeTransactional EmailType = "transactional"
	TypeAutomated     EmailType = "automated"
	TypePersonal      EmailType = "personal"
	TypeUnknown       EmailType = "unknown"
)

// SenderCategory groups known senders in the registry
type SenderCategory string

const (
	CategoryRetail        SenderCategory = "retail"
	CategorySaaS          SenderCategory = "saas"
	CategoryTransactional SenderCategory = "transactional"
	CategoryFinancial     SenderCategory = "financial"
)

// KnownSender is a registry entry for a recognized legitimate bulk sender
type KnownSender struct {
	Domain   string         `json:"domain" yaml:"domain"`
	Name     string         `json:"name" yaml:"name"`
	Category SenderCategory `json:"category" yaml:"category"`
}

// Classification is the sender/content classifier output consumed by the
// deterministic layer (skip flags) and the aggregator (score modifier)
type Classification struct {
	Type                  EmailType    `json:"type"`
	IsKnownSender         bool         `json:"is_known_sender"`
	SenderInfo            *KnownSender `json:"sender_info,omitempty"`
	ThreatScoreModifier   float64      `json:"threat_score_modifier"`
	SkipBECDetection      bool         `json:"skip_bec_detection"`
	SkipGiftCardDetection bool         `json:"skip_gift_card_detection"`
	MarketingSignals      []string     `json:"marketing_signals,omitempty"`
	IsLikelyMarketing     bool         `json:"is_likely_marketing"`
}

// Verdict is the final categorical decision for a message
type Verdict string

const (
	VerdictPass       Verdict = "pass"
	VerdictSuspicious Verdict = "suspicious"
	VerdictQuarantine Verdict = "quarantine"
	VerdictBlock      Verdict = "block"
)

// EmailVerdict is the pipeline's output. Immutable once produced;
// downstream collaborators (quarantine executor, notifier, audit log)
// consume but never mutate it.
type EmailVerdict struct {
	ID               uuid.UUID     `json:"id"`
	MessageID        string        `json:"message_id"`
	TenantID         string        `json:"tenant_id"`
	Verdict          Verdict       `json:"verdict"`
	OverallScore     float64       `json:"overall_score"`
	Confidence       float64       `json:"confidence"`
	Signals          []Signal      `json:"signals"`
	LayerResults     []LayerResult `json:"layer_results"`
	SynergyBonus     float64       `json:"synergy_bonus"`
	CompoundPatterns []string      `json:"compound_patterns,omitempty"`
	AnalyzedAt       time.Time     `json:"analyzed_at"`
}

// DeepAnalysisResult is the semantic analyzer's structured answer
type DeepAnalysisResult struct {
	Score       float64  `json:"score"`
	Confidence  float64  `json:"confidence"`
	Explanation string   `json:"explanation"`
	Indicators  []string `json:"indicators,omitempty"`
	ModelUsed   string   `json:"model_used"`
}

// DeviationType tags one kind of behavioral anomaly
type DeviationType string

const (
	DeviationVolumeSpike  DeviationType = "volume_spike"
	DeviationUnusualTime  DeviationType = "unusual_time"
	DeviationNewRecipient DeviationType = "new_recipient"
	DeviationSubject      DeviationType = "subject_anomaly"
)

// Deviation is one behavioral anomaly with its magnitude
type Deviation struct {
	Type      DeviationType `json:"type"`
	Magnitude float64       `json:"magnitude"`
	Detail    string        `json:"detail"`
}

// DeviationResult is the behavioral engine's check outcome
type DeviationResult struct {
	HasDeviation bool        `json:"has_deviation"`
	Deviations   []Deviation `json:"deviations"`
	Severity     Severity    `json:"severity"`
}
