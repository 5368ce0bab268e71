package baseline

import (
	"context"
	"fmt"
	"time"

	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// Config tunes the behavioral baseline engine
type Config struct {
	// EMAAlpha is the exponential moving average smoothing factor;
	// higher values weight recent observations more heavily
	EMAAlpha float64

	// MaxSamples bounds the raw sample window for mean/stddev
	MaxSamples int

	// MaxRecipients bounds the per-sender recipient frequency map
	MaxRecipients int

	// StalenessWindow marks a profile stale once no traffic is seen
	// for this long
	StalenessWindow time.Duration

	// MinDataPoints gates deviation checks until the profile has
	// enough history to compare against
	MinDataPoints int

	// MinEstablishedRecipients gates new-recipient checks
	MinEstablishedRecipients int

	// VolumeZScoreThreshold is the z-score above which a daily count
	// is a spike
	VolumeZScoreThreshold float64

	// MinHourProbability is the hour-distribution probability below
	// which a send time is unusual
	MinHourProbability float64

	// BootstrapMeanVolume seeds cold-start baselines from tenant-wide
	// defaults; zero disables bootstrapping
	BootstrapMeanVolume float64

	// BootstrapBusinessHours are the org-default active hours used to
	// seed the hour distribution on cold start
	BootstrapBusinessHours []int

	// BootstrapExitPoints is how many user-specific observations it
	// takes before the profile stops being marked bootstrapped
	BootstrapExitPoints int
}

// DefaultConfig returns the standard engine tuning
func DefaultConfig() Config {
	return Config{
		EMAAlpha:                 0.3,
		MaxSamples:               90,
		MaxRecipients:            50,
		StalenessWindow:          30 * 24 * time.Hour,
		MinDataPoints:            5,
		MinEstablishedRecipients: 5,
		VolumeZScoreThreshold:    2.5,
		MinHourProbability:       0.02,
		BootstrapMeanVolume:      10,
		BootstrapBusinessHours:   []int{8, 9, 10, 11, 12, 13, 14, 15, 16, 17},
		BootstrapExitPoints:      7,
	}
}

// Engine maintains per-(tenant, sender) behavioral profiles and checks
// incoming messages against them. All mutation goes through the store,
// which serializes read-merge-write per key.
type Engine struct {
	store  core.BaselineStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
}

// NewEngine creates a new behavioral baseline engine
func NewEngine(store core.BaselineStore, cfg Config, logger *zap.Logger) *Engine {
	return &Engine{
		store:  store,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// RecordObservation folds one message into the sender's baseline,
// creating a bootstrapped profile on first contact
func (e *Engine) RecordObservation(ctx context.Context, tenantID, senderEmail string, obs core.Observation) error {
	now := e.now().UTC()
	seed := e.bootstrap(tenantID, senderEmail, now)

	err := e.store.Update(ctx, tenantID, senderEmail, seed, func(b *core.UserBaseline) {
		e.merge(b, obs, now)
	})
	if err != nil {
		return fmt.Errorf("failed to update baseline for %s: %w", senderEmail, err)
	}
	return nil
}

// merge applies one observation to a baseline in place
func (e *Engine) merge(b *core.UserBaseline, obs core.Observation, now time.Time) {
	if b.RecipientFrequency == nil {
		b.RecipientFrequency = make(map[string]int)
	}

	if obs.DailyCount > 0 {
		updateVolume(&b.DailySendVolume, float64(obs.DailyCount), e.cfg.EMAAlpha, e.cfg.MaxSamples)
	}
	if !obs.SentAt.IsZero() {
		recordSendHour(&b.SendTime, obs.SentAt.UTC().Hour())
	}
	recordRecipients(b.RecipientFrequency, obs.Recipients, e.cfg.MaxRecipients)
	if obs.Subject != "" {
		recordSubject(&b.SubjectPatterns, obs.Subject)
	}

	if b.IsBootstrapped && b.DailySendVolume.DataPoints >= e.cfg.BootstrapExitPoints {
		b.IsBootstrapped = false
		e.logger.Debug("Baseline graduated from bootstrap",
			zap.String("tenant_id", b.TenantID),
			zap.String("sender", b.SenderEmail),
			zap.Int("data_points", b.DailySendVolume.DataPoints))
	}

	recomputeConfidence(b, now, e.cfg.StalenessWindow)
	b.LastUpdated = now
}

// bootstrap builds the seed profile used when no baseline exists yet.
// With org defaults configured the seed carries tenant-wide expectations
// whose influence washes out as user-specific data accumulates.
func (e *Engine) bootstrap(tenantID, senderEmail string, now time.Time) *core.UserBaseline {
	b := &core.UserBaseline{
		TenantID:           tenantID,
		SenderEmail:        senderEmail,
		RecipientFrequency: make(map[string]int),
		DataRecency:        core.RecencyFresh,
		FirstSeen:          now,
		LastUpdated:        now,
	}
	if e.cfg.BootstrapMeanVolume > 0 {
		b.IsBootstrapped = true
		b.DailySendVolume.SeedMean = e.cfg.BootstrapMeanVolume
		b.DailySendVolume.EMA = e.cfg.BootstrapMeanVolume
		b.DailySendVolume.Mean = e.cfg.BootstrapMeanVolume
		for _, h := range e.cfg.BootstrapBusinessHours {
			recordSendHour(&b.SendTime, h)
		}
	}
	return b
}
