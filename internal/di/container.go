package di

import (
	"context"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailsentry/internal/adapters/dns"
	"github.com/mikey/mailsentry/internal/adapters/smtpproxy"
	"github.com/mikey/mailsentry/internal/aggregate"
	"github.com/mikey/mailsentry/internal/auth"
	"github.com/mikey/mailsentry/internal/baseline"
	"github.com/mikey/mailsentry/internal/classify"
	"github.com/mikey/mailsentry/internal/config"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/deepanalysis"
	"github.com/mikey/mailsentry/internal/detect"
	"github.com/mikey/mailsentry/internal/factory"
	"github.com/mikey/mailsentry/internal/logging"
	"github.com/mikey/mailsentry/internal/normalize"
	"github.com/mikey/mailsentry/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}

	// Register DNS resolver
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.DNSResolver {
		dnsCfg := cfg.GetDNS()
		return dns.NewCachingResolver(dns.Config{
			Timeout:       dnsCfg.Timeout,
			CacheSize:     dnsCfg.CacheSize,
			CacheTTL:      dnsCfg.CacheTTL,
			EnableCaching: dnsCfg.CacheEnabled,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register authentication evaluator
	if err := container.Provide(auth.NewRecordFetcher); err != nil {
		return nil, err
	}
	if err := container.Provide(func(fetcher *auth.RecordFetcher, logger *zap.Logger) core.AuthEvaluator {
		return auth.NewEvaluator(fetcher, logger)
	}); err != nil {
		return nil, err
	}

	// Register classifier with its known-sender registry
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (*classify.Registry, error) {
		if path := cfg.GetString("classifier.known_senders_path"); path != "" {
			return classify.NewRegistryFromFile(path, logger)
		}
		return classify.NewRegistry(logger), nil
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(registry *classify.Registry, logger *zap.Logger) core.Classifier {
		return classify.NewClassifier(registry, logger)
	}); err != nil {
		return nil, err
	}

	// Register deterministic detectors
	if err := container.Provide(detect.Detectors); err != nil {
		return nil, err
	}

	// Register baseline store and engine
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) (core.BaselineStore, error) {
		return f.CreateBaselineStore()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store core.BaselineStore, cfg *config.Config, logger *zap.Logger) core.BehaviorEngine {
		return baseline.NewEngine(store, baselineConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}

	// Register deep-analysis gate
	if err := container.Provide(factory.NewAnalyzerFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.AnalyzerFactory) (core.DeepAnalyzer, error) {
		return f.CreateAnalyzer(context.Background())
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(analyzer core.DeepAnalyzer, cfg *config.Config, logger *zap.Logger) core.AnalysisGate {
		daCfg := cfg.GetDeepAnalysis()
		budget := deepanalysis.NewBudget(daCfg.DailyBudget)
		return deepanalysis.NewGate(analyzer, budget, deepanalysis.Config{
			Enabled:             daCfg.Enabled,
			Timeout:             daCfg.Timeout,
			ClearPassBelow:      daCfg.ClearPassBelow,
			ClearBlockAbove:     daCfg.ClearBlockAbove,
			MinConfidenceToSkip: daCfg.MinConfidenceToSkip,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register aggregator
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) core.Aggregator {
		aggCfg := cfg.GetAggregator()
		return aggregate.NewAggregator(aggregate.Config{
			AmplificationFactor: aggCfg.AmplificationFactor,
			AmplifiedScoreCap:   aggCfg.AmplifiedScoreCap,
			VIPTargetingBoost:   aggCfg.VIPTargetingBoost,
			SuspiciousThreshold: aggCfg.SuspiciousThreshold,
			QuarantineThreshold: aggCfg.QuarantineThreshold,
			BlockThreshold:      aggCfg.BlockThreshold,
		}, logger)
	}); err != nil {
		return nil, err
	}

	// Register pipeline
	if err := container.Provide(core.NewPipeline); err != nil {
		return nil, err
	}

	// Register normalizer
	if err := container.Provide(normalize.NewNormalizer); err != nil {
		return nil, err
	}

	// Register SMTP proxy
	if err := container.Provide(func(pipeline *core.Pipeline, normalizer *normalize.Normalizer, cfg *config.Config, logger *zap.Logger) *smtpproxy.Proxy {
		srvCfg := cfg.GetServer()
		return smtpproxy.NewProxy(pipeline, normalizer, smtpproxy.Config{
			ListenAddr:     srvCfg.ListenAddress,
			TenantID:       srvCfg.TenantID,
			RejectOnBlock:  srvCfg.RejectOnBlock,
			RelayAddr:      srvCfg.RelayAddress,
			RelayPort:      srvCfg.RelayPort,
			RelayEnabled:   srvCfg.RelayEnabled,
			AnalysisWindow: srvCfg.AnalysisWindow,
			VerdictHeader:  srvCfg.VerdictHeader,
			ScoreHeader:    srvCfg.ScoreHeader,
			SignalsHeader:  srvCfg.SignalsHeader,
		}, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// baselineConfig maps the application configuration onto the engine's
// tuning knobs
func baselineConfig(cfg *config.Config) baseline.Config {
	blCfg := cfg.GetBaseline()
	out := baseline.Config{
		EMAAlpha:                 blCfg.EMAAlpha,
		MaxSamples:               blCfg.MaxSamples,
		MaxRecipients:            blCfg.MaxRecipients,
		StalenessWindow:          blCfg.StalenessWindow,
		MinDataPoints:            blCfg.MinDataPoints,
		MinEstablishedRecipients: blCfg.MinEstablishedRecipients,
		VolumeZScoreThreshold:    blCfg.VolumeZScoreThreshold,
		MinHourProbability:       blCfg.MinHourProbability,
		BootstrapMeanVolume:      blCfg.BootstrapMeanVolume,
		BootstrapExitPoints:      blCfg.BootstrapExitPoints,
	}
	for h := blCfg.BootstrapBusinessStart; h <= blCfg.BootstrapBusinessEnd && h >= 0 && h < 24; h++ {
		out.BootstrapBusinessHours = append(out.BootstrapBusinessHours, h)
	}
	return out
}
