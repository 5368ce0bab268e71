package di

import (
	"flag"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mailsentry/internal/aggregate"
	"github.com/mikey/mailsentry/internal/auth"
	"github.com/mikey/mailsentry/internal/baseline"
	"github.com/mikey/mailsentry/internal/classify"
	"github.com/mikey/mailsentry/internal/config"
	"github.com/mikey/mailsentry/internal/core"
	"github.com/mikey/mailsentry/internal/adapters/baselinestore"
	"github.com/mikey/mailsentry/internal/adapters/dns"
	"github.com/mikey/mailsentry/internal/detect"
	"github.com/mikey/mailsentry/internal/logging"
	"github.com/mikey/mailsentry/internal/normalize"
)

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	InputFile    string
	TenantID     string
	KnownSenders string
	SkipAuth     bool
	Verbose      bool
	JSONLog      bool
	ConfigFile   string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	flag.StringVar(&flags.InputFile, "file", "", "Input email file (use stdin if not specified)")
	flag.StringVar(&flags.TenantID, "tenant", "default", "Tenant the message belongs to")
	flag.StringVar(&flags.KnownSenders, "known-senders", "", "Path to a known-sender registry YAML file")
	flag.BoolVar(&flags.SkipAuth, "skip-auth", false, "Skip DNS-based SPF/DKIM/DMARC evaluation")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&flags.JSONLog, "json-log", false, "Output logs in JSON format")
	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection
// container for one-shot CLI analysis: in-memory baseline store, no
// deep analysis, live DNS unless -skip-auth is given.
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.JSONLog)
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.New()
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
			return cfg, nil
		}
		return config.NewFromViper(config.NewEmptyViper()), nil
	}); err != nil {
		return nil, err
	}

	// Register authentication evaluator; -skip-auth leaves it nil and
	// the pipeline marks the layer skipped
	if err := container.Provide(func(flags *CLIFlags, cfg *config.Config, logger *zap.Logger) core.AuthEvaluator {
		if flags.SkipAuth {
			return nil
		}
		dnsCfg := cfg.GetDNS()
		resolver := dns.NewCachingResolver(dns.Config{
			Timeout:       dnsCfg.Timeout,
			CacheSize:     dnsCfg.CacheSize,
			CacheTTL:      dnsCfg.CacheTTL,
			EnableCaching: dnsCfg.CacheEnabled,
		}, logger)
		return auth.NewEvaluator(auth.NewRecordFetcher(resolver, logger), logger)
	}); err != nil {
		return nil, err
	}

	// Register classifier
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*classify.Registry, error) {
		if flags.KnownSenders != "" {
			return classify.NewRegistryFromFile(flags.KnownSenders, logger)
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

	// Register in-memory baseline machinery: a one-shot run has no
	// history, so first-contact semantics apply
	if err := container.Provide(func(logger *zap.Logger) core.BaselineStore {
		return baselinestore.NewMemoryStore(logger)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(store core.BaselineStore, cfg *config.Config, logger *zap.Logger) core.BehaviorEngine {
		return baseline.NewEngine(store, baselineConfig(cfg), logger)
	}); err != nil {
		return nil, err
	}

	// No deep analysis for CLI runs
	if err := container.Provide(func() core.AnalysisGate { return nil }); err != nil {
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

	// Register pipeline and normalizer
	if err := container.Provide(core.NewPipeline); err != nil {
		return nil, err
	}
	if err := container.Provide(normalize.NewNormalizer); err != nil {
		return nil, err
	}

	return container, nil
}
