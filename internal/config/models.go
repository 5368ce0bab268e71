package config

import "time"

// ServerConfig represents the configuration for the SMTP proxy front end
type ServerConfig struct {
	ListenAddress  string
	TenantID       string
	RejectOnBlock  bool
	RelayAddress   string
	RelayPort      int
	RelayEnabled   bool
	AnalysisWindow time.Duration
	VerdictHeader  string
	ScoreHeader    string
	SignalsHeader  string
}

// DNSConfig represents the configuration for the caching DNS resolver
type DNSConfig struct {
	Timeout      time.Duration
	CacheSize    int
	CacheTTL     time.Duration
	CacheEnabled bool
}

// BaselineConfig represents the configuration for the behavioral
// baseline engine and its backing store
type BaselineConfig struct {
	Store                    string
	SQLitePath               string
	MySQLDSN                 string
	RedisAddress             string
	RedisPassword            string
	RedisDB                  int
	EMAAlpha                 float64
	MaxSamples               int
	MaxRecipients            int
	StalenessWindow          time.Duration
	MinDataPoints            int
	MinEstablishedRecipients int
	VolumeZScoreThreshold    float64
	MinHourProbability       float64
	BootstrapMeanVolume      float64
	BootstrapBusinessStart   int
	BootstrapBusinessEnd     int
	BootstrapExitPoints      int
}

// DeepAnalysisConfig represents the configuration for the deep-analysis gate
type DeepAnalysisConfig struct {
	Enabled             bool
	Provider            string
	Timeout             time.Duration
	ClearPassBelow      float64
	ClearBlockAbove     float64
	MinConfidenceToSkip float64
	DailyBudget         int
}

// AggregatorConfig represents the configuration for the score aggregator
type AggregatorConfig struct {
	AmplificationFactor float64
	AmplifiedScoreCap   float64
	VIPTargetingBoost   float64
	SuspiciousThreshold float64
	QuarantineThreshold float64
	BlockThreshold      float64
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GetServer returns the SMTP proxy configuration
func (c *Config) GetServer() ServerConfig {
	window, err := c.GetDuration("server.analysis_window")
	if err != nil {
		window = 30 * time.Second
	}
	return ServerConfig{
		ListenAddress:  c.GetString("server.listen_address"),
		TenantID:       c.GetString("server.tenant_id"),
		RejectOnBlock:  c.GetBool("server.reject_on_block"),
		RelayAddress:   c.GetString("server.relay_address"),
		RelayPort:      c.GetInt("server.relay_port"),
		RelayEnabled:   c.GetBool("server.relay_enabled"),
		AnalysisWindow: window,
		VerdictHeader:  c.GetString("server.headers.verdict"),
		ScoreHeader:    c.GetString("server.headers.score"),
		SignalsHeader:  c.GetString("server.headers.signals"),
	}
}

// GetDNS returns the DNS resolver configuration
func (c *Config) GetDNS() DNSConfig {
	timeout, err := c.GetDuration("dns.timeout")
	if err != nil {
		timeout = 5 * time.Second
	}
	ttl, err := c.GetDuration("dns.cache_ttl")
	if err != nil {
		ttl = 30 * time.Minute
	}
	return DNSConfig{
		Timeout:      timeout,
		CacheSize:    c.GetInt("dns.cache_size"),
		CacheTTL:     ttl,
		CacheEnabled: c.GetBool("dns.cache_enabled"),
	}
}

// GetBaseline returns the baseline engine configuration
func (c *Config) GetBaseline() BaselineConfig {
	staleness, err := c.GetDuration("baseline.staleness_window")
	if err != nil {
		staleness = 30 * 24 * time.Hour
	}
	return BaselineConfig{
		Store:                    c.GetString("baseline.store"),
		SQLitePath:               c.GetString("baseline.sqlite_path"),
		MySQLDSN:                 c.GetString("baseline.mysql_dsn"),
		RedisAddress:             c.GetString("baseline.redis_address"),
		RedisPassword:            c.GetString("baseline.redis_password"),
		RedisDB:                  c.GetInt("baseline.redis_db"),
		EMAAlpha:                 c.GetFloat64("baseline.ema_alpha"),
		MaxSamples:               c.GetInt("baseline.max_samples"),
		MaxRecipients:            c.GetInt("baseline.max_recipients"),
		StalenessWindow:          staleness,
		MinDataPoints:            c.GetInt("baseline.min_data_points"),
		MinEstablishedRecipients: c.GetInt("baseline.min_established_recipients"),
		VolumeZScoreThreshold:    c.GetFloat64("baseline.volume_zscore_threshold"),
		MinHourProbability:       c.GetFloat64("baseline.min_hour_probability"),
		BootstrapMeanVolume:      c.GetFloat64("baseline.bootstrap_mean_volume"),
		BootstrapBusinessStart:   c.GetInt("baseline.bootstrap_business_start"),
		BootstrapBusinessEnd:     c.GetInt("baseline.bootstrap_business_end"),
		BootstrapExitPoints:      c.GetInt("baseline.bootstrap_exit_points"),
	}
}

// GetDeepAnalysis returns the deep-analysis gate configuration
func (c *Config) GetDeepAnalysis() DeepAnalysisConfig {
	timeout, err := c.GetDuration("deep_analysis.timeout")
	if err != nil {
		timeout = 10 * time.Second
	}
	return DeepAnalysisConfig{
		Enabled:             c.GetBool("deep_analysis.enabled"),
		Provider:            c.GetString("deep_analysis.provider"),
		Timeout:             timeout,
		ClearPassBelow:      c.GetFloat64("deep_analysis.clear_pass_below"),
		ClearBlockAbove:     c.GetFloat64("deep_analysis.clear_block_above"),
		MinConfidenceToSkip: c.GetFloat64("deep_analysis.min_confidence_to_skip"),
		DailyBudget:         c.GetInt("deep_analysis.daily_budget"),
	}
}

// GetAggregator returns the score aggregator configuration
func (c *Config) GetAggregator() AggregatorConfig {
	return AggregatorConfig{
		AmplificationFactor: c.GetFloat64("aggregator.amplification_factor"),
		AmplifiedScoreCap:   c.GetFloat64("aggregator.amplified_score_cap"),
		VIPTargetingBoost:   c.GetFloat64("aggregator.vip_targeting_boost"),
		SuspiciousThreshold: c.GetFloat64("aggregator.suspicious_threshold"),
		QuarantineThreshold: c.GetFloat64("aggregator.quarantine_threshold"),
		BlockThreshold:      c.GetFloat64("aggregator.block_threshold"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}
