package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mailsentry/")
	v.AddConfigPath("$HOME/.mailsentry")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("MAILSENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.tenant_id", "default")
	v.SetDefault("server.reject_on_block", true)
	v.SetDefault("server.relay_address", "127.0.0.1")
	v.SetDefault("server.relay_port", 10026)
	v.SetDefault("server.relay_enabled", true)
	v.SetDefault("server.analysis_window", "30s")
	v.SetDefault("server.headers.verdict", "X-Mailsentry-Verdict")
	v.SetDefault("server.headers.score", "X-Mailsentry-Score")
	v.SetDefault("server.headers.signals", "X-Mailsentry-Signals")

	// Classifier defaults
	v.SetDefault("classifier.known_senders_path", "")

	// DNS resolver defaults
	v.SetDefault("dns.timeout", "5s")
	v.SetDefault("dns.cache_size", 1000)
	v.SetDefault("dns.cache_ttl", "30m")
	v.SetDefault("dns.cache_enabled", true)

	// Baseline defaults
	v.SetDefault("baseline.store", "memory")
	v.SetDefault("baseline.sqlite_path", "/data/baselines.db")
	v.SetDefault("baseline.mysql_dsn", "user:password@tcp(localhost:3306)/mailsentry")
	v.SetDefault("baseline.redis_address", "localhost:6379")
	v.SetDefault("baseline.redis_password", "")
	v.SetDefault("baseline.redis_db", 0)
	v.SetDefault("baseline.ema_alpha", 0.3)
	v.SetDefault("baseline.max_samples", 90)
	v.SetDefault("baseline.max_recipients", 50)
	v.SetDefault("baseline.staleness_window", "720h")
	v.SetDefault("baseline.min_data_points", 5)
	v.SetDefault("baseline.min_established_recipients", 5)
	v.SetDefault("baseline.volume_zscore_threshold", 2.5)
	v.SetDefault("baseline.min_hour_probability", 0.02)
	v.SetDefault("baseline.bootstrap_mean_volume", 10)
	v.SetDefault("baseline.bootstrap_business_start", 8)
	v.SetDefault("baseline.bootstrap_business_end", 17)
	v.SetDefault("baseline.bootstrap_exit_points", 7)

	// Deep-analysis defaults
	v.SetDefault("deep_analysis.enabled", false)
	v.SetDefault("deep_analysis.provider", "bedrock")
	v.SetDefault("deep_analysis.timeout", "10s")
	v.SetDefault("deep_analysis.clear_pass_below", 10)
	v.SetDefault("deep_analysis.clear_block_above", 75)
	v.SetDefault("deep_analysis.min_confidence_to_skip", 0.6)
	v.SetDefault("deep_analysis.daily_budget", 200)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Aggregator defaults
	v.SetDefault("aggregator.amplification_factor", 1.2)
	v.SetDefault("aggregator.amplified_score_cap", 55)
	v.SetDefault("aggregator.vip_targeting_boost", 5)
	v.SetDefault("aggregator.suspicious_threshold", 25)
	v.SetDefault("aggregator.quarantine_threshold", 50)
	v.SetDefault("aggregator.block_threshold", 75)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
