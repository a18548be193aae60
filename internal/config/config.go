package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// providerNames mirrors api.Providers; config sits below pkg/api in the
// import graph of the registry, so it keeps its own list.
var providerNames = []string{"openai", "anthropic", "google", "deepseek", "openrouter", "runpod"}

type Config struct {
	Server         ServerConfig              `mapstructure:"server"`
	Log            LogConfig                 `mapstructure:"log"`
	Database       DatabaseConfig            `mapstructure:"database"`
	Redis          RedisConfig               `mapstructure:"redis"`
	RateLimit      RateLimitConfig           `mapstructure:"rate_limit"`
	Tracing        TracingConfig             `mapstructure:"tracing"`
	Upstream       UpstreamConfig            `mapstructure:"upstream"`
	CircuitBreaker CircuitBreakerConfig      `mapstructure:"circuit_breaker"`
	Usage          UsageConfig               `mapstructure:"usage"`
	Providers      map[string]ProviderConfig `mapstructure:"providers"`
	Models         []ModelConfig             `mapstructure:"models"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	Env          string   `mapstructure:"env"`
	APIKeys      []string `mapstructure:"api_keys"`
	CheckUpdates bool     `mapstructure:"check_updates"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Color  bool   `mapstructure:"color"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type UpstreamConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type CircuitBreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	OpenTimeout      time.Duration `mapstructure:"open_timeout"`
	Interval         time.Duration `mapstructure:"interval"`
}

type UsageConfig struct {
	BufferSize    int           `mapstructure:"buffer_size"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// ProviderConfig holds the endpoint and process-wide default credential for
// one upstream. An api_key of the form "ENV:NAME" is read from $NAME.
type ProviderConfig struct {
	APIKey  string            `mapstructure:"api_key"`
	BaseURL string            `mapstructure:"base_url"`
	Headers map[string]string `mapstructure:"headers"`

	// google only: send system turns as systemInstruction instead of
	// relabelling them as model turns
	SystemInstruction bool `mapstructure:"system_instruction"`
}

// ModelConfig declares or overrides a registry entry. Prices are decimal
// strings so they survive YAML without float rounding.
type ModelConfig struct {
	Name               string `mapstructure:"name"`
	Provider           string `mapstructure:"provider"`
	InputCostPerToken  string `mapstructure:"input_cost_per_token"`
	OutputCostPerToken string `mapstructure:"output_cost_per_token"`
	MaxTokens          int    `mapstructure:"max_tokens"`
	ContextWindow      int    `mapstructure:"context_window"`
	SupportsStreaming  bool   `mapstructure:"supports_streaming"`
	SupportsFunctions  bool   `mapstructure:"supports_functions"`
}

// Provider returns the configuration for name, or the zero value.
func (c *Config) Provider(name string) ProviderConfig {
	return c.Providers[strings.ToLower(name)]
}

// LoadConfig reads configuration from file or environment variables.
// CONFIG_FILE selects an explicit file; otherwise config.yaml is searched in
// the usual places. Missing files are not an error.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	if file := os.Getenv("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// {PROVIDER}_API_KEY is the process-wide credential fallback
	for _, p := range providerNames {
		_ = v.BindEnv("providers."+p+".api_key", strings.ToUpper(p)+"_API_KEY")
		_ = v.BindEnv("providers."+p+".base_url", strings.ToUpper(p)+"_BASE_URL")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderConfig)
	}
	for name, p := range cfg.Providers {
		if strings.HasPrefix(p.APIKey, "ENV:") {
			p.APIKey = os.Getenv(strings.TrimPrefix(p.APIKey, "ENV:"))
			cfg.Providers[name] = p
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.check_updates", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.color", true)

	v.SetDefault("database.path", "file:llm-proxy.db?_journal_mode=WAL&_busy_timeout=5000")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "llm-proxy")

	v.SetDefault("upstream.timeout", "120s")

	v.SetDefault("circuit_breaker.enabled", false)
	v.SetDefault("circuit_breaker.failure_threshold", 5)
	v.SetDefault("circuit_breaker.open_timeout", "30s")
	v.SetDefault("circuit_breaker.interval", "60s")

	v.SetDefault("usage.buffer_size", 10000)
	v.SetDefault("usage.batch_size", 50)
	v.SetDefault("usage.flush_interval", "5s")
	v.SetDefault("usage.cache_ttl", "30s")
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server.port must be set")
	}
	if c.Upstream.Timeout <= 0 {
		return fmt.Errorf("upstream.timeout must be positive, got %s", c.Upstream.Timeout)
	}
	if c.Usage.BufferSize <= 0 || c.Usage.BatchSize <= 0 {
		return fmt.Errorf("usage.buffer_size and usage.batch_size must be positive")
	}
	if c.Usage.FlushInterval <= 0 {
		return fmt.Errorf("usage.flush_interval must be positive")
	}
	for name := range c.Providers {
		if !knownProvider(name) {
			return fmt.Errorf("providers.%s: unknown provider", name)
		}
	}
	return nil
}

func knownProvider(name string) bool {
	for _, p := range providerNames {
		if p == name {
			return true
		}
	}
	return false
}
