package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/0xmhha/contractforge/internal/constants"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for contractforge
type Config struct {
	API       APIConfig       `yaml:"api"`
	Chain     ChainConfig     `yaml:"chain"`
	Store     StoreConfig     `yaml:"store"`
	Generator GeneratorConfig `yaml:"generator"`
	Log       LogConfig       `yaml:"log"`
	Retry     RetryConfig     `yaml:"retry"`
	Webhooks  WebhookConfig   `yaml:"webhooks"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableGraphQL      bool     `yaml:"enable_graphql"`
	GraphQLPlayground  bool     `yaml:"graphql_playground"`
	EnableWebSocket    bool     `yaml:"enable_websocket"`
	EnableMetrics      bool     `yaml:"enable_metrics"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// ChainConfig holds the development chain connection and signer settings
type ChainConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`

	// DeployTimeout bounds submission plus the confirmation wait.
	DeployTimeout time.Duration `yaml:"deploy_timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	Confirmations uint64        `yaml:"confirmations"`
	GasLimit      uint64        `yaml:"gas_limit"`

	// Signer is "node" for unlocked node accounts or "key" for a local dev key.
	Signer      string `yaml:"signer"`
	SignerIndex int    `yaml:"signer_index"`
	PrivateKey  string `yaml:"private_key"`
}

// SignerKind returns the configured signer, inferring "key" when only a private key is set.
func (c ChainConfig) SignerKind() string {
	if c.Signer != "" {
		return c.Signer
	}
	if c.PrivateKey != "" {
		return constants.SignerKey
	}
	return constants.SignerNode
}

// StoreConfig selects and configures the contract store backend
type StoreConfig struct {
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	PostgresURL string `yaml:"postgres_url"`
	// CacheSize in MB, pebble only
	CacheSize int `yaml:"cache_size"`
}

// ResolvedPath returns the configured path or the backend's default location.
func (s StoreConfig) ResolvedPath() string {
	if s.Path != "" {
		return s.Path
	}
	if s.Backend == constants.StorePebble {
		return constants.DefaultPebblePath
	}
	return constants.DefaultStorePath
}

// GeneratorConfig holds text-generation settings
type GeneratorConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float32       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// RetryConfig controls backoff for read-only chain queries
type RetryConfig struct {
	Enabled      bool          `yaml:"enabled"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// WebhookConfig lists endpoints that receive deployment and payment events.
// No URLs disables delivery.
type WebhookConfig struct {
	URLs      []string      `yaml:"urls"`
	Secret    string        `yaml:"secret"`
	Events    []string      `yaml:"events"`
	Timeout   time.Duration `yaml:"timeout"`
	QueueSize int           `yaml:"queue_size"`
}

// NewConfig creates a new configuration with default values
func NewConfig() *Config {
	cfg := &Config{
		API: APIConfig{
			EnableCORS:      true,
			EnableGraphQL:   true,
			EnableWebSocket: true,
			EnableMetrics:   true,
		},
		Retry: RetryConfig{Enabled: true},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	// API defaults
	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	// Chain defaults
	if c.Chain.Endpoint == "" {
		c.Chain.Endpoint = constants.DefaultRPCEndpoint
	}
	if c.Chain.Timeout == 0 {
		c.Chain.Timeout = constants.DefaultRPCTimeout
	}
	if c.Chain.DeployTimeout == 0 {
		c.Chain.DeployTimeout = constants.DefaultDeployTimeout
	}
	if c.Chain.PollInterval == 0 {
		c.Chain.PollInterval = constants.DefaultReceiptPollInterval
	}
	if c.Chain.Confirmations == 0 {
		c.Chain.Confirmations = constants.DefaultConfirmations
	}
	if c.Chain.GasLimit == 0 {
		c.Chain.GasLimit = constants.DefaultGasLimit
	}

	// Store defaults
	if c.Store.Backend == "" {
		c.Store.Backend = constants.StoreJSON
	}
	if c.Store.CacheSize == 0 {
		c.Store.CacheSize = constants.DefaultCacheSize
	}

	// Generator defaults
	if c.Generator.Model == "" {
		c.Generator.Model = constants.DefaultGeneratorModel
	}
	if c.Generator.Temperature == 0 {
		c.Generator.Temperature = constants.DefaultGeneratorTemperature
	}
	if c.Generator.MaxTokens == 0 {
		c.Generator.MaxTokens = constants.DefaultGeneratorMaxTokens
	}
	if c.Generator.Timeout == 0 {
		c.Generator.Timeout = constants.DefaultGeneratorTimeout
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	// Retry defaults
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = constants.DefaultMaxRetries
	}
	if c.Retry.InitialDelay == 0 {
		c.Retry.InitialDelay = constants.DefaultRetryDelay
	}
	if c.Retry.MaxDelay == 0 {
		c.Retry.MaxDelay = constants.DefaultMaxRetryDelay
	}

	// Webhook defaults
	if c.Webhooks.Timeout == 0 {
		c.Webhooks.Timeout = constants.DefaultWebhookTimeout
	}
	if c.Webhooks.QueueSize == 0 {
		c.Webhooks.QueueSize = constants.DefaultWebhookQueueSize
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	// API configuration. API_PORT is honoured for compatibility with existing .env files.
	if host := os.Getenv("CONTRACTFORGE_API_HOST"); host != "" {
		c.API.Host = host
	}
	for _, name := range []string{"API_PORT", "CONTRACTFORGE_API_PORT"} {
		if err := envInt(name, &c.API.Port); err != nil {
			return err
		}
	}
	if err := envBool("CONTRACTFORGE_API_CORS_ENABLED", &c.API.EnableCORS); err != nil {
		return err
	}
	if allowedOrigins := os.Getenv("CONTRACTFORGE_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		c.API.AllowedOrigins = splitList(allowedOrigins)
	}
	if err := envBool("CONTRACTFORGE_API_GRAPHQL", &c.API.EnableGraphQL); err != nil {
		return err
	}
	if err := envBool("CONTRACTFORGE_API_WEBSOCKET", &c.API.EnableWebSocket); err != nil {
		return err
	}
	if err := envBool("CONTRACTFORGE_API_METRICS", &c.API.EnableMetrics); err != nil {
		return err
	}
	if err := envBool("CONTRACTFORGE_API_RATE_LIMIT_ENABLED", &c.API.EnableRateLimit); err != nil {
		return err
	}

	// Chain configuration
	if endpoint := os.Getenv("CONTRACTFORGE_CHAIN_ENDPOINT"); endpoint != "" {
		c.Chain.Endpoint = endpoint
	}
	if err := envDuration("CONTRACTFORGE_CHAIN_TIMEOUT", &c.Chain.Timeout); err != nil {
		return err
	}
	if err := envDuration("CONTRACTFORGE_CHAIN_DEPLOY_TIMEOUT", &c.Chain.DeployTimeout); err != nil {
		return err
	}
	if err := envUint64("CONTRACTFORGE_CHAIN_CONFIRMATIONS", &c.Chain.Confirmations); err != nil {
		return err
	}
	if signer := os.Getenv("CONTRACTFORGE_CHAIN_SIGNER"); signer != "" {
		c.Chain.Signer = signer
	}
	if err := envInt("CONTRACTFORGE_CHAIN_SIGNER_INDEX", &c.Chain.SignerIndex); err != nil {
		return err
	}
	if key := os.Getenv("CONTRACTFORGE_CHAIN_PRIVATE_KEY"); key != "" {
		c.Chain.PrivateKey = key
	}

	// Store configuration
	if backend := os.Getenv("CONTRACTFORGE_STORE_BACKEND"); backend != "" {
		c.Store.Backend = backend
	}
	if path := os.Getenv("CONTRACTFORGE_STORE_PATH"); path != "" {
		c.Store.Path = path
	}
	for _, name := range []string{"DATABASE_URL", "CONTRACTFORGE_STORE_POSTGRES_URL"} {
		if dsn := os.Getenv(name); dsn != "" {
			c.Store.PostgresURL = dsn
		}
	}

	// Generator configuration. OPENAI_API_KEY is the conventional name.
	for _, name := range []string{"OPENAI_API_KEY", "CONTRACTFORGE_GENERATOR_API_KEY"} {
		if key := os.Getenv(name); key != "" {
			c.Generator.APIKey = key
		}
	}
	if baseURL := os.Getenv("CONTRACTFORGE_GENERATOR_BASE_URL"); baseURL != "" {
		c.Generator.BaseURL = baseURL
	}
	if model := os.Getenv("CONTRACTFORGE_GENERATOR_MODEL"); model != "" {
		c.Generator.Model = model
	}
	if err := envDuration("CONTRACTFORGE_GENERATOR_TIMEOUT", &c.Generator.Timeout); err != nil {
		return err
	}

	// Log configuration
	if level := os.Getenv("CONTRACTFORGE_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("CONTRACTFORGE_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	// Retry configuration
	if err := envBool("CONTRACTFORGE_RETRY_ENABLED", &c.Retry.Enabled); err != nil {
		return err
	}
	if err := envInt("CONTRACTFORGE_RETRY_MAX_RETRIES", &c.Retry.MaxRetries); err != nil {
		return err
	}

	// Webhook configuration
	if urls := os.Getenv("CONTRACTFORGE_WEBHOOK_URLS"); urls != "" {
		c.Webhooks.URLs = splitList(urls)
	}
	if secret := os.Getenv("CONTRACTFORGE_WEBHOOK_SECRET"); secret != "" {
		c.Webhooks.Secret = secret
	}

	return nil
}

func splitList(raw string) []string {
	out := make([]string, 0)
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

func envUint64(name string, dst *uint64) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = val
	return nil
}

func envInt(name string, dst *int) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = val
	return nil
}

func envBool(name string, dst *bool) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = val
	return nil
}

func envDuration(name string, dst *time.Duration) error {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	val, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = val
	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
// A missing generator API key is not an error here: generation reports it per request.
func (c *Config) Validate() error {
	// API configuration
	if c.API.Host == "" {
		return fmt.Errorf("API host is required")
	}
	if c.API.Port < constants.MinPort || c.API.Port > constants.MaxPort {
		return fmt.Errorf("API port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.API.EnableRateLimit && (c.API.RateLimitPerSecond <= 0 || c.API.RateLimitBurst <= 0) {
		return fmt.Errorf("rate limit and burst must be positive when rate limiting is enabled")
	}

	// Chain configuration
	if c.Chain.Endpoint == "" {
		return fmt.Errorf("chain endpoint is required")
	}
	if c.Chain.Timeout <= 0 {
		return fmt.Errorf("chain timeout must be positive")
	}
	if c.Chain.DeployTimeout <= 0 {
		return fmt.Errorf("chain deploy timeout must be positive")
	}
	if c.Chain.PollInterval <= 0 {
		return fmt.Errorf("chain poll interval must be positive")
	}
	if c.Chain.SignerIndex < 0 {
		return fmt.Errorf("signer index cannot be negative")
	}
	switch c.Chain.SignerKind() {
	case constants.SignerNode:
	case constants.SignerKey:
		if c.Chain.PrivateKey == "" {
			return fmt.Errorf("private key is required for signer %q", constants.SignerKey)
		}
	default:
		return fmt.Errorf("invalid signer %q, must be one of: node, key", c.Chain.SignerKind())
	}

	// Store configuration
	switch c.Store.Backend {
	case constants.StoreJSON, constants.StorePebble:
	case constants.StorePostgres:
		if c.Store.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for backend %q", c.Store.Backend)
		}
	default:
		return fmt.Errorf("invalid store backend %q, must be one of: json, pebble, postgres", c.Store.Backend)
	}

	// Generator configuration
	if c.Generator.Model == "" {
		return fmt.Errorf("generator model is required")
	}
	if c.Generator.Temperature < 0 || c.Generator.Temperature > 2 {
		return fmt.Errorf("generator temperature must be between 0 and 2")
	}
	if c.Generator.MaxTokens <= 0 {
		return fmt.Errorf("generator max tokens must be positive")
	}
	if c.Generator.Timeout <= 0 {
		return fmt.Errorf("generator timeout must be positive")
	}

	// Log configuration
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	// Retry configuration
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}

	// Webhook configuration
	for _, raw := range c.Webhooks.URLs {
		u, err := url.Parse(raw)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid webhook URL %q, must be an absolute http or https URL", raw)
		}
	}
	if c.Webhooks.Timeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive")
	}
	if c.Webhooks.QueueSize <= 0 {
		return fmt.Errorf("webhook queue size must be positive")
	}

	return nil
}

// Load loads configuration from file and environment variables
// Priority: environment variables > config file > defaults
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
