package api

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/0xmhha/contractforge/internal/constants"
)

// Config holds API server configuration
type Config struct {
	// Host is the server host (default: localhost)
	Host string

	// Port is the server port (default: 3001)
	Port int

	// ReadTimeout is the maximum duration for reading the entire request
	ReadTimeout time.Duration

	// WriteTimeout must exceed the generation and deployment timeouts
	WriteTimeout time.Duration

	// IdleTimeout is the maximum duration to wait for the next request
	IdleTimeout time.Duration

	// MaxHeaderBytes is the maximum size of request headers
	MaxHeaderBytes int

	// MaxBodyBytes caps JSON request bodies
	MaxBodyBytes int64

	EnableCORS     bool
	AllowedOrigins []string

	EnableGraphQL           bool
	EnableGraphQLPlayground bool
	GraphQLPath             string

	EnableWebSocket     bool
	WebSocketPath       string
	WebSocketMaxClients int

	EnableMetrics bool
	MetricsPath   string

	// ShutdownTimeout is the graceful shutdown timeout
	ShutdownTimeout time.Duration

	EnableRateLimit    bool
	RateLimitPerSecond float64
	RateLimitBurst     int

	// DefaultSignerIndex is used by deploy requests that name no signer
	DefaultSignerIndex int
}

// DefaultConfig returns a default API server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:                constants.DefaultAPIHost,
		Port:                constants.DefaultAPIPort,
		ReadTimeout:         constants.DefaultReadTimeout,
		WriteTimeout:        constants.DefaultWriteTimeout,
		IdleTimeout:         constants.DefaultIdleTimeout,
		MaxHeaderBytes:      constants.DefaultMaxHeaderBytes,
		MaxBodyBytes:        constants.DefaultMaxBodyBytes,
		EnableCORS:          true,
		AllowedOrigins:      []string{"*"},
		EnableGraphQL:       true,
		GraphQLPath:         constants.DefaultGraphQLPath,
		EnableWebSocket:     true,
		WebSocketPath:       constants.DefaultWebSocketPath,
		WebSocketMaxClients: constants.DefaultWSMaxClients,
		EnableMetrics:       true,
		MetricsPath:         constants.DefaultMetricsPath,
		ShutdownTimeout:     constants.DefaultShutdownTimeout,
		EnableRateLimit:     false,
		RateLimitPerSecond:  constants.DefaultRateLimitPerSecond,
		RateLimitBurst:      constants.DefaultRateLimitBurst,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Host == "" {
		return errors.New("host cannot be empty")
	}
	if c.Port < constants.MinPort || c.Port > constants.MaxPort {
		return fmt.Errorf("port must be between %d and %d", constants.MinPort, constants.MaxPort)
	}
	if c.ReadTimeout <= 0 {
		return errors.New("read timeout must be positive")
	}
	if c.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New("idle timeout must be positive")
	}
	if c.MaxHeaderBytes <= 0 {
		return errors.New("max header bytes must be positive")
	}
	if c.MaxBodyBytes <= 0 {
		return errors.New("max body bytes must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.DefaultSignerIndex < 0 {
		return errors.New("default signer index cannot be negative")
	}
	if c.EnableRateLimit && (c.RateLimitPerSecond <= 0 || c.RateLimitBurst <= 0) {
		return errors.New("rate limit and burst must be positive when rate limiting is enabled")
	}
	return nil
}

// Address returns the server address in host:port format
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
