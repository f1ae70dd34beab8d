package constants

import "time"

// API Server Constants
const (
	// DefaultAPIHost is the default API server host
	DefaultAPIHost = "localhost"

	// DefaultAPIPort is the default API server port
	DefaultAPIPort = 3001

	// MinPort is the minimum valid port number
	MinPort = 1

	// MaxPort is the maximum valid port number
	MaxPort = 65535

	// DefaultReadTimeout is the default HTTP read timeout
	DefaultReadTimeout = 15 * time.Second

	// DefaultWriteTimeout is the default HTTP write timeout.
	// Generation and deployment requests block on external calls, so this
	// must exceed both the generator and deploy timeouts.
	DefaultWriteTimeout = 150 * time.Second

	// DefaultIdleTimeout is the default HTTP idle timeout
	DefaultIdleTimeout = 60 * time.Second

	// DefaultShutdownTimeout is the default graceful shutdown timeout
	DefaultShutdownTimeout = 30 * time.Second

	// DefaultMaxHeaderBytes is the default maximum request header size (1 MB)
	DefaultMaxHeaderBytes = 1 << 20

	// DefaultMaxBodyBytes caps JSON request bodies
	DefaultMaxBodyBytes = 2 << 20

	// DefaultRateLimitPerSecond is the default rate limit (requests per second)
	DefaultRateLimitPerSecond = 50

	// DefaultRateLimitBurst is the default rate limit burst size
	DefaultRateLimitBurst = 100
)

// API Paths
const (
	DefaultGraphQLPath   = "/graphql"
	DefaultWebSocketPath = "/ws"
	DefaultMetricsPath   = "/metrics"
)

// Chain Constants
const (
	// DefaultRPCEndpoint is the local development node endpoint
	DefaultRPCEndpoint = "http://127.0.0.1:8545"

	// DefaultRPCTimeout bounds a single JSON-RPC call
	DefaultRPCTimeout = 10 * time.Second

	// DefaultDeployTimeout bounds submission plus confirmation wait
	DefaultDeployTimeout = 60 * time.Second

	// DefaultReceiptPollInterval is how often a pending receipt is polled
	DefaultReceiptPollInterval = 250 * time.Millisecond

	// DefaultConfirmations is the number of blocks a deployment waits for
	DefaultConfirmations = 1

	// DefaultGasLimit is the gas limit for the bookkeeping transaction
	DefaultGasLimit = 21000

	// MaxDevSigners is the number of node-held accounts exposed to callers
	MaxDevSigners = 20
)

// Signer kinds
const (
	SignerNode = "node"
	SignerKey  = "key"
)

// Store Constants
const (
	StoreJSON     = "json"
	StorePebble   = "pebble"
	StorePostgres = "postgres"

	// DefaultStorePath is the default JSON document location
	DefaultStorePath = "data/contracts.json"

	// DefaultPebblePath is the default Pebble directory
	DefaultPebblePath = "data/contracts.db"

	// DefaultCacheSize is the default cache size in MB for PebbleDB
	DefaultCacheSize = 16
)

// Generator Constants
const (
	DefaultGeneratorModel       = "gpt-4"
	DefaultGeneratorTemperature = 0.7
	DefaultGeneratorMaxTokens   = 2000
	DefaultGeneratorTimeout     = 90 * time.Second
)

// Retry Constants
const (
	// DefaultMaxRetries is the default maximum number of retries for read-only chain queries
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the initial delay between retries
	DefaultRetryDelay = 200 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff
	DefaultMaxRetryDelay = 2 * time.Second
)

// WebSocket Constants
const (
	DefaultWSReadBufferSize  = 1024
	DefaultWSWriteBufferSize = 1024
	DefaultWSMaxClients      = 1000
)

// Webhook Constants
const (
	// DefaultWebhookTimeout bounds a single webhook POST
	DefaultWebhookTimeout = 10 * time.Second

	// DefaultWebhookQueueSize is the number of events buffered for delivery
	DefaultWebhookQueueSize = 256

	// DefaultWebhookSignatureHeader carries the HMAC-SHA256 of the body
	DefaultWebhookSignatureHeader = "X-Signature-256"
)
