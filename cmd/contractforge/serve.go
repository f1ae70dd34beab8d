package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/config"
	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/internal/logger"
	"github.com/0xmhha/contractforge/pkg/api"
	"github.com/0xmhha/contractforge/pkg/api/websocket"
	"github.com/0xmhha/contractforge/pkg/client"
	"github.com/0xmhha/contractforge/pkg/deploy"
	"github.com/0xmhha/contractforge/pkg/generator"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/notifications"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/retry"
	"github.com/0xmhha/contractforge/pkg/storage"
)

func newServeCmd(opts *globalOpts) *cobra.Command {
	var (
		host     string
		port     int
		endpoint string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if host != "" {
				cfg.API.Host = host
			}
			if port > 0 {
				cfg.API.Port = port
			}
			if endpoint != "" {
				cfg.Chain.Endpoint = endpoint
			}

			log, err := logger.NewWithConfig(&logger.Config{
				Level:   cfg.Log.Level,
				Format:  cfg.Log.Format,
				Service: "contractforge",
			})
			if err != nil {
				return fmt.Errorf("failed to initialize logger: %w", err)
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return serve(ctx, cfg, log, prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "API server host")
	cmd.Flags().IntVar(&port, "port", 0, "API server port")
	cmd.Flags().StringVar(&endpoint, "rpc", "", "development chain RPC endpoint")
	return cmd
}

// serve wires every component and blocks until ctx is cancelled or the
// HTTP server fails. An unreachable chain node does not stop startup: only
// deployments and the readiness probe report it.
func serve(ctx context.Context, cfg *config.Config, log *zap.Logger, reg prometheus.Registerer, gatherer prometheus.Gatherer) error {
	log.Info("Starting contractforge",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.Chain.Endpoint),
		zap.String("store_backend", cfg.Store.Backend),
	)

	m := metrics.New(reg, "")

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	store = storage.WithMetrics(store, cfg.Store.Backend, m)
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close store", zap.Error(err))
		}
	}()

	chain, err := client.Dial(&client.Config{
		Endpoint:      cfg.Chain.Endpoint,
		Timeout:       cfg.Chain.Timeout,
		PollInterval:  cfg.Chain.PollInterval,
		Confirmations: cfg.Chain.Confirmations,
		Retry:         retryStrategy(cfg.Retry, log),
		Logger:        logger.WithComponent(log, "client"),
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}
	defer chain.Close()

	if chainID, err := chain.ChainID(ctx); err != nil {
		log.Warn("Chain node unavailable, deployments will fail until it answers",
			zap.String("rpc_endpoint", cfg.Chain.Endpoint),
			zap.Error(err))
	} else {
		log.Info("Connected to chain", zap.String("chain_id", chainID.String()))
	}

	signer, err := newSigner(cfg.Chain, chain)
	if err != nil {
		return err
	}

	apiCfg := apiConfig(cfg)
	events := websocket.NewServer(apiCfg.WebSocketMaxClients, originChecker(cfg.API.AllowedOrigins), m,
		logger.WithComponent(log, "websocket"))
	defer events.Stop()

	publisher, stopWebhooks, err := newPublisher(cfg, events, m, log)
	if err != nil {
		return err
	}
	defer stopWebhooks()

	gen, err := newTextGenerator(cfg.Generator)
	if err != nil {
		return err
	}
	if gen == nil {
		log.Warn("No generator API key configured, generation requests will fail")
	}

	health := api.NewHealthChecker(version)
	health.AddCheck("store", func(ctx context.Context) error {
		_, err := store.List(ctx)
		return err
	})
	health.AddCheck("chain", func(ctx context.Context) error {
		_, err := chain.BlockNumber(ctx)
		return err
	})

	services := api.Services{
		Store: store,
		Generator: generator.NewService(gen, generator.Config{
			Timeout: cfg.Generator.Timeout,
			Logger:  logger.WithComponent(log, "generator"),
			Metrics: m,
		}),
		Deployer: deploy.NewService(chain, signer, store, deploy.Config{
			GasLimit:      cfg.Chain.GasLimit,
			DeployTimeout: cfg.Chain.DeployTimeout,
			Logger:        logger.WithComponent(log, "deploy"),
			Metrics:       m,
			Publisher:     publisher,
		}),
		Payments: payments.NewService(store, payments.Config{
			Logger:    logger.WithComponent(log, "payments"),
			Metrics:   m,
			Publisher: publisher,
		}),
		Events:   events,
		Metrics:  m,
		Gatherer: gatherer,
		Health:   health,
	}

	server, err := api.NewServer(apiCfg, services, logger.WithComponent(log, "api"))
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Received shutdown signal")
	case err := <-errCh:
		if err != nil {
			log.Error("API server failed", zap.Error(err))
			return err
		}
	}

	log.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	log.Info("contractforge stopped")
	return nil
}

func retryStrategy(cfg config.RetryConfig, log *zap.Logger) retry.Strategy {
	return retry.NewStrategy(retry.Config{
		Enabled:      cfg.Enabled,
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
	}, logger.WithComponent(log, "retry"))
}

// openStore builds the configured backend
func openStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (storage.Storage, error) {
	store, err := storage.Open(ctx, &storage.Config{
		Backend:     cfg.Store.Backend,
		Path:        cfg.Store.ResolvedPath(),
		PostgresURL: cfg.Store.PostgresURL,
		CacheSize:   cfg.Store.CacheSize,
	}, logger.WithComponent(log, "storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func newSigner(cfg config.ChainConfig, chain deploy.ChainClient) (deploy.Signer, error) {
	if cfg.SignerKind() == constants.SignerKey {
		s, err := deploy.NewKeySigner(chain, cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load signer key: %w", err)
		}
		return s, nil
	}
	return deploy.NewNodeSigner(chain), nil
}

// newTextGenerator returns nil when no API key is configured
func newTextGenerator(cfg config.GeneratorConfig) (generator.TextGenerator, error) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	gen, err := generator.NewOpenAI(generator.OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create generator: %w", err)
	}
	return gen, nil
}

// newPublisher fans service events out to the websocket server and, when
// URLs are configured, the webhook notifier. The returned func drains
// pending webhook deliveries.
func newPublisher(cfg *config.Config, events *websocket.Server, m *metrics.Metrics, log *zap.Logger) (notifications.Publisher, func(), error) {
	if len(cfg.Webhooks.URLs) == 0 {
		return events, func() {}, nil
	}

	notifier, err := notifications.NewNotifier(notifications.Config{
		URLs:      cfg.Webhooks.URLs,
		Secret:    cfg.Webhooks.Secret,
		Events:    cfg.Webhooks.Events,
		Timeout:   cfg.Webhooks.Timeout,
		QueueSize: cfg.Webhooks.QueueSize,
		Retry:     retryStrategy(cfg.Retry, log),
		Metrics:   m,
		Logger:    logger.WithComponent(log, "notifications"),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create webhook notifier: %w", err)
	}
	log.Info("Webhook delivery enabled", zap.Int("endpoints", len(cfg.Webhooks.URLs)))

	stop := func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Webhooks.Timeout)
		defer cancel()
		if err := notifier.Stop(ctx); err != nil {
			log.Warn("Pending webhook deliveries abandoned", zap.Error(err))
		}
	}
	return notifications.Fanout(events, notifier), stop, nil
}

func apiConfig(cfg *config.Config) *api.Config {
	c := api.DefaultConfig()
	c.Host = cfg.API.Host
	c.Port = cfg.API.Port
	c.EnableCORS = cfg.API.EnableCORS
	c.AllowedOrigins = cfg.API.AllowedOrigins
	c.EnableGraphQL = cfg.API.EnableGraphQL
	c.EnableGraphQLPlayground = cfg.API.GraphQLPlayground
	c.EnableWebSocket = cfg.API.EnableWebSocket
	c.EnableMetrics = cfg.API.EnableMetrics
	c.EnableRateLimit = cfg.API.EnableRateLimit
	c.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	c.RateLimitBurst = cfg.API.RateLimitBurst
	c.DefaultSignerIndex = cfg.Chain.SignerIndex
	return c
}

// originChecker admits websocket upgrades from the configured origins
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return nil
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
