// Package api serves the contract generation, deployment and payment
// services over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/api/graphql"
	"github.com/0xmhha/contractforge/pkg/api/middleware"
	"github.com/0xmhha/contractforge/pkg/api/websocket"
	"github.com/0xmhha/contractforge/pkg/deploy"
	"github.com/0xmhha/contractforge/pkg/generator"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/storage"
)

// Generator drafts contracts
type Generator interface {
	Generate(ctx context.Context, req generator.Request) (generator.Outcome, error)
}

// Deployer deploys drafts and lists the signers it can use
type Deployer interface {
	Deploy(ctx context.Context, req deploy.Request) (*deploy.Result, error)
	Accounts(ctx context.Context) ([]deploy.Account, error)
}

// Ledger records and reports payment settlements
type Ledger interface {
	Record(ctx context.Context, req payments.Request) (*payments.Receipt, error)
	Outstanding(ctx context.Context, address string) (*payments.Summary, error)
}

// Services are the dependencies the routes call
type Services struct {
	Store     storage.Storage
	Generator Generator
	Deployer  Deployer
	Payments  Ledger

	// Events receives the services' published events. When nil and
	// websockets are enabled the server creates its own.
	Events *websocket.Server

	Metrics *metrics.Metrics
	// Gatherer backs /metrics; nil means the default registry
	Gatherer prometheus.Gatherer
	Health   *HealthChecker
}

// Server is the HTTP API server
type Server struct {
	config     *Config
	services   Services
	logger     *zap.Logger
	router     *chi.Mux
	httpServer *http.Server
	wsServer   *websocket.Server
	limiter    *middleware.RateLimiter
	health     *HealthChecker
}

// NewServer creates a new API server
func NewServer(config *Config, services Services, logger *zap.Logger) (*Server, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if services.Store == nil || services.Generator == nil || services.Deployer == nil || services.Payments == nil {
		return nil, fmt.Errorf("store, generator, deployer and payments services are required")
	}

	s := &Server{
		config:   config,
		services: services,
		logger:   logger,
		router:   chi.NewRouter(),
		health:   services.Health,
	}
	if s.health == nil {
		s.health = NewHealthChecker("")
	}

	s.setupMiddleware()
	if err := s.setupRoutes(); err != nil {
		return nil, err
	}

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.router,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s, nil
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recovery(s.logger))
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.AccessLog(s.logger, s.services.Metrics))

	if s.config.EnableRateLimit {
		s.limiter = middleware.NewRateLimiter(s.config.RateLimitPerSecond, s.config.RateLimitBurst, s.logger)
		s.router.Use(s.limiter.Handler)
		s.logger.Info("rate limiting enabled",
			zap.Float64("requests_per_second", s.config.RateLimitPerSecond),
			zap.Int("burst", s.config.RateLimitBurst))
	}

	if s.config.EnableCORS {
		s.router.Use(middleware.CORS(s.config.AllowedOrigins))
	}
}

func (s *Server) setupRoutes() error {
	s.router.Get("/health", s.handleHealth)
	s.router.Get("/health/ready", s.handleReady)

	if s.config.EnableMetrics {
		gatherer := s.services.Gatherer
		if gatherer == nil {
			gatherer = prometheus.DefaultGatherer
		}
		s.router.Handle(s.config.MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/generate", s.handleGenerate)
		r.Post("/deploy", s.handleDeploy)
		r.Get("/deploy", s.handleListContracts)
		r.Get("/contracts", s.handleListContracts)
		r.Get("/contracts/{address}", s.handleGetContract)
		r.Post("/payments", s.handleRecordPayment)
		r.Get("/payments/outstanding", s.handleOutstanding)
		r.Get("/stats", s.handleStats)
		r.Get("/accounts", s.handleAccounts)
	})

	if s.config.EnableGraphQL {
		gql, err := graphql.NewHandler(s.services.Store, s.services.Payments, s.config.EnableGraphQLPlayground, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create GraphQL handler: %w", err)
		}
		s.router.Handle(s.config.GraphQLPath, gql)
		s.logger.Info("GraphQL API enabled", zap.String("path", s.config.GraphQLPath))
	}

	if s.config.EnableWebSocket {
		s.wsServer = s.services.Events
		if s.wsServer == nil {
			s.wsServer = websocket.NewServer(s.config.WebSocketMaxClients, nil, s.services.Metrics, s.logger)
		}
		s.router.Handle(s.config.WebSocketPath, s.wsServer)
		s.logger.Info("WebSocket API enabled", zap.String("path", s.config.WebSocketPath))
	}

	return nil
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("starting API server", zap.String("address", s.config.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping API server")

	if s.wsServer != nil {
		s.wsServer.Stop()
	}
	if s.limiter != nil {
		s.limiter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info("API server stopped")
	return nil
}

// Router returns the chi router (for testing)
func (s *Server) Router() *chi.Mux {
	return s.router
}
