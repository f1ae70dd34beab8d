// Package generator drafts Solidity contracts from a natural-language goal.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
)

var contractNamePattern = regexp.MustCompile(`contract\s+(\w+)`)

// ErrEmptyCompletion is the cause reported when the provider answers with no text
var ErrEmptyCompletion = errors.New("empty completion")

// Request is a generation request
type Request struct {
	Goal    string
	Details string
}

// Config holds service options
type Config struct {
	// Timeout bounds one completion call; zero means no extra bound
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Service turns goals into drafts.
// A nil TextGenerator means no credential was configured.
type Service struct {
	gen     TextGenerator
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewService creates a generation service
func NewService(gen TextGenerator, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		gen:     gen,
		timeout: cfg.Timeout,
		logger:  logger,
		metrics: cfg.Metrics,
		now:     time.Now,
	}
}

// Configured reports whether a provider is available
func (s *Service) Configured() bool {
	return s.gen != nil
}

// Generate drafts a contract for req. An unparseable completion is not an
// error: it yields a RawFallback outcome. A blank completion is a provider
// failure, so every outcome carries non-empty contract code.
func (s *Service) Generate(ctx context.Context, req Request) (Outcome, error) {
	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		return nil, apperrors.New(apperrors.EValidation, "Goal is required")
	}
	if s.gen == nil {
		return nil, apperrors.New(apperrors.EConfig, "OpenAI API key not configured")
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.gen.Complete(ctx, systemPrompt, userPrompt(goal, strings.TrimSpace(req.Details)))
	if err != nil {
		s.observe("error", start)
		s.logger.Error("Generation failed", zap.Error(err))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, apperrors.Retryable(apperrors.EExternal, "Failed to generate contract", err)
		}
		return nil, apperrors.Wrap(apperrors.EExternal, "Failed to generate contract", err)
	}

	if strings.TrimSpace(text) == "" {
		s.observe("error", start)
		s.logger.Error("Generation returned no text")
		return nil, apperrors.Wrap(apperrors.EExternal, "Failed to generate contract", ErrEmptyCompletion)
	}

	draft, parseErr := parseDraft(text)
	if parseErr != nil {
		s.observe(SourceFallback, start)
		s.logger.Warn("Completion was not a usable JSON draft, using raw text",
			zap.Error(parseErr),
			zap.Int("length", len(text)),
		)
		return RawFallback{
			Text:   text,
			Reason: parseErr.Error(),
			Draft: Draft{
				ContractCode:     text,
				ContractName:     fmt.Sprintf("Contract_%d", s.now().UnixMilli()),
				Description:      goal,
				PaymentFunctions: []models.PaymentFunction{},
			},
		}, nil
	}

	if draft.ContractName == "" {
		draft.ContractName = ContractName(draft.ContractCode, fmt.Sprintf("Contract_%d", s.now().UnixMilli()))
	}

	s.observe(SourceStructured, start)
	s.logger.Info("Generated contract draft",
		zap.String("contract_name", draft.ContractName),
		zap.Int("payment_functions", len(draft.PaymentFunctions)),
	)
	return Structured{Draft: draft}, nil
}

func (s *Service) observe(label string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveGeneration(label, time.Since(start))
	}
}

// parseDraft decodes the span from the first '{' to the last '}' of text
func parseDraft(text string) (Draft, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return Draft{}, errors.New("no JSON found in response")
	}

	var draft Draft
	if err := json.Unmarshal([]byte(text[start:end+1]), &draft); err != nil {
		return Draft{}, fmt.Errorf("invalid JSON in response: %w", err)
	}
	if strings.TrimSpace(draft.ContractCode) == "" {
		return Draft{}, errors.New("response has no contractCode")
	}

	if draft.PaymentFunctions == nil {
		draft.PaymentFunctions = []models.PaymentFunction{}
	}
	for i := range draft.PaymentFunctions {
		// generated functions always start unpaid
		draft.PaymentFunctions[i].Paid = false
		draft.PaymentFunctions[i].TransactionHash = ""
		draft.PaymentFunctions[i].Payer = ""
		draft.PaymentFunctions[i].PaidAt = nil
	}
	return draft, nil
}

// ContractName returns the first `contract <Name>` declared in code, or fallback
func ContractName(code, fallback string) string {
	if m := contractNamePattern.FindStringSubmatch(code); m != nil {
		return m[1]
	}
	return fallback
}
