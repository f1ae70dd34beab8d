// Package payments records settlement of contract payment functions.
// It only annotates the ledger; it never sends a chain transaction.
package payments

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/storage"
)

// EventPaymentRecorded is published after a settlement is persisted
const EventPaymentRecorded = "paymentRecorded"

// DefaultPayer is recorded when a request names no payer
const DefaultPayer = "User"

// Result messages
const (
	MessageRecorded        = "Payment recorded successfully"
	MessageAlreadyRecorded = "Payment already recorded"
	MessageAlreadyPaid     = "Payment function already settled by another transaction"
	MessageUnknownFunction = "Payment function not found on contract; nothing recorded"
)

// Publisher fans events out to live subscribers
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Request is a settlement to record
type Request struct {
	ContractAddress string
	FunctionName    string
	TransactionHash string
	// Amount is informational and only logged
	Amount string
	Payer  string
}

// Receipt reports what Record did
type Receipt struct {
	Applied bool
	Outcome storage.UpdateOutcome
	Message string
}

// Recorded is the payload of EventPaymentRecorded
type Recorded struct {
	ContractAddress string    `json:"contractAddress"`
	FunctionName    string    `json:"functionName"`
	TransactionHash string    `json:"transactionHash"`
	Payer           string    `json:"payer"`
	PaidAt          time.Time `json:"paidAt"`
}

// Config holds service options
type Config struct {
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
	Publisher Publisher
}

// Service records payments
type Service struct {
	store     storage.Storage
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

// NewService creates a payment service
func NewService(store storage.Storage, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		logger:    logger,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		now:       time.Now,
	}
}

// Record marks the named payment function paid. An unknown function name is
// not an error: the receipt reports Applied=false.
func (s *Service) Record(ctx context.Context, req Request) (*Receipt, error) {
	address := strings.TrimSpace(req.ContractAddress)
	txHash := strings.TrimSpace(req.TransactionHash)
	if address == "" {
		return nil, apperrors.New(apperrors.EValidation, "Contract address is required")
	}
	if strings.TrimSpace(req.FunctionName) == "" {
		return nil, apperrors.New(apperrors.EValidation, "Function name is required")
	}
	if txHash == "" {
		return nil, apperrors.New(apperrors.EValidation, "Transaction hash is required")
	}
	payer := strings.TrimSpace(req.Payer)
	if payer == "" {
		payer = DefaultPayer
	}

	update := models.PaymentUpdate{
		TransactionHash: txHash,
		Payer:           payer,
		PaidAt:          s.now().UTC(),
	}

	log := s.logger.With(
		zap.String("address", address),
		zap.String("function", req.FunctionName),
		zap.String("tx_hash", txHash),
	)

	outcome, err := s.store.UpdatePaymentFunction(ctx, address, req.FunctionName, update)
	if err != nil {
		s.record("error")
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.ENotFound, "Contract not found")
		}
		log.Error("Failed to record payment", zap.Error(err))
		return nil, apperrors.Wrap(apperrors.EPersistence, "Failed to record payment", err)
	}

	receipt := &Receipt{Outcome: outcome}
	switch outcome {
	case storage.Applied:
		receipt.Applied = true
		receipt.Message = MessageRecorded
		s.record("applied")
		log.Info("Payment recorded", zap.String("payer", payer), zap.String("amount", req.Amount))
		if s.publisher != nil {
			s.publisher.Publish(EventPaymentRecorded, Recorded{
				ContractAddress: address,
				FunctionName:    req.FunctionName,
				TransactionHash: txHash,
				Payer:           payer,
				PaidAt:          update.PaidAt,
			})
		}
	case storage.Unchanged:
		receipt.Message = MessageAlreadyRecorded
		s.record("unchanged")
		log.Debug("Payment already recorded")
	case storage.AlreadyPaid:
		receipt.Message = MessageAlreadyPaid
		s.record("ignored")
		log.Warn("Payment function already settled, keeping first settlement")
	default:
		receipt.Message = MessageUnknownFunction
		s.record("ignored")
		log.Warn("Payment function not found on contract")
	}
	return receipt, nil
}

func (s *Service) record(label string) {
	if s.metrics != nil {
		s.metrics.RecordPayment(label)
	}
}

// Summary is the outstanding-obligations report
type Summary struct {
	Obligations []models.Obligation `json:"obligations"`
	TotalWei    string              `json:"totalWei"`
	TotalEther  string              `json:"totalEther"`
	Count       int                 `json:"count"`
}

// Outstanding lists unpaid payment functions. A non-empty address limits the
// report to that contract, which must exist.
func (s *Service) Outstanding(ctx context.Context, address string) (*Summary, error) {
	var contracts []*models.Contract
	address = strings.TrimSpace(address)

	if address != "" {
		c, err := s.store.FindByAddress(ctx, address)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperrors.New(apperrors.ENotFound, "Contract not found")
		}
		if err != nil {
			return nil, apperrors.Wrap(apperrors.EPersistence, "Failed to read contract", err)
		}
		contracts = []*models.Contract{c}
	} else {
		all, err := s.store.List(ctx)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.EPersistence, "Failed to list contracts", err)
		}
		contracts = all
	}

	obligations, total := models.Outstanding(contracts)
	return summarize(obligations, total), nil
}

func summarize(obligations []models.Obligation, total *big.Int) *Summary {
	return &Summary{
		Obligations: obligations,
		TotalWei:    total.String(),
		TotalEther:  models.FormatEther(total),
		Count:       len(obligations),
	}
}
