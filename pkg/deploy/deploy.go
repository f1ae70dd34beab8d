// Package deploy records generated contracts against a development chain.
//
// No bytecode is compiled or executed. A deployment sends a 0-value
// transaction from a development signer and derives the contract address the
// way CREATE would from the sender and the transaction nonce.
package deploy

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/generator"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/storage"
)

// EventContractDeployed is published after a record is stored
const EventContractDeployed = "contractDeployed"

// Publisher fans events out to live subscribers
type Publisher interface {
	Publish(eventType string, data interface{})
}

// Request is a deployment request
type Request struct {
	ContractCode     string
	ContractName     string
	Goal             string
	PaymentFunctions []models.PaymentFunction
	// SignerIndex selects the development account; 0 is the first
	SignerIndex int
}

// Result is a successful deployment
type Result struct {
	Contract        *models.Contract
	TransactionHash string
	GasUsed         uint64
}

// Account is one selectable development signer
type Account struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
}

// Config holds service options
type Config struct {
	GasLimit      uint64
	DeployTimeout time.Duration
	Logger        *zap.Logger
	Metrics       *metrics.Metrics
	Publisher     Publisher
}

// Service performs deployments
type Service struct {
	chain     ChainClient
	signer    Signer
	store     storage.Storage
	gasLimit  uint64
	timeout   time.Duration
	logger    *zap.Logger
	metrics   *metrics.Metrics
	publisher Publisher
	now       func() time.Time
}

// NewService creates a deployment service
func NewService(chain ChainClient, signer Signer, store storage.Storage, cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gasLimit := cfg.GasLimit
	if gasLimit == 0 {
		gasLimit = constants.DefaultGasLimit
	}
	timeout := cfg.DeployTimeout
	if timeout <= 0 {
		timeout = constants.DefaultDeployTimeout
	}
	return &Service{
		chain:     chain,
		signer:    signer,
		store:     store,
		gasLimit:  gasLimit,
		timeout:   timeout,
		logger:    logger,
		metrics:   cfg.Metrics,
		publisher: cfg.Publisher,
		now:       time.Now,
	}
}

// Accounts lists the signers a request may select
func (s *Service) Accounts(ctx context.Context) ([]Account, error) {
	addrs, err := s.signer.Accounts(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.EChain, "Failed to list accounts", err)
	}
	out := make([]Account, len(addrs))
	for i, a := range addrs {
		out[i] = Account{Index: i, Address: a.Hex()}
	}
	return out, nil
}

// Deploy sends the deployment transaction, waits for one confirmation and
// appends the contract record. The store is untouched when the chain fails.
func (s *Service) Deploy(ctx context.Context, req Request) (*Result, error) {
	code := strings.TrimSpace(req.ContractCode)
	name := strings.TrimSpace(req.ContractName)
	if code == "" || name == "" {
		return nil, apperrors.New(apperrors.EValidation, "Contract code and name are required")
	}
	if req.SignerIndex < 0 {
		return nil, apperrors.New(apperrors.EValidation, "Signer index must not be negative")
	}
	name = generator.ContractName(req.ContractCode, name)

	start := time.Now()
	receipt, sent, err := s.send(ctx, req.SignerIndex)
	if err != nil {
		s.observe(err, 0, start)
		return nil, err
	}

	address := crypto.CreateAddress(sent.From, sent.Nonce)

	var chainID uint64
	if id, err := s.chain.ChainID(ctx); err != nil {
		s.logger.Warn("Could not read chain id for metadata", zap.Error(err))
	} else {
		chainID = id.Uint64()
	}

	goal := strings.TrimSpace(req.Goal)
	if goal == "" {
		goal = models.DefaultGoal
	}

	contract := &models.Contract{
		Name:       name,
		Goal:       goal,
		Address:    address.Hex(),
		Status:     models.StatusDeployed,
		DeployedAt: s.now().UTC(),
		GasUsed:    receipt.GasUsed,
		Value:      0,
		ABI:        append([]string(nil), models.DefaultABI...),
		Metadata: models.Metadata{
			PaymentFunctions: unpaid(req.PaymentFunctions),
			ContractCode:     req.ContractCode,
			TransactionHash:  sent.Hash.Hex(),
			Deployer:         sent.From.Hex(),
			ChainID:          chainID,
		},
	}

	if err := s.store.Append(ctx, contract); err != nil {
		s.observe(err, 0, start)
		s.logger.Error("Deployment succeeded on chain but the record was not saved",
			zap.String("address", contract.Address),
			zap.String("tx_hash", sent.Hash.Hex()),
			zap.Error(err),
		)
		if errors.Is(err, storage.ErrAlreadyExists) {
			return nil, apperrors.Final(apperrors.EConflict, "Contract address already recorded", err)
		}
		return nil, apperrors.Final(apperrors.EPersistence,
			"Deployment transaction "+sent.Hash.Hex()+" was mined but the contract was not saved", err)
	}

	s.observe(nil, receipt.GasUsed, start)
	s.logger.Info("Contract deployed",
		zap.Int64("id", contract.ID),
		zap.String("name", contract.Name),
		zap.String("address", contract.Address),
		zap.String("tx_hash", sent.Hash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.String("signer", s.signer.Kind()),
		zap.Int("signer_index", req.SignerIndex),
	)

	if s.publisher != nil {
		s.publisher.Publish(EventContractDeployed, contract.Clone())
	}

	return &Result{
		Contract:        contract,
		TransactionHash: sent.Hash.Hex(),
		GasUsed:         receipt.GasUsed,
	}, nil
}

// send submits the transaction and waits for a successful receipt within the deploy timeout
func (s *Service) send(ctx context.Context, index int) (*types.Receipt, *Sent, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sent, err := s.signer.Send(ctx, index, s.gasLimit)
	if err != nil {
		if errors.Is(err, ErrSignerIndex) {
			return nil, nil, apperrors.Wrap(apperrors.EValidation, "Unknown signer", err)
		}
		if errors.Is(err, ErrSubmitted) {
			return nil, nil, apperrors.Final(apperrors.EChain,
				"Deployment transaction was sent but could not be read back; check it before retrying", err)
		}
		return nil, nil, apperrors.Wrap(apperrors.EChain, "Failed to deploy contract", err)
	}

	receipt, err := s.chain.WaitForReceipt(ctx, sent.Hash)
	if err != nil {
		return nil, nil, apperrors.Final(apperrors.EChain,
			"Deployment transaction "+sent.Hash.Hex()+" was sent but not confirmed; check it before retrying", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, nil, apperrors.New(apperrors.EChain, "Deployment transaction "+sent.Hash.Hex()+" failed")
	}
	return receipt, sent, nil
}

func (s *Service) observe(err error, gasUsed uint64, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveDeployment(err, gasUsed, time.Since(start))
	}
}

// unpaid copies fns with settlement fields cleared
func unpaid(fns []models.PaymentFunction) []models.PaymentFunction {
	out := make([]models.PaymentFunction, 0, len(fns))
	for _, fn := range fns {
		out = append(out, models.PaymentFunction{
			Name:      fn.Name,
			Amount:    fn.Amount,
			Recipient: fn.Recipient,
		})
	}
	return out
}
