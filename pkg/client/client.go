// Package client wraps the development chain's JSON-RPC endpoint.
package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/retry"
)

// Client wraps Ethereum JSON-RPC client with per-call timeouts and retried reads.
// Transaction submission is never retried.
type Client struct {
	ethClient     *ethclient.Client
	rpcClient     *rpc.Client
	endpoint      string
	timeout       time.Duration
	pollInterval  time.Duration
	confirmBlocks uint64
	retry         retry.Strategy
	logger        *zap.Logger
}

// Config holds client configuration
type Config struct {
	Endpoint string

	// Timeout bounds each individual RPC call
	Timeout time.Duration

	// PollInterval is the receipt polling period used by WaitForReceipt
	PollInterval time.Duration

	// Confirmations is how many blocks WaitForReceipt waits for, counting
	// the inclusion block. Zero and one both return at inclusion.
	Confirmations uint64

	// Retry is applied to read-only calls; nil means no retry
	Retry retry.Strategy

	Logger *zap.Logger
}

// TxArgs is the argument object of eth_sendTransaction
type TxArgs struct {
	From  common.Address
	To    *common.Address
	Value *big.Int
	Gas   uint64
	Data  []byte
}

// toRPC encodes the args with the hex quantities the node expects
func (a TxArgs) toRPC() map[string]interface{} {
	arg := map[string]interface{}{
		"from":  a.From,
		"input": hexutil.Bytes(a.Data),
	}
	if a.To != nil {
		arg["to"] = a.To
	}
	if a.Value != nil {
		arg["value"] = (*hexutil.Big)(a.Value)
	} else {
		arg["value"] = (*hexutil.Big)(new(big.Int))
	}
	if a.Gas != 0 {
		arg["gas"] = hexutil.Uint64(a.Gas)
	}
	return arg
}

// NewClient dials the endpoint and verifies it answers
func NewClient(cfg *Config) (*Client, error) {
	client, err := Dial(cfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping RPC endpoint: %w", err)
	}

	client.logger.Info("connected to Ethereum RPC",
		zap.String("endpoint", cfg.Endpoint))

	return client, nil
}

// Dial creates a client without contacting the node. Over HTTP no
// connection is made until the first call, so an unreachable node only
// fails the calls that need it.
func Dial(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	ctx := context.Background()
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}

	rpcClient, err := rpc.DialContext(ctx, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}

	return newClient(rpcClient, cfg), nil
}

func newClient(rpcClient *rpc.Client, cfg *Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	strategy := cfg.Retry
	if strategy == nil {
		strategy = retry.NoRetry{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = constants.DefaultRPCTimeout
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = constants.DefaultReceiptPollInterval
	}

	return &Client{
		ethClient:     ethclient.NewClient(rpcClient),
		rpcClient:     rpcClient,
		endpoint:      cfg.Endpoint,
		timeout:       timeout,
		pollInterval:  poll,
		confirmBlocks: cfg.Confirmations,
		retry:         strategy,
		logger:        logger,
	}
}

// Ping verifies the connection to the RPC endpoint
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.ethClient.ChainID(ctx)
	return err
}

// Close closes the client connection
func (c *Client) Close() {
	if c.ethClient != nil {
		c.ethClient.Close()
	}
}

// Endpoint returns the RPC URL the client talks to
func (c *Client) Endpoint() string {
	return c.endpoint
}

// call runs one RPC under the per-call timeout
func (c *Client) call(ctx context.Context, fn func(ctx context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fn(callCtx)
}

// read runs an idempotent RPC with retry; each attempt gets a fresh timeout
func (c *Client) read(ctx context.Context, fn func(ctx context.Context) error) error {
	return c.retry.Execute(ctx, func(ctx context.Context) error {
		return c.call(ctx, fn)
	})
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := c.read(ctx, func(ctx context.Context) (err error) {
		number, err = c.ethClient.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get block number: %w", err)
	}
	return number, nil
}

// Accounts returns the node-held accounts (eth_accounts)
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	err := c.read(ctx, func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, &accounts, "eth_accounts")
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

// ChainID returns the chain ID
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	var chainID *big.Int
	err := c.read(ctx, func(ctx context.Context) (err error) {
		chainID, err = c.ethClient.ChainID(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}
	return chainID, nil
}

// PendingNonceAt returns the next nonce for account, counting pending transactions
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	err := c.read(ctx, func(ctx context.Context) (err error) {
		nonce, err = c.ethClient.PendingNonceAt(ctx, account)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get nonce for %s: %w", account.Hex(), err)
	}
	return nonce, nil
}

// SuggestGasPrice returns the node's gas price suggestion
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := c.read(ctx, func(ctx context.Context) (err error) {
		price, err = c.ethClient.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// SendTransaction submits a locally signed transaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	err := c.call(ctx, func(ctx context.Context) error {
		return c.ethClient.SendTransaction(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}
	return nil
}

// SendUnsignedTransaction asks the node to sign and send with one of its
// unlocked accounts (eth_sendTransaction)
func (c *Client) SendUnsignedTransaction(ctx context.Context, args TxArgs) (common.Hash, error) {
	var hash common.Hash
	err := c.call(ctx, func(ctx context.Context) error {
		return c.rpcClient.CallContext(ctx, &hash, "eth_sendTransaction", args.toRPC())
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction from %s: %w", args.From.Hex(), err)
	}
	return hash, nil
}

// TransactionByHash fetches a transaction by its hash
func (c *Client) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	var (
		tx        *types.Transaction
		isPending bool
	)
	err := c.read(ctx, func(ctx context.Context) (err error) {
		tx, isPending, err = c.ethClient.TransactionByHash(ctx, hash)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
	}
	return tx, isPending, nil
}

// TransactionReceipt fetches a transaction receipt.
// The error wraps ethereum.NotFound while the transaction is unmined.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.read(ctx, func(ctx context.Context) (err error) {
		receipt, err = c.ethClient.TransactionReceipt(ctx, hash)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get receipt for %s: %w", hash.Hex(), err)
	}
	return receipt, nil
}

// WaitForReceipt polls until the transaction is mined and, when more than
// one confirmation is configured, until enough blocks follow it.
func (c *Client) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var receipt *types.Receipt
	for receipt == nil {
		r, err := c.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			receipt = r
			continue
		case !errors.Is(err, ethereum.NotFound):
			return nil, err
		}

		c.logger.Debug("receipt not yet available", zap.String("tx_hash", hash.Hex()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}

	if c.confirmBlocks <= 1 || receipt.BlockNumber == nil {
		return receipt, nil
	}

	target := receipt.BlockNumber.Uint64() + c.confirmBlocks - 1
	for {
		head, err := c.BlockNumber(ctx)
		if err != nil {
			return nil, err
		}
		if head >= target {
			return receipt, nil
		}

		c.logger.Debug("waiting for confirmations",
			zap.String("tx_hash", hash.Hex()),
			zap.Uint64("head", head),
			zap.Uint64("target", target))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %d confirmations of %s: %w", c.confirmBlocks, hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

// BalanceAt returns the balance of an account at a specific block number
// If blockNumber is nil, returns the balance at the latest block
func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	var balance *big.Int
	err := c.read(ctx, func(ctx context.Context) (err error) {
		balance, err = c.ethClient.BalanceAt(ctx, account, blockNumber)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s at block %v: %w", account.Hex(), blockNumber, err)
	}
	return balance, nil
}
