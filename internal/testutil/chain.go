package testutil

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/0xmhha/contractforge/pkg/client"
)

// FakeChainID is the chain id reported by FakeChain
const FakeChainID = 1337

// FakeChain is an in-memory development node. Every accepted transaction is
// mined immediately with the configured receipt status and gas.
type FakeChain struct {
	mu       sync.Mutex
	accounts []common.Address
	nonces   map[common.Address]uint64
	txs      map[common.Hash]*types.Transaction
	receipts map[common.Hash]*types.Receipt
	sent     int

	// Status is the receipt status of mined transactions
	Status uint64
	// GasUsed is reported by every receipt
	GasUsed uint64
	// SendErr, when set, fails every submission
	SendErr error
	// StallReceipts makes WaitForReceipt block until its context ends
	StallReceipts bool
}

// NewFakeChain returns a chain whose node holds accounts
func NewFakeChain(accounts ...common.Address) *FakeChain {
	return &FakeChain{
		accounts: accounts,
		nonces:   make(map[common.Address]uint64),
		txs:      make(map[common.Hash]*types.Transaction),
		receipts: make(map[common.Hash]*types.Receipt),
		Status:   types.ReceiptStatusSuccessful,
		GasUsed:  21000,
	}
}

// SetNonce sets the next nonce of account
func (f *FakeChain) SetNonce(account common.Address, nonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nonces[account] = nonce
}

// Nonce returns the next nonce of account
func (f *FakeChain) Nonce(account common.Address) uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.nonces[account]
}

// Sent returns how many transactions were accepted
func (f *FakeChain) Sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

func (f *FakeChain) Accounts(ctx context.Context) ([]common.Address, error) {
	return f.accounts, nil
}

func (f *FakeChain) ChainID(ctx context.Context) (*big.Int, error) {
	return big.NewInt(FakeChainID), nil
}

func (f *FakeChain) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return f.Nonce(account), nil
}

func (f *FakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

// mine must be called with mu held
func (f *FakeChain) mine(from common.Address, tx *types.Transaction) {
	f.nonces[from]++
	f.txs[tx.Hash()] = tx
	f.receipts[tx.Hash()] = &types.Receipt{
		Status:      f.Status,
		GasUsed:     f.GasUsed,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(f.sent + 1)),
	}
	f.sent++
}

func (f *FakeChain) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(FakeChainID)), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != f.nonces[from] {
		return errors.New("nonce too low")
	}
	f.mine(from, tx)
	return nil
}

func (f *FakeChain) SendUnsignedTransaction(ctx context.Context, args client.TxArgs) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return common.Hash{}, f.SendErr
	}
	known := false
	for _, a := range f.accounts {
		if a == args.From {
			known = true
			break
		}
	}
	if !known {
		return common.Hash{}, errors.New("unknown account")
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce: f.nonces[args.From],
		To:    args.To,
		Value: args.Value,
		Gas:   args.Gas,
		// sender bytes keep hashes distinct across accounts
		Data: append(args.From.Bytes(), args.Data...),
	})
	f.mine(args.From, tx)
	return tx.Hash(), nil
}

func (f *FakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, false, ethereum.NotFound
	}
	return tx, false, nil
}

func (f *FakeChain) WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	r, ok := f.receipts[hash]
	stall := f.StallReceipts
	f.mu.Unlock()

	if stall {
		<-ctx.Done()
		return nil, fmt.Errorf("waiting for receipt %s: %w", hash.Hex(), ctx.Err())
	}
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}
