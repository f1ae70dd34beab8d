package deploy

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/client"
)

// ErrSignerIndex is returned when a request names a signer that does not exist
var ErrSignerIndex = errors.New("signer index out of range")

// ErrSubmitted marks a failure that happened after the node accepted the transaction
var ErrSubmitted = errors.New("transaction submitted")

// ChainClient is the subset of the RPC client used for deployments
type ChainClient interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	SendUnsignedTransaction(ctx context.Context, args client.TxArgs) (common.Hash, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	WaitForReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
}

// Sent identifies a submitted deployment transaction
type Sent struct {
	From  common.Address
	Hash  common.Hash
	Nonce uint64
}

// Signer submits the 0-value deployment transaction for a chosen account
type Signer interface {
	// Kind is "node" or "key"
	Kind() string
	// Accounts lists the addressable signers in index order
	Accounts(ctx context.Context) ([]common.Address, error)
	// Send submits a 0-value transaction to the zero address from account index
	Send(ctx context.Context, index int, gasLimit uint64) (*Sent, error)
}

func pick(accounts []common.Address, index int) (common.Address, error) {
	if index < 0 || index >= len(accounts) {
		return common.Address{}, fmt.Errorf("%w: %d of %d", ErrSignerIndex, index, len(accounts))
	}
	return accounts[index], nil
}

// NodeSigner uses accounts unlocked on the development node (eth_sendTransaction)
type NodeSigner struct {
	chain ChainClient
}

// NewNodeSigner returns a signer backed by node-held accounts
func NewNodeSigner(chain ChainClient) *NodeSigner {
	return &NodeSigner{chain: chain}
}

func (s *NodeSigner) Kind() string { return constants.SignerNode }

func (s *NodeSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	accounts, err := s.chain.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	if len(accounts) > constants.MaxDevSigners {
		accounts = accounts[:constants.MaxDevSigners]
	}
	return accounts, nil
}

func (s *NodeSigner) Send(ctx context.Context, index int, gasLimit uint64) (*Sent, error) {
	accounts, err := s.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	from, err := pick(accounts, index)
	if err != nil {
		return nil, err
	}

	to := common.Address{}
	hash, err := s.chain.SendUnsignedTransaction(ctx, client.TxArgs{
		From:  from,
		To:    &to,
		Value: new(big.Int),
		Gas:   gasLimit,
	})
	if err != nil {
		return nil, err
	}

	// The node assigns the nonce; read it back from the submitted transaction.
	tx, _, err := s.chain.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("%w as %s: %w", ErrSubmitted, hash.Hex(), err)
	}
	return &Sent{From: from, Hash: hash, Nonce: tx.Nonce()}, nil
}

// KeySigner signs locally with configured development private keys
type KeySigner struct {
	chain ChainClient
	keys  []*ecdsa.PrivateKey
	addrs []common.Address

	// mu keeps nonce assignment and submission atomic per process
	mu sync.Mutex
}

// NewKeySigner parses hex private keys, separated by commas
func NewKeySigner(chain ChainClient, hexKeys string) (*KeySigner, error) {
	s := &KeySigner{chain: chain}
	for _, raw := range strings.Split(hexKeys, ",") {
		raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
		if raw == "" {
			continue
		}
		key, err := crypto.HexToECDSA(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid private key #%d: %w", len(s.keys), err)
		}
		s.keys = append(s.keys, key)
		s.addrs = append(s.addrs, crypto.PubkeyToAddress(key.PublicKey))
	}
	if len(s.keys) == 0 {
		return nil, errors.New("no private keys configured")
	}
	if len(s.keys) > constants.MaxDevSigners {
		return nil, fmt.Errorf("at most %d private keys are supported", constants.MaxDevSigners)
	}
	return s, nil
}

func (s *KeySigner) Kind() string { return constants.SignerKey }

func (s *KeySigner) Accounts(ctx context.Context) ([]common.Address, error) {
	out := make([]common.Address, len(s.addrs))
	copy(out, s.addrs)
	return out, nil
}

func (s *KeySigner) Send(ctx context.Context, index int, gasLimit uint64) (*Sent, error) {
	from, err := pick(s.addrs, index)
	if err != nil {
		return nil, err
	}
	key := s.keys[index]

	chainID, err := s.chain.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	gasPrice, err := s.chain.SuggestGasPrice(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.chain.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, err
	}

	to := common.Address{}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    new(big.Int),
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	if err := s.chain.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return &Sent{From: from, Hash: signed.Hash(), Nonce: nonce}, nil
}
