package testutil

import (
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/0xmhha/contractforge/pkg/models"
)

// NewTestLogger creates a logger that writes through t.Log
func NewTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	return zaptest.NewLogger(t, zaptest.Level(zap.WarnLevel))
}

// NewTestReceipt creates a test receipt for the given transaction hash
func NewTestReceipt(txHash common.Hash, blockNumber uint64, status uint64) *types.Receipt {
	return &types.Receipt{
		Type:              types.LegacyTxType,
		Status:            status,
		CumulativeGasUsed: 21000,
		BlockNumber:       big.NewInt(int64(blockNumber)),
		TxHash:            txHash,
		GasUsed:           21000,
		Logs:              []*types.Log{},
	}
}

// TestAddress returns a deterministic, distinct address for i
func TestAddress(i int) string {
	return common.BigToAddress(big.NewInt(int64(i) + 0x1000)).Hex()
}

// NewTestContract builds a deployed contract record with unpaid payment
// functions priced at 1 ether each
func NewTestContract(address string, functions ...string) *models.Contract {
	pfs := make([]models.PaymentFunction, 0, len(functions))
	for _, name := range functions {
		pfs = append(pfs, models.PaymentFunction{Name: name, Amount: "1.0 ether", Recipient: "owner"})
	}
	return &models.Contract{
		Name:       fmt.Sprintf("Contract%s", address[len(address)-4:]),
		Goal:       "test contract",
		Address:    address,
		Status:     models.StatusDeployed,
		DeployedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		GasUsed:    21000,
		ABI:        append([]string(nil), models.DefaultABI...),
		Metadata: models.Metadata{
			PaymentFunctions: pfs,
			ContractCode:     "contract Test {}",
		},
	}
}
