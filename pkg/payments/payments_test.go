package payments

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/storage"
)

const escrowAddr = "0x1111111111111111111111111111111111111111"

type recordingPublisher struct {
	events []string
	data   []interface{}
}

func (p *recordingPublisher) Publish(eventType string, data interface{}) {
	p.events = append(p.events, eventType)
	p.data = append(p.data, data)
}

func seededService(t *testing.T) (*Service, storage.Storage, *recordingPublisher) {
	t.Helper()
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Append(context.Background(), &models.Contract{
		Name:    "Escrow",
		Address: escrowAddr,
		Status:  models.StatusDeployed,
		Metadata: models.Metadata{PaymentFunctions: []models.PaymentFunction{
			{Name: "release", Amount: "1.0 ether", Recipient: "contractor"},
			{Name: "tip", Amount: "500 gwei", Recipient: "dev"},
		}},
	}))
	pub := &recordingPublisher{}
	svc := NewService(store, Config{Metrics: metrics.NewNop(), Publisher: pub})
	svc.now = func() time.Time { return time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC) }
	return svc, store, pub
}

func TestRecord_Applies(t *testing.T) {
	svc, store, pub := seededService(t)

	receipt, err := svc.Record(context.Background(), Request{
		ContractAddress: escrowAddr,
		FunctionName:    "release",
		TransactionHash: "0xabc",
		Amount:          "1.0 ether",
	})
	require.NoError(t, err)
	assert.True(t, receipt.Applied)
	assert.Equal(t, MessageRecorded, receipt.Message)

	c, err := store.FindByAddress(context.Background(), escrowAddr)
	require.NoError(t, err)
	pf, _ := c.FindPaymentFunction("release")
	assert.True(t, pf.Paid)
	assert.Equal(t, "0xabc", pf.TransactionHash)
	assert.Equal(t, DefaultPayer, pf.Payer)
	require.NotNil(t, pf.PaidAt)
	assert.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), *pf.PaidAt)

	require.Equal(t, []string{EventPaymentRecorded}, pub.events)
	assert.Equal(t, "release", pub.data[0].(Recorded).FunctionName)
}

func TestRecord_IdempotentForSameHash(t *testing.T) {
	svc, store, pub := seededService(t)
	req := Request{ContractAddress: escrowAddr, FunctionName: "release", TransactionHash: "0xabc", Payer: "alice"}

	_, err := svc.Record(context.Background(), req)
	require.NoError(t, err)
	before, _ := store.FindByAddress(context.Background(), escrowAddr)

	svc.now = func() time.Time { return time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) }
	receipt, err := svc.Record(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, receipt.Applied)
	assert.Equal(t, storage.Unchanged, receipt.Outcome)
	assert.Equal(t, MessageAlreadyRecorded, receipt.Message)

	after, _ := store.FindByAddress(context.Background(), escrowAddr)
	assert.Equal(t, before.Metadata.PaymentFunctions, after.Metadata.PaymentFunctions)
	assert.Len(t, pub.events, 1)
}

func TestRecord_SecondHashKeepsFirstSettlement(t *testing.T) {
	svc, store, _ := seededService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, Request{ContractAddress: escrowAddr, FunctionName: "release", TransactionHash: "0xabc"})
	require.NoError(t, err)

	receipt, err := svc.Record(ctx, Request{ContractAddress: escrowAddr, FunctionName: "release", TransactionHash: "0xdef"})
	require.NoError(t, err)
	assert.False(t, receipt.Applied)
	assert.Equal(t, storage.AlreadyPaid, receipt.Outcome)

	c, _ := store.FindByAddress(ctx, escrowAddr)
	pf, _ := c.FindPaymentFunction("release")
	assert.Equal(t, "0xabc", pf.TransactionHash)
}

func TestRecord_UnknownFunctionSoftFails(t *testing.T) {
	svc, _, pub := seededService(t)

	receipt, err := svc.Record(context.Background(), Request{
		ContractAddress: escrowAddr, FunctionName: "refund", TransactionHash: "0xabc",
	})
	require.NoError(t, err)
	assert.False(t, receipt.Applied)
	assert.Equal(t, storage.FunctionNotFound, receipt.Outcome)
	assert.Equal(t, MessageUnknownFunction, receipt.Message)
	assert.Empty(t, pub.events)
}

func TestRecord_Errors(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, Request{ContractAddress: "0x2222222222222222222222222222222222222222", FunctionName: "release", TransactionHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ENotFound, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "Contract not found")

	_, err = svc.Record(ctx, Request{FunctionName: "release", TransactionHash: "0xabc"})
	assert.Equal(t, apperrors.EValidation, apperrors.GetCode(err))

	_, err = svc.Record(ctx, Request{ContractAddress: escrowAddr, FunctionName: "release"})
	assert.Equal(t, apperrors.EValidation, apperrors.GetCode(err))

	for _, name := range []string{"", "   "} {
		receipt, err := svc.Record(ctx, Request{ContractAddress: escrowAddr, FunctionName: name, TransactionHash: "0xabc"})
		require.Error(t, err)
		assert.Nil(t, receipt)
		assert.Equal(t, apperrors.EValidation, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "Function name is required")
	}
}

func TestRecord_ClosedStoreIsPersistenceError(t *testing.T) {
	svc, store, _ := seededService(t)
	require.NoError(t, store.Close())

	_, err := svc.Record(context.Background(), Request{ContractAddress: escrowAddr, FunctionName: "release", TransactionHash: "0xabc"})
	require.Error(t, err)
	assert.Equal(t, apperrors.EPersistence, apperrors.GetCode(err))
}

func TestOutstanding(t *testing.T) {
	svc, _, _ := seededService(t)
	ctx := context.Background()

	summary, err := svc.Outstanding(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, "1000000500000000000", summary.TotalWei)
	assert.Equal(t, "1.0000005", summary.TotalEther)

	_, err = svc.Record(ctx, Request{ContractAddress: escrowAddr, FunctionName: "release", TransactionHash: "0xabc"})
	require.NoError(t, err)

	summary, err = svc.Outstanding(ctx, escrowAddr)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Count)
	assert.Equal(t, "tip", summary.Obligations[0].FunctionName)
	assert.Equal(t, "500000000000", summary.TotalWei)

	_, err = svc.Outstanding(ctx, "0x9999999999999999999999999999999999999999")
	assert.Equal(t, apperrors.ENotFound, apperrors.GetCode(err))
}
