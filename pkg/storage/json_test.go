package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
)

func newJSONStore(t *testing.T) (*JSONStorage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nested", "contracts.json")
	s, err := NewJSONStorage(path, zap.NewNop())
	require.NoError(t, err)
	return s, path
}

func TestJSONStorage_CreatesEmptyDocument(t *testing.T) {
	_, path := newJSONStore(t)

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.JSONEq(t, `[]`, string(doc["contracts"]))
}

func TestJSONStorage_MissingFileListsEmpty(t *testing.T) {
	s, path := newJSONStore(t)
	require.NoError(t, os.Remove(path))

	contracts, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contracts)

	// a mutation recreates the document
	require.NoError(t, s.Append(context.Background(), newContract(addr(0))))
	contracts, err = s.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
}

func TestJSONStorage_CorruptFileListsEmpty(t *testing.T) {
	s, path := newJSONStore(t)
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	contracts, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, contracts)
}

func TestJSONStorage_CorruptFileRefusesWrites(t *testing.T) {
	s, path := newJSONStore(t)
	garbage := []byte("{not json")
	require.NoError(t, os.WriteFile(path, garbage, 0o644))

	err := s.Append(context.Background(), newContract(addr(0)))
	assert.ErrorIs(t, err, ErrCorrupt)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, garbage, data)
}

func TestJSONStorage_NotFoundLeavesFileUntouched(t *testing.T) {
	s, path := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, newContract(addr(0), "mint")))

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	statBefore, err := os.Stat(path)
	require.NoError(t, err)

	update := models.PaymentUpdate{TransactionHash: "0x1", Payer: "User", PaidAt: time.Now()}

	_, err = s.UpdatePaymentFunction(ctx, addr(9), "mint", update)
	assert.ErrorIs(t, err, ErrNotFound)

	outcome, err := s.UpdatePaymentFunction(ctx, addr(0), "missing", update)
	require.NoError(t, err)
	assert.Equal(t, FunctionNotFound, outcome)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	statAfter, err := os.Stat(path)
	require.NoError(t, err)

	assert.Equal(t, before, after)
	assert.Equal(t, statBefore.ModTime(), statAfter.ModTime())
}

func TestJSONStorage_DocumentShape(t *testing.T) {
	s, path := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, newContract(addr(0), "mint")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		Contracts []map[string]any `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	require.Len(t, doc.Contracts, 1)

	record := doc.Contracts[0]
	for _, key := range []string{"id", "name", "goal", "address", "status", "deployedAt", "gasUsed", "value", "abi", "metadata"} {
		assert.Contains(t, record, key)
	}
	assert.Equal(t, "deployed", record["status"])

	meta := record["metadata"].(map[string]any)
	pfs := meta["paymentFunctions"].([]any)
	require.Len(t, pfs, 1)
	assert.Equal(t, false, pfs[0].(map[string]any)["paid"])
	assert.NotContains(t, pfs[0], "paidAt")
}

func TestJSONStorage_ReopenSeesRecords(t *testing.T) {
	s, path := newJSONStore(t)
	ctx := context.Background()
	require.NoError(t, s.Append(ctx, newContract(addr(0))))
	require.NoError(t, s.Close())

	reopened, err := NewJSONStorage(path, zap.NewNop())
	require.NoError(t, err)
	contracts, err := reopened.List(ctx)
	require.NoError(t, err)
	assert.Len(t, contracts, 1)
	assert.Equal(t, path, reopened.Path())
}

func TestJSONStorage_NoTempFileLeftBehind(t *testing.T) {
	s, path := newJSONStore(t)
	require.NoError(t, s.Append(context.Background(), newContract(addr(0))))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
