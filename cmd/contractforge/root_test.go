package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/contractforge/internal/config"
	"github.com/0xmhha/contractforge/internal/testutil"
	"github.com/0xmhha/contractforge/pkg/api/websocket"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/storage"
)

// executeCmd runs the root command with args and returns stdout and the error
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), err
}

// seedStore writes two contracts to a JSON store; the second has its only
// payment function settled
func seedStore(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "contracts.json")

	store, err := storage.NewJSONStorage(path, nil)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, testutil.NewTestContract(testutil.TestAddress(1), "payInvoice", "payBonus")))
	require.NoError(t, store.Append(ctx, testutil.NewTestContract(testutil.TestAddress(2), "payFee")))

	ledger := payments.NewService(store, payments.Config{})
	_, err = ledger.Record(ctx, payments.Request{
		ContractAddress: testutil.TestAddress(2),
		FunctionName:    "payFee",
		TransactionHash: "0xfeed",
	})
	require.NoError(t, err)
	return path
}

func TestRoot_Help(t *testing.T) {
	out, err := executeCmd(t, "--help")
	require.NoError(t, err)

	assert.Contains(t, out, "contractforge")
	for _, name := range []string{"serve", "contracts", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestVersionCmd(t *testing.T) {
	out, err := executeCmd(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "contractforge version dev")
	assert.Contains(t, out, "commit: none")
}

func TestContractsList(t *testing.T) {
	path := seedStore(t)

	out, err := executeCmd(t, "contracts", "list", "--store", path, "--backend", "json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "ADDRESS")
	assert.Contains(t, lines[1], "Contract1001")
	assert.Contains(t, lines[1], "0/2")
	assert.Contains(t, lines[2], "1/1")
}

func TestContractsList_JSONSearchAndOrder(t *testing.T) {
	path := seedStore(t)

	out, err := executeCmd(t, "contracts", "list", "--store", path, "--backend", "json", "--json", "--desc")
	require.NoError(t, err)
	var contracts []*models.Contract
	require.NoError(t, json.Unmarshal([]byte(out), &contracts))
	require.Len(t, contracts, 2)
	assert.Equal(t, "Contract1002", contracts[0].Name)

	out, err = executeCmd(t, "contracts", "list", "--store", path, "--backend", "json", "--json", "-q", "contract1001")
	require.NoError(t, err)
	contracts = nil
	require.NoError(t, json.Unmarshal([]byte(out), &contracts))
	require.Len(t, contracts, 1)
	assert.Equal(t, testutil.TestAddress(1), contracts[0].Address)
}

func TestContractsList_EmptyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.json")

	out, err := executeCmd(t, "contracts", "list", "--store", path, "--backend", "json", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))
}

func TestContractsOutstanding(t *testing.T) {
	path := seedStore(t)

	out, err := executeCmd(t, "contracts", "outstanding", "--store", path, "--backend", "json", "--json")
	require.NoError(t, err)
	var summary payments.Summary
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 2, summary.Count)
	assert.Equal(t, "2000000000000000000", summary.TotalWei)

	out, err = executeCmd(t, "contracts", "outstanding", testutil.TestAddress(2), "--store", path, "--backend", "json")
	require.NoError(t, err)
	assert.Contains(t, out, "0 outstanding")

	_, err = executeCmd(t, "contracts", "outstanding", testutil.TestAddress(9), "--store", path, "--backend", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Contract not found")
}

func TestContractsStats(t *testing.T) {
	path := seedStore(t)

	out, err := executeCmd(t, "contracts", "stats", "--store", path, "--backend", "json")
	require.NoError(t, err)
	var stats models.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, 2, stats.TotalContracts)
	assert.Equal(t, 1, stats.ActiveContracts)
	assert.Equal(t, 1, stats.PaidFunctions)
	assert.Equal(t, 2, stats.OutstandingFunctions)
}

func TestContractsQuery(t *testing.T) {
	path := seedStore(t)

	out, err := executeCmd(t, "contracts", "query", "{ stats { totalContracts paidFunctions } }",
		"--store", path, "--backend", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"totalContracts": 2`)
	assert.Contains(t, out, `"paidFunctions": 1`)

	_, err = executeCmd(t, "contracts", "query", "{ nope }", "--store", path, "--backend", "json")
	assert.Error(t, err)

	_, err = executeCmd(t, "contracts", "query", "{ stats { totalContracts } }", "--vars", "{",
		"--store", path, "--backend", "json")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --vars")
}

func TestUnknownBackendFails(t *testing.T) {
	_, err := executeCmd(t, "contracts", "list", "--backend", "sqlite")
	assert.Error(t, err)
}

func TestAPIConfigMapping(t *testing.T) {
	cfg := config.NewConfig()
	cfg.API.Port = 4100
	cfg.API.GraphQLPlayground = true
	cfg.Chain.SignerIndex = 3

	c := apiConfig(cfg)
	require.NoError(t, c.Validate())
	assert.Equal(t, 4100, c.Port)
	assert.True(t, c.EnableGraphQLPlayground)
	assert.Equal(t, 3, c.DefaultSignerIndex)
}

func TestOriginChecker(t *testing.T) {
	assert.Nil(t, originChecker([]string{"*"}))

	check := originChecker([]string{"http://localhost:3000"})
	require.NotNil(t, check)

	r := httptest.NewRequest("GET", "/ws", nil)
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://localhost:3000")
	assert.True(t, check(r))

	r.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(r))
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := newTextGenerator(config.GeneratorConfig{})
	require.NoError(t, err)
	assert.Nil(t, gen)

	gen, err = newTextGenerator(config.GeneratorConfig{APIKey: "sk-test", Model: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NotNil(t, gen)
}

func TestNewPublisher(t *testing.T) {
	m := metrics.NewNop()
	events := websocket.NewServer(10, nil, m, nil)
	defer events.Stop()

	cfg := config.NewConfig()
	p, stopHooks, err := newPublisher(cfg, events, m, testutil.NewTestLogger(t))
	require.NoError(t, err)
	assert.Same(t, events, p)
	stopHooks()

	hits := make(chan string, 1)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- r.Header.Get("X-Event-Type")
	}))
	defer hook.Close()

	cfg.Webhooks.URLs = []string{hook.URL}
	p, stopHooks, err = newPublisher(cfg, events, m, testutil.NewTestLogger(t))
	require.NoError(t, err)
	p.Publish("contractDeployed", map[string]string{"address": "0x1"})
	stopHooks()
	assert.Equal(t, "contractDeployed", <-hits)
}
