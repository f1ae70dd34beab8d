package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/testutil"
	"github.com/0xmhha/contractforge/pkg/api/websocket"
	"github.com/0xmhha/contractforge/pkg/deploy"
	"github.com/0xmhha/contractforge/pkg/generator"
	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
	"github.com/0xmhha/contractforge/pkg/storage"
)

const escrowDraft = `Here you go:
{"contractCode":"pragma solidity ^0.8.0;\ncontract FreelanceEscrow {}","contractName":"FreelanceEscrow",
 "description":"Escrow for a freelance job","paymentFunctions":[
   {"name":"releasePayment","amount":"1.5 ether","recipient":"freelancer"},
   {"name":"refund","amount":0.5,"recipient":"client"}]}`

type cannedGenerator struct {
	text string
	err  error
}

func (g cannedGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	return g.text, g.err
}

var deployer = common.HexToAddress("0x00000000000000000000000000000000000a11ce")

type testEnv struct {
	server   *Server
	http     *httptest.Server
	store    storage.Storage
	chain    *testutil.FakeChain
	events   *websocket.Server
	registry *prometheus.Registry
}

type envOption func(*Config, *Services)

func newTestEnv(t *testing.T, store storage.Storage, opts ...envOption) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	registry := prometheus.NewRegistry()
	m := metrics.New(registry, "")

	chain := testutil.NewFakeChain(deployer)
	events := websocket.NewServer(0, nil, m, logger)

	services := Services{
		Store:     store,
		Generator: generator.NewService(cannedGenerator{text: escrowDraft}, generator.Config{Metrics: m}),
		Deployer: deploy.NewService(chain, deploy.NewNodeSigner(chain), store, deploy.Config{
			DeployTimeout: 5 * time.Second,
			Metrics:       m,
			Publisher:     events,
		}),
		Payments: payments.NewService(store, payments.Config{Metrics: m, Publisher: events}),
		Events:   events,
		Metrics:  m,
		Gatherer: registry,
	}

	cfg := DefaultConfig()
	cfg.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.EnableGraphQLPlayground = true
	for _, opt := range opts {
		opt(cfg, &services)
	}

	server, err := NewServer(cfg, services, logger)
	require.NoError(t, err)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(func() {
		ts.Close()
		events.Stop()
	})

	return &testEnv{server: server, http: ts, store: store, chain: chain, events: events, registry: registry}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func TestDeployThenPay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "contracts.json")
	store, err := storage.NewJSONStorage(path, zap.NewNop())
	require.NoError(t, err)
	env := newTestEnv(t, store)

	conn, _, err := gorillaws.DefaultDialer.Dial("ws"+strings.TrimPrefix(env.http.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "subscribe",
		"payload": map[string]string{"type": "paymentRecorded"},
	}))
	var ack websocket.Message
	require.NoError(t, conn.ReadJSON(&ack))
	require.Equal(t, "success", ack.Type)

	// generate
	resp, gen := env.do(t, http.MethodPost, "/api/generate", map[string]string{"goal": "escrow for a freelancer"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, gen["success"])
	assert.Equal(t, "FreelanceEscrow", gen["contractName"])
	assert.Equal(t, generator.SourceStructured, gen["source"])
	require.Len(t, gen["paymentFunctions"], 2)

	// deploy the draft as returned
	resp, dep := env.do(t, http.MethodPost, "/api/deploy", map[string]interface{}{
		"contractCode":     gen["contractCode"],
		"contractName":     gen["contractName"],
		"goal":             "escrow for a freelancer",
		"paymentFunctions": gen["paymentFunctions"],
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, dep)
	contract := dep["contract"].(map[string]interface{})
	address := contract["address"].(string)
	assert.Equal(t, crypto.CreateAddress(deployer, 0).Hex(), address)
	assert.Equal(t, "deployed", contract["status"])
	assert.Equal(t, float64(21000), dep["gasUsed"])
	assert.NotEmpty(t, dep["transactionHash"])

	// listed
	resp, list := env.do(t, http.MethodGet, "/api/contracts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, list["contracts"], 1)

	// pay, lower-cased address
	payment := map[string]interface{}{
		"contractAddress": strings.ToLower(address),
		"functionName":    "releasePayment",
		"transactionHash": "0xabc123",
		"amount":          "1.5 ether",
		"payer":           "0xPayer",
	}
	resp, paid := env.do(t, http.MethodPost, "/api/payments", payment)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, paid["success"])
	assert.Equal(t, true, paid["applied"])
	assert.Equal(t, payments.MessageRecorded, paid["message"])

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event websocket.Message
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, "event", event.Type)
	assert.Contains(t, string(event.Payload), "releasePayment")

	// same settlement again is a no-op success
	resp, again := env.do(t, http.MethodPost, "/api/payments", payment)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, again["applied"])
	assert.Equal(t, storage.Unchanged.String(), again["outcome"])

	// the document on disk reflects the settlement
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc struct {
		Contracts []models.Contract `json:"contracts"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	require.Len(t, doc.Contracts, 1)
	fns := doc.Contracts[0].Metadata.PaymentFunctions
	require.Len(t, fns, 2)
	assert.True(t, fns[0].Paid)
	assert.Equal(t, "0xabc123", fns[0].TransactionHash)
	assert.Equal(t, "0xPayer", fns[0].Payer)
	assert.NotNil(t, fns[0].PaidAt)
	assert.False(t, fns[1].Paid)

	// one obligation left
	resp, outstanding := env.do(t, http.MethodGet, "/api/payments/outstanding?address="+address, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), outstanding["count"])
	assert.Equal(t, "500000000000000000", outstanding["totalWei"])

	resp, stats := env.do(t, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), stats["activeContracts"])
	assert.Equal(t, float64(1), stats["paidFunctions"])
}

func TestGenerate_Errors(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())

	resp, body := env.do(t, http.MethodPost, "/api/generate", map[string]string{"details": "no goal"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "E_VALIDATION", body["code"])
	assert.Equal(t, "Goal is required", body["error"])

	resp, body = env.do(t, http.MethodPost, "/api/generate", "{not json")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "E_VALIDATION", body["code"])

	resp, _ = env.do(t, http.MethodPost, "/api/generate", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGenerate_Unconfigured(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) {
		s.Generator = generator.NewService(nil, generator.Config{})
	})

	resp, body := env.do(t, http.MethodPost, "/api/generate", map[string]string{"goal": "a tip jar"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "E_CONFIG", body["code"])
}

func TestGenerate_ProviderFailure(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) {
		s.Generator = generator.NewService(cannedGenerator{err: errors.New("upstream 502")}, generator.Config{})
	})

	resp, body := env.do(t, http.MethodPost, "/api/generate", map[string]string{"goal": "a tip jar"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "E_EXTERNAL", body["code"])
	assert.Contains(t, body["details"], "upstream 502")
}

func TestGenerate_Fallback(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) {
		s.Generator = generator.NewService(cannedGenerator{text: "contract Plain {}"}, generator.Config{})
	})

	resp, body := env.do(t, http.MethodPost, "/api/generate", map[string]string{"goal": "a plain contract"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, generator.SourceFallback, body["source"])
	assert.Equal(t, "a plain contract", body["description"])
	assert.Equal(t, "contract Plain {}", body["contractCode"])
	assert.Equal(t, []interface{}{}, body["paymentFunctions"])
}

func TestDeploy_Errors(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())

	resp, body := env.do(t, http.MethodPost, "/api/deploy", map[string]string{"contractName": "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "E_VALIDATION", body["code"])

	env.chain.SendErr = errors.New("connection refused")
	resp, body = env.do(t, http.MethodPost, "/api/deploy", map[string]string{"contractCode": "contract X {}", "contractName": "X"})
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "E_CHAIN", body["code"])

	_, list := env.do(t, http.MethodGet, "/api/deploy", nil)
	assert.Equal(t, []interface{}{}, list["contracts"])
}

func TestDeploy_SignerSelection(t *testing.T) {
	second := common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	chain := testutil.NewFakeChain(deployer, second)
	store := storage.NewMemoryStorage()
	env := newTestEnv(t, store, func(c *Config, s *Services) {
		c.DefaultSignerIndex = 1
		s.Deployer = deploy.NewService(chain, deploy.NewNodeSigner(chain), store, deploy.Config{})
	})

	_, body := env.do(t, http.MethodPost, "/api/deploy", map[string]string{"contractCode": "contract A {}", "contractName": "A"})
	contract := body["contract"].(map[string]interface{})
	assert.Equal(t, second.Hex(), contract["metadata"].(map[string]interface{})["deployer"])

	_, body = env.do(t, http.MethodPost, "/api/deploy", map[string]interface{}{"contractCode": "contract B {}", "contractName": "B", "signerIndex": 0})
	contract = body["contract"].(map[string]interface{})
	assert.Equal(t, deployer.Hex(), contract["metadata"].(map[string]interface{})["deployer"])

	resp, body := env.do(t, http.MethodPost, "/api/deploy", map[string]interface{}{"contractCode": "contract C {}", "contractName": "C", "signerIndex": 7})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "E_VALIDATION", body["code"])
}

func TestContracts_SearchOrderAndLookup(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	for i, name := range []string{"Escrow", "TipJar", "Crowdfund"} {
		c := testutil.NewTestContract(testutil.TestAddress(i))
		c.Name = name
		require.NoError(t, store.Append(ctx, c))
	}
	env := newTestEnv(t, store)

	_, body := env.do(t, http.MethodGet, "/api/contracts?order=desc", nil)
	contracts := body["contracts"].([]interface{})
	require.Len(t, contracts, 3)
	assert.Equal(t, "Crowdfund", contracts[0].(map[string]interface{})["name"])

	_, body = env.do(t, http.MethodGet, "/api/contracts?q=tip", nil)
	contracts = body["contracts"].([]interface{})
	require.Len(t, contracts, 1)
	assert.Equal(t, "TipJar", contracts[0].(map[string]interface{})["name"])

	resp, body := env.do(t, http.MethodGet, "/api/contracts/"+strings.ToLower(testutil.TestAddress(1)), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "TipJar", body["contract"].(map[string]interface{})["name"])

	resp, body = env.do(t, http.MethodGet, "/api/contracts/0xdeadbeef", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "E_NOT_FOUND", body["code"])
}

func TestPayments_Errors(t *testing.T) {
	store := storage.NewMemoryStorage()
	require.NoError(t, store.Append(context.Background(), testutil.NewTestContract(testutil.TestAddress(1), "tip")))
	env := newTestEnv(t, store)

	resp, body := env.do(t, http.MethodPost, "/api/payments", map[string]string{
		"contractAddress": testutil.TestAddress(9), "functionName": "tip", "transactionHash": "0x1",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "E_NOT_FOUND", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/payments", map[string]string{
		"contractAddress": testutil.TestAddress(1), "functionName": "tip",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "E_VALIDATION", body["code"])

	resp, body = env.do(t, http.MethodPost, "/api/payments", map[string]string{
		"contractAddress": testutil.TestAddress(1), "functionName": "nope", "transactionHash": "0x1",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["applied"])
	assert.Equal(t, payments.MessageUnknownFunction, body["message"])

	resp, body = env.do(t, http.MethodGet, "/api/payments/outstanding?address="+testutil.TestAddress(9), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "E_NOT_FOUND", body["code"])
}

func TestAccounts(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())

	resp, body := env.do(t, http.MethodGet, "/api/accounts", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	accounts := body["accounts"].([]interface{})
	require.Len(t, accounts, 1)
	assert.Equal(t, deployer.Hex(), accounts[0].(map[string]interface{})["address"])
}

func TestHealth(t *testing.T) {
	hc := NewHealthChecker("test")
	hc.AddCheck("store", func(ctx context.Context) error { return nil })
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) { s.Health = hc })

	resp, body := env.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", body["status"])
	_, err := time.Parse(time.RFC3339, body["timestamp"].(string))
	assert.NoError(t, err)

	resp, body = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])

	hc.AddCheck("chain", func(ctx context.Context) error { return errors.New("dial tcp: refused") })
	resp, body = env.do(t, http.MethodGet, "/health/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	chain := body["components"].(map[string]interface{})["chain"].(map[string]interface{})
	assert.Equal(t, "unhealthy", chain["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())
	env.do(t, http.MethodGet, "/api/contracts", nil)

	resp, err := http.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), `contractforge_http_requests_total{method="GET",route="/api/contracts",status="200"}`)
}

func TestGraphQLRoute(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())

	resp, body := env.do(t, http.MethodPost, "/graphql", map[string]string{"query": "{ stats { totalContracts } }"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := body["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["stats"].(map[string]interface{})["totalContracts"])
}

func TestBodyLimit(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) {
		c.MaxBodyBytes = 64
	})

	resp, body := env.do(t, http.MethodPost, "/api/generate", map[string]string{"goal": strings.Repeat("x", 200)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Request body too large", body["error"])
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t, storage.NewMemoryStorage())

	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/api/deploy", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(DefaultConfig(), Services{}, nil)
	assert.Error(t, err)

	cfg := DefaultConfig()
	cfg.Port = 0
	_, err = NewServer(cfg, Services{}, nil)
	assert.Error(t, err)
}

func TestConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "localhost:3001", cfg.Address())

	cfg.EnableRateLimit = true
	cfg.RateLimitBurst = 0
	assert.Error(t, cfg.Validate())
}

func TestServer_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "127.0.0.1"
	cfg.Port = 39471
	cfg.EnableRateLimit = true
	env := newTestEnv(t, storage.NewMemoryStorage(), func(c *Config, s *Services) { *c = *cfg })

	errCh := make(chan error, 1)
	go func() { errCh <- env.server.Start() }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:39471/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, env.server.Stop(context.Background()))
	assert.NoError(t, <-errCh)
}
