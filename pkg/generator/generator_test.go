package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/0xmhha/contractforge/internal/errors"
	"github.com/0xmhha/contractforge/pkg/metrics"
)

type fakeGenerator struct {
	text   string
	err    error
	system string
	user   string
}

func (f *fakeGenerator) Complete(ctx context.Context, system, user string) (string, error) {
	f.system, f.user = system, user
	return f.text, f.err
}

func fixedClock() time.Time {
	return time.UnixMilli(1700000000123)
}

func newTestService(gen TextGenerator) *Service {
	s := NewService(gen, Config{Metrics: metrics.NewNop()})
	s.now = fixedClock
	return s
}

func TestGenerate_Structured(t *testing.T) {
	gen := &fakeGenerator{text: "Here you go:\n```json\n" + `{
		"contractCode": "pragma solidity ^0.8.0; contract Escrow {}",
		"contractName": "Escrow",
		"description": "Holds funds",
		"paymentFunctions": [{"name": "release", "amount": "1.5 ether", "recipient": "contractor", "paid": true}]
	}` + "\n```"}
	s := newTestService(gen)

	out, err := s.Generate(context.Background(), Request{Goal: "escrow", Details: "two parties"})
	require.NoError(t, err)

	structured, ok := out.(Structured)
	require.True(t, ok, "expected Structured, got %T", out)
	assert.Equal(t, SourceStructured, out.Source())
	assert.Equal(t, "Escrow", structured.Draft.ContractName)
	assert.Equal(t, "Holds funds", structured.Draft.Description)
	require.Len(t, structured.Draft.PaymentFunctions, 1)
	assert.Equal(t, "release", structured.Draft.PaymentFunctions[0].Name)
	assert.Equal(t, "1.5 ether", string(structured.Draft.PaymentFunctions[0].Amount))
	assert.False(t, structured.Draft.PaymentFunctions[0].Paid)

	assert.Equal(t, systemPrompt, gen.system)
	assert.Contains(t, gen.user, "Goal: escrow")
	assert.Contains(t, gen.user, "Additional Details: two parties")
}

func TestGenerate_StructuredWithoutNameUsesCode(t *testing.T) {
	s := newTestService(&fakeGenerator{text: `{"contractCode": "contract Vault { }"}`})

	out, err := s.Generate(context.Background(), Request{Goal: "vault"})
	require.NoError(t, err)
	assert.Equal(t, "Vault", out.Result().ContractName)
	assert.NotNil(t, out.Result().PaymentFunctions)
	assert.Empty(t, out.Result().PaymentFunctions)
}

func TestGenerate_FallbackOnProse(t *testing.T) {
	text := "I cannot produce JSON right now, sorry."
	s := newTestService(&fakeGenerator{text: text})

	out, err := s.Generate(context.Background(), Request{Goal: "  a lottery  "})
	require.NoError(t, err)

	fallback, ok := out.(RawFallback)
	require.True(t, ok, "expected RawFallback, got %T", out)
	assert.Equal(t, SourceFallback, out.Source())
	assert.Equal(t, text, fallback.Text)
	assert.Equal(t, text, fallback.Draft.ContractCode)
	assert.Equal(t, "a lottery", fallback.Draft.Description)
	assert.Equal(t, "Contract_1700000000123", fallback.Draft.ContractName)
	assert.NotNil(t, fallback.Draft.PaymentFunctions)
	assert.Empty(t, fallback.Draft.PaymentFunctions)
	assert.NotEmpty(t, fallback.Reason)
}

func TestGenerate_FallbackCases(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"malformed json", `{"contractCode": "contract A {}",}`},
		{"missing code", `{"contractName": "A"}`},
		{"braces reversed", `} nothing {`},
		{"plain prose", "I cannot write that contract."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := newTestService(&fakeGenerator{text: tt.text}).Generate(context.Background(), Request{Goal: "g"})
			require.NoError(t, err)
			assert.IsType(t, RawFallback{}, out)
			assert.Equal(t, "g", out.Result().Description)
			assert.NotEmpty(t, out.Result().ContractCode)
		})
	}
}

func TestGenerate_BlankCompletion(t *testing.T) {
	for _, text := range []string{"", "  \n\t "} {
		_, err := newTestService(&fakeGenerator{text: text}).Generate(context.Background(), Request{Goal: "escrow"})
		require.Error(t, err)
		assert.Equal(t, apperrors.EExternal, apperrors.GetCode(err))
		assert.ErrorIs(t, err, ErrEmptyCompletion)
	}
}

func TestGenerate_Validation(t *testing.T) {
	gen := &fakeGenerator{text: "{}"}
	_, err := newTestService(gen).Generate(context.Background(), Request{Goal: "   "})
	require.Error(t, err)
	assert.Equal(t, apperrors.EValidation, apperrors.GetCode(err))
	assert.Empty(t, gen.user, "provider must not be called")
}

func TestGenerate_MissingCredential(t *testing.T) {
	s := newTestService(nil)
	assert.False(t, s.Configured())

	_, err := s.Generate(context.Background(), Request{Goal: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.EConfig, apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "OpenAI API key not configured")
}

func TestGenerate_ProviderErrors(t *testing.T) {
	_, err := newTestService(&fakeGenerator{err: errors.New("401 unauthorized")}).
		Generate(context.Background(), Request{Goal: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.EExternal, apperrors.GetCode(err))
	assert.False(t, apperrors.IsRetryable(err))

	_, err = newTestService(&fakeGenerator{err: context.DeadlineExceeded}).
		Generate(context.Background(), Request{Goal: "x"})
	require.Error(t, err)
	assert.Equal(t, apperrors.EExternal, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))
}

func TestContractName(t *testing.T) {
	assert.Equal(t, "Token", ContractName("// x\ncontract   Token is ERC20 {}", "fallback"))
	assert.Equal(t, "fallback", ContractName("library Foo {}", "fallback"))
}

// ---- OpenAI provider against a fake endpoint ----

func newFakeOpenAI(t *testing.T, content string, status int) (*httptest.Server, *map[string]interface{}) {
	t.Helper()
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewDecoder(r.Body).Decode(&captured)

		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":{"message":"rate limited","type":"requests"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1,
			"model":   "gpt-4",
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]string{"role": "assistant", "content": content},
			}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func TestOpenAI_Complete(t *testing.T) {
	srv, captured := newFakeOpenAI(t, `{"contractCode":"contract A {}"}`, http.StatusOK)

	provider, err := NewOpenAI(OpenAIConfig{
		APIKey:      "test-key",
		BaseURL:     srv.URL + "/v1",
		Model:       "gpt-4",
		Temperature: 0.7,
		MaxTokens:   2000,
	})
	require.NoError(t, err)

	text, err := provider.Complete(context.Background(), "sys", "usr")
	require.NoError(t, err)
	assert.Equal(t, `{"contractCode":"contract A {}"}`, text)

	require.NotNil(t, *captured)
	assert.Equal(t, "gpt-4", (*captured)["model"])
	assert.EqualValues(t, 2000, (*captured)["max_tokens"])
	messages := (*captured)["messages"].([]interface{})
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]interface{})["role"])
	assert.Equal(t, "usr", messages[1].(map[string]interface{})["content"])
}

func TestOpenAI_ErrorStatus(t *testing.T) {
	srv, _ := newFakeOpenAI(t, "", http.StatusTooManyRequests)

	provider, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
	require.NoError(t, err)

	_, err = provider.Complete(context.Background(), "sys", "usr")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "rate limited"))
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	_, err := NewOpenAI(OpenAIConfig{})
	assert.Error(t, err)
}

func TestService_EndToEndWithProvider(t *testing.T) {
	srv, _ := newFakeOpenAI(t, "no json here", http.StatusOK)
	provider, err := NewOpenAI(OpenAIConfig{APIKey: "test-key", BaseURL: srv.URL + "/v1", Model: "gpt-4"})
	require.NoError(t, err)

	out, err := newTestService(provider).Generate(context.Background(), Request{Goal: "payroll"})
	require.NoError(t, err)
	assert.IsType(t, RawFallback{}, out)
	assert.Equal(t, "payroll", out.Result().Description)
}
