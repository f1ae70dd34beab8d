package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersOnGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, "test")

	m.ObserveHTTPRequest("GET", "/health", "200", 5*time.Millisecond)
	m.ObserveGeneration("fallback", time.Second)
	m.ObserveDeployment(nil, 21000, 200*time.Millisecond)
	m.ObserveDeployment(errors.New("boom"), 0, time.Second)
	m.RecordPayment("applied")
	m.ObserveStoreOperation("json", "append", nil, time.Millisecond)
	m.UpdateWebSocketClients(3)
	m.RecordWebhook("contractDeployed", "delivered")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerationsTotal.WithLabelValues("fallback")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeploymentsTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DeploymentsTotal.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PaymentsTotal.WithLabelValues("applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreOperationsTotal.WithLabelValues("json", "append", "success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.WebSocketClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEventsTotal.WithLabelValues("contractDeployed", "delivered")))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNewNop_CanBeCalledRepeatedly(t *testing.T) {
	assert.NotPanics(t, func() {
		NewNop()
		NewNop()
	})
}
