package storage

import (
	"context"
	"errors"
	"time"

	"github.com/0xmhha/contractforge/pkg/metrics"
	"github.com/0xmhha/contractforge/pkg/models"
)

// Instrumented records Prometheus metrics around another Storage
type Instrumented struct {
	next    Storage
	backend string
	metrics *metrics.Metrics
}

// WithMetrics wraps s so every call is counted and timed under backend
func WithMetrics(s Storage, backend string, m *metrics.Metrics) Storage {
	if m == nil {
		return s
	}
	return &Instrumented{next: s, backend: backend, metrics: m}
}

// observe counts not-found lookups as successful calls
func (i *Instrumented) observe(op string, start time.Time, err error) {
	if errors.Is(err, ErrNotFound) {
		err = nil
	}
	i.metrics.ObserveStoreOperation(i.backend, op, err, time.Since(start))
}

func (i *Instrumented) List(ctx context.Context) ([]*models.Contract, error) {
	start := time.Now()
	contracts, err := i.next.List(ctx)
	i.observe("list", start, err)
	return contracts, err
}

func (i *Instrumented) Append(ctx context.Context, c *models.Contract) error {
	start := time.Now()
	err := i.next.Append(ctx, c)
	i.observe("append", start, err)
	return err
}

func (i *Instrumented) FindByAddress(ctx context.Context, address string) (*models.Contract, error) {
	start := time.Now()
	c, err := i.next.FindByAddress(ctx, address)
	i.observe("find", start, err)
	return c, err
}

func (i *Instrumented) UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error) {
	start := time.Now()
	outcome, err := i.next.UpdatePaymentFunction(ctx, address, name, update)
	i.observe("update_payment", start, err)
	return outcome, err
}

func (i *Instrumented) Close() error {
	return i.next.Close()
}
