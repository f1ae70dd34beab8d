package storage

import (
	"context"
	"fmt"
	"sync"

	"github.com/0xmhha/contractforge/pkg/models"
)

// MemoryStorage keeps contracts in process memory.
// Used by tests and offline tooling that must not touch disk.
type MemoryStorage struct {
	mu        sync.RWMutex
	contracts []*models.Contract
	closed    bool
}

// NewMemoryStorage returns an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) List(ctx context.Context) ([]*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	out := make([]*models.Contract, len(s.contracts))
	for i, c := range s.contracts {
		out[i] = c.Clone()
	}
	return out, nil
}

func (s *MemoryStorage) Append(ctx context.Context, c *models.Contract) error {
	if err := validateRecord(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	var maxID int64
	for _, existing := range s.contracts {
		if existing.HasAddress(c.Address) {
			return fmt.Errorf("%w: contract at %s", ErrAlreadyExists, c.Address)
		}
		if c.ID != 0 && existing.ID == c.ID {
			return fmt.Errorf("%w: contract id %d", ErrAlreadyExists, c.ID)
		}
		if existing.ID > maxID {
			maxID = existing.ID
		}
	}
	if c.ID == 0 {
		c.ID = nextID(maxID)
	}
	s.contracts = append(s.contracts, c.Clone())
	return nil
}

func (s *MemoryStorage) FindByAddress(ctx context.Context, address string) (*models.Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	for _, c := range s.contracts {
		if c.HasAddress(address) {
			return c.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStorage) UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FunctionNotFound, ErrClosed
	}

	for _, c := range s.contracts {
		if c.HasAddress(address) {
			return applyPaymentUpdate(c, name, update), nil
		}
	}
	return FunctionNotFound, ErrNotFound
}

func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
