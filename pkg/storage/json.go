package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
)

// JSONStorage keeps every contract in one JSON document.
// Writes go to a sibling temp file which is renamed over the document, so a
// reader always sees either the old or the new complete document.
type JSONStorage struct {
	path   string
	logger *zap.Logger
	closed atomic.Bool

	// mu serializes read-modify-write cycles within the process
	mu sync.RWMutex
}

// NewJSONStorage opens the document at path, creating its directory and an
// empty document when they do not exist yet.
func NewJSONStorage(path string, logger *zap.Logger) (*JSONStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	s := &JSONStorage{path: path, logger: logger}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := s.write(nil); err != nil {
			return nil, fmt.Errorf("failed to initialize store: %w", err)
		}
		logger.Info("Created contract store", zap.String("path", path))
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat store: %w", err)
	}

	return s, nil
}

// Path returns the document location
func (s *JSONStorage) Path() string {
	return s.path
}

func (s *JSONStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// List returns all contracts. An unreadable or malformed document is
// reported as an empty store and logged.
func (s *JSONStorage) List(ctx context.Context) ([]*models.Contract, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	contracts, err := s.read()
	if err != nil {
		s.logger.Warn("Contract store unreadable, treating as empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return []*models.Contract{}, nil
	}
	return contracts, nil
}

// Append stores c at the end of the document
func (s *JSONStorage) Append(ctx context.Context, c *models.Contract) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := validateRecord(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contracts, err := s.readForWrite()
	if err != nil {
		return err
	}

	var maxID int64
	for _, existing := range contracts {
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

	if err := s.write(append(contracts, c.Clone())); err != nil {
		return err
	}
	return nil
}

// FindByAddress returns the contract at address
func (s *JSONStorage) FindByAddress(ctx context.Context, address string) (*models.Contract, error) {
	contracts, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range contracts {
		if c.HasAddress(address) {
			return c, nil
		}
	}
	return nil, ErrNotFound
}

// UpdatePaymentFunction settles a payment function. The document is only
// rewritten when the outcome is Applied.
func (s *JSONStorage) UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error) {
	if err := s.ensureNotClosed(); err != nil {
		return FunctionNotFound, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	contracts, err := s.readForWrite()
	if err != nil {
		return FunctionNotFound, err
	}

	for _, c := range contracts {
		if !c.HasAddress(address) {
			continue
		}
		outcome := applyPaymentUpdate(c, name, update)
		if outcome != Applied {
			return outcome, nil
		}
		if err := s.write(contracts); err != nil {
			return FunctionNotFound, err
		}
		return Applied, nil
	}
	return FunctionNotFound, ErrNotFound
}

// Close marks the storage closed
func (s *JSONStorage) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *JSONStorage) read() ([]*models.Contract, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read store: %w", err)
	}
	return decodeDocument(data)
}

// readForWrite loads the document before a mutation. A missing document is
// empty; a malformed one is an error so the mutation cannot overwrite it.
func (s *JSONStorage) readForWrite() ([]*models.Contract, error) {
	contracts, err := s.read()
	switch {
	case err == nil:
		return contracts, nil
	case errors.Is(err, fs.ErrNotExist):
		return []*models.Contract{}, nil
	case errors.Is(err, ErrInvalidData):
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	default:
		return nil, err
	}
}

func (s *JSONStorage) write(contracts []*models.Contract) error {
	data, err := encodeDocument(contracts)
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace store: %w", err)
	}
	return nil
}
