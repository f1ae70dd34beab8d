package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
)

// PebbleStorage implements Storage using PebbleDB.
// Each mutation commits as one synced batch.
type PebbleStorage struct {
	db     *pebble.DB
	logger *zap.Logger
	closed atomic.Bool

	// mu guards seq and maxID and serializes writers
	mu    sync.Mutex
	seq   uint64
	maxID int64
}

// NewPebbleStorage opens (or creates) a Pebble database at path.
// cacheMB sizes the block cache.
func NewPebbleStorage(path string, cacheMB int, logger *zap.Logger) (*PebbleStorage, error) {
	if path == "" {
		return nil, fmt.Errorf("path cannot be empty")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	cache := pebble.NewCache(int64(cacheMB) << 20) // Convert MB to bytes
	defer cache.Unref()

	db, err := pebble.Open(path, &pebble.Options{Cache: cache})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &PebbleStorage{db: db, logger: logger}
	if err := s.loadCounters(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load counters: %w", err)
	}

	logger.Info("Opened pebble contract store",
		zap.String("path", path),
		zap.Uint64("records", s.seq),
	)
	return s, nil
}

func (s *PebbleStorage) ensureNotClosed() error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (s *PebbleStorage) loadCounters() error {
	seq, err := s.getUint64(SequenceKey())
	if err != nil {
		return err
	}
	maxID, err := s.getUint64(MaxIDKey())
	if err != nil {
		return err
	}
	s.seq = seq
	s.maxID = int64(maxID)
	return nil
}

// getUint64 reads a counter, returning 0 when it was never written
func (s *PebbleStorage) getUint64(key []byte) (uint64, error) {
	value, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	return DecodeUint64(value)
}

// List returns every contract in insertion order
func (s *PebbleStorage) List(ctx context.Context) ([]*models.Contract, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}

	prefix := ContractKeyPrefix()
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	contracts := []*models.Contract{}
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := decodeContract(iter.Value())
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", iter.Key(), err)
		}
		contracts = append(contracts, c)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterator error: %w", err)
	}
	return contracts, nil
}

// Append stores c as the next record
func (s *PebbleStorage) Append(ctx context.Context, c *models.Contract) error {
	if err := s.ensureNotClosed(); err != nil {
		return err
	}
	if err := validateRecord(c); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.lookupSeq(c.Address); err == nil {
		return fmt.Errorf("%w: contract at %s", ErrAlreadyExists, c.Address)
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}

	id := c.ID
	if id == 0 {
		id = nextID(s.maxID)
	} else if exists, err := s.has(IDIndexKey(id)); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: contract id %d", ErrAlreadyExists, id)
	}

	record := c.Clone()
	record.ID = id
	value, err := encodeContract(record)
	if err != nil {
		return err
	}

	seq := s.seq + 1
	maxID := s.maxID
	if id > maxID {
		maxID = id
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(ContractKey(seq), value, nil); err != nil {
		return fmt.Errorf("failed to stage contract: %w", err)
	}
	if err := batch.Set(AddressIndexKey(c.Address), EncodeUint64(seq), nil); err != nil {
		return fmt.Errorf("failed to stage address index: %w", err)
	}
	if err := batch.Set(IDIndexKey(id), EncodeUint64(seq), nil); err != nil {
		return fmt.Errorf("failed to stage id index: %w", err)
	}
	if err := batch.Set(SequenceKey(), EncodeUint64(seq), nil); err != nil {
		return fmt.Errorf("failed to stage sequence: %w", err)
	}
	if err := batch.Set(MaxIDKey(), EncodeUint64(uint64(maxID)), nil); err != nil {
		return fmt.Errorf("failed to stage max id: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}

	s.seq = seq
	s.maxID = maxID
	c.ID = id
	return nil
}

// FindByAddress returns the contract at address
func (s *PebbleStorage) FindByAddress(ctx context.Context, address string) (*models.Contract, error) {
	if err := s.ensureNotClosed(); err != nil {
		return nil, err
	}
	if address == "" {
		return nil, ErrNotFound
	}

	seq, err := s.lookupSeq(address)
	if err != nil {
		return nil, err
	}
	return s.getContract(seq)
}

// UpdatePaymentFunction settles a payment function; only Applied writes
func (s *PebbleStorage) UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error) {
	if err := s.ensureNotClosed(); err != nil {
		return FunctionNotFound, err
	}
	if address == "" {
		return FunctionNotFound, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.lookupSeq(address)
	if err != nil {
		return FunctionNotFound, err
	}
	c, err := s.getContract(seq)
	if err != nil {
		return FunctionNotFound, err
	}

	outcome := applyPaymentUpdate(c, name, update)
	if outcome != Applied {
		return outcome, nil
	}

	value, err := encodeContract(c)
	if err != nil {
		return FunctionNotFound, err
	}
	if err := s.db.Set(ContractKey(seq), value, pebble.Sync); err != nil {
		return FunctionNotFound, fmt.Errorf("failed to write contract: %w", err)
	}
	return Applied, nil
}

// Close closes the database
func (s *PebbleStorage) Close() error {
	if s.closed.Swap(true) {
		return nil // Already closed
	}
	return s.db.Close()
}

func (s *PebbleStorage) lookupSeq(address string) (uint64, error) {
	value, closer, err := s.db.Get(AddressIndexKey(address))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get address index: %w", err)
	}
	defer closer.Close()
	return DecodeUint64(value)
}

func (s *PebbleStorage) getContract(seq uint64) (*models.Contract, error) {
	value, closer, err := s.db.Get(ContractKey(seq))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, fmt.Errorf("%w: index points at missing record %s", ErrInvalidData, strconv.FormatUint(seq, 10))
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	defer closer.Close()
	return decodeContract(value)
}

func (s *PebbleStorage) has(key []byte) (bool, error) {
	_, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	closer.Close()
	return true, nil
}
