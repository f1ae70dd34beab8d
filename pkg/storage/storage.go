// Package storage persists contract records and their payment functions.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/0xmhha/contractforge/internal/constants"
	"github.com/0xmhha/contractforge/pkg/models"
)

// Common errors
var (
	// ErrNotFound is returned when no contract has the requested address
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when an address or id is already stored
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidData is returned when a record cannot be stored or decoded
	ErrInvalidData = errors.New("invalid data")

	// ErrCorrupt is returned when a mutation finds an unreadable store document
	ErrCorrupt = errors.New("store document is corrupt")

	// ErrClosed is returned when operating on a closed storage
	ErrClosed = errors.New("storage closed")
)

// UpdateOutcome describes what UpdatePaymentFunction did with an update.
type UpdateOutcome int

const (
	// Applied means the function was unpaid and the settlement was persisted
	Applied UpdateOutcome = iota
	// Unchanged means the same settlement was already recorded
	Unchanged
	// AlreadyPaid means a different settlement was recorded first and was kept
	AlreadyPaid
	// FunctionNotFound means the contract has no payment function of that name
	FunctionNotFound
)

func (o UpdateOutcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case Unchanged:
		return "unchanged"
	case AlreadyPaid:
		return "already_paid"
	case FunctionNotFound:
		return "function_not_found"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Storage is the contract store.
// Implementations serialize their own mutations and are safe for concurrent use.
type Storage interface {
	// List returns every contract in insertion order
	List(ctx context.Context) ([]*models.Contract, error)

	// Append stores c, assigning c.ID when it is zero
	Append(ctx context.Context, c *models.Contract) error

	// FindByAddress returns the contract deployed at address
	FindByAddress(ctx context.Context, address string) (*models.Contract, error)

	// UpdatePaymentFunction settles the named payment function of the contract at address
	UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error)

	// Close releases resources
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Backend is one of json, pebble or postgres
	Backend string

	// Path to the JSON document or the Pebble directory
	Path string

	// PostgresURL is the connection string for the postgres backend
	PostgresURL string

	// CacheSize for Pebble in MB
	CacheSize int
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch c.Backend {
	case constants.StoreJSON, constants.StorePebble:
		if c.Path == "" {
			return errors.New("path cannot be empty")
		}
	case constants.StorePostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres url cannot be empty")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.CacheSize < 0 {
		return errors.New("cache size cannot be negative")
	}
	return nil
}

// nextID returns max(now in ms, maxID+1), keeping ids unique and increasing
// even when several records land in the same millisecond.
func nextID(maxID int64) int64 {
	id := time.Now().UnixMilli()
	if id <= maxID {
		id = maxID + 1
	}
	return id
}

// validateRecord checks a record before it is appended.
func validateRecord(c *models.Contract) error {
	if c == nil {
		return fmt.Errorf("%w: nil contract", ErrInvalidData)
	}
	if c.Address == "" {
		return fmt.Errorf("%w: contract address is required", ErrInvalidData)
	}
	if c.ID < 0 {
		return fmt.Errorf("%w: negative contract id", ErrInvalidData)
	}
	if c.Status != "" && !c.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidData, c.Status)
	}
	return nil
}

// applyPaymentUpdate merges update into the named function of c.
func applyPaymentUpdate(c *models.Contract, name string, update models.PaymentUpdate) UpdateOutcome {
	pf, ok := c.FindPaymentFunction(name)
	if !ok {
		return FunctionNotFound
	}
	if pf.SameSettlement(update) {
		return Unchanged
	}
	if !pf.Apply(update) {
		return AlreadyPaid
	}
	return Applied
}
