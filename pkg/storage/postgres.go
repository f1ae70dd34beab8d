package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS contracts (
	seq     BIGSERIAL PRIMARY KEY,
	id      BIGINT NOT NULL CONSTRAINT contracts_id_key UNIQUE,
	address TEXT   NOT NULL CONSTRAINT contracts_address_key UNIQUE,
	doc     JSONB  NOT NULL
)`

// appendLockKey serializes id assignment across concurrent appends
const appendLockKey = 0x636f6e7472616374

// uniqueViolation is the SQLSTATE for unique_violation
const uniqueViolation = "23505"

const (
	idConstraint      = "contracts_id_key"
	addressConstraint = "contracts_address_key"
)

// PostgresStorage implements Storage on a PostgreSQL table.
// Addresses are stored lower-cased so lookups are case-insensitive.
type PostgresStorage struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStorage connects to databaseURL and ensures the schema exists
func NewPostgresStorage(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresStorage, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logger.Info("Connected to postgres contract store")
	return &PostgresStorage{pool: pool, logger: logger}, nil
}

func (s *PostgresStorage) List(ctx context.Context) ([]*models.Contract, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM contracts ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	contracts := []*models.Contract{}
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		c, err := decodeContract(doc)
		if err != nil {
			return nil, err
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}
	return contracts, nil
}

func (s *PostgresStorage) Append(ctx context.Context, c *models.Contract) error {
	if err := validateRecord(c); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(appendLockKey)); err != nil {
		return fmt.Errorf("failed to take append lock: %w", err)
	}

	id := c.ID
	if id == 0 {
		var maxID int64
		if err := tx.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM contracts`).Scan(&maxID); err != nil {
			return fmt.Errorf("failed to read max id: %w", err)
		}
		id = nextID(maxID)
	}

	record := c.Clone()
	record.ID = id
	doc, err := encodeContract(record)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO contracts (id, address, doc) VALUES ($1, $2, $3)`,
		id, strings.ToLower(c.Address), doc,
	)
	if err != nil {
		return insertError(err, id, c.Address)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	c.ID = id
	return nil
}

// insertError names the column a unique violation conflicted on
func insertError(err error, id int64, address string) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return fmt.Errorf("failed to insert contract: %w", err)
	}
	switch pgErr.ConstraintName {
	case idConstraint:
		return fmt.Errorf("%w: contract id %d", ErrAlreadyExists, id)
	case addressConstraint:
		return fmt.Errorf("%w: contract at %s", ErrAlreadyExists, address)
	default:
		return fmt.Errorf("%w: %s", ErrAlreadyExists, pgErr.ConstraintName)
	}
}

func (s *PostgresStorage) FindByAddress(ctx context.Context, address string) (*models.Contract, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx,
		`SELECT doc FROM contracts WHERE address = $1`, strings.ToLower(address),
	).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return decodeContract(doc)
}

func (s *PostgresStorage) UpdatePaymentFunction(ctx context.Context, address, name string, update models.PaymentUpdate) (UpdateOutcome, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return FunctionNotFound, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var seq int64
	var doc []byte
	err = tx.QueryRow(ctx,
		`SELECT seq, doc FROM contracts WHERE address = $1 FOR UPDATE`, strings.ToLower(address),
	).Scan(&seq, &doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return FunctionNotFound, ErrNotFound
	}
	if err != nil {
		return FunctionNotFound, fmt.Errorf("failed to lock contract: %w", err)
	}

	c, err := decodeContract(doc)
	if err != nil {
		return FunctionNotFound, err
	}

	outcome := applyPaymentUpdate(c, name, update)
	if outcome != Applied {
		return outcome, nil
	}

	updated, err := encodeContract(c)
	if err != nil {
		return FunctionNotFound, err
	}
	if _, err := tx.Exec(ctx, `UPDATE contracts SET doc = $1 WHERE seq = $2`, updated, seq); err != nil {
		return FunctionNotFound, fmt.Errorf("failed to update contract: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return FunctionNotFound, fmt.Errorf("failed to commit: %w", err)
	}
	return Applied, nil
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
