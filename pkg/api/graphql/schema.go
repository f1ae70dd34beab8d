// Package graphql exposes a read-only GraphQL view of the contract ledger.
package graphql

import (
	"context"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
)

// ContractReader is the store surface the schema reads
type ContractReader interface {
	List(ctx context.Context) ([]*models.Contract, error)
	FindByAddress(ctx context.Context, address string) (*models.Contract, error)
}

// Ledger reports outstanding payment obligations
type Ledger interface {
	Outstanding(ctx context.Context, address string) (*payments.Summary, error)
}

// Schema holds the GraphQL schema
type Schema struct {
	schema graphql.Schema
	store  ContractReader
	ledger Ledger
	logger *zap.Logger
}

// SchemaBuilder helps construct a GraphQL schema using the Builder pattern
type SchemaBuilder struct {
	schema  *Schema
	queries graphql.Fields
}

// NewSchemaBuilder creates a new schema builder
func NewSchemaBuilder(store ContractReader, logger *zap.Logger) *SchemaBuilder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SchemaBuilder{
		schema:  &Schema{store: store, logger: logger},
		queries: make(graphql.Fields),
	}
}

// WithContractQueries adds contracts, contract and stats
func (b *SchemaBuilder) WithContractQueries() *SchemaBuilder {
	s := b.schema

	b.queries["contracts"] = &graphql.Field{
		Type:        graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(contractType))),
		Description: "Stored contracts in creation order, optionally filtered by a search term",
		Args: graphql.FieldConfigArgument{
			"search": &graphql.ArgumentConfig{
				Type:        graphql.String,
				Description: "Case-insensitive match on name, goal or address",
			},
			"newestFirst": &graphql.ArgumentConfig{
				Type:         graphql.Boolean,
				DefaultValue: false,
			},
		},
		Resolve: s.resolveContracts,
	}
	b.queries["contract"] = &graphql.Field{
		Type: contractType,
		Args: graphql.FieldConfigArgument{
			"address": &graphql.ArgumentConfig{
				Type: graphql.NewNonNull(addressType),
			},
		},
		Resolve: s.resolveContract,
	}
	b.queries["stats"] = &graphql.Field{
		Type:    graphql.NewNonNull(statsType),
		Resolve: s.resolveStats,
	}
	return b
}

// WithPaymentQueries adds outstandingPayments
func (b *SchemaBuilder) WithPaymentQueries(ledger Ledger) *SchemaBuilder {
	s := b.schema
	s.ledger = ledger

	b.queries["outstandingPayments"] = &graphql.Field{
		Type: graphql.NewNonNull(outstandingPaymentsType),
		Args: graphql.FieldConfigArgument{
			"address": &graphql.ArgumentConfig{
				Type:        addressType,
				Description: "Limit the report to one contract",
			},
		},
		Resolve: s.resolveOutstandingPayments,
	}
	return b
}

// Build creates the schema
func (b *SchemaBuilder) Build() (*Schema, error) {
	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:   "Query",
		Fields: b.queries,
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
	if err != nil {
		return nil, err
	}

	b.schema.schema = schema
	return b.schema, nil
}

// Schema returns the GraphQL schema
func (s *Schema) Schema() graphql.Schema {
	return s.schema
}
