package graphql

import (
	"context"
	"net/http"

	"github.com/graphql-go/graphql"
	graphqlhandler "github.com/graphql-go/handler"
	"go.uber.org/zap"
)

// Handler handles GraphQL requests
type Handler struct {
	schema  *Schema
	handler *graphqlhandler.Handler
	logger  *zap.Logger
}

// NewHandler creates a GraphQL handler over store and ledger. The
// playground is served on GET when playground is true.
func NewHandler(store ContractReader, ledger Ledger, playground bool, logger *zap.Logger) (*Handler, error) {
	schema, err := NewSchemaBuilder(store, logger).
		WithContractQueries().
		WithPaymentQueries(ledger).
		Build()
	if err != nil {
		return nil, err
	}

	h := graphqlhandler.New(&graphqlhandler.Config{
		Schema:     &schema.schema,
		Pretty:     true,
		GraphiQL:   false,
		Playground: playground,
	})

	return &Handler{
		schema:  schema,
		handler: h,
		logger:  schema.logger,
	}, nil
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.handler.ServeHTTP(w, r)
}

// ExecuteQuery runs query outside HTTP, as the CLI does
func (h *Handler) ExecuteQuery(ctx context.Context, query string, variables map[string]interface{}) *graphql.Result {
	return graphql.Do(graphql.Params{
		Context:        ctx,
		Schema:         h.schema.schema,
		RequestString:  query,
		VariableValues: variables,
	})
}
