package graphql

import (
	"errors"
	"fmt"
	"strings"

	"github.com/graphql-go/graphql"
	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/storage"
)

func (s *Schema) resolveContracts(p graphql.ResolveParams) (interface{}, error) {
	contracts, err := s.store.List(p.Context)
	if err != nil {
		s.logger.Error("failed to list contracts", zap.Error(err))
		return nil, err
	}

	if term, ok := p.Args["search"].(string); ok && strings.TrimSpace(term) != "" {
		contracts = models.Filter(contracts, term)
	}
	if newest, _ := p.Args["newestFirst"].(bool); newest {
		contracts = models.NewestFirst(contracts)
	}

	out := make([]interface{}, len(contracts))
	for i, c := range contracts {
		out[i] = contractToMap(c)
	}
	return out, nil
}

func (s *Schema) resolveContract(p graphql.ResolveParams) (interface{}, error) {
	address, ok := p.Args["address"].(string)
	if !ok {
		return nil, fmt.Errorf("invalid address")
	}

	c, err := s.store.FindByAddress(p.Context, address)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		s.logger.Error("failed to get contract",
			zap.String("address", address),
			zap.Error(err))
		return nil, err
	}
	return contractToMap(c), nil
}

func (s *Schema) resolveStats(p graphql.ResolveParams) (interface{}, error) {
	contracts, err := s.store.List(p.Context)
	if err != nil {
		return nil, err
	}
	return statsToMap(models.Summarize(contracts)), nil
}

func (s *Schema) resolveOutstandingPayments(p graphql.ResolveParams) (interface{}, error) {
	address, _ := p.Args["address"].(string)
	summary, err := s.ledger.Outstanding(p.Context, address)
	if err != nil {
		return nil, err
	}
	return summaryToMap(summary), nil
}
