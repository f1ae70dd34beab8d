package storage

import (
	"encoding/json"
	"fmt"

	"github.com/0xmhha/contractforge/pkg/models"
)

// document is the on-disk shape of the JSON store: {"contracts": [...]}
type document struct {
	Contracts []*models.Contract `json:"contracts"`
}

func decodeDocument(data []byte) ([]*models.Contract, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	if doc.Contracts == nil {
		doc.Contracts = []*models.Contract{}
	}
	return doc.Contracts, nil
}

func encodeDocument(contracts []*models.Contract) ([]byte, error) {
	if contracts == nil {
		contracts = []*models.Contract{}
	}
	data, err := json.MarshalIndent(document{Contracts: contracts}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return append(data, '\n'), nil
}

func encodeContract(c *models.Contract) ([]byte, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode contract: %w", err)
	}
	return data, nil
}

func decodeContract(data []byte) (*models.Contract, error) {
	var c models.Contract
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidData, err)
	}
	return &c, nil
}
