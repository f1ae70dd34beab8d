// Package models defines the contract records persisted by the contract store.
package models

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a contract record.
type Status string

const (
	StatusPending  Status = "pending"
	StatusDeployed Status = "deployed"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDeployed, StatusFailed:
		return true
	}
	return false
}

// CanTransition reports whether a record may move from s to next.
// Only pending records change state; deployed and failed are terminal.
func (s Status) CanTransition(next Status) bool {
	return s == StatusPending && (next == StatusDeployed || next == StatusFailed)
}

// DefaultGoal is recorded when a deployment request carries no goal.
const DefaultGoal = "Generated smart contract"

// DefaultABI is the fixed signature list attached to every bookkeeping deployment.
var DefaultABI = []string{
	"constructor(string memory _name)",
	"function name() view returns (string)",
	"event ContractCreated(string name, address owner)",
}

// Contract is the unit of persistence.
type Contract struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Goal       string    `json:"goal"`
	Address    string    `json:"address"`
	Status     Status    `json:"status"`
	DeployedAt time.Time `json:"deployedAt"`
	GasUsed    uint64    `json:"gasUsed"`
	Value      float64   `json:"value"`
	ABI        []string  `json:"abi"`
	Metadata   Metadata  `json:"metadata"`
}

// Metadata carries the generated source and the billable actions of a contract.
type Metadata struct {
	PaymentFunctions []PaymentFunction `json:"paymentFunctions"`
	ContractCode     string            `json:"contractCode"`
	Description      string            `json:"description,omitempty"`
	TransactionHash  string            `json:"transactionHash,omitempty"`
	Deployer         string            `json:"deployer,omitempty"`
	ChainID          uint64            `json:"chainId,omitempty"`
}

// PaymentFunction is one named, priced action exposed by a contract.
type PaymentFunction struct {
	Name            string     `json:"name"`
	Amount          Amount     `json:"amount"`
	Recipient       string     `json:"recipient"`
	Paid            bool       `json:"paid"`
	TransactionHash string     `json:"transactionHash,omitempty"`
	Payer           string     `json:"payer,omitempty"`
	PaidAt          *time.Time `json:"paidAt,omitempty"`
}

// PaymentUpdate is the settlement merged into a payment function.
type PaymentUpdate struct {
	TransactionHash string
	Payer           string
	PaidAt          time.Time
}

// Apply merges u into pf. It reports false, leaving pf untouched, when pf is
// already settled: paid never resets and the first settlement is kept.
func (pf *PaymentFunction) Apply(u PaymentUpdate) bool {
	if pf.Paid {
		return false
	}
	paidAt := u.PaidAt.UTC()
	pf.Paid = true
	pf.TransactionHash = u.TransactionHash
	pf.Payer = u.Payer
	pf.PaidAt = &paidAt
	return true
}

// SameSettlement reports whether u carries the settlement already recorded on pf.
func (pf *PaymentFunction) SameSettlement(u PaymentUpdate) bool {
	return pf.Paid && strings.EqualFold(pf.TransactionHash, u.TransactionHash)
}

// FindPaymentFunction returns the first payment function with the given name.
func (c *Contract) FindPaymentFunction(name string) (*PaymentFunction, bool) {
	for i := range c.Metadata.PaymentFunctions {
		if c.Metadata.PaymentFunctions[i].Name == name {
			return &c.Metadata.PaymentFunctions[i], true
		}
	}
	return nil, false
}

// FirstUnpaid returns the first payment function that has not been settled.
func (c *Contract) FirstUnpaid() (*PaymentFunction, bool) {
	for i := range c.Metadata.PaymentFunctions {
		if !c.Metadata.PaymentFunctions[i].Paid {
			return &c.Metadata.PaymentFunctions[i], true
		}
	}
	return nil, false
}

// HasAddress compares addresses case-insensitively, so checksummed and
// lower-case hex forms of the same address match.
func (c *Contract) HasAddress(address string) bool {
	return address != "" && strings.EqualFold(c.Address, address)
}

// Matches reports whether term occurs in the name, goal or address, ignoring case.
// An empty term matches everything.
func (c *Contract) Matches(term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(c.Name), term) ||
		strings.Contains(strings.ToLower(c.Goal), term) ||
		strings.Contains(strings.ToLower(c.Address), term)
}

// Clone returns a deep copy so callers cannot mutate store-owned records.
func (c *Contract) Clone() *Contract {
	if c == nil {
		return nil
	}
	out := *c
	if c.ABI != nil {
		out.ABI = append([]string(nil), c.ABI...)
	}
	if c.Metadata.PaymentFunctions != nil {
		out.Metadata.PaymentFunctions = make([]PaymentFunction, len(c.Metadata.PaymentFunctions))
		for i, pf := range c.Metadata.PaymentFunctions {
			if pf.PaidAt != nil {
				t := *pf.PaidAt
				pf.PaidAt = &t
			}
			out.Metadata.PaymentFunctions[i] = pf
		}
	}
	return &out
}

// Filter returns the contracts matching term.
func Filter(contracts []*Contract, term string) []*Contract {
	out := make([]*Contract, 0, len(contracts))
	for _, c := range contracts {
		if c.Matches(term) {
			out = append(out, c)
		}
	}
	return out
}

// NewestFirst returns a copy of contracts in reverse insertion order.
func NewestFirst(contracts []*Contract) []*Contract {
	out := make([]*Contract, len(contracts))
	for i, c := range contracts {
		out[len(contracts)-1-i] = c
	}
	return out
}
