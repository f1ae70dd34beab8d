package models

import "math/big"

// Stats aggregates a contract collection for dashboards.
type Stats struct {
	TotalContracts       int     `json:"totalContracts"`
	DeployedContracts    int     `json:"deployedContracts"`
	ActiveContracts      int     `json:"activeContracts"`
	TotalValue           float64 `json:"totalValue"`
	GasSpent             uint64  `json:"gasSpent"`
	AvgGasPerContract    uint64  `json:"avgGasPerContract"`
	PaymentFunctions     int     `json:"paymentFunctions"`
	PaidFunctions        int     `json:"paidFunctions"`
	OutstandingFunctions int     `json:"outstandingFunctions"`
}

// Summarize computes Stats over contracts.
// A contract is active when it is deployed and still has an unpaid payment function.
func Summarize(contracts []*Contract) Stats {
	var s Stats
	s.TotalContracts = len(contracts)
	for _, c := range contracts {
		if c.Status == StatusDeployed {
			s.DeployedContracts++
			if _, ok := c.FirstUnpaid(); ok {
				s.ActiveContracts++
			}
		}
		s.TotalValue += c.Value
		s.GasSpent += c.GasUsed
		for _, pf := range c.Metadata.PaymentFunctions {
			s.PaymentFunctions++
			if pf.Paid {
				s.PaidFunctions++
			} else {
				s.OutstandingFunctions++
			}
		}
	}
	if s.TotalContracts > 0 {
		s.AvgGasPerContract = s.GasSpent / uint64(s.TotalContracts)
	}
	return s
}

// Obligation is one unpaid payment function together with its contract.
type Obligation struct {
	ContractID      int64  `json:"contractId"`
	ContractName    string `json:"contractName"`
	ContractAddress string `json:"contractAddress"`
	FunctionName    string `json:"functionName"`
	Amount          Amount `json:"amount"`
	Recipient       string `json:"recipient"`
	// Wei is empty when Amount cannot be parsed.
	Wei string `json:"wei,omitempty"`
}

// Outstanding lists every unpaid payment function in store order and the
// total of the parseable amounts in wei.
func Outstanding(contracts []*Contract) ([]Obligation, *big.Int) {
	total := new(big.Int)
	out := make([]Obligation, 0)
	for _, c := range contracts {
		for _, pf := range c.Metadata.PaymentFunctions {
			if pf.Paid {
				continue
			}
			ob := Obligation{
				ContractID:      c.ID,
				ContractName:    c.Name,
				ContractAddress: c.Address,
				FunctionName:    pf.Name,
				Amount:          pf.Amount,
				Recipient:       pf.Recipient,
			}
			if wei, err := pf.Amount.Wei(); err == nil {
				ob.Wei = wei.String()
				total.Add(total, wei)
			}
			out = append(out, ob)
		}
	}
	return out, total
}
