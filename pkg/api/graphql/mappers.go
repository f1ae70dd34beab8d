package graphql

import (
	"strconv"
	"time"

	"github.com/0xmhha/contractforge/pkg/models"
	"github.com/0xmhha/contractforge/pkg/payments"
)

func contractToMap(c *models.Contract) map[string]interface{} {
	if c == nil {
		return nil
	}

	fns := make([]interface{}, len(c.Metadata.PaymentFunctions))
	for i := range c.Metadata.PaymentFunctions {
		fns[i] = paymentFunctionToMap(&c.Metadata.PaymentFunctions[i])
	}
	abi := make([]interface{}, len(c.ABI))
	for i, sig := range c.ABI {
		abi[i] = sig
	}

	return map[string]interface{}{
		"id":               strconv.FormatInt(c.ID, 10),
		"name":             c.Name,
		"goal":             c.Goal,
		"address":          c.Address,
		"status":           string(c.Status),
		"deployedAt":       c.DeployedAt.UTC().Format(time.RFC3339),
		"gasUsed":          strconv.FormatUint(c.GasUsed, 10),
		"value":            c.Value,
		"abi":              abi,
		"contractCode":     c.Metadata.ContractCode,
		"description":      c.Metadata.Description,
		"transactionHash":  c.Metadata.TransactionHash,
		"deployer":         c.Metadata.Deployer,
		"chainId":          strconv.FormatUint(c.Metadata.ChainID, 10),
		"paymentFunctions": fns,
	}
}

func paymentFunctionToMap(pf *models.PaymentFunction) map[string]interface{} {
	m := map[string]interface{}{
		"name":            pf.Name,
		"amount":          string(pf.Amount),
		"recipient":       pf.Recipient,
		"paid":            pf.Paid,
		"transactionHash": nil,
		"payer":           nil,
		"paidAt":          nil,
	}
	if pf.Paid {
		m["transactionHash"] = pf.TransactionHash
		m["payer"] = pf.Payer
		if pf.PaidAt != nil {
			m["paidAt"] = pf.PaidAt.UTC().Format(time.RFC3339)
		}
	}
	return m
}

func summaryToMap(s *payments.Summary) map[string]interface{} {
	obligations := make([]interface{}, len(s.Obligations))
	for i, ob := range s.Obligations {
		var wei interface{}
		if ob.Wei != "" {
			wei = ob.Wei
		}
		obligations[i] = map[string]interface{}{
			"contractId":      strconv.FormatInt(ob.ContractID, 10),
			"contractName":    ob.ContractName,
			"contractAddress": ob.ContractAddress,
			"functionName":    ob.FunctionName,
			"amount":          string(ob.Amount),
			"recipient":       ob.Recipient,
			"wei":             wei,
		}
	}
	return map[string]interface{}{
		"obligations": obligations,
		"totalWei":    s.TotalWei,
		"totalEther":  s.TotalEther,
		"count":       s.Count,
	}
}

func statsToMap(s models.Stats) map[string]interface{} {
	return map[string]interface{}{
		"totalContracts":       s.TotalContracts,
		"deployedContracts":    s.DeployedContracts,
		"activeContracts":      s.ActiveContracts,
		"totalValue":           s.TotalValue,
		"gasSpent":             strconv.FormatUint(s.GasSpent, 10),
		"avgGasPerContract":    strconv.FormatUint(s.AvgGasPerContract, 10),
		"paymentFunctions":     s.PaymentFunctions,
		"paidFunctions":        s.PaidFunctions,
		"outstandingFunctions": s.OutstandingFunctions,
	}
}
