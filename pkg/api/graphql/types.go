package graphql

import (
	"github.com/graphql-go/graphql"
)

var (
	// Scalars. 64-bit integers travel as decimal strings.
	bigIntType  = graphql.String
	addressType = graphql.String
	hashType    = graphql.String

	paymentFunctionType     *graphql.Object
	contractType            *graphql.Object
	obligationType          *graphql.Object
	outstandingPaymentsType *graphql.Object
	statsType               *graphql.Object
)

func init() {
	initContractTypes()
	initLedgerTypes()
}

func initContractTypes() {
	paymentFunctionType = graphql.NewObject(graphql.ObjectConfig{
		Name: "PaymentFunction",
		Fields: graphql.Fields{
			"name":            &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"amount":          &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"recipient":       &graphql.Field{Type: graphql.String},
			"paid":            &graphql.Field{Type: graphql.NewNonNull(graphql.Boolean)},
			"transactionHash": &graphql.Field{Type: hashType},
			"payer":           &graphql.Field{Type: graphql.String},
			"paidAt":          &graphql.Field{Type: graphql.String, Description: "RFC 3339 settlement time"},
		},
	})

	contractType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Contract",
		Fields: graphql.Fields{
			"id":               &graphql.Field{Type: graphql.NewNonNull(bigIntType)},
			"name":             &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"goal":             &graphql.Field{Type: graphql.String},
			"address":          &graphql.Field{Type: graphql.NewNonNull(addressType)},
			"status":           &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			"deployedAt":       &graphql.Field{Type: graphql.String},
			"gasUsed":          &graphql.Field{Type: bigIntType},
			"value":            &graphql.Field{Type: graphql.Float},
			"abi":              &graphql.Field{Type: graphql.NewList(graphql.String)},
			"contractCode":     &graphql.Field{Type: graphql.String},
			"description":      &graphql.Field{Type: graphql.String},
			"transactionHash":  &graphql.Field{Type: hashType},
			"deployer":         &graphql.Field{Type: addressType},
			"chainId":          &graphql.Field{Type: bigIntType},
			"paymentFunctions": &graphql.Field{Type: graphql.NewList(paymentFunctionType)},
		},
	})
}

func initLedgerTypes() {
	obligationType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Obligation",
		Fields: graphql.Fields{
			"contractId":      &graphql.Field{Type: bigIntType},
			"contractName":    &graphql.Field{Type: graphql.String},
			"contractAddress": &graphql.Field{Type: addressType},
			"functionName":    &graphql.Field{Type: graphql.String},
			"amount":          &graphql.Field{Type: graphql.String},
			"recipient":       &graphql.Field{Type: graphql.String},
			"wei":             &graphql.Field{Type: bigIntType, Description: "null when the amount cannot be parsed"},
		},
	})

	outstandingPaymentsType = graphql.NewObject(graphql.ObjectConfig{
		Name: "OutstandingPayments",
		Fields: graphql.Fields{
			"obligations": &graphql.Field{Type: graphql.NewList(obligationType)},
			"totalWei":    &graphql.Field{Type: bigIntType},
			"totalEther":  &graphql.Field{Type: graphql.String},
			"count":       &graphql.Field{Type: graphql.Int},
		},
	})

	statsType = graphql.NewObject(graphql.ObjectConfig{
		Name: "Stats",
		Fields: graphql.Fields{
			"totalContracts":       &graphql.Field{Type: graphql.Int},
			"deployedContracts":    &graphql.Field{Type: graphql.Int},
			"activeContracts":      &graphql.Field{Type: graphql.Int},
			"totalValue":           &graphql.Field{Type: graphql.Float},
			"gasSpent":             &graphql.Field{Type: bigIntType},
			"avgGasPerContract":    &graphql.Field{Type: bigIntType},
			"paymentFunctions":     &graphql.Field{Type: graphql.Int},
			"paidFunctions":        &graphql.Field{Type: graphql.Int},
			"outstandingFunctions": &graphql.Field{Type: graphql.Int},
		},
	})
}
