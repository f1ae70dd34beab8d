package generator

import (
	"fmt"
	"strings"
)

const systemPrompt = "You are an expert Solidity developer. Create secure, efficient smart contracts " +
	"based on user requirements. Always respond with valid JSON."

const responseShape = `{
  "contractCode": "// SPDX-License-Identifier: MIT...",
  "contractName": "ContractName",
  "description": "Brief description",
  "paymentFunctions": [{"name": "functionName", "amount": "1.0 ether", "recipient": "contractor"}]
}`

func userPrompt(goal, details string) string {
	var b strings.Builder
	b.WriteString("Create a Solidity smart contract based on the following requirements:\n\n")
	fmt.Fprintf(&b, "Goal: %s\n", goal)
	if details != "" {
		fmt.Fprintf(&b, "Additional Details: %s\n", details)
	}
	b.WriteString(`
Please provide:
1. Complete Solidity code
2. Contract name
3. Brief description of functionality
4. Any payment functions if applicable

The contract should be production-ready and secure. Include proper error handling and events.

Format the response as JSON with the following structure:
`)
	b.WriteString(responseShape)
	return b.String()
}
