package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Amount is a nominal price such as "1.0 ether". Bare numbers in JSON
// are accepted and kept in their textual form.
type Amount string

// UnmarshalJSON accepts either a JSON string or a JSON number.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*a = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Wei parses the amount into wei.
func (a Amount) Wei() (*big.Int, error) {
	return ParseAmount(string(a))
}

var unitExponents = map[string]int32{
	"wei":    0,
	"kwei":   3,
	"mwei":   6,
	"gwei":   9,
	"szabo":  12,
	"finney": 15,
	"eth":    18,
	"ether":  18,
}

// ParseAmount converts "<number> [unit]" into wei. The unit defaults to ether.
func ParseAmount(s string) (*big.Int, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 || len(fields) > 2 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}

	value, err := decimal.NewFromString(fields[0])
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if value.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}

	exp := int32(18)
	if len(fields) == 2 {
		e, ok := unitExponents[strings.ToLower(fields[1])]
		if !ok {
			return nil, fmt.Errorf("invalid amount %q: unknown unit %q", s, fields[1])
		}
		exp = e
	}

	wei := value.Shift(exp)
	if !wei.IsInteger() {
		return nil, fmt.Errorf("invalid amount %q: finer than one wei", s)
	}
	return wei.BigInt(), nil
}

// FormatEther renders a wei value as a decimal ether string.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -18).String()
}
