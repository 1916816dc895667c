package ledger

import (
	"fmt"
	"math/big"
	"strings"
)

// Denominations in wei.
var (
	Wei   = big.NewInt(1)
	Gwei  = big.NewInt(1e9)
	Ether = big.NewInt(1e18)
)

// ParseAmount parses "1000", "1000wei", "2.5gwei" or "1.5ether" into wei.
// Fractions that do not resolve to a whole number of wei are rejected.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return nil, fmt.Errorf("empty amount")
	}

	unit := Wei
	switch {
	case strings.HasSuffix(s, "ether"):
		unit, s = Ether, strings.TrimSuffix(s, "ether")
	case strings.HasSuffix(s, "gwei"):
		unit, s = Gwei, strings.TrimSuffix(s, "gwei")
	case strings.HasSuffix(s, "wei"):
		s = strings.TrimSuffix(s, "wei")
	}
	s = strings.TrimSpace(s)

	value, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	value.Mul(value, new(big.Rat).SetInt(unit))
	if !value.IsInt() {
		return nil, fmt.Errorf("amount %q is not a whole number of wei", s)
	}

	amount := new(big.Int).Set(value.Num())
	if err := checkAmount(amount); err != nil {
		return nil, fmt.Errorf("amount %q: %w", s, err)
	}
	return amount, nil
}

// FormatEther renders a wei amount in ether without trailing zeros.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	s := new(big.Rat).SetFrac(wei, Ether).FloatString(18)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
