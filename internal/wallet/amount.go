package wallet

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Decimals is the number of minor-unit digits of one coin (satoshi precision).
const Decimals = 8

// FormatAmount renders minor units as a coin amount with Decimals places,
// e.g. 12345 -> "0.00012345".
func FormatAmount(minor int64) string {
	return decimal.New(minor, -Decimals).StringFixed(Decimals)
}

// ParseAmount converts a coin amount string into minor units. Digits beyond
// Decimals are truncated toward zero.
func ParseAmount(coins string) (int64, error) {
	d, err := decimal.NewFromString(coins)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", coins, err)
	}
	return d.Shift(Decimals).IntPart(), nil
}
