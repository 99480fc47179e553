// Package units converts between human decimal amounts and integer
// smallest-unit amounts without going through floating point.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
)

var (
	ErrEmptyAmount   = errors.New("empty amount")
	ErrInvalidAmount = errors.New("invalid amount")
)

// Plain non-negative decimals only: "12", "1.5", ".5", "3.".
var decimalRe = regexp.MustCompile(`^(\d+\.?\d*|\.\d+)$`)

// IsDecimal reports whether s is a plain non-negative decimal number.
func IsDecimal(s string) bool {
	return decimalRe.MatchString(strings.TrimSpace(s))
}

// ParseUnits scales a decimal string by 10^decimals.
// Fractional digits beyond decimals are truncated, never rounded.
func ParseUnits(amount string, decimals int) (*big.Int, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return nil, ErrEmptyAmount
	}
	if !decimalRe.MatchString(amount) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	if decimals < 0 {
		return nil, fmt.Errorf("negative decimals %d", decimals)
	}
	intPart, fracPart, _ := strings.Cut(amount, ".")
	if len(fracPart) > decimals {
		fracPart = fracPart[:decimals]
	}
	fracPart += strings.Repeat("0", decimals-len(fracPart))
	clean := strings.TrimLeft(intPart+fracPart, "0")
	if clean == "" {
		return big.NewInt(0), nil
	}
	v, ok := new(big.Int).SetString(clean, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, amount)
	}
	return v, nil
}

// FormatUnits renders v at the given decimal scale. The fractional part is
// trimmed of trailing zeros but always keeps one digit: 0 -> "0.0",
// 1500000000000000000 @18 -> "1.5".
func FormatUnits(v *big.Int, decimals int) string {
	if v == nil {
		v = new(big.Int)
	}
	if decimals < 0 {
		decimals = 0
	}
	neg := v.Sign() < 0
	s := new(big.Int).Abs(v).String()
	if len(s) <= decimals {
		s = strings.Repeat("0", decimals-len(s)+1) + s
	}
	intPart := s[:len(s)-decimals]
	frac := strings.TrimRight(s[len(s)-decimals:], "0")
	if frac == "" {
		frac = "0"
	}
	out := intPart + "." + frac
	if neg {
		return "-" + out
	}
	return out
}

// GweiToWei converts a whole gwei amount to wei.
func GweiToWei(g int64) *big.Int {
	x := new(big.Int).SetInt64(g)
	return x.Mul(x, big.NewInt(1_000_000_000))
}
