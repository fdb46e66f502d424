package pipeline

import (
	"math/big"
	"strings"

	"github.com/scalarorg/xtransfer/pkg/types"
	"github.com/shopspring/decimal"
)

// ParseAmount converts a human readable amount such as "1.5" into the
// smallest unit of an asset with the given decimals.
func ParseAmount(raw string, decimals int32) (*big.Int, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return nil, types.Errorf(types.ErrValidation, "invalid amount %q", raw)
	}
	if !amount.IsPositive() {
		return nil, types.Errorf(types.ErrValidation, "amount %s must be positive", raw)
	}
	if -amount.Exponent() > decimals && !amount.Equal(amount.Truncate(decimals)) {
		return nil, types.Errorf(types.ErrValidation, "amount %s has more than %d decimals", raw, decimals)
	}
	return amount.Shift(decimals).BigInt(), nil
}

// FormatAmount is the inverse of ParseAmount.
func FormatAmount(value *big.Int, decimals int32) string {
	if value == nil {
		return "0"
	}
	return decimal.NewFromBigInt(value, -decimals).String()
}

func parseMinValue(raw string) (*big.Int, error) {
	if strings.TrimSpace(raw) == "" {
		return big.NewInt(0), nil
	}
	value, ok := new(big.Int).SetString(strings.TrimSpace(raw), 10)
	if !ok || value.Sign() < 0 {
		return nil, types.Errorf(types.ErrValidation, "invalid min value %q", raw)
	}
	return value, nil
}
