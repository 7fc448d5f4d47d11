package validator

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/mselser95/typed-signer/internal/encoder"
	"github.com/mselser95/typed-signer/pkg/types"
	"github.com/shopspring/decimal"
)

// ParseAmount scales a human-readable decimal amount by 10^decimals and checks
// that the result fits an unsigned integer of the given bit width.
// "1234.56" with 8 decimals yields 123456000000.
func ParseAmount(amount string, decimals uint8, bits int) (*big.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", types.ErrInvalidAmount, amount)
	}

	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %s is negative", types.ErrAmountOutOfRange, amount)
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %s has more than %d fractional digits", types.ErrInvalidAmount, amount, decimals)
	}

	n := scaled.BigInt()
	if n.BitLen() > bits {
		return nil, fmt.Errorf("%w: %s scaled by 10^%d exceeds uint%d", types.ErrAmountOutOfRange, amount, decimals, bits)
	}

	return n, nil
}

// NormalizeAddress returns the checksummed form of a hex address.
func NormalizeAddress(addr string) (common.Address, error) {
	a, err := encoder.ParseAddress(addr)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", types.ErrInvalidAddress, err)
	}
	return a, nil
}
