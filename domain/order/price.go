package order

import (
	"errors"
	"math/bits"
)

// PriceConstant fixes the price scale: a price is the number of
// price-asset base units paid per PriceConstant amount-asset base
// units.
const PriceConstant = 100_000_000

var ErrVolumeOverflow = errors.New("price volume overflows int64")

// PriceVolume converts an amount-asset quantity at a price into
// price-asset base units, computing the 128-bit product exactly.
func PriceVolume(amount, price int64) (int64, error) {
	if amount < 0 || price < 0 {
		return 0, ErrVolumeOverflow
	}
	hi, lo := bits.Mul64(uint64(amount), uint64(price))
	if hi >= PriceConstant {
		return 0, ErrVolumeOverflow
	}
	q, _ := bits.Div64(hi, lo, PriceConstant)
	if q > uint64(1<<63-1) {
		return 0, ErrVolumeOverflow
	}
	return int64(q), nil
}

// ExactPriceVolume reports whether amount·price lands exactly on a
// price-asset base unit. A residual that fails this check is dust
// and cannot settle.
func ExactPriceVolume(amount, price int64) bool {
	if amount <= 0 || price <= 0 {
		return false
	}
	return (amount%PriceConstant)*(price%PriceConstant)%PriceConstant == 0
}

// ProRata scales value by part/total using exact 128-bit
// intermediates. Used for proportional fee and reserve release.
func ProRata(value, part, total int64) int64 {
	if total <= 0 || part <= 0 || value <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(value), uint64(part))
	if hi >= uint64(total) {
		return value
	}
	q, _ := bits.Div64(hi, lo, uint64(total))
	return int64(q)
}
