package history

import (
	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/domain/orderbook"
)

// Portfolio maps asset -> reserved amount for one address. Deltas
// combine by asset-wise sum; negative deltas release reserve.
type Portfolio map[asset.Asset]int64

func (p Portfolio) Combine(d Portfolio) Portfolio {
	out := make(Portfolio, len(p)+len(d))
	for a, v := range p {
		out[a] = v
	}
	for a, v := range d {
		out[a] += v
	}
	return out
}

// Negate flips a delta into a release.
func (p Portfolio) Negate() Portfolio {
	out := make(Portfolio, len(p))
	for a, v := range p {
		out[a] = -v
	}
	return out
}

// Reservation computes what resting the given remaining amount
// locks up: a buyer escrows the price-asset volume, a seller the
// amount itself, both plus the matcher fee pro rata to the resting
// fraction.
func Reservation(lo orderbook.LimitOrder, part int64) (Portfolio, error) {
	o := lo.Order
	p := make(Portfolio, 2)
	if o.Side == order.Buy {
		vol, err := order.PriceVolume(part, o.Price)
		if err != nil {
			return nil, err
		}
		p[o.Pair.PriceAsset] += vol
	} else {
		p[o.Pair.AmountAsset] += part
	}
	p[asset.Native] += order.ProRata(o.MatcherFee, part, o.Amount)
	return p, nil
}
