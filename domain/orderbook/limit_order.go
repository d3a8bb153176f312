package orderbook

import "fenrir/domain/order"

// LimitOrder is the resident view of an immutable order: the order
// itself plus how much of it is still unfilled.
type LimitOrder struct {
	Order     *order.Order `json:"order"`
	Remaining int64        `json:"remaining"`
}

func NewLimitOrder(o *order.Order) LimitOrder {
	return LimitOrder{Order: o, Remaining: o.Amount}
}

func (lo LimitOrder) Filled() int64 {
	return lo.Order.Amount - lo.Remaining
}

func (lo LimitOrder) IsFilled() bool {
	return lo.Remaining == 0
}

// Partial returns a copy with the given remaining amount.
func (lo LimitOrder) Partial(remaining int64) LimitOrder {
	return LimitOrder{Order: lo.Order, Remaining: remaining}
}

// SettleableRemaining reports whether the remaining amount can still
// produce a trade: positive and not dust at the order's price.
func (lo LimitOrder) SettleableRemaining() bool {
	return lo.Remaining > 0 && order.ExactPriceVolume(lo.Remaining, lo.Order.Price)
}
