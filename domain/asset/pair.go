package asset

import "fmt"

// Pair is an asset pair: amounts are denominated in AmountAsset,
// prices in PriceAsset. A pair and its reverse describe the same
// market; the dispatcher admits only the canonical orientation.
type Pair struct {
	AmountAsset Asset `json:"amountAsset"`
	PriceAsset  Asset `json:"priceAsset"`
}

func NewPair(amount, price Asset) Pair {
	return Pair{AmountAsset: amount, PriceAsset: price}
}

func (p Pair) Reverse() Pair {
	return Pair{AmountAsset: p.PriceAsset, PriceAsset: p.AmountAsset}
}

// Valid reports whether the pair is structurally sound.
func (p Pair) Valid() bool {
	return p.AmountAsset != p.PriceAsset
}

func (p Pair) String() string {
	return fmt.Sprintf("%s-%s", p.AmountAsset, p.PriceAsset)
}

// Key is a filesystem- and storage-safe identifier for the pair.
func (p Pair) Key() string {
	return p.String()
}

// CanonicalByBytes reports whether the pair satisfies the fallback
// orientation rule: the price asset must sort strictly before the
// amount asset in raw byte order.
func (p Pair) CanonicalByBytes() bool {
	return p.PriceAsset.Compare(p.AmountAsset) < 0
}
