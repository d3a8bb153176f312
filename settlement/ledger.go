package settlement

import (
	"fenrir/domain/asset"
	"fenrir/domain/order"
)

// AssetInfo is the issue metadata of an asset on the settlement
// layer.
type AssetInfo struct {
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	Issuer   string `json:"issuer,omitempty"`
	IssuedAt int64  `json:"issuedAt,omitempty"`
}

// Ledger is the settlement-layer surface the matcher consumes. The
// submission channel is concurrency-safe; balance reads are
// point-in-time.
type Ledger interface {
	// SubmitExchangeTransaction validates the transaction and, if
	// valid, accepts it into the pending pool. False means the trade
	// must not happen.
	SubmitExchangeTransaction(tx *ExchangeTransaction) bool

	BalanceOf(addr order.Address, a asset.Asset) int64
	TotalSupply(a asset.Asset) int64
	AssetInfo(a asset.Asset) (AssetInfo, bool)
}
