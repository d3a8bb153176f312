package service

import (
	"context"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/domain/orderbook"
)

// Response is a reply of the transport-agnostic matcher protocol.
// The HTTP adapter maps these onto status codes.
type Response interface {
	respTag() string
}

type OrderAccepted struct {
	Order *order.Order `json:"order"`
}

type OrderRejected struct {
	Message string `json:"message"`
}

type OrderCanceled struct {
	OrderID order.ID `json:"orderId"`
}

type OrderCancelRejected struct {
	Message string `json:"message"`
}

// PairReversed rejects a request whose pair is the reverse of the
// canonical orientation; Canonical carries the accepted form.
type PairReversed struct {
	Message   string     `json:"message"`
	Canonical asset.Pair `json:"canonical"`
}

type PairRejected struct {
	Message string `json:"message"`
}

// OrderBookView is an aggregated depth response.
type OrderBookView struct {
	Pair asset.Pair            `json:"pair"`
	Bids []orderbook.LevelView `json:"bids"`
	Asks []orderbook.LevelView `json:"asks"`
}

type OrderDeleted struct {
	OrderID order.ID `json:"orderId"`
}

// Market is one row of the markets listing.
type Market struct {
	Pair                asset.Pair `json:"pair"`
	AmountAssetName     string     `json:"amountAssetName"`
	PriceAssetName      string     `json:"priceAssetName"`
	AmountAssetDecimals uint8      `json:"amountAssetDecimals"`
	PriceAssetDecimals  uint8      `json:"priceAssetDecimals"`
	CreatedAt           int64      `json:"created"`
}

// MarketsView lists open markets together with the matcher identity.
type MarketsView struct {
	MatcherPublicKey order.PublicKey `json:"matcherPublicKey"`
	Markets          []Market        `json:"markets"`
}

func (OrderAccepted) respTag() string       { return "OrderAccepted" }
func (OrderRejected) respTag() string       { return "OrderRejected" }
func (OrderCanceled) respTag() string       { return "OrderCanceled" }
func (OrderCancelRejected) respTag() string { return "OrderCancelRejected" }
func (PairReversed) respTag() string        { return "PairReversed" }
func (PairRejected) respTag() string        { return "PairRejected" }
func (OrderBookView) respTag() string       { return "OrderBook" }
func (OrderDeleted) respTag() string        { return "OrderDeleted" }
func (MarketsView) respTag() string         { return "Markets" }

// Publisher is the outbound event stream. Best-effort; the WAL is
// the source of truth.
type Publisher interface {
	Send(ctx context.Context, key, value []byte) error
}
