package http

import (
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"fenrir/domain/asset"
	"fenrir/domain/orderbook"
	"fenrir/service"
)

// decimalView renders a depth response with human-readable decimal
// strings scaled by the assets' on-ledger decimals. Matching itself
// never leaves fixed-point int64; this is wire formatting only.
func (s *Server) decimalView(v service.OrderBookView) gin.H {
	amountDec := s.assetDecimals(v.Pair.AmountAsset)
	priceDec := s.assetDecimals(v.Pair.PriceAsset)

	// A price is price-asset base units per 10^8 amount-asset base
	// units, so the human price scale is 8 + priceDecimals - amountDecimals.
	priceExp := -(8 + int32(priceDec) - int32(amountDec))
	amountExp := -int32(amountDec)

	render := func(levels []orderbook.LevelView) []gin.H {
		out := make([]gin.H, 0, len(levels))
		for _, lvl := range levels {
			out = append(out, gin.H{
				"price":  decimal.New(lvl.Price, priceExp).String(),
				"amount": decimal.New(lvl.Amount, amountExp).String(),
			})
		}
		return out
	}

	return gin.H{
		"pair": v.Pair,
		"bids": render(v.Bids),
		"asks": render(v.Asks),
	}
}

func (s *Server) assetDecimals(a asset.Asset) uint8 {
	if info, ok := s.ledger.AssetInfo(a); ok {
		return info.Decimals
	}
	return 8
}
