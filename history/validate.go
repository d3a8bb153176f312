package history

import (
	"errors"
	"fmt"
	"time"

	"fenrir/domain/asset"
	"fenrir/domain/order"
	"fenrir/domain/orderbook"
	"fenrir/settlement"
)

var (
	ErrInvalidSignature       = errors.New("order signature invalid")
	ErrOrderExpired           = errors.New("order expired")
	ErrTimestampOutOfWindow   = errors.New("order timestamp outside allowed window")
	ErrNonPositiveAmount      = errors.New("amount must be positive")
	ErrNonPositivePrice       = errors.New("price must be positive")
	ErrBlacklistedAsset       = errors.New("asset is blacklisted")
	ErrUnknownAsset           = errors.New("asset unknown to settlement layer")
	ErrFeeTooLow              = errors.New("matcher fee below minimum")
	ErrInsufficientBalance    = errors.New("insufficient tradable balance")
	ErrOrderNotFound          = errors.New("order not found")
	ErrCancelSignatureInvalid = errors.New("cancel signature does not match order sender")
	ErrOrderFinalized         = errors.New("order already in terminal state")
	ErrNotDeletable           = errors.New("order couldn't be deleted")
)

// ValidationConfig bounds pre-trade checks.
type ValidationConfig struct {
	MinOrderFee      int64
	MaxTimestampDiff time.Duration
	MaxOrderTTL      time.Duration
	Blacklisted      []asset.Asset
}

// validator runs every pre-trade check. It lives inside the history
// service so the balance check sees the projection it maintains.
type validator struct {
	cfg    ValidationConfig
	ledger settlement.Ledger
	store  *Store
}

func (v *validator) validateOrder(o *order.Order, now time.Time) error {
	if o.Amount <= 0 {
		return ErrNonPositiveAmount
	}
	if o.Price <= 0 {
		return ErrNonPositivePrice
	}
	if !o.Verify() {
		return ErrInvalidSignature
	}

	nowMs := now.UnixMilli()
	skew := v.cfg.MaxTimestampDiff.Milliseconds()
	if o.Timestamp < nowMs-skew || o.Timestamp > nowMs+skew {
		return ErrTimestampOutOfWindow
	}
	if o.Expiration <= o.Timestamp || o.Expiration <= nowMs {
		return ErrOrderExpired
	}
	if o.Expiration > o.Timestamp+v.cfg.MaxOrderTTL.Milliseconds() {
		return fmt.Errorf("%w: expiration beyond %s horizon", ErrOrderExpired, v.cfg.MaxOrderTTL)
	}
	if o.MatcherFee < v.cfg.MinOrderFee {
		return ErrFeeTooLow
	}

	for _, a := range []asset.Asset{o.Pair.AmountAsset, o.Pair.PriceAsset} {
		for _, bad := range v.cfg.Blacklisted {
			if a == bad {
				return fmt.Errorf("%w: %s", ErrBlacklistedAsset, a)
			}
		}
		if !a.IsNative() && v.ledger.TotalSupply(a) <= 0 {
			return fmt.Errorf("%w: %s", ErrUnknownAsset, a)
		}
	}

	// A new order must be fundable on top of everything the sender
	// already has resting.
	required, err := Reservation(orderbook.NewLimitOrder(o), o.Amount)
	if err != nil {
		return err
	}
	addr := o.SenderAddress()
	for a, amt := range required {
		tradable := v.ledger.BalanceOf(addr, a) - v.store.OpenVolume(addr, a)
		if tradable < amt {
			return fmt.Errorf("%w: need %d of %s, tradable %d", ErrInsufficientBalance, amt, a, tradable)
		}
	}
	return nil
}

// validateCancel confirms the request is signed by the order's
// sender and resolves the order being cancelled.
func (v *validator) validateCancel(req *order.CancelRequest) (*order.Order, error) {
	o, ok := v.store.GetOrder(req.OrderID)
	if !ok {
		return nil, ErrOrderNotFound
	}
	if req.SenderPK != o.SenderPK || !req.Verify() {
		return nil, ErrCancelSignatureInvalid
	}
	if info, ok := v.store.GetInfo(req.OrderID); ok && info.Status().Kind.Terminal() {
		return nil, ErrOrderFinalized
	}
	return o, nil
}
