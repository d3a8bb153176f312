package order

import (
	"bytes"
	"crypto/ed25519"
	"testing"
	"time"

	"fenrir/domain/asset"
)

func testKey(b byte) ed25519.PrivateKey {
	return ed25519.NewKeyFromSeed(bytes.Repeat([]byte{b}, ed25519.SeedSize))
}

func testPair() asset.Pair {
	var a asset.Asset
	a[0] = 0xAA
	return asset.NewPair(a, asset.Native)
}

func signedOrder(t *testing.T, key ed25519.PrivateKey, side Side, price, amount int64) *Order {
	t.Helper()
	now := time.Now().UnixMilli()
	o := &Order{
		Pair:       testPair(),
		Side:       side,
		Price:      price,
		Amount:     amount,
		Timestamp:  now,
		Expiration: now + int64(time.Hour/time.Millisecond),
		MatcherFee: 300_000,
	}
	copy(o.SenderPK[:], key.Public().(ed25519.PublicKey))
	o.Sign(key)
	return o
}

func TestSignAndVerify(t *testing.T) {
	o := signedOrder(t, testKey(1), Buy, 10*PriceConstant, 100)
	if !o.Verify() {
		t.Fatal("freshly signed order must verify")
	}
}

func TestVerifyRejectsTampering(t *testing.T) {
	o := signedOrder(t, testKey(1), Buy, 10*PriceConstant, 100)
	o.Amount++
	if o.Verify() {
		t.Error("tampered amount must not verify")
	}
}

func TestVerifyRejectsForeignSignature(t *testing.T) {
	o := signedOrder(t, testKey(1), Sell, 5, 50)
	copy(o.SenderPK[:], testKey(2).Public().(ed25519.PublicKey))
	o.ID = o.ComputeID()
	if o.Verify() {
		t.Error("signature under another key must not verify")
	}
}

func TestIDIsContentHash(t *testing.T) {
	a := signedOrder(t, testKey(1), Buy, 7, 70)
	b := signedOrder(t, testKey(1), Buy, 7, 70)
	if a.ID != b.ID {
		t.Error("identical content must hash to identical id")
	}
	c := signedOrder(t, testKey(1), Buy, 8, 70)
	if a.ID == c.ID {
		t.Error("different price must change the id")
	}
}

func TestPriceVolume(t *testing.T) {
	// 100 units at price 10*PriceConstant -> 1000 price-asset units.
	got, err := PriceVolume(100, 10*PriceConstant)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1000 {
		t.Errorf("want 1000, got %d", got)
	}
}

func TestExactPriceVolume(t *testing.T) {
	if !ExactPriceVolume(100, 10*PriceConstant) {
		t.Error("whole product must be exact")
	}
	// 50 * 1 / 1e8 is below one base unit: dust.
	if ExactPriceVolume(50, 1) {
		t.Error("sub-unit product must be dust")
	}
}

func TestProRata(t *testing.T) {
	if got := ProRata(300_000, 40, 100); got != 120_000 {
		t.Errorf("want 120000, got %d", got)
	}
	if got := ProRata(300_000, 100, 100); got != 300_000 {
		t.Errorf("want full value, got %d", got)
	}
}

func TestSidesAndAssets(t *testing.T) {
	buy := signedOrder(t, testKey(1), Buy, 5, 5)
	if buy.SpendAsset() != buy.Pair.PriceAsset || buy.ReceiveAsset() != buy.Pair.AmountAsset {
		t.Error("buyer spends price asset, receives amount asset")
	}
	sell := signedOrder(t, testKey(1), Sell, 5, 5)
	if sell.SpendAsset() != sell.Pair.AmountAsset || sell.ReceiveAsset() != sell.Pair.PriceAsset {
		t.Error("seller spends amount asset, receives price asset")
	}
	if Buy.Opposite() != Sell || Sell.Opposite() != Buy {
		t.Error("opposite sides")
	}
}

func TestCancelRequestSignature(t *testing.T) {
	key := testKey(3)
	o := signedOrder(t, key, Buy, 5, 5)

	req := &CancelRequest{SenderPK: o.SenderPK, OrderID: o.ID}
	req.Sign(key)
	if !req.Verify() {
		t.Fatal("owner-signed cancel must verify")
	}

	forged := &CancelRequest{SenderPK: o.SenderPK, OrderID: o.ID}
	forged.Sign(testKey(4))
	if forged.Verify() {
		t.Error("cancel signed by another key must not verify")
	}
}
