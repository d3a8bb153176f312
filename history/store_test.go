package history

import (
	"bytes"
	"crypto/ed25519"
	"testing"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

var tsCounter int64

func testStore(t *testing.T, maxOrders int) *Store {
	t.Helper()
	s, err := OpenStore(t.TempDir(), maxOrders)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func histPair() asset.Pair {
	var a asset.Asset
	a[0] = 0xAA
	return asset.NewPair(a, asset.Native)
}

func histOrder(t *testing.T, seed byte, side order.Side, price, amount int64) *order.Order {
	t.Helper()
	key := ed25519.NewKeyFromSeed(bytes.Repeat([]byte{seed}, ed25519.SeedSize))
	tsCounter++
	o := &order.Order{
		Pair:       histPair(),
		Side:       side,
		Price:      price,
		Amount:     amount,
		Timestamp:  tsCounter,
		Expiration: tsCounter + 1,
		MatcherFee: 300_000,
	}
	copy(o.SenderPK[:], key.Public().(ed25519.PublicKey))
	o.Sign(key)
	return o
}

func TestOrderRoundTrip(t *testing.T) {
	s := testStore(t, 10)
	o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)

	if s.HasOrder(o.ID) {
		t.Fatal("unknown order must not exist")
	}
	if err := s.PutOrder(o); err != nil {
		t.Fatal(err)
	}
	got, ok := s.GetOrder(o.ID)
	if !ok || got.ID != o.ID || got.Amount != o.Amount || got.Sig != o.Sig {
		t.Error("stored order must round-trip")
	}
}

func TestInfoCombineIntoStore(t *testing.T) {
	s := testStore(t, 10)
	o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)

	if _, err := s.CombineInfo(o.ID, OrderInfo{Amount: 100}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CombineInfo(o.ID, OrderInfo{Amount: 100, Filled: 40}); err != nil {
		t.Fatal(err)
	}
	info, ok := s.GetInfo(o.ID)
	if !ok || info.Filled != 40 || info.Status().Kind != StatusPartiallyFilled {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestPortfolioFloorsAtZero(t *testing.T) {
	s := testStore(t, 10)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()
	var aa asset.Asset
	aa[0] = 1

	if err := s.CombinePortfolio(addr, Portfolio{aa: 100}); err != nil {
		t.Fatal(err)
	}
	if err := s.CombinePortfolio(addr, Portfolio{aa: -150}); err != nil {
		t.Fatal(err)
	}
	if got := s.OpenVolume(addr, aa); got != 0 {
		t.Errorf("stored reservation must floor at zero, got %d", got)
	}
}

func TestIndexEvictionPrefersTerminal(t *testing.T) {
	s := testStore(t, 3)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()
	pair := histPair()

	var ids []order.ID
	for i := 0; i < 3; i++ {
		o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
		if err := s.PutOrder(o); err != nil {
			t.Fatal(err)
		}
		if _, err := s.CombineInfo(o.ID, OrderInfo{Amount: 100}); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendIndex(addr, pair, o.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, o.ID)
	}

	// Make the middle one terminal; it must be evicted first even
	// though it is not the oldest.
	if _, err := s.CombineInfo(ids[1], OrderInfo{Amount: 100, Canceled: true}); err != nil {
		t.Fatal(err)
	}

	extra := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	_ = s.PutOrder(extra)
	if err := s.AppendIndex(addr, pair, extra.ID); err != nil {
		t.Fatal(err)
	}

	got := s.IndexIDs(addr, pair)
	if len(got) != 3 {
		t.Fatalf("index must stay bounded at 3, got %d", len(got))
	}
	want := []order.ID{ids[0], ids[2], extra.ID}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("eviction picked the wrong victim: %v", got)
		}
	}
}

func TestIndexEvictionFallsBackToOldest(t *testing.T) {
	s := testStore(t, 2)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()
	pair := histPair()

	var ids []order.ID
	for i := 0; i < 3; i++ {
		o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
		_ = s.PutOrder(o)
		if _, err := s.CombineInfo(o.ID, OrderInfo{Amount: 100}); err != nil {
			t.Fatal(err)
		}
		if err := s.AppendIndex(addr, pair, o.ID); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, o.ID)
	}

	got := s.IndexIDs(addr, pair)
	if len(got) != 2 || got[0] != ids[1] || got[1] != ids[2] {
		t.Errorf("oldest open order must be dropped when none is terminal: %v", got)
	}
}

func TestAllIndexIDsUnionsPairs(t *testing.T) {
	s := testStore(t, 10)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()

	var other asset.Asset
	other[0] = 0xBB
	pair2 := asset.NewPair(other, asset.Native)

	o1 := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	o2 := histOrder(t, 1, order.Sell, 10*order.PriceConstant, 100)
	_ = s.PutOrder(o1)
	_ = s.PutOrder(o2)
	if err := s.AppendIndex(addr, histPair(), o1.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.AppendIndex(addr, pair2, o2.ID); err != nil {
		t.Fatal(err)
	}

	all := s.AllIndexIDs(addr)
	if len(all) != 2 {
		t.Fatalf("want union of 2 ids, got %d: %v", len(all), all)
	}
}

func TestRemoveFromIndex(t *testing.T) {
	s := testStore(t, 10)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()
	pair := histPair()

	o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	_ = s.PutOrder(o)
	if err := s.AppendIndex(addr, pair, o.ID); err != nil {
		t.Fatal(err)
	}
	if err := s.RemoveFromIndex(addr, pair, o.ID); err != nil {
		t.Fatal(err)
	}
	if got := s.IndexIDs(addr, pair); len(got) != 0 {
		t.Errorf("index must be empty, got %v", got)
	}
}

func TestReservedMarker(t *testing.T) {
	s := testStore(t, 10)
	o := histOrder(t, 1, order.Buy, 1, 1)

	if s.IsReserved(o.ID) {
		t.Fatal("fresh id must not be reserved")
	}
	if err := s.SetReserved(o.ID); err != nil {
		t.Fatal(err)
	}
	if !s.IsReserved(o.ID) {
		t.Fatal("marker must persist")
	}
	if err := s.ClearReserved(o.ID); err != nil {
		t.Fatal(err)
	}
	if s.IsReserved(o.ID) {
		t.Fatal("marker must clear")
	}
}

func TestEncodeInfoRejectsBadLength(t *testing.T) {
	if _, err := decodeInfo([]byte{1, 2, 3}); err == nil {
		t.Error("short info record must fail to decode")
	}
	want := OrderInfo{Amount: 7, Filled: 3, Canceled: true}
	got, err := decodeInfo(encodeInfo(want))
	if err != nil || got != want {
		t.Errorf("info codec: want %+v, got %+v (%v)", want, got, err)
	}
}

func TestAppendIndexIsIdempotent(t *testing.T) {
	s := testStore(t, 10)
	addr := histOrder(t, 1, order.Buy, 1, 1).SenderAddress()
	o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	_ = s.PutOrder(o)

	for i := 0; i < 3; i++ {
		if err := s.AppendIndex(addr, histPair(), o.ID); err != nil {
			t.Fatal(err)
		}
	}
	if got := s.IndexIDs(addr, histPair()); len(got) != 1 {
		t.Errorf("duplicate appends must collapse: %v", got)
	}
}

func TestDeleteOrderDropsAllRecords(t *testing.T) {
	s := testStore(t, 10)
	o := histOrder(t, 1, order.Buy, 10*order.PriceConstant, 100)
	_ = s.PutOrder(o)
	_, _ = s.CombineInfo(o.ID, OrderInfo{Amount: 100, Filled: 100})
	_ = s.SetReserved(o.ID)

	if err := s.DeleteOrder(o.ID); err != nil {
		t.Fatal(err)
	}
	if s.HasOrder(o.ID) || s.IsReserved(o.ID) {
		t.Error("delete must drop order and marker")
	}
	if _, ok := s.GetInfo(o.ID); ok {
		t.Error("delete must drop info")
	}
}
