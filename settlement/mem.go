package settlement

import (
	"sync"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

// MemLedger is an in-process Ledger used in embedded mode and in
// tests. It applies accepted exchange transactions to its own
// balances, so repeated submissions observe the spent funds.
type MemLedger struct {
	mu       sync.RWMutex
	balances map[order.Address]map[asset.Asset]int64
	assets   map[asset.Asset]AssetInfo
	supplies map[asset.Asset]int64

	// RejectNext forces the next n submissions to fail. Tests use it
	// to exercise the counter-cancel policy.
	RejectNext int
}

func NewMemLedger() *MemLedger {
	m := &MemLedger{
		balances: make(map[order.Address]map[asset.Asset]int64),
		assets:   make(map[asset.Asset]AssetInfo),
		supplies: make(map[asset.Asset]int64),
	}
	m.assets[asset.Native] = AssetInfo{Name: "NATIVE", Decimals: 8}
	m.supplies[asset.Native] = 1 << 62
	return m
}

func (m *MemLedger) IssueAsset(a asset.Asset, info AssetInfo, supply int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[a] = info
	m.supplies[a] = supply
}

func (m *MemLedger) Credit(addr order.Address, a asset.Asset, amount int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.credit(addr, a, amount)
}

func (m *MemLedger) credit(addr order.Address, a asset.Asset, amount int64) {
	if m.balances[addr] == nil {
		m.balances[addr] = make(map[asset.Asset]int64)
	}
	m.balances[addr][a] += amount
}

func (m *MemLedger) BalanceOf(addr order.Address, a asset.Asset) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[addr][a]
}

func (m *MemLedger) TotalSupply(a asset.Asset) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.supplies[a]
}

func (m *MemLedger) AssetInfo(a asset.Asset) (AssetInfo, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	info, ok := m.assets[a]
	return info, ok
}

// SubmitExchangeTransaction verifies the matcher signature, checks
// both parties can fund their legs, and settles balances.
func (m *MemLedger) SubmitExchangeTransaction(tx *ExchangeTransaction) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.RejectNext > 0 {
		m.RejectNext--
		return false
	}
	if !tx.Verify() {
		return false
	}

	priceVol, err := order.PriceVolume(tx.Amount, tx.Price)
	if err != nil {
		return false
	}

	buyer := tx.BuyOrder.SenderAddress()
	seller := tx.SellOrder.SenderAddress()
	pair := tx.BuyOrder.Pair

	if m.balances[buyer][pair.PriceAsset] < priceVol {
		return false
	}
	if m.balances[seller][pair.AmountAsset] < tx.Amount {
		return false
	}

	m.credit(buyer, pair.PriceAsset, -priceVol)
	m.credit(buyer, pair.AmountAsset, tx.Amount)
	m.credit(seller, pair.AmountAsset, -tx.Amount)
	m.credit(seller, pair.PriceAsset, priceVol)
	return true
}
