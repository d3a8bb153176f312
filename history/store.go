package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

// Key layout:
//
//	o/<orderID>          raw order (JSON)
//	i/<orderID>          OrderInfo, fixed 17 bytes
//	r/<orderID>          reserve marker (order currently holds open volume)
//	p/<address>          portfolio (JSON asset -> amount)
//	x/<address>/<pair>   insertion-ordered order id list (JSON), bounded
type Store struct {
	db        *pebble.DB
	maxOrders int
}

func OpenStore(path string, maxOrdersPerAddress int) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db, maxOrders: maxOrdersPerAddress}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func orderKey(id order.ID) []byte   { return append([]byte("o/"), id[:]...) }
func infoKey(id order.ID) []byte    { return append([]byte("i/"), id[:]...) }
func reserveKey(id order.ID) []byte { return append([]byte("r/"), id[:]...) }
func portfolioKey(a order.Address) []byte {
	return append([]byte("p/"), a[:]...)
}
func indexKey(a order.Address, pair asset.Pair) []byte {
	k := append([]byte("x/"), a[:]...)
	k = append(k, '/')
	return append(k, pair.Key()...)
}

// -------------------- orders --------------------

func (s *Store) PutOrder(o *order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return s.db.Set(orderKey(o.ID), data, pebble.Sync)
}

func (s *Store) GetOrder(id order.ID) (*order.Order, bool) {
	val, closer, err := s.db.Get(orderKey(id))
	if err != nil {
		return nil, false
	}
	defer closer.Close()
	var o order.Order
	if err := json.Unmarshal(val, &o); err != nil {
		return nil, false
	}
	return &o, true
}

func (s *Store) HasOrder(id order.ID) bool {
	_, closer, err := s.db.Get(orderKey(id))
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

func (s *Store) DeleteOrder(id order.ID) error {
	batch := s.db.NewBatch()
	_ = batch.Delete(orderKey(id), nil)
	_ = batch.Delete(infoKey(id), nil)
	_ = batch.Delete(reserveKey(id), nil)
	return s.db.Apply(batch, pebble.Sync)
}

// -------------------- order info --------------------

func encodeInfo(i OrderInfo) []byte {
	buf := make([]byte, 17)
	binary.BigEndian.PutUint64(buf[0:8], uint64(i.Amount))
	binary.BigEndian.PutUint64(buf[8:16], uint64(i.Filled))
	if i.Canceled {
		buf[16] = 1
	}
	return buf
}

func decodeInfo(b []byte) (OrderInfo, error) {
	if len(b) != 17 {
		return OrderInfo{}, fmt.Errorf("history: info record length %d", len(b))
	}
	return OrderInfo{
		Amount:   int64(binary.BigEndian.Uint64(b[0:8])),
		Filled:   int64(binary.BigEndian.Uint64(b[8:16])),
		Canceled: b[16] == 1,
	}, nil
}

func (s *Store) GetInfo(id order.ID) (OrderInfo, bool) {
	val, closer, err := s.db.Get(infoKey(id))
	if err != nil {
		return OrderInfo{}, false
	}
	defer closer.Close()
	info, err := decodeInfo(val)
	if err != nil {
		return OrderInfo{}, false
	}
	return info, true
}

// CombineInfo folds a delta into the stored info.
func (s *Store) CombineInfo(id order.ID, delta OrderInfo) (OrderInfo, error) {
	cur, _ := s.GetInfo(id)
	next := cur.Combine(delta)
	if err := s.db.Set(infoKey(id), encodeInfo(next), pebble.Sync); err != nil {
		return OrderInfo{}, err
	}
	return next, nil
}

// -------------------- reserve markers --------------------

func (s *Store) SetReserved(id order.ID) error {
	return s.db.Set(reserveKey(id), []byte{1}, pebble.Sync)
}

func (s *Store) IsReserved(id order.ID) bool {
	_, closer, err := s.db.Get(reserveKey(id))
	if err != nil {
		return false
	}
	_ = closer.Close()
	return true
}

func (s *Store) ClearReserved(id order.ID) error {
	return s.db.Delete(reserveKey(id), pebble.Sync)
}

// -------------------- portfolios --------------------

func (s *Store) GetPortfolio(a order.Address) Portfolio {
	val, closer, err := s.db.Get(portfolioKey(a))
	if err != nil {
		return Portfolio{}
	}
	defer closer.Close()

	var raw map[string]int64
	if err := json.Unmarshal(val, &raw); err != nil {
		return Portfolio{}
	}
	p := make(Portfolio, len(raw))
	for k, v := range raw {
		as, err := asset.FromString(k)
		if err != nil {
			continue
		}
		p[as] = v
	}
	return p
}

// CombinePortfolio folds a delta into the stored portfolio. Stored
// values are floored at zero: releases can round below reservations
// but open volume never goes negative.
func (s *Store) CombinePortfolio(a order.Address, delta Portfolio) error {
	next := s.GetPortfolio(a).Combine(delta)
	raw := make(map[string]int64, len(next))
	for as, v := range next {
		if v < 0 {
			v = 0
		}
		if v == 0 {
			continue
		}
		raw[as.String()] = v
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return s.db.Set(portfolioKey(a), data, pebble.Sync)
}

func (s *Store) OpenVolume(a order.Address, as asset.Asset) int64 {
	return s.GetPortfolio(a)[as]
}

// -------------------- pair/address index --------------------

func (s *Store) getIndex(key []byte) []order.ID {
	val, closer, err := s.db.Get(key)
	if err != nil {
		return nil
	}
	defer closer.Close()

	var raw []string
	if err := json.Unmarshal(val, &raw); err != nil {
		return nil
	}
	ids := make([]order.ID, 0, len(raw))
	for _, r := range raw {
		id, err := order.ParseID(r)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func (s *Store) putIndex(key []byte, ids []order.ID) error {
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = id.String()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return s.db.Set(key, data, pebble.Sync)
}

// AppendIndex records an order under (address, pair), evicting when
// the ring is full: the oldest terminal order goes first, the oldest
// of all if none is terminal.
func (s *Store) AppendIndex(a order.Address, pair asset.Pair, id order.ID) error {
	key := indexKey(a, pair)
	ids := s.getIndex(key)
	for _, known := range ids {
		if known == id {
			return nil
		}
	}

	if len(ids) >= s.maxOrders {
		victim := 0
		for i, old := range ids {
			info, ok := s.GetInfo(old)
			if ok && info.Status().Kind.Terminal() {
				victim = i
				break
			}
		}
		_ = s.DeleteOrder(ids[victim])
		ids = append(ids[:victim], ids[victim+1:]...)
	}

	return s.putIndex(key, append(ids, id))
}

// IndexIDs lists the ids recorded under (address, pair) in
// insertion order.
func (s *Store) IndexIDs(a order.Address, pair asset.Pair) []order.ID {
	return s.getIndex(indexKey(a, pair))
}

// AllIndexIDs unions the ids recorded for the address across pairs.
func (s *Store) AllIndexIDs(a order.Address) []order.ID {
	prefix := append([]byte("x/"), a[:]...)
	upper := append(append([]byte(nil), prefix...), 0xff)

	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upper,
	})
	if err != nil {
		return nil
	}
	defer iter.Close()

	var out []order.ID
	seen := make(map[order.ID]struct{})
	for iter.First(); iter.Valid(); iter.Next() {
		var raw []string
		if err := json.Unmarshal(iter.Value(), &raw); err != nil {
			continue
		}
		for _, r := range raw {
			id, err := order.ParseID(r)
			if err != nil {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// RemoveFromIndex deletes one id from (address, pair).
func (s *Store) RemoveFromIndex(a order.Address, pair asset.Pair, id order.ID) error {
	key := indexKey(a, pair)
	ids := s.getIndex(key)
	for i, known := range ids {
		if known == id {
			return s.putIndex(key, append(ids[:i], ids[i+1:]...))
		}
	}
	return nil
}
