package snapshot

import (
	"time"

	"fenrir/domain/asset"
	"fenrir/domain/order"
)

// Snapshot is a full serialized book, used to bound WAL replay on
// recovery.
type Snapshot struct {
	Seq     uint64
	Created time.Time
	Pair    asset.Pair
	Orders  []Entry
}

// Entry is one resident order. Entries appear bids-best-first then
// asks-best-first, queue order within a level, so loading them in
// sequence rebuilds identical priority.
type Entry struct {
	Order     order.Order
	Remaining int64
}
