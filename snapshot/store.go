package snapshot

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"fenrir/domain/asset"
	"fenrir/domain/orderbook"
)

// Store keeps one monotonically tagged snapshot directory per pair
// under Root. A write replaces all prior tags for the pair.
type Store struct {
	Root string
}

func (s *Store) pairDir(pair asset.Pair) string {
	return filepath.Join(s.Root, pair.Key())
}

// Write serializes the book at seq and deletes prior snapshots.
func (s *Store) Write(pair asset.Pair, seq uint64, book *orderbook.OrderBook) error {
	dir := s.pairDir(pair)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	snap := Snapshot{
		Seq:     seq,
		Created: time.Now(),
		Pair:    pair,
		Orders:  make([]Entry, 0, book.Size()),
	}
	book.WalkResident(func(lo orderbook.LimitOrder) {
		snap.Orders = append(snap.Orders, Entry{Order: *lo.Order, Remaining: lo.Remaining})
	})

	path := filepath.Join(dir, fmt.Sprintf("snapshot-%020d.bin", seq))
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(f).Encode(&snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}

	// Drop prior tags only once the new snapshot is durable.
	files, err := snapshotFiles(dir)
	if err != nil {
		return err
	}
	for _, old := range files {
		if old != path {
			_ = os.Remove(old)
		}
	}
	return nil
}

// Load restores the latest snapshot for the pair into a fresh book.
// Returns (nil, 0, nil) when no snapshot exists.
func (s *Store) Load(pair asset.Pair) (*orderbook.OrderBook, uint64, error) {
	files, err := snapshotFiles(s.pairDir(pair))
	if err != nil || len(files) == 0 {
		return nil, 0, nil
	}

	f, err := os.Open(files[len(files)-1])
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var snap Snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return nil, 0, err
	}

	book := orderbook.NewOrderBook()
	for i := range snap.Orders {
		e := &snap.Orders[i]
		book.ApplyEvent(orderbook.OrderAdded{
			LO: orderbook.LimitOrder{Order: &e.Order, Remaining: e.Remaining},
		})
	}
	return book, snap.Seq, nil
}

// Delete removes every snapshot for the pair.
func (s *Store) Delete(pair asset.Pair) error {
	return os.RemoveAll(s.pairDir(pair))
}

func snapshotFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "snapshot-*.bin"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
