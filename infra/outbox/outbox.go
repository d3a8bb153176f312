package outbox

import (
	"encoding/binary"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// -------------------- State --------------------

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// -------------------- Record --------------------

// Record is one accepted exchange transaction awaiting at-least-once
// publication. Keys are transaction ids, so controllers of different
// pairs share one relay without coordination.
type Record struct {
	Key         []byte
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// binary encoding: [state:1][retries:4][lastAttempt:8][payload]
func encodeRecord(r *Record) []byte {
	buf := make([]byte, 1+4+8+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[13:], r.Payload)
	return buf
}

func decodeRecord(key, b []byte) (*Record, error) {
	if len(b) < 13 {
		return nil, errors.New("outbox: record too short")
	}
	return &Record{
		Key:         append([]byte(nil), key...),
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     append([]byte(nil), b[13:]...),
	}, nil
}

// -------------------- Outbox --------------------

// Outbox is a Pebble-backed durable relay. Controllers enqueue
// accepted transactions; the broadcaster job drains every un-acked
// record, marks it SENT, and acks on publication.
type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{
		DisableWAL: false, // durability over throughput
	})
	if err != nil {
		return nil, err
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// Enqueue journals a payload in StateNew. Re-enqueueing an existing
// key is a no-op so replays cannot resurrect acked transactions.
func (o *Outbox) Enqueue(key, payload []byte) error {
	if _, closer, err := o.db.Get(key); err == nil {
		_ = closer.Close()
		return nil
	}
	rec := &Record{Key: key, State: StateNew, Payload: payload}
	return o.db.Set(key, encodeRecord(rec), pebble.Sync)
}

// ScanPending visits every record not yet ACKED in key order: NEW,
// FAILED, and SENT records left behind by an interrupted drain.
func (o *Outbox) ScanPending(fn func(*Record) error) error {
	iter, err := o.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Key(), iter.Value())
		if err != nil {
			return err
		}
		if rec.State == StateAcked {
			continue
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return iter.Error()
}

func (o *Outbox) MarkSent(key []byte) error {
	return o.transition(key, StateSent, true)
}

func (o *Outbox) MarkAcked(key []byte) error {
	return o.transition(key, StateAcked, false)
}

func (o *Outbox) MarkFailed(key []byte) error {
	return o.transition(key, StateFailed, true)
}

func (o *Outbox) transition(key []byte, to State, bumpRetry bool) error {
	val, closer, err := o.db.Get(key)
	if err != nil {
		return err
	}
	rec, err := decodeRecord(key, val)
	_ = closer.Close()
	if err != nil {
		return err
	}

	rec.State = to
	rec.LastAttempt = time.Now().UnixNano()
	if bumpRetry {
		rec.Retries++
	}
	return o.db.Set(key, encodeRecord(rec), pebble.Sync)
}

// TruncateAcked deletes every ACKED record.
func (o *Outbox) TruncateAcked() error {
	iter, err := o.db.NewIter(nil)
	if err != nil {
		return err
	}
	defer iter.Close()

	batch := o.db.NewBatch()
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeRecord(iter.Key(), iter.Value())
		if err != nil || rec.State != StateAcked {
			continue
		}
		_ = batch.Delete(append([]byte(nil), iter.Key()...), nil)
	}
	if err := iter.Error(); err != nil {
		batch.Close()
		return err
	}
	return o.db.Apply(batch, pebble.Sync)
}
