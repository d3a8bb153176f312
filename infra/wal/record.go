package wal

import "time"

// RecordType tags a WAL entry. Controllers journal book events;
// the dispatcher journals pair lifecycle records into its own
// stream with the same framing.
type RecordType uint8

const (
	RecordOrderAdded RecordType = iota
	RecordOrderExecuted
	RecordOrderCanceled
	RecordBookCreated
	RecordBookDeleted
)

// Record is an immutable WAL entry.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
