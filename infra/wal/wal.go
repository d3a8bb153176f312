package wal

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
}

// WAL is a per-stream append-only segmented log. Exactly one writer
// owns a WAL; the pair's controller for book events, the dispatcher
// for pair lifecycle records.
type WAL struct {
	dir        string
	segSize    int64
	segDur     time.Duration
	current    *segment
	segIndex   int
	lastRotate time.Time
}

func Open(cfg Config) (*WAL, error) {
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	// Resume appending to the newest existing segment.
	index := 0
	if existing, err := segmentFiles(cfg.Dir); err == nil && len(existing) > 0 {
		last := existing[len(existing)-1]
		if _, err := fmt.Sscanf(filepath.Base(last), "segment-%06d.wal", &index); err != nil {
			index = 0
		}
	}

	seg, err := openSegment(cfg.Dir, index)
	if err != nil {
		return nil, err
	}

	return &WAL{
		dir:        cfg.Dir,
		segSize:    cfg.SegmentSize,
		segDur:     cfg.SegmentDuration,
		current:    seg,
		segIndex:   index,
		lastRotate: time.Now(),
	}, nil
}

func (w *WAL) Dir() string { return w.dir }

func (w *WAL) Append(r *Record) error {
	payloadLen := uint32(len(r.Data))

	// Frame:
	// [type:1][seq:8][time:8][len:4][payload][crc:4]
	buf := make([]byte, 1+8+8+4+payloadLen+4)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], payloadLen)
	copy(buf[21:], r.Data)

	crc := CRC32(buf[:21+payloadLen])
	binary.BigEndian.PutUint32(buf[21+payloadLen:], crc)

	if err := w.current.append(buf); err != nil {
		return err
	}

	if w.shouldRotate() {
		return w.rotate()
	}
	return nil
}

func (w *WAL) shouldRotate() bool {
	if w.current.offset >= w.segSize {
		return true
	}
	return w.segDur > 0 && time.Since(w.lastRotate) >= w.segDur
}

func (w *WAL) rotate() error {
	_ = w.current.close()
	w.segIndex++

	seg, err := openSegment(w.dir, w.segIndex)
	if err != nil {
		return err
	}

	w.current = seg
	w.lastRotate = time.Now()
	return nil
}

// TruncateBefore removes whole segments whose records are all
// covered by a snapshot at seq. Called after a snapshot lands.
func (w *WAL) TruncateBefore(seq uint64) error {
	files, err := segmentFiles(w.dir)
	if err != nil {
		return err
	}

	for _, path := range files {
		maxSeq, err := maxSeqInSegment(path)
		if err != nil {
			continue
		}
		if maxSeq > 0 && maxSeq <= seq && path != w.currentPath() {
			_ = os.Remove(path)
		}
	}
	return nil
}

func (w *WAL) currentPath() string {
	return filepath.Join(w.dir, fmt.Sprintf("segment-%06d.wal", w.segIndex))
}

func (w *WAL) Close() error {
	return w.current.close()
}

func segmentFiles(dir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
