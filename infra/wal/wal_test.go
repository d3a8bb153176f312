package wal

import (
	"os"
	"path/filepath"
	"testing"
)

func openTestWAL(t *testing.T, dir string) *WAL {
	t.Helper()
	w, err := Open(Config{Dir: dir, SegmentSize: 1 << 20})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestAppendAndReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)

	payloads := []string{"one", "two", "three"}
	for i, p := range payloads {
		if err := w.Append(NewRecord(RecordOrderAdded, uint64(i+1), []byte(p))); err != nil {
			t.Fatal(err)
		}
	}

	var got []string
	last, err := Replay(dir, 0, func(r *Record) error {
		got = append(got, string(r.Data))
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if last != 3 {
		t.Errorf("last seq: want 3, got %d", last)
	}
	for i, p := range payloads {
		if got[i] != p {
			t.Errorf("record %d: want %q, got %q", i, p, got[i])
		}
	}
}

func TestReplaySkipsUpToAfterSeq(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	for i := 1; i <= 5; i++ {
		if err := w.Append(NewRecord(RecordOrderAdded, uint64(i), []byte{byte(i)})); err != nil {
			t.Fatal(err)
		}
	}

	var seen []uint64
	if _, err := Replay(dir, 3, func(r *Record) error {
		seen = append(seen, r.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) != 2 || seen[0] != 4 || seen[1] != 5 {
		t.Errorf("want seqs [4 5], got %v", seen)
	}
}

func TestReplayDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	if err := w.Append(NewRecord(RecordOrderAdded, 1, []byte("payload"))); err != nil {
		t.Fatal(err)
	}

	files, _ := filepath.Glob(filepath.Join(dir, "segment-*.wal"))
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	data[len(data)-6] ^= 0xFF // flip a payload byte under the CRC
	if err := os.WriteFile(files[0], data, 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Replay(dir, 0, func(*Record) error { return nil }); err == nil {
		t.Error("corrupted record must fail replay")
	}
}

func TestReopenResumesAppending(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	if err := w.Append(NewRecord(RecordOrderAdded, 1, []byte("a"))); err != nil {
		t.Fatal(err)
	}
	_ = w.Close()

	w2 := openTestWAL(t, dir)
	if err := w2.Append(NewRecord(RecordOrderAdded, 2, []byte("b"))); err != nil {
		t.Fatal(err)
	}

	var count int
	last, err := Replay(dir, 0, func(*Record) error {
		count++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 || last != 2 {
		t.Errorf("reopen must keep earlier records: count=%d last=%d", count, last)
	}
}

func TestRotationAndTruncate(t *testing.T) {
	dir := t.TempDir()
	w, err := Open(Config{Dir: dir, SegmentSize: 64}) // force rotation
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = w.Close() })

	for i := 1; i <= 10; i++ {
		if err := w.Append(NewRecord(RecordOrderAdded, uint64(i), []byte("padding-payload"))); err != nil {
			t.Fatal(err)
		}
	}

	files, _ := segmentFiles(dir)
	if len(files) < 2 {
		t.Fatalf("expected rotation, got %d segments", len(files))
	}

	if err := w.TruncateBefore(5); err != nil {
		t.Fatal(err)
	}

	var seen []uint64
	if _, err := Replay(dir, 0, func(r *Record) error {
		seen = append(seen, r.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seen) == 0 {
		t.Fatal("records above the truncation point must survive")
	}
	for _, s := range seen[len(seen)-3:] {
		if s > 10 {
			t.Errorf("unexpected seq %d", s)
		}
	}
	if seen[len(seen)-1] != 10 {
		t.Error("latest record must survive truncation")
	}
}

func TestNonMonotonicSeqFailsReplay(t *testing.T) {
	dir := t.TempDir()
	w := openTestWAL(t, dir)
	_ = w.Append(NewRecord(RecordOrderAdded, 2, []byte("a")))
	_ = w.Append(NewRecord(RecordOrderAdded, 1, []byte("b")))

	if _, err := Replay(dir, 0, func(*Record) error { return nil }); err == nil {
		t.Error("replay must reject non-monotonic sequences")
	}
}
