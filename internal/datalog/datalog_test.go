package datalog

import (
	"errors"
	"math"
	"os"
	"testing"
)

func openTestStore(t *testing.T) (*Store, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "datalog-test-*.db")
	if err != nil {
		t.Fatalf("Failed to create temp db: %v", err)
	}
	tmpFile.Close()

	store, err := Open(tmpFile.Name())
	if err != nil {
		os.Remove(tmpFile.Name())
		t.Fatalf("Failed to open datalog: %v", err)
	}

	cleanup := func() {
		store.Close()
		os.Remove(tmpFile.Name())
	}
	return store, cleanup
}

func makeRecord(unixTime int64, logHours float64) *Record {
	rec := &Record{
		UnixTime: unixTime,
		Serial:   unixTime / 5,
		LogHours: logHours,
	}
	rec.Accum1[0] = 230.0 * logHours
	rec.Accum1[1] = 0.5 * logHours
	rec.Accum1[2] = -1.5 * logHours
	return rec
}

func TestAppendAndKeys(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	if _, err := store.LastKey(); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog on empty store, got %v", err)
	}

	for _, ts := range []int64{1700000000, 1700000300, 1700000600} {
		if err := store.Append(makeRecord(ts, float64(ts)/3600)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	first, err := store.FirstKey()
	if err != nil {
		t.Fatalf("FirstKey failed: %v", err)
	}
	if first != 1700000000 {
		t.Errorf("FirstKey mismatch: got %d, want 1700000000", first)
	}

	last, err := store.LastKey()
	if err != nil {
		t.Fatalf("LastKey failed: %v", err)
	}
	if last != 1700000600 {
		t.Errorf("LastKey mismatch: got %d, want 1700000600", last)
	}
}

func TestReadAtOrBefore(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	for _, ts := range []int64{1700000000, 1700000300, 1700000600} {
		if err := store.Append(makeRecord(ts, 100)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	reader := NewReader(store)

	rec, err := reader.ReadAtOrBefore(1700000450)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if rec.UnixTime != 1700000300 {
		t.Errorf("expected key 1700000300, got %d", rec.UnixTime)
	}

	// Exact key
	rec, err = reader.ReadAtOrBefore(1700000300)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if rec.UnixTime != 1700000300 {
		t.Errorf("expected key 1700000300, got %d", rec.UnixTime)
	}

	// Before the whole log: oldest record comes back.
	rec, err = reader.ReadAtOrBefore(1600000000)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if rec.UnixTime != 1700000000 {
		t.Errorf("expected oldest key 1700000000, got %d", rec.UnixTime)
	}
}

func TestReadFirstAfter(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	for _, ts := range []int64{1700000000, 1700000300, 1700001500} {
		if err := store.Append(makeRecord(ts, 100)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}
	reader := NewReader(store)

	rec, err := reader.ReadFirstAfter(1700000300)
	if err != nil {
		t.Fatalf("ReadFirstAfter failed: %v", err)
	}
	if rec.UnixTime != 1700001500 {
		t.Errorf("expected key 1700001500, got %d", rec.UnixTime)
	}

	if _, err := reader.ReadFirstAfter(1700001500); !errors.Is(err, ErrEmptyLog) {
		t.Errorf("expected ErrEmptyLog past the end, got %v", err)
	}
}

func TestRolloverUnifiedView(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	for _, ts := range []int64{1700000000, 1700000300, 1700000600, 1700000900} {
		if err := store.Append(makeRecord(ts, 100)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	moved, err := store.Rollover(1700000600)
	if err != nil {
		t.Fatalf("Rollover failed: %v", err)
	}
	if moved != 2 {
		t.Errorf("expected 2 rows moved, got %d", moved)
	}

	reader := NewReader(store)

	// Keys must span both segments.
	first, _ := reader.FirstKey()
	last, _ := reader.LastKey()
	if first != 1700000000 || last != 1700000900 {
		t.Errorf("unified keys wrong: first=%d last=%d", first, last)
	}

	// A read landing in the history segment must come from history first.
	rec, err := reader.ReadFirstAfter(1700000000)
	if err != nil {
		t.Fatalf("ReadFirstAfter failed: %v", err)
	}
	if rec.UnixTime != 1700000300 {
		t.Errorf("expected history key 1700000300, got %d", rec.UnixTime)
	}

	// A read straddling the boundary finds the first current row.
	rec, err = reader.ReadFirstAfter(1700000300)
	if err != nil {
		t.Fatalf("ReadFirstAfter failed: %v", err)
	}
	if rec.UnixTime != 1700000600 {
		t.Errorf("expected current key 1700000600, got %d", rec.UnixTime)
	}

	rec, err = reader.ReadAtOrBefore(1700000400)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if rec.UnixTime != 1700000300 {
		t.Errorf("expected history key 1700000300, got %d", rec.UnixTime)
	}
}

func TestReaderSanitizesNaN(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	rec := makeRecord(1700000000, math.NaN())
	rec.Accum1[3] = math.NaN()
	rec.Accum2[4] = math.NaN()
	if err := store.Append(rec); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	got, err := NewReader(store).ReadAtOrBefore(1700000000)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if got.LogHours != 0 {
		t.Errorf("LogHours not sanitized: %f", got.LogHours)
	}
	if got.Accum1[3] != 0 {
		t.Errorf("Accum1[3] not sanitized: %f", got.Accum1[3])
	}
	if got.Accum2[4] != 0 {
		t.Errorf("Accum2[4] not sanitized: %f", got.Accum2[4])
	}
}

func TestAppendReplacesSameKey(t *testing.T) {
	store, cleanup := openTestStore(t)
	defer cleanup()

	if err := store.Append(makeRecord(1700000000, 10)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := store.Append(makeRecord(1700000000, 20)); err != nil {
		t.Fatalf("Append (replace) failed: %v", err)
	}

	rec, err := NewReader(store).ReadAtOrBefore(1700000000)
	if err != nil {
		t.Fatalf("ReadAtOrBefore failed: %v", err)
	}
	if rec.LogHours != 20 {
		t.Errorf("expected replaced LogHours 20, got %f", rec.LogHours)
	}
}
