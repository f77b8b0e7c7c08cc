package datalog

import "errors"

// Reader is the read-only view the reporting services use. It presents the
// current and history segments as one log and sanitizes every record copy it
// hands out.
type Reader struct {
	store *Store
}

// NewReader wraps a store.
func NewReader(store *Store) *Reader {
	return &Reader{store: store}
}

// IsOpen reports whether the log has at least one record.
func (r *Reader) IsOpen() bool {
	_, err := r.store.LastKey()
	return err == nil
}

// FirstKey returns the oldest key in the unified log.
func (r *Reader) FirstKey() (int64, error) {
	return r.store.FirstKey()
}

// LastKey returns the newest key in the unified log.
func (r *Reader) LastKey() (int64, error) {
	return r.store.LastKey()
}

// ReadAtOrBefore returns the record with the greatest key <= t, or the
// oldest record if t precedes the whole log.
func (r *Reader) ReadAtOrBefore(t int64) (*Record, error) {
	rec, err := r.store.readAtOrBefore(SegmentCurrent, t)
	if errors.Is(err, ErrEmptyLog) {
		rec, err = r.store.readAtOrBefore(SegmentHistory, t)
	}
	if errors.Is(err, ErrEmptyLog) {
		// t precedes every key; fall back to the oldest record.
		rec, err = r.readOldest()
	}
	if err != nil {
		return nil, err
	}
	rec.Sanitize()
	return rec, nil
}

// ReadFirstAfter returns the record with the smallest key > t. The history
// segment is consulted first whenever t+1 still falls inside its key range.
func (r *Reader) ReadFirstAfter(t int64) (*Record, error) {
	histLast, histErr := r.store.segmentLastKey(SegmentHistory)
	if histErr == nil && t+1 <= histLast {
		rec, err := r.store.readFirstAfter(SegmentHistory, t)
		if err == nil {
			rec.Sanitize()
			return rec, nil
		}
		if !errors.Is(err, ErrEmptyLog) {
			return nil, err
		}
	}

	rec, err := r.store.readFirstAfter(SegmentCurrent, t)
	if err != nil {
		return nil, err
	}
	rec.Sanitize()
	return rec, nil
}

func (r *Reader) readOldest() (*Record, error) {
	rec, err := r.store.readOldest(SegmentHistory)
	if errors.Is(err, ErrEmptyLog) {
		rec, err = r.store.readOldest(SegmentCurrent)
	}
	return rec, err
}
