package datalog

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	_ "github.com/mattn/go-sqlite3"
)

// ErrEmptyLog is returned when a query runs against a segment with no rows.
// Callers treat this as "wait and retry", not as a failure.
var ErrEmptyLog = errors.New("datalog: empty log")

// Store wraps the SQLite database holding the energy log. The log is split
// into a hot "current" segment and a cold "history" segment; Rollover moves
// aged rows from one to the other.
type Store struct {
	conn *sql.DB
}

// Open opens or creates the datalog database.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open datalog: %w", err)
	}

	s := &Store{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate datalog: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS current_log (
		unix_time INTEGER PRIMARY KEY,
		serial INTEGER NOT NULL,
		log_hours REAL NOT NULL,
		accum1 BLOB NOT NULL,
		accum2 BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS history_log (
		unix_time INTEGER PRIMARY KEY,
		serial INTEGER NOT NULL,
		log_hours REAL NOT NULL,
		accum1 BLOB NOT NULL,
		accum2 BLOB NOT NULL
	);
	`
	_, err := s.conn.Exec(schema)
	return err
}

// Segment names for the two log tables.
const (
	SegmentCurrent = "current_log"
	SegmentHistory = "history_log"
)

// Append inserts a record into the current segment, replacing any record
// with the same key.
func (s *Store) Append(rec *Record) error {
	// SQLite stores a NaN REAL as NULL, which the NOT NULL column rejects;
	// write the 0 the reader would hand out anyway.
	logHours := rec.LogHours
	if math.IsNaN(logHours) {
		logHours = 0
	}
	_, err := s.conn.Exec(
		`INSERT OR REPLACE INTO current_log (unix_time, serial, log_hours, accum1, accum2)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.UnixTime, rec.Serial, logHours,
		packAccum(&rec.Accum1), packAccum(&rec.Accum2))
	if err != nil {
		return fmt.Errorf("append record %d: %w", rec.UnixTime, err)
	}
	return nil
}

// FirstKey returns the oldest key across both segments.
func (s *Store) FirstKey() (int64, error) {
	if k, err := s.segmentFirstKey(SegmentHistory); err == nil {
		return k, nil
	} else if !errors.Is(err, ErrEmptyLog) {
		return 0, err
	}
	return s.segmentFirstKey(SegmentCurrent)
}

// LastKey returns the newest key across both segments.
func (s *Store) LastKey() (int64, error) {
	if k, err := s.segmentLastKey(SegmentCurrent); err == nil {
		return k, nil
	} else if !errors.Is(err, ErrEmptyLog) {
		return 0, err
	}
	return s.segmentLastKey(SegmentHistory)
}

func (s *Store) segmentFirstKey(segment string) (int64, error) {
	var key sql.NullInt64
	err := s.conn.QueryRow(`SELECT MIN(unix_time) FROM ` + segment).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("first key of %s: %w", segment, err)
	}
	if !key.Valid {
		return 0, ErrEmptyLog
	}
	return key.Int64, nil
}

func (s *Store) segmentLastKey(segment string) (int64, error) {
	var key sql.NullInt64
	err := s.conn.QueryRow(`SELECT MAX(unix_time) FROM ` + segment).Scan(&key)
	if err != nil {
		return 0, fmt.Errorf("last key of %s: %w", segment, err)
	}
	if !key.Valid {
		return 0, ErrEmptyLog
	}
	return key.Int64, nil
}

// readAtOrBefore returns the segment's record with the greatest key <= t.
func (s *Store) readAtOrBefore(segment string, t int64) (*Record, error) {
	row := s.conn.QueryRow(
		`SELECT unix_time, serial, log_hours, accum1, accum2 FROM `+segment+`
		 WHERE unix_time <= ? ORDER BY unix_time DESC LIMIT 1`, t)
	return scanRecord(row)
}

// readFirstAfter returns the segment's record with the smallest key > t.
func (s *Store) readFirstAfter(segment string, t int64) (*Record, error) {
	row := s.conn.QueryRow(
		`SELECT unix_time, serial, log_hours, accum1, accum2 FROM `+segment+`
		 WHERE unix_time > ? ORDER BY unix_time ASC LIMIT 1`, t)
	return scanRecord(row)
}

// readOldest returns the segment's record with the smallest key.
func (s *Store) readOldest(segment string) (*Record, error) {
	row := s.conn.QueryRow(
		`SELECT unix_time, serial, log_hours, accum1, accum2 FROM ` + segment + `
		 ORDER BY unix_time ASC LIMIT 1`)
	return scanRecord(row)
}

// Rollover moves rows with keys < before from the current segment into the
// history segment.
func (s *Store) Rollover(before int64) (int64, error) {
	tx, err := s.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("rollover begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT OR REPLACE INTO history_log (unix_time, serial, log_hours, accum1, accum2)
		 SELECT unix_time, serial, log_hours, accum1, accum2 FROM current_log
		 WHERE unix_time < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("rollover copy: %w", err)
	}
	moved, _ := res.RowsAffected()

	if _, err := tx.Exec(`DELETE FROM current_log WHERE unix_time < ?`, before); err != nil {
		return 0, fmt.Errorf("rollover delete: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("rollover commit: %w", err)
	}
	return moved, nil
}

func scanRecord(row *sql.Row) (*Record, error) {
	var rec Record
	var a1, a2 []byte
	err := row.Scan(&rec.UnixTime, &rec.Serial, &rec.LogHours, &a1, &a2)
	if err == sql.ErrNoRows {
		return nil, ErrEmptyLog
	}
	if err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}
	unpackAccum(a1, &rec.Accum1)
	unpackAccum(a2, &rec.Accum2)
	return &rec, nil
}

func packAccum(accum *[MaxChannels]float64) []byte {
	buf := make([]byte, MaxChannels*8)
	for i, v := range accum {
		binary.LittleEndian.PutUint64(buf[i*8:], math.Float64bits(v))
	}
	return buf
}

func unpackAccum(buf []byte, accum *[MaxChannels]float64) {
	for i := 0; i < MaxChannels && (i+1)*8 <= len(buf); i++ {
		accum[i] = math.Float64frombits(binary.LittleEndian.Uint64(buf[i*8:]))
	}
}
