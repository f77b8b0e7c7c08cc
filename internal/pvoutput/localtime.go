// Package pvoutput implements the PVOutput uploader: a cooperative service
// that reads the energy log, computes generation / import / consumption
// statistics at a fixed cadence, and posts them to pvoutput.org.
package pvoutput

import (
	"fmt"
	"time"
)

const secondsPerDay = 86400

// Zone converts between UTC seconds and the configured local zone. The
// remote buckets energy per local day, so every "day" computation goes
// through here; persisted timestamps stay UTC.
type Zone struct {
	OffsetHours int
}

// ToLocal shifts a UTC timestamp into local seconds.
func (z Zone) ToLocal(utc int64) int64 {
	return utc + int64(z.OffsetHours)*3600
}

// ToUTC shifts local seconds back to UTC.
func (z Zone) ToUTC(local int64) int64 {
	return local - int64(z.OffsetHours)*3600
}

// SecondOfDay returns the local time of day in seconds.
func (z Zone) SecondOfDay(utc int64) int64 {
	return z.ToLocal(utc) % secondsPerDay
}

// SameLocalDay reports whether two UTC timestamps fall on the same local day.
func (z Zone) SameLocalDay(a, b int64) bool {
	return z.ToLocal(a)/secondsPerDay == z.ToLocal(b)/secondsPerDay
}

// IsDayEnd reports whether the UTC timestamp is local 23:59:59.
func (z Zone) IsDayEnd(utc int64) bool {
	return z.SecondOfDay(utc) == secondsPerDay-1
}

// MidnightUTC returns the UTC timestamp of local 00:00:00 of the local day
// containing utc.
func (z Zone) MidnightUTC(utc int64) int64 {
	local := z.ToLocal(utc)
	return z.ToUTC(local - local%secondsPerDay)
}

// DayStart returns the local midnight of the day containing utc, quantised
// down to the report interval grid.
func (z Zone) DayStart(utc int64, interval int64) int64 {
	ds := z.MidnightUTC(utc)
	return ds - ds%interval
}

// DateClock returns the local calendar date and wall clock for encoding.
func (z Zone) DateClock(utc int64) (year int, month int, day int, hour int, minute int, second int) {
	t := time.Unix(z.ToLocal(utc), 0).UTC()
	return t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second()
}

// FormatLocal renders a UTC timestamp as a local diagnostic date string.
func (z Zone) FormatLocal(utc int64) string {
	y, mo, d, h, mi, s := z.DateClock(utc)
	return fmt.Sprintf("%04d/%02d/%02d %02d:%02d:%02d", y, mo, d, h, mi, s)
}
