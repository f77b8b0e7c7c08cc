// Package datalog provides the SQLite-backed time-indexed energy log and the
// read-only adapter the reporting services consume.
package datalog

import (
	"math"

	"github.com/gridwatch/energy-monitor/internal/protocol"
)

// MaxChannels mirrors the sampler's input channel limit.
const MaxChannels = protocol.MaxChannels

// Record is one aggregated measurement interval. Accum1/Accum2 are
// double-integrated per-channel quantities (watt-hours x hours); differences
// between records divided by the LogHours delta yield mean watts.
type Record struct {
	UnixTime int64
	Serial   int64
	LogHours float64
	Accum1   [MaxChannels]float64
	Accum2   [MaxChannels]float64
}

// Sanitize coerces NaN fields to zero in place. The sampler occasionally
// writes NaN accumulators after a brownout; downstream arithmetic must never
// see them.
func (r *Record) Sanitize() {
	if math.IsNaN(r.LogHours) {
		r.LogHours = 0
	}
	for i := 0; i < MaxChannels; i++ {
		if math.IsNaN(r.Accum1[i]) {
			r.Accum1[i] = 0
		}
		if math.IsNaN(r.Accum2[i]) {
			r.Accum2[i] = 0
		}
	}
}

// FromFrame converts a wire frame into a log record.
func FromFrame(f *protocol.RecordFrame) *Record {
	rec := &Record{
		UnixTime: int64(f.UnixTime),
		Serial:   int64(f.Serial),
		LogHours: f.LogHours,
	}
	for i := 0; i < int(f.Channels) && i < MaxChannels; i++ {
		rec.Accum1[i] = f.Accum1[i]
		rec.Accum2[i] = f.Accum2[i]
	}
	return rec
}
