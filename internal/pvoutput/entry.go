package pvoutput

import (
	log "github.com/sirupsen/logrus"

	"github.com/gridwatch/energy-monitor/internal/datalog"
)

// ZeroTolerance is the dead band, in watts, around zero when deciding
// whether a CT coil is wired backwards.
const ZeroTolerance = 1.0

// Entry is one measurement to post. Internal sign convention: generation and
// export are negative, consumption and import positive. Conversion to the
// remote's positive-only form happens at encode time.
type Entry struct {
	UnixTime        int64
	Voltage         float64
	EnergyGenerated float64
	PowerGenerated  float64
	EnergyConsumed  float64
	PowerConsumed   float64
}

// partialRecord carries just the accumulators the calculation needs.
type partialRecord struct {
	unixTime     int64
	logHours     float64
	voltageAccum float64
	mainsAccum   float64
	solarAccum   float64
}

// toPartial projects a log record onto the configured channels. The voltage
// reference comes from the mains channel's voltage channel, falling back to
// the solar channel's.
func toPartial(rec *datalog.Record, cfg *Config, channels []InputChannel) partialRecord {
	p := partialRecord{
		unixTime: rec.UnixTime,
		logHours: rec.LogHours,
	}

	voltageChannel := -1
	if cfg.MainsChannel >= 0 && cfg.MainsChannel < len(channels) {
		voltageChannel = channels[cfg.MainsChannel].VoltageChannel
	} else if cfg.SolarChannel >= 0 && cfg.SolarChannel < len(channels) {
		voltageChannel = channels[cfg.SolarChannel].VoltageChannel
	}
	if voltageChannel >= 0 && voltageChannel < datalog.MaxChannels {
		p.voltageAccum = rec.Accum1[voltageChannel]
	}
	if cfg.SolarChannel >= 0 {
		p.solarAccum = rec.Accum1[cfg.SolarChannel]
	}
	if cfg.MainsChannel >= 0 {
		p.mainsAccum = rec.Accum1[cfg.MainsChannel]
	}
	return p
}

// calculateEntry produces the measurement for postTime from the previous
// post record, the record being posted, and the day-start reference, and
// learns CT orientation from power-sign inconsistencies. The returned flags
// replace the caller's; each toggles at most once per call.
func calculateEntry(postTime int64, prev, next, dayStart partialRecord,
	mainsReversed, solarReversed bool) (Entry, bool, bool) {

	e := Entry{UnixTime: postTime}
	logHours := next.logHours - prev.logHours

	if logHours != 0 {
		e.Voltage = (next.voltageAccum - prev.voltageAccum) / logHours
	}

	e.EnergyGenerated = next.solarAccum - dayStart.solarAccum
	energyImported := next.mainsAccum - dayStart.mainsAccum

	var powerImported float64
	if logHours != 0 {
		e.PowerGenerated = (next.solarAccum - prev.solarAccum) / logHours
		powerImported = (next.mainsAccum - prev.mainsAccum) / logHours
	}

	if solarReversed {
		e.EnergyGenerated = -e.EnergyGenerated
		e.PowerGenerated = -e.PowerGenerated
	}
	if mainsReversed {
		energyImported = -energyImported
		powerImported = -powerImported
	}

	// A solar channel only ever generates. Sustained positive power there
	// means the CT is physically reversed; learn the orientation and keep it.
	if e.PowerGenerated > ZeroTolerance {
		log.Warnf("pvoutput: solar channel reading %.1fW of consumption, treating CT as reversed", e.PowerGenerated)
		e.EnergyGenerated = -e.EnergyGenerated
		e.PowerGenerated = -e.PowerGenerated
		solarReversed = !solarReversed
	}

	// Exporting more than we generate means the mains CT is backwards too.
	if powerImported+ZeroTolerance < e.PowerGenerated-ZeroTolerance {
		log.Warnf("pvoutput: exporting %.1fW while generating %.1fW, treating mains CT as reversed",
			-powerImported, -e.PowerGenerated)
		energyImported = -energyImported
		powerImported = -powerImported
		mainsReversed = !mainsReversed
	}

	e.EnergyConsumed = energyImported - e.EnergyGenerated
	e.PowerConsumed = powerImported - e.PowerGenerated

	return e, mainsReversed, solarReversed
}
