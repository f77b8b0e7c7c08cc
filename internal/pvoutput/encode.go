package pvoutput

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// EncodeEntry renders an entry in the remote's batch CSV form:
// YYYYMMDD,HH:MM,eg,pg,ec,pc,,volts with the date/time in the local zone.
// The four main quantities are clamped to >= 0 first; the remote rejects
// negative values and a rejected batch would loop forever.
func EncodeEntry(e Entry, z Zone) string {
	// Internal convention holds generation negative; the remote wants it
	// positive.
	eg := clampNonNegative(-e.EnergyGenerated)
	pg := clampNonNegative(-e.PowerGenerated)
	ec := clampNonNegative(e.EnergyConsumed)
	pc := clampNonNegative(e.PowerConsumed)

	year, month, day, hour, minute, _ := z.DateClock(e.UnixTime)
	return fmt.Sprintf("%04d%02d%02d,%02d:%02d,%.0f,%.0f,%.0f,%.0f,,%.1f",
		year, month, day, hour, minute, eg, pg, ec, pc, e.Voltage)
}

func clampNonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

// ParseStatus parses a getstatus reply of the shape
// YYYYMMDD,HH:MM,eg,pg,ec,pc,... and returns the UTC timestamp of the last
// post. A midnight timestamp whose energy fields are already non-zero is the
// previous day's closing sentinel; it comes back as 23:59:59 of that day.
func ParseStatus(body string, z Zone) (int64, error) {
	body = strings.TrimSpace(body)
	if len(body) < 15 {
		return 0, fmt.Errorf("status reply too short: %q", body)
	}
	if body[8] != ',' || body[11] != ':' || body[14] != ',' {
		return 0, fmt.Errorf("status reply missing separators: %q", body)
	}

	year, err := fixedInt(body[0:4], 2000, 2199)
	if err != nil {
		return 0, fmt.Errorf("status year: %w", err)
	}
	month, err := fixedInt(body[4:6], 1, 12)
	if err != nil {
		return 0, fmt.Errorf("status month: %w", err)
	}
	day, err := fixedInt(body[6:8], 1, 31)
	if err != nil {
		return 0, fmt.Errorf("status day: %w", err)
	}
	hour, err := fixedInt(body[9:11], 0, 23)
	if err != nil {
		return 0, fmt.Errorf("status hour: %w", err)
	}
	minute, err := fixedInt(body[12:14], 0, 59)
	if err != nil {
		return 0, fmt.Errorf("status minute: %w", err)
	}

	local := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC).Unix()
	utc := z.ToUTC(local)

	if hour == 0 && minute == 0 {
		fields := strings.Split(body[15:], ",")
		if len(fields) >= 3 && (energyPresent(fields[0]) || energyPresent(fields[2])) {
			// The 00:00 status already carries energy: it is the end-of-day
			// sentinel of the previous local day.
			return utc - 1, nil
		}
	}
	return utc, nil
}

// fixedInt parses a strictly numeric fixed-width field with an inclusive
// range check.
func fixedInt(s string, min, max int) (int, error) {
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("non-digit in %q", s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if v < min || v > max {
		return 0, fmt.Errorf("%d outside range %d..%d", v, min, max)
	}
	return v, nil
}

// energyPresent reports whether an energy text field holds a real non-zero
// value.
func energyPresent(field string) bool {
	field = strings.TrimSpace(field)
	if field == "" || field == "NaN" {
		return false
	}
	v, err := strconv.ParseFloat(field, 64)
	if err != nil {
		return false
	}
	return v != 0
}
