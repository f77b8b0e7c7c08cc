package pvoutput

import (
	"strings"
	"testing"
)

func TestEncodeEntry(t *testing.T) {
	z := Zone{OffsetHours: 0}
	e := Entry{
		UnixTime:        1700000100, // 2023-11-14 22:15 UTC
		Voltage:         230.1,
		EnergyGenerated: -500,
		PowerGenerated:  -6000,
		EnergyConsumed:  600,
		PowerConsumed:   7200,
	}

	got := EncodeEntry(e, z)
	want := "20231114,22:15,500,6000,600,7200,,230.1"
	if got != want {
		t.Errorf("EncodeEntry mismatch:\n got %q\nwant %q", got, want)
	}
}

func TestEncodeEntryClampsNegative(t *testing.T) {
	z := Zone{OffsetHours: 0}
	e := Entry{
		UnixTime:        1700000100,
		Voltage:         230.0,
		EnergyGenerated: 25, // positive internal = would encode negative
		PowerGenerated:  100,
		EnergyConsumed:  -10,
		PowerConsumed:   -50,
	}

	got := EncodeEntry(e, z)
	fields := strings.Split(got, ",")
	if len(fields) != 8 {
		t.Fatalf("expected 8 fields, got %d: %q", len(fields), got)
	}
	for _, f := range fields[2:6] {
		if strings.HasPrefix(f, "-") {
			t.Errorf("negative field %q leaked into %q", f, got)
		}
		if f != "0" {
			t.Errorf("expected clamped 0, got %q in %q", f, got)
		}
	}
}

func TestEncodeEntryUsesLocalZone(t *testing.T) {
	z := Zone{OffsetHours: 10}

	// 2023-11-14 22:15 UTC = 2023-11-15 08:15 local
	got := EncodeEntry(Entry{UnixTime: 1700000100}, z)
	if !strings.HasPrefix(got, "20231115,08:15,") {
		t.Errorf("expected local date prefix, got %q", got)
	}
}

// Round-trip: any entry with finite non-negative quantities encodes to a
// field layout the status parser accepts structurally.
func TestEncodeParseRoundTrip(t *testing.T) {
	z := Zone{OffsetHours: 0}
	entries := []Entry{
		{UnixTime: 1700000100, Voltage: 230.1, EnergyGenerated: -500, PowerGenerated: -6000, EnergyConsumed: 600, PowerConsumed: 7200},
		{UnixTime: 1699920000, Voltage: 0},
		{UnixTime: 1700006399, Voltage: 239.9, EnergyGenerated: -12345, PowerGenerated: -1, EnergyConsumed: 1, PowerConsumed: 0},
	}

	for _, e := range entries {
		encoded := EncodeEntry(e, z)
		parsed, err := ParseStatus(encoded, z)
		if err != nil {
			t.Errorf("ParseStatus(%q) failed: %v", encoded, err)
			continue
		}
		wantMinute := e.UnixTime - e.UnixTime%60
		if parsed != wantMinute && parsed != wantMinute-1 {
			t.Errorf("round-trip time mismatch for %q: got %d, want %d", encoded, parsed, wantMinute)
		}
	}
}

func TestParseStatusPlainTime(t *testing.T) {
	z := Zone{OffsetHours: 0}

	got, err := ParseStatus("20231114,22:15,500,6000,600,7200,NaN,NaN,230.1", z)
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if got != 1700000100 {
		t.Errorf("time mismatch: got %d, want 1700000100", got)
	}
}

func TestParseStatusMidnightStartOfDay(t *testing.T) {
	z := Zone{OffsetHours: 0}

	// Zero energies at 00:00: a fresh day.
	got, err := ParseStatus("20231114,00:00,0,0,0,0,NaN,NaN,NaN", z)
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if got != 1699920000 {
		t.Errorf("expected start-of-day 1699920000, got %d", got)
	}
}

func TestParseStatusMidnightEndOfPreviousDay(t *testing.T) {
	z := Zone{OffsetHours: 0}

	// Non-zero energy at 00:00: the previous day's closing sentinel.
	got, err := ParseStatus("20231114,00:00,1000,0,1200,100,NaN,NaN,230.0", z)
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if got != 1699920000-1 {
		t.Errorf("expected 23:59:59 of previous day %d, got %d", 1699920000-1, got)
	}
	if !z.IsDayEnd(got) {
		t.Error("expected a day-end timestamp")
	}

	// Consumption alone also marks the sentinel.
	got, err = ParseStatus("20231114,00:00,0,0,1200,100,NaN,NaN,230.0", z)
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if got != 1699920000-1 {
		t.Errorf("expected sentinel for consumption-only, got %d", got)
	}
}

func TestParseStatusRejectsBadInput(t *testing.T) {
	z := Zone{OffsetHours: 0}

	cases := []string{
		"",
		"garbage",
		"20231314,22:15,0,0,0,0",   // month 13
		"20231132,22:15,0,0,0,0",   // day 32
		"20231114,24:15,0,0,0,0",   // hour 24
		"20231114,22:60,0,0,0,0",   // minute 60
		"20231114 22:15,0,0,0,0",   // missing separator
		"20231114,2a:15,0,0,0,0",   // non-digit
		"20231114,22-15,0,0,0,0",   // wrong time separator
		"2023111,22:15,0,0,0,0,00", // short date
	}
	for _, c := range cases {
		if _, err := ParseStatus(c, z); err == nil {
			t.Errorf("expected parse error for %q", c)
		}
	}
}

func TestParseStatusRespectsZone(t *testing.T) {
	z := Zone{OffsetHours: 10}

	// Local 2023-11-15 08:15 = 2023-11-14 22:15 UTC
	got, err := ParseStatus("20231115,08:15,500,6000,600,7200,NaN,NaN,230.1", z)
	if err != nil {
		t.Fatalf("ParseStatus failed: %v", err)
	}
	if got != 1700000100 {
		t.Errorf("zone conversion mismatch: got %d, want 1700000100", got)
	}
}
