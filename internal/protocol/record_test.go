package protocol

import (
	"math"
	"testing"
)

// TestRecordFrameRoundTrip encodes a frame like the sampler would and decodes
// it like the monitor would.
func TestRecordFrameRoundTrip(t *testing.T) {
	frame := &RecordFrame{
		Serial:   1234,
		UnixTime: 1700000300,
		LogHours: 1000.083,
		Channels: 3,
	}
	frame.Accum1[0] = 230.1 * 1000.083 // voltage reference accumulator
	frame.Accum1[1] = 500.0
	frame.Accum1[2] = -1500.0
	frame.Accum2[1] = 12.5

	encoded := frame.Encode()

	decoded, err := DecodeRecord(encoded)
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}

	if decoded.Serial != frame.Serial {
		t.Errorf("Serial mismatch: got %d, want %d", decoded.Serial, frame.Serial)
	}
	if decoded.UnixTime != frame.UnixTime {
		t.Errorf("UnixTime mismatch: got %d, want %d", decoded.UnixTime, frame.UnixTime)
	}
	if decoded.LogHours != frame.LogHours {
		t.Errorf("LogHours mismatch: got %f, want %f", decoded.LogHours, frame.LogHours)
	}
	if decoded.Channels != frame.Channels {
		t.Fatalf("Channels mismatch: got %d, want %d", decoded.Channels, frame.Channels)
	}
	for i := 0; i < int(frame.Channels); i++ {
		if decoded.Accum1[i] != frame.Accum1[i] {
			t.Errorf("Accum1[%d] mismatch: got %f, want %f", i, decoded.Accum1[i], frame.Accum1[i])
		}
		if decoded.Accum2[i] != frame.Accum2[i] {
			t.Errorf("Accum2[%d] mismatch: got %f, want %f", i, decoded.Accum2[i], frame.Accum2[i])
		}
	}
}

func TestDecodeRecordRejectsBadMagic(t *testing.T) {
	frame := &RecordFrame{UnixTime: 1700000000, Channels: 1}
	data := frame.Encode()
	data[0] = 0x00

	if _, err := DecodeRecord(data); err == nil {
		t.Error("expected error for bad magic")
	}
}

func TestDecodeRecordRejectsShortFrame(t *testing.T) {
	if _, err := DecodeRecord(make([]byte, 10)); err == nil {
		t.Error("expected error for short frame")
	}
}

func TestDecodeRecordRejectsTruncatedChannels(t *testing.T) {
	frame := &RecordFrame{UnixTime: 1700000000, Channels: 4}
	data := frame.Encode()

	if _, err := DecodeRecord(data[:len(data)-8]); err == nil {
		t.Error("expected error for truncated channel data")
	}
}

// NaN accumulators must survive the codec untouched; sanitising is the
// datalog reader's job, not the wire format's.
func TestDecodeRecordPreservesNaN(t *testing.T) {
	frame := &RecordFrame{UnixTime: 1700000000, Channels: 2}
	frame.Accum1[1] = math.NaN()

	decoded, err := DecodeRecord(frame.Encode())
	if err != nil {
		t.Fatalf("DecodeRecord failed: %v", err)
	}
	if !math.IsNaN(decoded.Accum1[1]) {
		t.Errorf("expected NaN to round-trip, got %f", decoded.Accum1[1])
	}
}
