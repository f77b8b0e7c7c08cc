// Package protocol defines the binary frame format used on the link between
// the sampling process and the monitor's datalog ingest.
package protocol

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Frame magic and version
const (
	MagicByte1 uint8 = 0xA5
	MagicByte2 uint8 = 0x57

	FrameVersion uint8 = 0x01
)

// MaxChannels is the compile-time limit on input channels, matching the
// sampler hardware.
const MaxChannels = 15

// Fixed part: magic (2) + version (1) + serial (4) + unix time (4) +
// log hours (8) + channel count (1) = 20 bytes.
const headerSize = 20

// RecordFrame is one sampled log record on the wire. Each channel carries
// two double-integrated accumulators (see the datalog package for units).
type RecordFrame struct {
	Serial   uint32
	UnixTime uint32
	LogHours float64
	Channels uint8
	Accum1   [MaxChannels]float64
	Accum2   [MaxChannels]float64
}

// Encode serializes the frame for transmission.
func (f *RecordFrame) Encode() []byte {
	buf := make([]byte, headerSize+int(f.Channels)*16)
	buf[0] = MagicByte1
	buf[1] = MagicByte2
	buf[2] = FrameVersion
	binary.LittleEndian.PutUint32(buf[3:7], f.Serial)
	binary.LittleEndian.PutUint32(buf[7:11], f.UnixTime)
	binary.LittleEndian.PutUint64(buf[11:19], math.Float64bits(f.LogHours))
	buf[19] = f.Channels

	offset := headerSize
	for i := 0; i < int(f.Channels); i++ {
		binary.LittleEndian.PutUint64(buf[offset:offset+8], math.Float64bits(f.Accum1[i]))
		binary.LittleEndian.PutUint64(buf[offset+8:offset+16], math.Float64bits(f.Accum2[i]))
		offset += 16
	}
	return buf
}

// DecodeRecord parses a raw frame.
func DecodeRecord(data []byte) (*RecordFrame, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("record frame too short: %d bytes", len(data))
	}
	if data[0] != MagicByte1 || data[1] != MagicByte2 {
		return nil, fmt.Errorf("bad frame magic: 0x%02X 0x%02X", data[0], data[1])
	}
	if data[2] != FrameVersion {
		return nil, fmt.Errorf("unsupported frame version: %d", data[2])
	}

	f := &RecordFrame{
		Serial:   binary.LittleEndian.Uint32(data[3:7]),
		UnixTime: binary.LittleEndian.Uint32(data[7:11]),
		LogHours: math.Float64frombits(binary.LittleEndian.Uint64(data[11:19])),
		Channels: data[19],
	}
	if f.Channels > MaxChannels {
		return nil, fmt.Errorf("channel count %d exceeds limit %d", f.Channels, MaxChannels)
	}
	if len(data) < headerSize+int(f.Channels)*16 {
		return nil, fmt.Errorf("record frame truncated: %d bytes for %d channels", len(data), f.Channels)
	}

	offset := headerSize
	for i := 0; i < int(f.Channels); i++ {
		f.Accum1[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset : offset+8]))
		f.Accum2[i] = math.Float64frombits(binary.LittleEndian.Uint64(data[offset+8 : offset+16]))
		offset += 16
	}
	return f, nil
}
