package media

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// wavHeaderSize is the canonical 44-byte RIFF/WAVE header we read and write.
	wavHeaderSize = 44

	// wavFormatPCM is the WAV format code for uncompressed linear PCM.
	wavFormatPCM = 1

	// SampleRate is the only sample rate handled on the media path.
	SampleRate = 8000
)

// ErrNotWAV is returned when data expected to carry a RIFF/WAVE header does not.
var ErrNotWAV = errors.New("not a RIFF/WAVE file")

// TrimWAVHeader returns the raw sample bytes of a linear PCM clip. If the
// data starts with the RIFF magic, the canonical 44-byte header is skipped;
// otherwise the data is assumed to be headerless samples and returned as is.
func TrimWAVHeader(data []byte) []byte {
	if len(data) >= wavHeaderSize && string(data[0:4]) == "RIFF" {
		return data[wavHeaderSize:]
	}
	return data
}

// ValidatePCMWAV checks that in-memory WAV data is uncompressed linear PCM,
// 8000 Hz, mono, 16-bit. The pacing engine accepts no other format.
func ValidatePCMWAV(data []byte) error {
	if len(data) < wavHeaderSize {
		return ErrNotWAV
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return ErrNotWAV
	}
	format := binary.LittleEndian.Uint16(data[20:22])
	if format != wavFormatPCM {
		return fmt.Errorf("wav format %d: only linear PCM (1) is supported", format)
	}
	if ch := binary.LittleEndian.Uint16(data[22:24]); ch != 1 {
		return fmt.Errorf("wav must be mono, got %d channels", ch)
	}
	if rate := binary.LittleEndian.Uint32(data[24:28]); rate != SampleRate {
		return fmt.Errorf("wav must be %d Hz, got %d Hz", SampleRate, rate)
	}
	if bits := binary.LittleEndian.Uint16(data[34:36]); bits != 16 {
		return fmt.Errorf("wav must be 16-bit, got %d-bit", bits)
	}
	return nil
}

// EncodeWAV serializes linear PCM samples as a standard uncompressed mono
// 8 kHz 16-bit WAV file: 44-byte header followed by little-endian samples.
func EncodeWAV(samples []int16) []byte {
	dataSize := uint32(len(samples) * 2)
	out := make([]byte, wavHeaderSize+int(dataSize))

	copy(out[0:4], "RIFF")
	binary.LittleEndian.PutUint32(out[4:8], wavHeaderSize-8+dataSize)
	copy(out[8:12], "WAVE")

	copy(out[12:16], "fmt ")
	binary.LittleEndian.PutUint32(out[16:20], 16)                // fmt sub-chunk size
	binary.LittleEndian.PutUint16(out[20:22], wavFormatPCM)      // linear PCM
	binary.LittleEndian.PutUint16(out[22:24], 1)                 // mono
	binary.LittleEndian.PutUint32(out[24:28], SampleRate)        // sample rate
	binary.LittleEndian.PutUint32(out[28:32], SampleRate*2)      // byte rate
	binary.LittleEndian.PutUint16(out[32:34], 2)                 // block align
	binary.LittleEndian.PutUint16(out[34:36], 16)                // bits per sample

	copy(out[36:40], "data")
	binary.LittleEndian.PutUint32(out[40:44], dataSize)

	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[wavHeaderSize+i*2:], uint16(s))
	}
	return out
}
