package media

import (
	"encoding/binary"
	"testing"
)

func TestEncodeWAV_HeaderFields(t *testing.T) {
	for _, sampleCount := range []int{0, 1, 160, 12345} {
		out := EncodeWAV(make([]int16, sampleCount))

		if len(out) != wavHeaderSize+2*sampleCount {
			t.Fatalf("sampleCount %d: output length %d, want %d", sampleCount, len(out), wavHeaderSize+2*sampleCount)
		}
		if string(out[0:4]) != "RIFF" || string(out[8:12]) != "WAVE" {
			t.Fatalf("sampleCount %d: missing RIFF/WAVE magic", sampleCount)
		}

		dataSize := 2 * sampleCount
		if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+dataSize) {
			t.Errorf("sampleCount %d: RIFF size = %d, want %d", sampleCount, got, 36+dataSize)
		}
		if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(dataSize) {
			t.Errorf("sampleCount %d: data chunk size = %d, want %d", sampleCount, got, dataSize)
		}
		if got := binary.LittleEndian.Uint16(out[20:22]); got != wavFormatPCM {
			t.Errorf("sampleCount %d: format code = %d, want %d", sampleCount, got, wavFormatPCM)
		}
		if got := binary.LittleEndian.Uint32(out[24:28]); got != SampleRate {
			t.Errorf("sampleCount %d: sample rate = %d, want %d", sampleCount, got, SampleRate)
		}
		if got := binary.LittleEndian.Uint16(out[22:24]); got != 1 {
			t.Errorf("sampleCount %d: channels = %d, want 1", sampleCount, got)
		}
		if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
			t.Errorf("sampleCount %d: bits per sample = %d, want 16", sampleCount, got)
		}
	}
}

func TestEncodeWAV_SamplePayload(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768}
	// pad out to show little-endian layout past the header
	out := EncodeWAV(samples)
	for i, want := range samples {
		got := int16(binary.LittleEndian.Uint16(out[wavHeaderSize+2*i:]))
		if got != want {
			t.Errorf("sample %d: got %d, want %d", i, got, want)
		}
	}
}

func TestTrimWAVHeader(t *testing.T) {
	raw := []byte{1, 2, 3, 4}
	if got := TrimWAVHeader(raw); len(got) != 4 {
		t.Errorf("headerless input trimmed to %d bytes, want 4", len(got))
	}

	withHeader := EncodeWAV([]int16{100, 200})
	trimmed := TrimWAVHeader(withHeader)
	if len(trimmed) != 4 {
		t.Fatalf("trimmed length = %d, want 4", len(trimmed))
	}
	if got := int16(binary.LittleEndian.Uint16(trimmed)); got != 100 {
		t.Errorf("first trimmed sample = %d, want 100", got)
	}
}

func TestValidatePCMWAV(t *testing.T) {
	good := EncodeWAV(make([]int16, 160))
	if err := ValidatePCMWAV(good); err != nil {
		t.Errorf("valid file rejected: %v", err)
	}

	if err := ValidatePCMWAV([]byte("not a wav file")); err == nil {
		t.Error("expected error for non-WAV input")
	}

	wrongRate := EncodeWAV(make([]int16, 160))
	binary.LittleEndian.PutUint32(wrongRate[24:28], 44100)
	if err := ValidatePCMWAV(wrongRate); err == nil {
		t.Error("expected error for wrong sample rate")
	}
}
