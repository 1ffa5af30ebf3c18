package media

import (
	"testing"

	"github.com/autovox/autovox/internal/codec"
)

func TestMixDuplex_SilenceIdentity(t *testing.T) {
	// Mixing any buffer against all-silence must reproduce the buffer's
	// decoded samples exactly.
	voice := []byte{0x00, 0x42, 0x7F, 0x80, 0xC3, 0xFF, 0x15, 0xE0}
	silence := make([]byte, len(voice))
	for i := range silence {
		silence[i] = codec.SilenceByte
	}

	mixed := MixDuplex(voice, silence)
	if len(mixed) != len(voice) {
		t.Fatalf("mixed length = %d, want %d", len(mixed), len(voice))
	}
	for i, s := range mixed {
		if want := codec.Decode(voice[i]); s != want {
			t.Errorf("sample %d: got %d, want %d", i, s, want)
		}
	}
}

func TestMixDuplex_Deterministic(t *testing.T) {
	a := []byte{0x03, 0x91, 0x55, 0xAA, 0x7E}
	b := []byte{0x81, 0x11, 0xD5, 0x2A, 0xFE}

	first := MixDuplex(a, b)
	second := MixDuplex(a, b)
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("sample %d differs between runs: %d vs %d", i, first[i], second[i])
		}
	}
}

func TestMixDuplex_UnequalLengths(t *testing.T) {
	long := []byte{0x10, 0x20, 0x30, 0x40}
	short := []byte{0x90}

	mixed := MixDuplex(long, short)
	if len(mixed) != len(long) {
		t.Fatalf("mixed length = %d, want %d", len(mixed), len(long))
	}
	// Past the short buffer's end, the mix must equal the long buffer alone.
	for i := 1; i < len(long); i++ {
		if want := codec.Decode(long[i]); mixed[i] != want {
			t.Errorf("sample %d: got %d, want %d", i, mixed[i], want)
		}
	}
}

func TestMixDuplex_Clamps(t *testing.T) {
	// 0x80 companded decodes to the largest positive magnitude; summing two
	// of them overflows int16 and must clamp instead of wrapping.
	loud := []byte{0x80, 0x80}
	mixed := MixDuplex(loud, loud)
	for i, s := range mixed {
		if s != 32767 {
			t.Errorf("sample %d: got %d, want clamped 32767", i, s)
		}
	}

	quiet := []byte{0x00, 0x00}
	mixed = MixDuplex(quiet, quiet)
	for i, s := range mixed {
		if s != -32768 {
			t.Errorf("negative sample %d: got %d, want clamped -32768", i, s)
		}
	}
}

func TestMixDuplex_Empty(t *testing.T) {
	if got := MixDuplex(nil, nil); len(got) != 0 {
		t.Errorf("mixing two empty buffers produced %d samples", len(got))
	}
}

func TestDecodeBuffer(t *testing.T) {
	in := []byte{0xFF, 0x7F, 0x00}
	out := DecodeBuffer(in)
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i, b := range in {
		if out[i] != codec.Decode(b) {
			t.Errorf("sample %d: got %d, want %d", i, out[i], codec.Decode(b))
		}
	}
}
