package media

import "github.com/autovox/autovox/internal/codec"

// MixDuplex combines the inbound and outbound companded buffers of a call
// into a single linear PCM stream. Each byte position is decoded from both
// buffers independently, summed in the linear domain, clamped to the 16-bit
// signed range, and emitted as one output sample. The missing tail of the
// shorter buffer contributes silence, so mixing against silence reproduces
// the other stream's decoded samples exactly.
//
// The mix is sample-accurate and deterministic: the same two inputs always
// produce the same output.
func MixDuplex(inbound, outbound []byte) []int16 {
	n := len(inbound)
	if len(outbound) > n {
		n = len(outbound)
	}

	out := make([]int16, n)
	for i := 0; i < n; i++ {
		var a, b int32
		if i < len(inbound) {
			a = int32(codec.Decode(inbound[i]))
		}
		if i < len(outbound) {
			b = int32(codec.Decode(outbound[i]))
		}
		s := a + b
		if s > 32767 {
			s = 32767
		} else if s < -32768 {
			s = -32768
		}
		out[i] = int16(s)
	}
	return out
}

// DecodeBuffer expands a companded buffer to linear PCM samples. Used when
// a single-direction recording (voicemail, assistant input) is persisted
// without mixing.
func DecodeBuffer(companded []byte) []int16 {
	out := make([]int16, len(companded))
	for i, b := range companded {
		out[i] = codec.Decode(b)
	}
	return out
}
