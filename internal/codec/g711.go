// Package codec implements G.711 u-law companding: the fixed 16-bit
// linear PCM to 8-bit logarithmic sample transform used on the media
// path. Encode and decode are pure table lookups after init.
package codec

// SilenceByte is the u-law byte representing zero amplitude. Frames of
// repeated SilenceByte are what the pacing engine sends between prompts.
const SilenceByte = 0xFF

// ulawToLinear maps each u-law byte to a 16-bit linear PCM sample.
var ulawToLinear [256]int16

// linearToUlaw maps each 16-bit signed sample (as uint16 index) to a u-law byte.
var linearToUlaw [65536]uint8

func init() {
	for i := 0; i < 256; i++ {
		ulawToLinear[i] = decodeUlaw(uint8(i))
	}
	for i := -32768; i <= 32767; i++ {
		linearToUlaw[uint16(int16(i))] = encodeUlaw(int16(i))
	}
}

// Encode converts a 16-bit linear PCM sample to a u-law byte.
func Encode(sample int16) byte {
	return linearToUlaw[uint16(sample)]
}

// Decode converts a u-law byte to a 16-bit linear PCM sample.
func Decode(b byte) int16 {
	return ulawToLinear[b]
}

// decodeUlaw reconstructs a linear sample from a u-law code using the
// standard formula. Used only to build the lookup table.
func decodeUlaw(u uint8) int16 {
	u = ^u
	negative := u&0x80 != 0
	exponent := int((u >> 4) & 0x07)
	mantissa := int(u & 0x0F)
	sample := ((mantissa<<3 + 0x84) << uint(exponent)) - 0x84
	if negative {
		sample = -sample
	}
	return int16(sample)
}

// encodeUlaw converts a linear sample to a u-law code using the standard
// bias-and-clip algorithm. Used only to build the lookup table.
func encodeUlaw(sample int16) uint8 {
	const bias = 0x84
	const clip = 32635

	v := int(sample)
	sign := uint8(0)
	if v < 0 {
		sign = 0x80
		v = -v
	}
	if v > clip {
		v = clip
	}
	v += bias

	exponent := 7
	mask := 0x4000
	for exponent > 0 {
		if v&mask != 0 {
			break
		}
		exponent--
		mask >>= 1
	}

	mantissa := (v >> (uint(exponent) + 3)) & 0x0F
	return ^(sign | uint8(exponent<<4) | uint8(mantissa))
}
