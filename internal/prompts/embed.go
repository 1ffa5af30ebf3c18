// Package prompts provides embedded default audio prompts. These are
// PCM-16 WAV files (8kHz, mono) ready for the pacing engine; the shipped
// versions are silence-filled placeholders to be replaced with real voice
// recordings.
//
// The embedded prompts are extracted to the data directory on first boot;
// files already on disk are never overwritten.
package prompts

import "embed"

// DefaultFS holds the default audio prompts embedded in the binary.
//
//go:embed system/*.wav
var DefaultFS embed.FS

// DefaultPrompts lists the filenames of all embedded prompts. Each maps to
// one spoken moment in the call flow.
var DefaultPrompts = []string{
	"greeting.wav",
	"assistant.wav",
	"voicemail.wav",
	"saved.wav",
	"unavailable.wav",
}
