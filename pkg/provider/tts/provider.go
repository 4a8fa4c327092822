// Package tts defines the Provider interface for text-to-speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) behind a
// single one-shot call: the full reply text goes in, the complete encoded
// audio comes out. Synthesis is deliberately not streamed; waiting for the
// whole buffer avoids the mid-word artefacts that chunked synthesis produces
// on short conversational replies.
//
// Implementations must be safe for concurrent use; one provider instance is
// shared by all live sessions.
package tts

import "context"

// VoiceProfile selects and tunes the synthesis voice.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is a human-readable label used in logs. Optional.
	Name string

	// Stability controls delivery consistency in the range [0.0, 1.0].
	Stability float64

	// SimilarityBoost controls adherence to the original voice in [0.0, 1.0].
	SimilarityBoost float64

	// Style controls expressiveness amplification in [0.0, 1.0].
	Style float64

	// SpeakerBoost enables the provider's speaker similarity enhancement.
	SpeakerBoost bool
}

// Provider is the abstraction over any text-to-speech backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly. Failures are returned as a *provider.Fault so the
// caller can classify them without knowing the backend SDK.
type Provider interface {
	// Synthesize renders text with the given voice and returns the complete
	// encoded audio blob. The caller treats the bytes as opaque and forwards
	// them to the client unmodified.
	Synthesize(ctx context.Context, text string, voice VoiceProfile) ([]byte, error)
}
