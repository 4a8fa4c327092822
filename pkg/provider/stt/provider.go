// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (e.g. OpenAI Whisper) behind
// a single one-shot call: a complete utterance goes in as an opaque encoded
// audio blob, the recognised text comes out. The session pipeline only ever
// transcribes whole utterances, so no streaming surface is exposed.
//
// Implementations must be safe for concurrent use; one provider instance is
// shared by all live sessions.
package stt

import "context"

// Provider is the abstraction over any speech-to-text backend.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly. Failures are returned as a *provider.Fault so the
// caller can classify them without knowing the backend SDK.
type Provider interface {
	// Transcribe sends one complete utterance to the backend and returns the
	// recognised text. audio is an opaque encoded blob in whatever container
	// format the client recorded; the provider passes it through unparsed.
	//
	// An empty or whitespace-only result means the backend heard nothing
	// usable. That is not an error; callers decide what to do with it.
	Transcribe(ctx context.Context, audio []byte) (string, error)
}
