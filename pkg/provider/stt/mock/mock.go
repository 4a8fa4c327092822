// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcripts into the session
// pipeline without a live transcription backend. All fields are safe to set
// before calling any method; mutating them during a concurrent call is the
// caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/saberesdafloresta/nina/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	// Ctx is the context passed to Transcribe.
	Ctx context.Context

	// Audio is a copy of the audio blob passed to Transcribe.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider.
// Zero values cause Transcribe to return "" and a nil error.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Text is returned by Transcribe.
	Text string

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Block, if non-nil, makes Transcribe wait until the channel is closed
	// or the context is cancelled. Useful for holding a session in its busy
	// state mid-test.
	Block chan struct{}

	// --- Call records (read after test) ---

	// Calls records every invocation of Transcribe in order.
	Calls []TranscribeCall
}

// Transcribe records the call and returns Text, Err. If Block is set, it
// first waits for the channel to close; context cancellation wins and is
// returned as the error.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	p.mu.Lock()
	blob := make([]byte, len(audio))
	copy(blob, audio)
	p.Calls = append(p.Calls, TranscribeCall{Ctx: ctx, Audio: blob})
	block := p.Block
	text, err := p.Text, p.Err
	p.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return text, err
}

// CallCount returns the number of recorded Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
