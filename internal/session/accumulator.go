package session

import (
	"errors"
	"sync"
)

// ErrPendingAudioFull is returned by [Accumulator.Append] when accepting the
// fragment would exceed the configured pending-audio limit. The fragment is
// dropped; already-buffered audio is kept.
var ErrPendingAudioFull = errors.New("session: pending audio limit reached")

// Accumulator collects inbound audio fragments for the next utterance.
// Fragments are concatenated in arrival order and handed over as one blob by
// [Accumulator.Flush], which atomically resets the buffer.
//
// All methods are safe for concurrent use.
type Accumulator struct {
	mu       sync.Mutex
	buf      []byte
	maxBytes int
}

// NewAccumulator creates an accumulator. maxBytes caps the total buffered
// audio; 0 means unlimited.
func NewAccumulator(maxBytes int) *Accumulator {
	return &Accumulator{maxBytes: maxBytes}
}

// Append adds a fragment to the pending buffer. The fragment bytes are
// copied, so the caller may reuse its slice. Returns [ErrPendingAudioFull]
// when the limit would be exceeded.
func (a *Accumulator) Append(fragment []byte) error {
	if len(fragment) == 0 {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.maxBytes > 0 && len(a.buf)+len(fragment) > a.maxBytes {
		return ErrPendingAudioFull
	}
	a.buf = append(a.buf, fragment...)
	return nil
}

// Flush returns everything buffered so far and resets the accumulator in the
// same critical section. The returned slice is owned by the caller; the next
// fragment appended after Flush starts a fresh backing array, so the flushed
// blob is never mutated by later appends.
func (a *Accumulator) Flush() []byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	blob := a.buf
	a.buf = nil
	return blob
}

// Size returns the number of currently buffered bytes.
func (a *Accumulator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.buf)
}
