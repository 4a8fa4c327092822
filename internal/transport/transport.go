// Package transport defines the bidirectional frame channel between a voice
// session and its client, plus the WebSocket implementation of it.
//
// The wire protocol is deliberately small. Inbound, the client sends binary
// frames carrying opaque audio fragments and text frames carrying control
// markers. Outbound, the server sends JSON text frames of the shape
// {"type": ..., "text": ...} and raw binary frames carrying synthesized
// audio. In-order delivery per client is guaranteed by serializing writes.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Kind labels an outbound JSON text frame.
type Kind string

const (
	// KindUserTranscript carries the recognised text of the member's
	// utterance, echoed back for display.
	KindUserTranscript Kind = "user_transcript"

	// KindAssistantResponse carries the assistant's reply text.
	KindAssistantResponse Kind = "assistant_response"

	// KindError carries a human-readable failure notice for the current
	// utterance. The session stays alive after sending one.
	KindError Kind = "error"
)

// Frame is a single inbound message from the client.
type Frame struct {
	// Binary reports whether the frame carried binary (audio) data.
	// When false, Data is the UTF-8 text payload.
	Binary bool

	// Data is the raw frame payload.
	Data []byte
}

// envelope is the JSON shape of all outbound text frames.
type envelope struct {
	Type Kind   `json:"type"`
	Text string `json:"text"`
}

// encodeEnvelope marshals an outbound text frame body.
func encodeEnvelope(kind Kind, text string) ([]byte, error) {
	b, err := json.Marshal(envelope{Type: kind, Text: text})
	if err != nil {
		return nil, fmt.Errorf("transport: encode %s frame: %w", kind, err)
	}
	return b, nil
}

// Conn is the session's view of a client connection.
//
// ReadFrame is called from a single goroutine (the session loop). SendText
// and SendBinary may be called concurrently; implementations serialize
// writes so frames arrive in call order.
type Conn interface {
	// ReadFrame blocks until the next inbound frame arrives, the peer
	// disconnects, or ctx is cancelled. A disconnect surfaces as a non-nil
	// error; callers treat any read error as session teardown.
	ReadFrame(ctx context.Context) (Frame, error)

	// SendText marshals {"type": kind, "text": text} and writes it as a
	// text frame.
	SendText(ctx context.Context, kind Kind, text string) error

	// SendBinary writes an opaque audio blob as a binary frame.
	SendBinary(ctx context.Context, data []byte) error

	// Close tears the connection down. Safe to call more than once.
	Close() error
}
