package session

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/saberesdafloresta/nina/internal/observe"
	"github.com/saberesdafloresta/nina/internal/transport"
	"github.com/saberesdafloresta/nina/pkg/provider"
	"github.com/saberesdafloresta/nina/pkg/provider/llm"
	llmmock "github.com/saberesdafloresta/nina/pkg/provider/llm/mock"
	sttmock "github.com/saberesdafloresta/nina/pkg/provider/stt/mock"
	ttsmock "github.com/saberesdafloresta/nina/pkg/provider/tts/mock"
)

// sentFrame records one outbound frame written to the fake connection.
type sentFrame struct {
	binary bool
	kind   transport.Kind
	text   string
	data   []byte
}

// fakeConn implements transport.Conn against in-memory channels.
type fakeConn struct {
	in chan transport.Frame

	mu   sync.Mutex
	sent []sentFrame
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan transport.Frame, 64)}
}

func (c *fakeConn) ReadFrame(ctx context.Context) (transport.Frame, error) {
	select {
	case f, ok := <-c.in:
		if !ok {
			return transport.Frame{}, io.EOF
		}
		return f, nil
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (c *fakeConn) SendText(_ context.Context, kind transport.Kind, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentFrame{kind: kind, text: text})
	return nil
}

func (c *fakeConn) SendBinary(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	blob := make([]byte, len(data))
	copy(blob, data)
	c.sent = append(c.sent, sentFrame{binary: true, data: blob})
	return nil
}

func (c *fakeConn) Close() error { return nil }

// audio pushes an inbound binary frame.
func (c *fakeConn) audio(b []byte) {
	c.in <- transport.Frame{Binary: true, Data: b}
}

// text pushes an inbound text frame.
func (c *fakeConn) text(s string) {
	c.in <- transport.Frame{Data: []byte(s)}
}

// frames returns a snapshot of all outbound frames so far.
func (c *fakeConn) frames() []sentFrame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]sentFrame, len(c.sent))
	copy(out, c.sent)
	return out
}

func (c *fakeConn) sentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

var _ transport.Conn = (*fakeConn)(nil)

// newTestSession builds a session with quiet logging and isolated metrics.
func newTestSession(t *testing.T, conn transport.Conn, a Adapters, cfg Config) *Session {
	t.Helper()

	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = "persona"
	}
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	cfg.Metrics = m
	cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	return New("test-session", conn, a, cfg)
}

// startSession runs s until its inbound channel closes or the test ends.
func startSession(t *testing.T, s *Session) <-chan error {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

// waitFor polls cond until it holds or the deadline expires.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

// waitDone asserts the session loop has returned.
func waitDone(t *testing.T, done <-chan error) {
	t.Helper()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
}

func TestSessionHappyPath(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "quais chás ajudam a dormir?"}
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "Experimente camomila."}}
	ttsp := &ttsmock.Provider{Audio: []byte{0x0a, 0x0b, 0x0c}}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{})
	done := startSession(t, s)

	conn.audio([]byte{1, 2})
	conn.audio([]byte{3})
	conn.audio([]byte{4, 5})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 3 }, "expected 3 outbound frames")

	frames := conn.frames()
	if frames[0].binary || frames[0].kind != transport.KindUserTranscript || frames[0].text != "quais chás ajudam a dormir?" {
		t.Errorf("frame 0 = %+v, want user transcript", frames[0])
	}
	if frames[1].binary || frames[1].kind != transport.KindAssistantResponse || frames[1].text != "Experimente camomila." {
		t.Errorf("frame 1 = %+v, want assistant response", frames[1])
	}
	if !frames[2].binary || !bytes.Equal(frames[2].data, []byte{0x0a, 0x0b, 0x0c}) {
		t.Errorf("frame 2 = %+v, want reply audio", frames[2])
	}

	// The STT adapter received the ordered concatenation of all fragments.
	if got := sttp.Calls[0].Audio; !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("transcribed blob = %x, want ordered concatenation", got)
	}

	// The completion saw system + user; history ends at 3 turns.
	waitFor(t, func() bool { return !s.Busy() }, "session stuck busy")
	if got := s.History().Len(); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}
	req := llmp.Calls[0].Req
	if len(req.Messages) != 2 || req.Messages[0].Role != llm.RoleSystem || req.Messages[1].Content != "quais chás ajudam a dormir?" {
		t.Errorf("completion request messages = %+v", req.Messages)
	}
	if got := ttsp.Calls[0].Text; got != "Experimente camomila." {
		t.Errorf("synthesized text = %q", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionEmptyTranscriptAbortsSilently(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "   \n "}
	llmp := &llmmock.Provider{}
	ttsp := &ttsmock.Provider{}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{})
	done := startSession(t, s)

	conn.audio([]byte{1, 2, 3})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return sttp.CallCount() == 1 && !s.Busy() }, "run did not finish")

	if got := conn.sentCount(); got != 0 {
		t.Errorf("outbound frames = %d, want 0", got)
	}
	if got := llmp.CallCount(); got != 0 {
		t.Errorf("completion calls = %d, want 0", got)
	}
	if got := s.History().Len(); got != 1 {
		t.Errorf("history length = %d, want 1 (system turn only)", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionTranscriptionFault(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Err: provider.NewFault(provider.FaultNetwork, "openai", errors.New("connection reset"))}
	llmp := &llmmock.Provider{}
	ttsp := &ttsmock.Provider{}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{
		ErrorReply: "Desculpe, não consigo responder agora.",
	})
	done := startSession(t, s)

	conn.audio([]byte{1, 2})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 1 }, "expected the error frame")

	frames := conn.frames()
	if frames[0].kind != transport.KindError || frames[0].text != "Desculpe, não consigo responder agora." {
		t.Errorf("frame 0 = %+v, want error frame with apology", frames[0])
	}

	// Nothing downstream ran and no user turn was recorded.
	waitFor(t, func() bool { return !s.Busy() }, "session stuck busy")
	if got := llmp.CallCount(); got != 0 {
		t.Errorf("completion calls = %d, want 0", got)
	}
	if got := s.History().Len(); got != 1 {
		t.Errorf("history length = %d, want 1 (system turn only)", got)
	}

	// The session stays alive and accepts the next utterance.
	conn.audio([]byte{3})
	conn.text(EndOfUtteranceMarker)
	waitFor(t, func() bool { return sttp.CallCount() == 2 }, "second run did not start")

	close(conn.in)
	waitDone(t, done)
}

func TestSessionCompletionFault(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "oi"}
	llmp := &llmmock.Provider{Err: provider.NewFault(provider.FaultAuth, "gemini", errors.New("quota"))}
	ttsp := &ttsmock.Provider{}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{
		ErrorReply: "Desculpe, não consigo responder agora.",
	})
	done := startSession(t, s)

	conn.audio([]byte{1})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 2 }, "expected transcript + error frames")

	frames := conn.frames()
	if frames[0].kind != transport.KindUserTranscript {
		t.Errorf("frame 0 kind = %q", frames[0].kind)
	}
	if frames[1].kind != transport.KindError || frames[1].text != "Desculpe, não consigo responder agora." {
		t.Errorf("frame 1 = %+v, want error frame with apology", frames[1])
	}

	// The user turn stays; the failed reply is never appended.
	waitFor(t, func() bool { return !s.Busy() }, "session stuck busy")
	if got := s.History().Len(); got != 2 {
		t.Errorf("history length = %d, want 2", got)
	}
	if got := ttsp.CallCount(); got != 0 {
		t.Errorf("synthesis calls = %d, want 0", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionSynthesisFault(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "oi"}
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "olá!"}}
	ttsp := &ttsmock.Provider{Err: provider.NewFault(provider.FaultNetwork, "elevenlabs", errors.New("502"))}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{})
	done := startSession(t, s)

	conn.audio([]byte{1})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 3 }, "expected transcript, response, error frames")

	frames := conn.frames()
	if frames[2].kind != transport.KindError {
		t.Errorf("frame 2 kind = %q, want error", frames[2].kind)
	}

	// Both conversation turns survive the synthesis failure.
	waitFor(t, func() bool { return !s.Busy() }, "session stuck busy")
	if got := s.History().Len(); got != 3 {
		t.Errorf("history length = %d, want 3", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionMarkerWhileBusyIgnored(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	sttp := &sttmock.Provider{Text: "primeira", Block: block}
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "resposta"}}
	ttsp := &ttsmock.Provider{Audio: []byte{0xff}}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{})
	done := startSession(t, s)

	// First utterance starts a run that parks inside the STT adapter.
	conn.audio([]byte{1, 2})
	conn.text(EndOfUtteranceMarker)
	waitFor(t, func() bool { return sttp.CallCount() == 1 }, "first run did not start")

	// While busy: fragments buffer for the next utterance, the second
	// marker is dropped without starting or queueing anything.
	conn.audio([]byte{7})
	conn.audio([]byte{8, 9})
	conn.text(EndOfUtteranceMarker)
	waitFor(t, func() bool { return s.pending.Size() == 3 }, "fragments did not buffer during run")

	close(block)
	waitFor(t, func() bool { return conn.sentCount() == 3 && !s.Busy() }, "first run did not finish")

	// The dropped marker never produced a second run.
	if got := sttp.CallCount(); got != 1 {
		t.Fatalf("transcription calls after busy marker = %d, want 1", got)
	}

	// A fresh marker picks up the fragments buffered during the run.
	conn.text(EndOfUtteranceMarker)
	waitFor(t, func() bool { return sttp.CallCount() == 2 }, "second run did not start")
	if got := sttp.Calls[1].Audio; !bytes.Equal(got, []byte{7, 8, 9}) {
		t.Errorf("second run blob = %x, want fragments buffered during first run", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionMarkerWithEmptyBufferIgnored(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "nunca"}
	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}, Config{})
	done := startSession(t, s)

	// Back-to-back markers on an empty buffer: the first releases the busy
	// guard without starting a run, so the second must be ignorable too.
	conn.text(EndOfUtteranceMarker)
	conn.text(EndOfUtteranceMarker)

	// Frames are handled in order, so once the loop exits both markers have
	// been processed.
	close(conn.in)
	waitDone(t, done)

	if got := sttp.CallCount(); got != 0 {
		t.Errorf("transcription calls = %d, want 0", got)
	}
	if got := conn.sentCount(); got != 0 {
		t.Errorf("outbound frames = %d, want 0", got)
	}
	if got := s.History().Len(); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}
}

func TestSessionUnknownTextFrameIgnored(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "oi"}
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "olá"}}
	ttsp := &ttsmock.Provider{Audio: []byte{0x01}}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{})
	done := startSession(t, s)

	conn.text("ping")
	conn.text("{\"type\":\"bogus\"}")
	conn.audio([]byte{1})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 3 }, "run did not complete")
	if got := sttp.CallCount(); got != 1 {
		t.Errorf("transcription calls = %d, want 1", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionAdapterTimeoutReportedAsFault(t *testing.T) {
	t.Parallel()

	// Block never closes; only the per-adapter deadline releases the call.
	sttp := &sttmock.Provider{Text: "nunca", Block: make(chan struct{})}
	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}, Config{
		AdapterTimeout: 30 * time.Millisecond,
	})
	done := startSession(t, s)

	conn.audio([]byte{1})
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 1 }, "expected error frame after timeout")

	frames := conn.frames()
	if frames[0].kind != transport.KindError {
		t.Errorf("frame 0 kind = %q, want error", frames[0].kind)
	}
	waitFor(t, func() bool { return !s.Busy() }, "session stuck busy after timeout")
	if got := s.History().Len(); got != 1 {
		t.Errorf("history length = %d, want 1", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionPendingAudioLimit(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "oi"}
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "olá"}}
	ttsp := &ttsmock.Provider{Audio: []byte{0x01}}

	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: llmp, TTS: ttsp}, Config{
		MaxPendingAudio: 4,
	})
	done := startSession(t, s)

	conn.audio([]byte{1, 2, 3})
	conn.audio([]byte{4, 5, 6}) // over the limit, dropped
	conn.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return conn.sentCount() == 3 }, "run did not complete")

	// The session survives the overflow and runs with the kept audio.
	if got := sttp.Calls[0].Audio; !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("transcribed blob = %x, want kept audio only", got)
	}

	close(conn.in)
	waitDone(t, done)
}

func TestSessionTeardownCancelsInFlightRun(t *testing.T) {
	t.Parallel()

	sttp := &sttmock.Provider{Text: "nunca", Block: make(chan struct{})}
	conn := newFakeConn()
	s := newTestSession(t, conn, Adapters{STT: sttp, LLM: &llmmock.Provider{}, TTS: &ttsmock.Provider{}}, Config{
		AdapterTimeout: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	conn.audio([]byte{1})
	conn.text(EndOfUtteranceMarker)
	waitFor(t, func() bool { return sttp.CallCount() == 1 }, "run did not start")

	// Cancelling the session context must release the parked adapter call
	// and let Run return.
	cancel()
	waitDone(t, done)
}

func TestSessionsAreIsolated(t *testing.T) {
	t.Parallel()

	// Shared completion and synthesis backends, as in production.
	llmp := &llmmock.Provider{Response: &llm.CompletionResponse{Content: "resposta"}}
	ttsp := &ttsmock.Provider{Audio: []byte{0x01}}

	sttA := &sttmock.Provider{Text: "pergunta do primeiro membro"}
	sttB := &sttmock.Provider{Text: "pergunta do segundo membro"}

	connA := newFakeConn()
	connB := newFakeConn()
	sa := newTestSession(t, connA, Adapters{STT: sttA, LLM: llmp, TTS: ttsp}, Config{})
	sb := newTestSession(t, connB, Adapters{STT: sttB, LLM: llmp, TTS: ttsp}, Config{})
	doneA := startSession(t, sa)
	doneB := startSession(t, sb)

	connA.audio([]byte{1})
	connA.text(EndOfUtteranceMarker)
	connB.audio([]byte{2})
	connB.text(EndOfUtteranceMarker)

	waitFor(t, func() bool { return connA.sentCount() == 3 && connB.sentCount() == 3 }, "runs did not complete")

	msgsA := sa.History().Messages()
	msgsB := sb.History().Messages()
	if msgsA[1].Content != "pergunta do primeiro membro" {
		t.Errorf("session A user turn = %q", msgsA[1].Content)
	}
	if msgsB[1].Content != "pergunta do segundo membro" {
		t.Errorf("session B user turn = %q", msgsB[1].Content)
	}
	if len(msgsA) != 3 || len(msgsB) != 3 {
		t.Errorf("history lengths = %d, %d, want 3, 3", len(msgsA), len(msgsB))
	}

	close(connA.in)
	close(connB.in)
	waitDone(t, doneA)
	waitDone(t, doneB)
}
