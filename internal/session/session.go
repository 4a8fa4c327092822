// Package session implements the per-connection voice conversation loop:
// audio fragments accumulate until the client signals the end of an
// utterance, then one pipeline run transcribes the utterance, threads it
// through the stateful completion, synthesizes the reply, and streams the
// frames back over the session's transport.
//
// One Session exists per connected client. Sessions share provider instances
// but share no state with each other; conversation history, pending audio,
// and the busy guard are all per-session.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saberesdafloresta/nina/internal/observe"
	"github.com/saberesdafloresta/nina/internal/transport"
	"github.com/saberesdafloresta/nina/pkg/provider/llm"
	"github.com/saberesdafloresta/nina/pkg/provider/stt"
	"github.com/saberesdafloresta/nina/pkg/provider/tts"
)

// EndOfUtteranceMarker is the text frame the client sends when the member
// releases the microphone. Any other text frame is ignored.
const EndOfUtteranceMarker = "EOM"

// defaultAdapterTimeout bounds each individual adapter call.
const defaultAdapterTimeout = 30 * time.Second

// defaultErrorReply is the notice sent on the error frame when a pipeline
// run fails. Matches the apology the web client displays.
const defaultErrorReply = "Desculpe, não consigo responder agora."

// Adapters bundles the three inference backends a session calls.
type Adapters struct {
	STT stt.Provider
	LLM llm.Provider
	TTS tts.Provider
}

// Config tunes one session's behaviour. Zero values select safe defaults.
type Config struct {
	// SystemPrompt is the assistant persona seeded as the history's system
	// turn.
	SystemPrompt string

	// ErrorReply is the text of the error frame sent when a run fails.
	// Empty selects the default Portuguese apology.
	ErrorReply string

	// Voice is the synthesis voice profile.
	Voice tts.VoiceProfile

	// Temperature and MaxTokens are passed through to the completion
	// backend. Zero selects the backend default.
	Temperature float64
	MaxTokens   int

	// AdapterTimeout bounds each individual adapter call. Expiry is treated
	// as an adapter fault. Zero selects 30s.
	AdapterTimeout time.Duration

	// MaxPendingAudio caps buffered fragment bytes between utterances.
	// Overflowing fragments are dropped and counted. Zero means unlimited.
	MaxPendingAudio int

	// Metrics receives pipeline instrumentation. Nil selects
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Logger receives session logs. Nil selects slog.Default.
	Logger *slog.Logger
}

// Session owns one client's conversation state and frame loop.
type Session struct {
	id       string
	conn     transport.Conn
	adapters Adapters
	cfg      Config

	history *History
	pending *Accumulator

	// busy is the utterance exclusivity guard. It flips from idle to busy
	// in one compare-and-swap, so two interleaved markers can never both
	// start a run.
	busy atomic.Bool

	metrics *observe.Metrics
	log     *slog.Logger

	// wg tracks the in-flight pipeline goroutine so Run does not return
	// while a run still uses the connection.
	wg sync.WaitGroup
}

// New creates a session for an accepted connection. id appears in logs only.
func New(id string, conn transport.Conn, adapters Adapters, cfg Config) *Session {
	if cfg.ErrorReply == "" {
		cfg.ErrorReply = defaultErrorReply
	}
	if cfg.AdapterTimeout <= 0 {
		cfg.AdapterTimeout = defaultAdapterTimeout
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		id:       id,
		conn:     conn,
		adapters: adapters,
		cfg:      cfg,
		history:  NewHistory(cfg.SystemPrompt),
		pending:  NewAccumulator(cfg.MaxPendingAudio),
		metrics:  metrics,
		log:      logger.With(slog.String("session_id", id)),
	}
}

// History exposes the conversation log for tests and diagnostics.
func (s *Session) History() *History {
	return s.history
}

// Busy reports whether an utterance pipeline run is currently in flight.
func (s *Session) Busy() bool {
	return s.busy.Load()
}

// Run consumes the inbound frame stream until the client disconnects or ctx
// is cancelled. Binary frames buffer audio; the end-of-utterance marker
// starts a pipeline run; any other text frame is ignored. Run returns only
// after any in-flight pipeline run has finished or been cancelled.
func (s *Session) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer s.wg.Wait()
	defer cancel()

	for {
		frame, err := s.conn.ReadFrame(runCtx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			s.log.Debug("frame stream ended", "err", err)
			return err
		}

		switch {
		case frame.Binary:
			s.bufferFragment(runCtx, frame.Data)
		case string(frame.Data) == EndOfUtteranceMarker:
			s.handleMarker(runCtx)
		default:
			s.log.Debug("ignoring unknown text frame", "size", len(frame.Data))
		}
	}
}

// bufferFragment appends an audio fragment to the pending buffer. Fragments
// arriving while a run is in flight buffer for the next utterance; the
// current run's blob was already flushed and is unaffected.
func (s *Session) bufferFragment(ctx context.Context, data []byte) {
	if err := s.pending.Append(data); err != nil {
		s.metrics.AudioRejected.Add(ctx, 1)
		s.log.Warn("audio fragment dropped",
			"size", len(data),
			"buffered", s.pending.Size(),
			"err", err,
		)
	}
}

// handleMarker reacts to an end-of-utterance marker. The busy guard is taken
// before the buffer is touched: a marker during a run must leave the
// fragments accumulating for the next utterance untouched, and is dropped
// rather than queued.
func (s *Session) handleMarker(ctx context.Context) {
	if !s.busy.CompareAndSwap(false, true) {
		s.metrics.RecordMarkerIgnored(ctx, "busy")
		s.log.Debug("end-of-utterance marker ignored: run in flight")
		return
	}

	blob := s.pending.Flush()
	if len(blob) == 0 {
		s.busy.Store(false)
		s.metrics.RecordMarkerIgnored(ctx, "empty")
		s.log.Debug("end-of-utterance marker ignored: no buffered audio")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.busy.Store(false)
		s.runPipeline(ctx, blob)
	}()
}
