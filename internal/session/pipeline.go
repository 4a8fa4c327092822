package session

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/saberesdafloresta/nina/internal/observe"
	"github.com/saberesdafloresta/nina/internal/transport"
	"github.com/saberesdafloresta/nina/pkg/provider"
	"github.com/saberesdafloresta/nina/pkg/provider/llm"
)

// startRunSpan opens the tracing span covering one utterance run.
func (s *Session) startRunSpan(ctx context.Context) (context.Context, trace.Span) {
	return observe.StartSpan(ctx, "session.run",
		trace.WithAttributes(observe.Attr("session_id", s.id)),
	)
}

// runPipeline executes one utterance run: transcribe the blob, echo the
// transcript, thread it through the completion, echo the reply, synthesize
// it, and stream the audio back. Any adapter fault aborts the remaining
// steps and reports exactly one error frame; history keeps whatever turns
// were appended before the fault.
func (s *Session) runPipeline(ctx context.Context, blob []byte) {
	start := time.Now()
	outcome := "ok"
	defer func() {
		s.metrics.RecordRun(ctx, outcome, time.Since(start).Seconds())
	}()

	ctx, span := s.startRunSpan(ctx)
	defer span.End()

	// Transcribe.
	transcript, err := s.transcribe(ctx, blob)
	if err != nil {
		outcome = "stt_fault"
		s.reportFault(ctx, "stt", err)
		return
	}
	if strings.TrimSpace(transcript) == "" {
		// Silence or noise. Nothing to answer, nothing to report.
		outcome = "aborted_empty"
		s.log.Debug("empty transcript, run aborted", "blob_bytes", len(blob))
		return
	}

	if err := s.conn.SendText(ctx, transport.KindUserTranscript, transcript); err != nil {
		outcome = "transport_error"
		s.log.Debug("send user transcript failed", "err", err)
		return
	}
	s.history.AppendUser(transcript)

	// Complete.
	reply, err := s.complete(ctx)
	if err != nil {
		outcome = "llm_fault"
		s.reportFault(ctx, "llm", err)
		return
	}
	s.history.AppendAssistant(reply)

	if err := s.conn.SendText(ctx, transport.KindAssistantResponse, reply); err != nil {
		outcome = "transport_error"
		s.log.Debug("send assistant response failed", "err", err)
		return
	}

	// Synthesize.
	audio, err := s.synthesize(ctx, reply)
	if err != nil {
		outcome = "tts_fault"
		s.reportFault(ctx, "tts", err)
		return
	}

	if err := s.conn.SendBinary(ctx, audio); err != nil {
		outcome = "transport_error"
		s.log.Debug("send reply audio failed", "err", err)
		return
	}

	s.log.Info("utterance completed",
		"blob_bytes", len(blob),
		"transcript_chars", len(transcript),
		"reply_chars", len(reply),
		"audio_bytes", len(audio),
		"duration", time.Since(start),
	)
}

// transcribe calls the STT adapter under the per-adapter timeout.
func (s *Session) transcribe(ctx context.Context, blob []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	text, err := s.adapters.STT.Transcribe(ctx, blob)
	s.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	return text, err
}

// complete calls the completion adapter with the full history under the
// per-adapter timeout.
func (s *Session) complete(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	resp, err := s.adapters.LLM.Complete(ctx, llm.CompletionRequest{
		Messages:    s.history.Messages(),
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	})
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// synthesize calls the TTS adapter under the per-adapter timeout.
func (s *Session) synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
	defer cancel()

	start := time.Now()
	audio, err := s.adapters.TTS.Synthesize(ctx, text, s.cfg.Voice)
	s.metrics.TTSDuration.Record(ctx, time.Since(start).Seconds())
	return audio, err
}

// reportFault logs and counts an adapter failure, then sends the single
// error frame for this run. The send is best effort; a client that already
// disconnected simply misses the notice.
func (s *Session) reportFault(ctx context.Context, stage string, err error) {
	kind := provider.KindOf(err)
	s.metrics.RecordProviderError(ctx, stage, string(kind))
	s.log.Error("pipeline run failed",
		"stage", stage,
		"fault_kind", string(kind),
		"err", err,
	)

	if sendErr := s.conn.SendText(ctx, transport.KindError, s.cfg.ErrorReply); sendErr != nil {
		s.log.Debug("send error frame failed", "err", sendErr)
	}
}
