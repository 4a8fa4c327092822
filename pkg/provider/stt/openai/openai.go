// Package openai provides an STT provider backed by the OpenAI audio
// transcription API (Whisper).
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/saberesdafloresta/nina/pkg/provider"
	"github.com/saberesdafloresta/nina/pkg/provider/stt"
)

// providerName identifies this backend in faults, metrics, and logs.
const providerName = "openai"

// defaultFileName is the synthetic file name attached to the multipart audio
// part. The API derives the container format from the extension.
const defaultFileName = "utterance.webm"

// config holds optional configuration for the provider.
type config struct {
	baseURL  string
	model    oai.AudioModel
	language string
	fileName string
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithModel sets the transcription model (default: whisper-1).
func WithModel(model string) Option {
	return func(c *config) {
		c.model = oai.AudioModel(model)
	}
}

// WithLanguage sets the ISO-639-1 recognition language hint (e.g. "pt").
// Empty lets the model auto-detect.
func WithLanguage(lang string) Option {
	return func(c *config) {
		c.language = lang
	}
}

// WithFileName sets the synthetic file name attached to the audio part.
// Use this when clients record a container other than webm.
func WithFileName(name string) Option {
	return func(c *config) {
		c.fileName = name
	}
}

// Provider implements stt.Provider using the OpenAI transcription API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	fileName string
}

// New constructs a new OpenAI STT Provider.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}

	cfg := &config{
		model:    oai.AudioModelWhisper1,
		fileName: defaultFileName,
	}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// The pipeline never retries a failed run, so the SDK must not
		// retry under the hood either.
		option.WithMaxRetries(0),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    cfg.model,
		language: cfg.language,
		fileName: cfg.fileName,
	}, nil
}

// Transcribe implements stt.Provider. The audio blob is forwarded unparsed;
// the trimmed transcript text is returned.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if len(audio) == 0 {
		return "", provider.NewFault(provider.FaultBadInput, providerName,
			errors.New("empty audio payload"))
	}

	params := oai.AudioTranscriptionNewParams{
		Model: p.model,
		File:  oai.File(bytes.NewReader(audio), p.fileName, contentType(p.fileName)),
	}
	if p.language != "" {
		params.Language = oai.String(p.language)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai: transcribe: %w", classify(err))
	}

	return strings.TrimSpace(resp.Text), nil
}

// classify wraps an SDK error in a provider.Fault based on the API status.
func classify(err error) error {
	var apierr *oai.Error
	if errors.As(err, &apierr) {
		return provider.FromStatus(providerName, apierr.StatusCode, err)
	}
	return provider.NewFault(provider.FaultNetwork, providerName, err)
}

// contentType guesses the MIME type for the multipart part from the synthetic
// file name. Unknown extensions fall back to webm, matching the browser
// recorder default.
func contentType(fileName string) string {
	switch {
	case strings.HasSuffix(fileName, ".wav"):
		return "audio/wav"
	case strings.HasSuffix(fileName, ".mp3"):
		return "audio/mpeg"
	case strings.HasSuffix(fileName, ".ogg"):
		return "audio/ogg"
	case strings.HasSuffix(fileName, ".m4a"):
		return "audio/mp4"
	default:
		return "audio/webm"
	}
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
