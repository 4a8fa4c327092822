// Command nina is the main entry point for the Nina voice assistant server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/saberesdafloresta/nina/internal/auth"
	"github.com/saberesdafloresta/nina/internal/config"
	"github.com/saberesdafloresta/nina/internal/health"
	"github.com/saberesdafloresta/nina/internal/observe"
	"github.com/saberesdafloresta/nina/internal/server"
	"github.com/saberesdafloresta/nina/internal/session"
	"github.com/saberesdafloresta/nina/pkg/provider/llm"
	"github.com/saberesdafloresta/nina/pkg/provider/llm/anyllm"
	"github.com/saberesdafloresta/nina/pkg/provider/stt"
	sttopenai "github.com/saberesdafloresta/nina/pkg/provider/stt/openai"
	"github.com/saberesdafloresta/nina/pkg/provider/tts"
	"github.com/saberesdafloresta/nina/pkg/provider/tts/elevenlabs"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "nina: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "nina: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("nina starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The Prometheus bridge feeds /metrics.
	otelShutdown, err := observe.InitTelemetry(ctx, observe.TelemetryConfig{
		ServiceName: "nina",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	adapters, err := buildAdapters(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// Authentication. Without a JWT secret the server accepts anonymous
	// connections, which is only sensible for local development.
	var (
		authorizer   server.Authorizer
		entitlements *auth.PostgresEntitlements
	)
	if cfg.Auth.JWTSecret != "" {
		verifier, err := auth.NewTokenVerifier(cfg.Auth.JWTSecret)
		if err != nil {
			slog.Error("failed to create token verifier", "err", err)
			return 1
		}

		var store auth.EntitlementStore
		if cfg.Auth.PostgresDSN != "" {
			entitlements, err = auth.NewPostgresEntitlements(ctx, cfg.Auth.PostgresDSN)
			if err != nil {
				slog.Error("failed to connect account database", "err", err)
				return 1
			}
			defer entitlements.Close()
			store = entitlements
			slog.Info("entitlement checks enabled")
		}

		authorizer = auth.New(verifier, store)
	}

	var dbPinger health.Pinger
	if entitlements != nil {
		dbPinger = entitlements
	}

	srv := server.New(server.Config{
		ListenAddr:     cfg.Server.ListenAddr,
		CertFile:       tlsCert(cfg),
		KeyFile:        tlsKey(cfg),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Adapters:       adapters,
		Session: session.Config{
			SystemPrompt: cfg.Assistant.SystemPrompt,
			ErrorReply:   cfg.Assistant.ErrorReply,
			Voice: tts.VoiceProfile{
				ID:              cfg.Assistant.Voice.VoiceID,
				Name:            cfg.Assistant.Name,
				Stability:       cfg.Assistant.Voice.Stability,
				SimilarityBoost: cfg.Assistant.Voice.SimilarityBoost,
				Style:           cfg.Assistant.Voice.Style,
				SpeakerBoost:    cfg.Assistant.Voice.SpeakerBoost,
			},
			Temperature:     cfg.Assistant.Temperature,
			MaxTokens:       cfg.Assistant.MaxTokens,
			AdapterTimeout:  cfg.Pipeline.AdapterTimeout.Std(),
			MaxPendingAudio: cfg.Pipeline.MaxPendingAudio,
		},
		Authorizer: authorizer,
		Checkers: []health.Checker{
			health.Database(dbPinger),
			health.Providers(adapters),
		},
	})

	slog.Info("server ready, press Ctrl+C to shut down")
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// Completion backends share a factory: optional APIKey + optional BaseURL.
	for _, backend := range []string{
		"openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	} {
		reg.RegisterLLM(backend, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(backend, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []sttopenai.Option
		if entry.Model != "" {
			opts = append(opts, sttopenai.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, sttopenai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, sttopenai.WithLanguage(lang))
		}
		if name := optString(entry.Options, "file_name"); name != "" {
			opts = append(opts, sttopenai.WithFileName(name))
		}
		return sttopenai.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURL(entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// buildAdapters instantiates the three pipeline providers named in cfg.
func buildAdapters(cfg *config.Config, reg *config.Registry) (session.Adapters, error) {
	var a session.Adapters
	var err error

	if a.STT, err = reg.CreateSTT(cfg.Providers.STT); err != nil {
		return session.Adapters{}, fmt.Errorf("create stt provider %q: %w", cfg.Providers.STT.Name, err)
	}
	slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name, "model", cfg.Providers.STT.Model)

	if a.LLM, err = reg.CreateLLM(cfg.Providers.LLM); err != nil {
		return session.Adapters{}, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if a.TTS, err = reg.CreateTTS(cfg.Providers.TTS); err != nil {
		return session.Adapters{}, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name, "model", cfg.Providers.TTS.Model)

	return a, nil
}

func tlsCert(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.CertFile
}

func tlsKey(cfg *config.Config) string {
	if cfg.Server.TLS == nil {
		return ""
	}
	return cfg.Server.TLS.KeyFile
}

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
