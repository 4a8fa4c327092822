package config

import (
	"context"
	"errors"
	"testing"

	"github.com/saberesdafloresta/nina/pkg/provider/llm"
	llmmock "github.com/saberesdafloresta/nina/pkg/provider/llm/mock"
	"github.com/saberesdafloresta/nina/pkg/provider/stt"
	sttmock "github.com/saberesdafloresta/nina/pkg/provider/stt/mock"
	"github.com/saberesdafloresta/nina/pkg/provider/tts"
	ttsmock "github.com/saberesdafloresta/nina/pkg/provider/tts/mock"
)

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterSTT("fake", func(e ProviderEntry) (stt.Provider, error) {
		return &sttmock.Provider{Text: e.Model}, nil
	})
	r.RegisterLLM("fake", func(ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})
	r.RegisterTTS("fake", func(ProviderEntry) (tts.Provider, error) {
		return &ttsmock.Provider{}, nil
	})

	sp, err := r.CreateSTT(ProviderEntry{Name: "fake", Model: "echoed"})
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	// The entry reaches the factory intact.
	if text, _ := sp.Transcribe(context.Background(), []byte{1}); text != "echoed" {
		t.Errorf("factory did not receive entry: transcript = %q", text)
	}

	if _, err := r.CreateLLM(ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateLLM: %v", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateTTS: %v", err)
	}
}

func TestRegistryNotRegistered(t *testing.T) {
	t.Parallel()

	r := NewRegistry()

	if _, err := r.CreateSTT(ProviderEntry{Name: "ghost"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateLLM(ProviderEntry{Name: "ghost"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := r.CreateTTS(ProviderEntry{Name: "ghost"}); !errors.Is(err, ErrProviderNotRegistered) {
		t.Errorf("CreateTTS err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistryOverwrite(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterLLM("dup", func(ProviderEntry) (llm.Provider, error) {
		return nil, errors.New("first")
	})
	r.RegisterLLM("dup", func(ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{}, nil
	})

	if _, err := r.CreateLLM(ProviderEntry{Name: "dup"}); err != nil {
		t.Errorf("later registration should win, got err %v", err)
	}
}
