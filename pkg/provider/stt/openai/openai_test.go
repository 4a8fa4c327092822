package openai

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/saberesdafloresta/nina/pkg/provider"
)

func TestNewValidation(t *testing.T) {
	t.Parallel()

	if _, err := New(""); err == nil {
		t.Error("New(\"\") returned nil error, want non-nil")
	}
	if _, err := New("sk-test"); err != nil {
		t.Errorf("New(\"sk-test\") returned error: %v", err)
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("model = %q, want %q", got, "whisper-1")
		}
		if got := r.FormValue("language"); got != "pt" {
			t.Errorf("language = %q, want %q", got, "pt")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text": "  Olá, tudo bem?  "}`))
	}))
	defer srv.Close()

	p, err := New("sk-test", WithBaseURL(srv.URL), WithLanguage("pt"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := p.Transcribe(context.Background(), []byte("fake-webm-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Olá, tudo bem?" {
		t.Errorf("text = %q, want trimmed transcript", text)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestTranscribeEmptyAudio(t *testing.T) {
	t.Parallel()

	p, err := New("sk-test")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), nil)
	if err == nil {
		t.Fatal("Transcribe(nil) returned nil error, want fault")
	}
	if kind := provider.KindOf(err); kind != provider.FaultBadInput {
		t.Errorf("fault kind = %q, want %q", kind, provider.FaultBadInput)
	}
}

func TestTranscribeAPIError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		want   provider.FaultKind
	}{
		{"unauthorized", http.StatusUnauthorized, provider.FaultAuth},
		{"rate limited", http.StatusTooManyRequests, provider.FaultAuth},
		{"unsupported media", http.StatusUnsupportedMediaType, provider.FaultBadInput},
		{"server error", http.StatusInternalServerError, provider.FaultNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error": {"message": "nope"}}`))
			}))
			defer srv.Close()

			p, err := New("sk-test", WithBaseURL(srv.URL))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			_, err = p.Transcribe(context.Background(), []byte("audio"))
			if err == nil {
				t.Fatal("Transcribe returned nil error, want fault")
			}
			var f *provider.Fault
			if !errors.As(err, &f) {
				t.Fatalf("error %v is not a *provider.Fault", err)
			}
			if f.Kind != tt.want {
				t.Errorf("fault kind = %q, want %q", f.Kind, tt.want)
			}
			if f.Provider != "openai" {
				t.Errorf("fault provider = %q, want %q", f.Provider, "openai")
			}
		})
	}
}
