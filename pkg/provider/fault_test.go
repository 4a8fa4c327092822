package provider

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestFaultErrorAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	f := NewFault(FaultNetwork, "openai", cause)

	if got := f.Error(); got != "openai: network fault: connection reset" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(f, cause) {
		t.Error("errors.Is(f, cause) = false, want true")
	}
}

func TestFromStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status int
		want   FaultKind
	}{
		{401, FaultAuth},
		{403, FaultAuth},
		{429, FaultAuth},
		{400, FaultBadInput},
		{413, FaultBadInput},
		{415, FaultBadInput},
		{422, FaultBadInput},
		{500, FaultNetwork},
		{502, FaultNetwork},
		{503, FaultNetwork},
		{404, FaultNetwork},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			t.Parallel()
			f := FromStatus("elevenlabs", tt.status, errors.New("boom"))
			if f.Kind != tt.want {
				t.Errorf("FromStatus(%d).Kind = %q, want %q", tt.status, f.Kind, tt.want)
			}
		})
	}
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want FaultKind
	}{
		{"direct fault", NewFault(FaultAuth, "openai", errors.New("401")), FaultAuth},
		{"wrapped fault", fmt.Errorf("transcribe: %w", NewFault(FaultBadInput, "openai", errors.New("415"))), FaultBadInput},
		{"plain error", errors.New("dial tcp: timeout"), FaultNetwork},
		{"deadline", context.DeadlineExceeded, FaultNetwork},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}
