package health

import (
	"context"
	"errors"

	"github.com/saberesdafloresta/nina/internal/session"
)

// Pinger is the connectivity probe exposed by database pools.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Database returns a checker probing the account database. A nil pinger
// yields a checker that always passes, for deployments without an
// entitlement store.
func Database(p Pinger) Checker {
	return Checker{
		Name: "database",
		Check: func(ctx context.Context) error {
			if p == nil {
				return nil
			}
			return p.Ping(ctx)
		},
	}
}

// Providers returns a checker verifying that every pipeline stage has a
// configured backend.
func Providers(a session.Adapters) Checker {
	return Checker{
		Name: "providers",
		Check: func(context.Context) error {
			var missing []error
			if a.STT == nil {
				missing = append(missing, errors.New("stt provider not configured"))
			}
			if a.LLM == nil {
				missing = append(missing, errors.New("llm provider not configured"))
			}
			if a.TTS == nil {
				missing = append(missing, errors.New("tts provider not configured"))
			}
			return errors.Join(missing...)
		},
	}
}
