// Package provider defines the failure taxonomy shared by all inference
// adapter implementations (speech-to-text, completion, speech synthesis).
//
// Every backend wraps its errors in a [Fault] so that callers can log and
// count failures by kind without branching on provider-specific SDK error
// types. The pipeline treats all kinds identically: the current run is
// aborted and reported, never retried.
package provider

import (
	"errors"
	"fmt"
)

// FaultKind classifies an adapter failure.
type FaultKind string

const (
	// FaultNetwork covers transport failures, 5xx responses, timeouts, and
	// anything else that is neither an authorization nor an input problem.
	FaultNetwork FaultKind = "network"

	// FaultAuth covers rejected credentials and exhausted quotas.
	FaultAuth FaultKind = "auth"

	// FaultBadInput covers payloads the backend refused to process
	// (unsupported format, oversized body, unprocessable content).
	FaultBadInput FaultKind = "bad_input"
)

// Fault is the error type returned by all adapter implementations. It carries
// the failure kind and the provider name for metrics and logs, and wraps the
// underlying cause.
type Fault struct {
	// Kind classifies the failure.
	Kind FaultKind

	// Provider is the backend name (e.g. "openai", "elevenlabs").
	Provider string

	// Err is the underlying cause. Never nil.
	Err error
}

// Error implements the error interface.
func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s fault: %v", f.Provider, f.Kind, f.Err)
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (f *Fault) Unwrap() error {
	return f.Err
}

// NewFault wraps err in a [Fault] with the given kind and provider name.
func NewFault(kind FaultKind, providerName string, err error) *Fault {
	return &Fault{Kind: kind, Provider: providerName, Err: err}
}

// FromStatus builds a [Fault] classified from an HTTP status code returned by
// a backend API. 401/403/429 map to auth, the common request-rejection codes
// map to bad input, and everything else (including all 5xx) maps to network.
func FromStatus(providerName string, status int, err error) *Fault {
	return NewFault(classifyStatus(status), providerName, err)
}

// classifyStatus maps an HTTP status code to a [FaultKind].
func classifyStatus(status int) FaultKind {
	switch status {
	case 401, 403, 429:
		return FaultAuth
	case 400, 413, 415, 422:
		return FaultBadInput
	default:
		return FaultNetwork
	}
}

// KindOf extracts the [FaultKind] from err. Errors that are not a [Fault]
// (including context deadline expiry around an adapter call) are reported as
// network faults.
func KindOf(err error) FaultKind {
	var f *Fault
	if errors.As(err, &f) {
		return f.Kind
	}
	return FaultNetwork
}
