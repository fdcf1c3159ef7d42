// Package providers defines the uniform adapter contract over the upstream
// data sources and the provider-tagged error taxonomy their callers
// classify into warnings or terminal failures.
package providers

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies a provider failure for callers.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindRateLimited Kind = "rate_limited"
	KindUpstream    Kind = "upstream"
	KindAuth        Kind = "auth"
	KindTimeout     Kind = "timeout"
	KindSchema      Kind = "schema"
)

// Error is a provider-tagged failure. Every adapter returns these so the
// screening orchestrator can fold them into diagnostics uniformly.
type Error struct {
	Provider string
	Kind     Kind
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a tagged error.
func E(provider string, kind Kind, message string, err error) *Error {
	return &Error{Provider: provider, Kind: kind, Message: message, Err: err}
}

// KindOf extracts the kind from any error in the chain; unclassified
// errors count as upstream failures.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUpstream
}

// Adapter is the capability set every provider satisfies. Resources are
// provider-specific identifiers; params are typed by convention per
// resource. Outputs are normalised records.
type Adapter interface {
	Fetch(ctx context.Context, resource string, params map[string]string) (any, error)
	InvalidateCredentials(ctx context.Context)
}
