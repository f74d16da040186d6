// Package cascade runs an ordered list of extraction strategies until one
// yields a usable media record. Each strategy either succeeds, or reports a
// typed miss that advances the cascade to the next (structurally different)
// tier; there are no same-tier retries.
package cascade

import (
	"context"
	"errors"
	"fmt"

	"shortvid/internal/domain"
	"shortvid/internal/logger"
)

// MissKind classifies why a strategy tier declined a request.
type MissKind string

const (
	MissHTTP          MissKind = "http_error"
	MissEmptyBody     MissKind = "empty_body"
	MissInvalidJSON   MissKind = "invalid_json"
	MissMissingField  MissKind = "missing_field"
	MissNoPlayableURL MissKind = "no_playable_url"
)

// Miss is a recoverable per-tier failure. The cascade logs it and moves on.
type Miss struct {
	Kind  MissKind
	Cause error
}

func (m *Miss) Error() string {
	if m.Cause != nil {
		return fmt.Sprintf("%s: %v", m.Kind, m.Cause)
	}
	return string(m.Kind)
}

func (m *Miss) Unwrap() error { return m.Cause }

// NewMiss wraps a cause as a typed miss.
func NewMiss(kind MissKind, cause error) *Miss {
	return &Miss{Kind: kind, Cause: cause}
}

// ExhaustedError is raised once every tier has missed. It carries the most
// specific inner error seen, which handlers surface to the user.
type ExhaustedError struct {
	Platform domain.Platform
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e.Last != nil {
		var miss *Miss
		if errors.As(e.Last, &miss) && miss.Cause != nil {
			return miss.Cause.Error()
		}
		return e.Last.Error()
	}
	return fmt.Sprintf("Không thể xử lý video %s.", e.Platform)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Request is the shared input every strategy receives. Strategies share
// nothing else between attempts.
type Request struct {
	// RawURL is the URL as received (after normalization).
	RawURL string
	// OriginalURL is the submitted link before redirect resolution, when
	// the two differ. Mirror tiers prefer it since their own resolvers
	// expand short links server-side.
	OriginalURL string
	// Identifier is the platform-scoped content id, when one was resolved.
	Identifier string
	// Tag is the per-request correlation tag used in log lines.
	Tag string
}

// Strategy is one tier of a platform's extraction cascade.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, req Request) (*domain.MediaRecord, error)
}

// Run tries strategies strictly in order and returns the first success.
// A nil record with a nil error (a browser-probe "nothing intercepted") is
// treated as a miss. Exhaustion yields an ExhaustedError wrapping the most
// specific failure seen so far.
func Run(ctx context.Context, platform domain.Platform, strategies []Strategy, req Request) (*domain.MediaRecord, error) {
	var last error
	for _, s := range strategies {
		record, err := s.Attempt(ctx, req)
		if err == nil && record != nil {
			return record, nil
		}
		if err != nil {
			logger.Warn().Printf("[%s:%s] tier %s missed: %v", platform, req.Tag, s.Name(), err)
			if keepAsLast(err, last) {
				last = err
			}
		} else {
			logger.Warn().Printf("[%s:%s] tier %s yielded nothing", platform, req.Tag, s.Name())
		}
	}
	return nil, &ExhaustedError{Platform: platform, Last: last}
}

// keepAsLast prefers errors that carry a concrete cause over bare misses, so
// the terminal message stays as specific as possible.
func keepAsLast(candidate, current error) bool {
	if current == nil {
		return true
	}
	var miss *Miss
	if errors.As(candidate, &miss) {
		return miss.Cause != nil
	}
	return true
}
