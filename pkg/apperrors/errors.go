// Package apperrors defines the pipeline's error taxonomy (spec §7): a
// closed set of kinds, each with its own retry and persistence policy,
// wrapped in a single typed Error so every layer above reports failures
// the same way. It follows the teacher's config.ValidationError /
// config.LoadError shape (sentinel errors plus a detail-carrying wrapper
// with Unwrap) rather than ad-hoc fmt.Errorf strings.
package apperrors

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind is the closed set of error categories from spec §7, each with a
// fixed policy:
//
//   - Validation: reject the item outright, no retry.
//   - UpstreamTransient: retry with backoff, then fall back if retries
//     are exhausted.
//   - UpstreamPermanent: fail immediately, no retry.
//   - PhaseInternal: drop the offending record and emit a warning; never
//     aborts the phase.
//   - PayloadAssembly: fail, no retry — the item cannot be safely stored.
//   - Storage: fail verbatim; the store's own error is surfaced as-is.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindUpstreamTransient Kind = "upstream_transient"
	KindUpstreamPermanent Kind = "upstream_permanent"
	KindPhaseInternal     Kind = "phase_internal"
	KindPayloadAssembly   Kind = "payload_assembly"
	KindStorage           Kind = "storage"
)

// Error is the single wrapper type used across the pipeline. SupportCode
// is a short opaque id surfaced to API callers and cross-referenced in
// logs, so an operator can find the matching log line without leaking
// internal detail in the HTTP response.
type Error struct {
	Kind        Kind
	Phase       string // empty when not phase-scoped
	Message     string
	SupportCode string
	Err         error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Phase != "" {
		return fmt.Sprintf("%s[%s]: %s (support_code=%s)", e.Kind, e.Phase, e.Message, e.SupportCode)
	}
	return fmt.Sprintf("%s: %s (support_code=%s)", e.Kind, e.Message, e.SupportCode)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether this error's kind is the one kind that calls
// for a bounded retry-with-backoff before falling back (spec §7).
func (e *Error) Retryable() bool {
	return e.Kind == KindUpstreamTransient
}

// New builds an Error of the given kind, generating a fresh support code.
func New(kind Kind, phase, message string, cause error) *Error {
	return &Error{
		Kind:        kind,
		Phase:       phase,
		Message:     message,
		SupportCode: uuid.NewString(),
		Err:         cause,
	}
}

// Validation builds a KindValidation error.
func Validation(phase, message string, cause error) *Error {
	return New(KindValidation, phase, message, cause)
}

// UpstreamTransient builds a KindUpstreamTransient error.
func UpstreamTransient(phase, message string, cause error) *Error {
	return New(KindUpstreamTransient, phase, message, cause)
}

// UpstreamPermanent builds a KindUpstreamPermanent error.
func UpstreamPermanent(phase, message string, cause error) *Error {
	return New(KindUpstreamPermanent, phase, message, cause)
}

// PhaseInternal builds a KindPhaseInternal error.
func PhaseInternal(phase, message string, cause error) *Error {
	return New(KindPhaseInternal, phase, message, cause)
}

// PayloadAssembly builds a KindPayloadAssembly error.
func PayloadAssembly(message string, cause error) *Error {
	return New(KindPayloadAssembly, "", message, cause)
}

// Storage builds a KindStorage error.
func Storage(message string, cause error) *Error {
	return New(KindStorage, "", message, cause)
}
