// Package korerr provides the error taxonomy and panic-recovery helpers
// shared by every correction-pipeline component.
package korerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error the way the correction pipeline reasons about
// failure: which component owns it, and whether it is ever user-visible.
type Kind string

const (
	// IngressTransient: the keystroke event tap was disabled or
	// permissions were revoked. Surfaced once to the UI; the event
	// stream auto-restarts; the pipeline never retries internally.
	IngressTransient Kind = "ingress_transient"
	// ValidationReject: a replacement candidate failed a validation
	// gate. Silent; the router downgrades the decision.
	ValidationReject Kind = "validation_reject"
	// ReplacementAborted: post-state verification mismatched after a
	// commit. Best-effort rollback via undo; no retries.
	ReplacementAborted Kind = "replacement_aborted"
	// AccessibilityUnavailable: the host denied an accessibility query.
	// The engine falls through to the next replacement strategy.
	AccessibilityUnavailable Kind = "accessibility_unavailable"
	// PersistenceCorrupt: the user dictionary file could not be parsed.
	// The broken file is renamed aside and the store starts empty.
	PersistenceCorrupt Kind = "persistence_corrupt"
	// ConfigurationMissing: layout or threshold data is absent or
	// invalid. The caller falls back to embedded defaults.
	ConfigurationMissing Kind = "configuration_missing"
)

// Error is a typed, wrapped error carrying a Kind so callers can decide
// propagation policy without string-matching messages.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New creates a Kind-tagged error with no underlying cause.
func New(kind Kind, message string) error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates a Kind-tagged error with a formatted message.
func Newf(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind to an existing error, preserving it as the cause.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Annotate prefixes err with a caller-supplied note while preserving the
// chain for errors.Is/errors.As. A nil err annotates to nil so callers
// can wrap unconditionally at a function's return site.
func Annotate(err error, note string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", note, err)
}

// KindOf extracts the Kind from err, if any component in its chain is a
// *Error. Returns ("", false) otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Try executes fn and converts any recovered panic into an error instead
// of letting it unwind. The pipeline wraps the handling of each
// keystroke event in Try, so a panic there does not halt the event
// loop.
func Try(fn func()) (err error) {
	defer func() {
		recovered := recover()
		if recovered == nil {
			return
		}
		cause, ok := recovered.(error)
		if !ok {
			cause = fmt.Errorf("%v", recovered)
		}
		err = fmt.Errorf("recovered from panic: %w", cause)
	}()
	fn()
	return nil
}
