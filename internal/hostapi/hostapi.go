// Package hostapi names the OS-glue contracts consumed by the
// correction pipeline (spec §6): keystroke ingestion, text mutation and
// accessibility queries, clipboard snapshot/restore, layout switching,
// and frontmost-application identification. No platform backend ships
// here — only the contracts, plus an in-memory fake (package
// hostapi/fake) used by tests and cmd/omfk-bench, per spec §1's
// explicit exclusion of platform integration code.
package hostapi

import (
	"context"
	"time"
)

// KeyEvent is the low-level event the OS keystroke stream delivers to
// the pipeline's ingestion channel, per spec §6.
type KeyEvent struct {
	KeyCode      uint16
	ModifierMask uint8
	Down         bool
	ProducedChar rune
	HasChar      bool
	AppID        string
	At           time.Time
}

// KeystrokeSource is the consumed contract for the OS input thread.
// Implementations push events to Events(); the pipeline only ever
// reads.
type KeystrokeSource interface {
	Events() <-chan KeyEvent
}

// Range identifies a span of text by caret-relative length, per spec
// §4.7's "range immediately behind the caret of length N".
type Range struct {
	Length int
}

// TextHost is the accessibility + text-mutation contract. Its shape
// deliberately excludes any "copy current selection" method: the
// ReplacementEngine's forbidden probe-copy strategy (spec §4.7) is made
// inexpressible by the interface rather than merely discouraged by
// convention.
type TextHost interface {
	// ReadTrailing returns the text of the range of length n immediately
	// behind the caret, or ok=false if accessibility is unavailable or
	// the range cannot be determined within ctx's deadline.
	ReadTrailing(ctx context.Context, n int) (text string, ok bool)

	// ReadSelection returns the currently selected text and whether a
	// non-empty selection is accessibility-confirmed.
	ReadSelection(ctx context.Context) (text string, confirmed bool)

	// SetRangeValue replaces the trailing range of length n with
	// newText through the accessibility API (strategy 1). Returns false
	// if the host does not support direct value mutation.
	SetRangeValue(ctx context.Context, n int, newText string) bool

	// Paste sends the platform paste command (strategy 2, after the
	// caller has written to the clipboard).
	Paste(ctx context.Context) bool

	// Backspace synthesizes n backspace keystrokes (strategy 3).
	Backspace(ctx context.Context, n int) bool

	// TypeText synthesizes typed keystrokes for text (strategy 3).
	TypeText(ctx context.Context, text string) bool

	// Undo sends the platform undo command, used for rollback after a
	// failed post-commit self-check.
	Undo(ctx context.Context) bool
}

// Clipboard is the atomic snapshot/restore contract spec §6 requires so
// the ReplacementEngine's selection-paste strategy never leaks the
// user's clipboard contents.
type Clipboard interface {
	Snapshot(ctx context.Context) (Snapshot, error)
	Write(ctx context.Context, text string) error
	Restore(ctx context.Context, s Snapshot) error
}

// Snapshot is an opaque capture of all registered clipboard data types.
type Snapshot struct {
	opaque interface{}
}

// NewSnapshot lets a Clipboard implementation box its native snapshot
// representation.
func NewSnapshot(v interface{}) Snapshot { return Snapshot{opaque: v} }

// Value returns the boxed native snapshot for the Clipboard
// implementation that produced it.
func (s Snapshot) Value() interface{} { return s.opaque }

// LayoutSwitcher sets the system's active keyboard layout by ID.
type LayoutSwitcher interface {
	SetActiveLayout(ctx context.Context, id string) error
}

// FrontmostApp resolves the opaque identifier of the currently focused
// application.
type FrontmostApp interface {
	CurrentAppID() string
}
