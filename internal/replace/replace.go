// Package replace implements ReplacementEngine: the strict-priority,
// three-strategy transaction procedure of spec §4.7 that commits a
// correction against a hostapi.TextHost without ever probing for a
// selection it doesn't already know exists.
package replace

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chernistry/omfk/internal/hostapi"
	"github.com/chernistry/omfk/internal/korlog"
)

// Outcome is the result of a replace attempt.
type Outcome int

const (
	Committed Outcome = iota
	NoTarget
	Aborted
)

func (o Outcome) String() string {
	switch o {
	case Committed:
		return "Committed"
	case NoTarget:
		return "NoTarget"
	case Aborted:
		return "Aborted"
	default:
		return "Unknown"
	}
}

// TargetKind distinguishes the three target specs spec §4.7 names.
type TargetKind int

const (
	SelectionConfirmed TargetKind = iota
	RecentInsertion
	FreshBuffer
)

// TargetSpec names what the engine should attempt to replace.
type TargetSpec struct {
	Kind TargetKind
	// Text and Length apply to RecentInsertion/FreshBuffer: the expected
	// trailing text and its rune length.
	Text   string
	Length int
}

// maxBackspaceBudget is the sanity bound on strategy 3's backspace
// count, guarding against a runaway Length value.
const maxBackspaceBudget = 256

// Engine performs replacements against a single TextHost + Clipboard
// pair. It holds no state of its own beyond its collaborators,
// constructed once and passed in by pipeline.New, per DESIGN NOTES §9.
type Engine struct {
	host           hostapi.TextHost
	clipboard      hostapi.Clipboard
	pasteDelay     time.Duration
	typeChunkSize  int
	deleteChunkGap time.Duration
}

// New builds a ReplacementEngine over host/clipboard and the timing
// knobs from omfkconfig.Config.Timing.
func New(host hostapi.TextHost, clipboard hostapi.Clipboard, pasteDelay, deleteChunkGap time.Duration, typeChunkSize int) *Engine {
	if typeChunkSize <= 0 {
		typeChunkSize = 20
	}
	return &Engine{host: host, clipboard: clipboard, pasteDelay: pasteDelay, typeChunkSize: typeChunkSize, deleteChunkGap: deleteChunkGap}
}

// Replace runs the strict-priority transaction procedure of spec §4.7
// against target, committing newText in place of it.
func (e *Engine) Replace(ctx context.Context, target TargetSpec, newText string) Outcome {
	switch target.Kind {
	case SelectionConfirmed:
		if e.tryAccessibilityMatch(ctx, target, newText) {
			return e.verifyOrRollback(ctx, newText)
		}
		if e.confirmSelection(ctx) && e.trySelectionPaste(ctx, newText) {
			return e.verifyOrRollback(ctx, newText)
		}
	case RecentInsertion, FreshBuffer:
		if e.tryAccessibilityMatch(ctx, target, newText) {
			return e.verifyOrRollback(ctx, newText)
		}
		if e.tryBoundedBackspaceType(ctx, target, newText) {
			return e.verifyOrRollback(ctx, newText)
		}
	}
	return NoTarget
}

// tryAccessibilityMatch is strategy 1: read the trailing range, confirm
// it equals the expected text, then set it directly through the
// accessibility API. For SelectionConfirmed the "expected text" is
// whatever ReadSelection already confirmed.
func (e *Engine) tryAccessibilityMatch(ctx context.Context, target TargetSpec, newText string) bool {
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	var expect string
	var length int
	if target.Kind == SelectionConfirmed {
		text, confirmed := e.host.ReadSelection(ctx)
		if !confirmed {
			return false
		}
		expect, length = text, utf8.RuneCountInString(text)
	} else {
		expect, length = target.Text, target.Length
	}
	if length <= 0 || length > maxBackspaceBudget {
		return false
	}

	trailing, ok := e.host.ReadTrailing(ctx, length)
	if !ok || trailing != expect {
		return false
	}
	return e.host.SetRangeValue(ctx, length, newText)
}

// confirmSelection re-checks accessibility for a non-empty confirmed
// selection immediately before strategy 2 runs, rather than trusting
// the caller's TargetSpec alone.
func (e *Engine) confirmSelection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	text, confirmed := e.host.ReadSelection(ctx)
	return confirmed && text != ""
}

// trySelectionPaste is strategy 2: snapshot the clipboard, write
// newText, paste, wait the configured delay, restore the clipboard.
func (e *Engine) trySelectionPaste(ctx context.Context, newText string) bool {
	snap, err := e.clipboard.Snapshot(ctx)
	if err != nil {
		return false
	}
	defer func() {
		if rerr := e.clipboard.Restore(ctx, snap); rerr != nil {
			korlog.Default().Warn("clipboard restore failed", korlog.Fields{"error": rerr.Error()})
		}
	}()

	if err := e.clipboard.Write(ctx, newText); err != nil {
		return false
	}
	if !e.host.Paste(ctx) {
		return false
	}
	if e.pasteDelay > 0 {
		time.Sleep(e.pasteDelay)
	}
	return true
}

// tryBoundedBackspaceType is strategy 3: exactly target.Length
// backspaces (a Length above maxBackspaceBudget is refused outright),
// then type newText in fixed-size chunks with an inter-chunk delay.
func (e *Engine) tryBoundedBackspaceType(ctx context.Context, target TargetSpec, newText string) bool {
	if target.Length <= 0 || target.Length > maxBackspaceBudget {
		return false
	}
	if !e.host.Backspace(ctx, target.Length) {
		return false
	}

	runes := []rune(newText)
	for i := 0; i < len(runes); i += e.typeChunkSize {
		end := i + e.typeChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		if !e.host.TypeText(ctx, string(runes[i:end])) {
			return false
		}
		if end < len(runes) && e.deleteChunkGap > 0 {
			time.Sleep(e.deleteChunkGap)
		}
	}
	return true
}

// verifyOrRollback re-reads the trailing text after a commit; if it
// doesn't end with newText, sends undo and reports Aborted.
func (e *Engine) verifyOrRollback(ctx context.Context, newText string) Outcome {
	ctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	n := utf8.RuneCountInString(newText)
	if n == 0 || n > maxBackspaceBudget {
		return Committed
	}
	trailing, ok := e.host.ReadTrailing(ctx, n)
	if !ok {
		// Accessibility unavailable post-commit; trust the commit rather
		// than undo blind.
		return Committed
	}
	if strings.HasSuffix(trailing, newText) || trailing == newText {
		return Committed
	}
	e.host.Undo(ctx)
	return Aborted
}
