// Package cycle implements CyclingStateMachine (spec §4.9): the
// Idle/Armed state machine behind the Alt-tap hotkey, including the
// round-1-to-round-2 expansion rule (spec's Open Question is resolved
// per SPEC_FULL.md §9 in favor of "expand and jump to the new entry"),
// the four alternative-ordering recipes, and the retention/minimum-
// duration/cancel-on-keystroke rules.
package cycle

import (
	"time"

	"github.com/chernistry/omfk/internal/omfkmodel"
)

// State tags whether cycling is currently available.
type State int

const (
	Idle State = iota
	Armed
)

// SeedKind distinguishes how Armed was entered, selecting which of the
// four ordering recipes applies.
type SeedKind int

const (
	SeedAutoCorrect SeedKind = iota
	SeedManualBuffer
	SeedManualSelection
)

const (
	retentionWindow    = 60 * time.Second
	minRoundDuration   = 500 * time.Millisecond
)

// Machine is the per-pipeline cycling state holder. It is not
// goroutine-safe on its own; the pipeline's single-threaded executor
// (spec §5) is its only caller, matching InputBuffer/ConfidenceRouter.
type Machine struct {
	state State
	cur   omfkmodel.CyclingState
	seed  SeedKind

	// roundStartIndex is the alternative index Armed was entered at for
	// the current round. A tap whose next index would land back on it
	// is "the wrap back to start" spec §4.9 gates expansion on — not
	// merely reaching the end of a slice, which for a 2-element round-1
	// list would otherwise fire on every single tap.
	roundStartIndex int

	// replaced reports whether the document already holds
	// cur.InsertedText. True immediately after an AUTO_CORRECT seed
	// (the correction was already committed); false after a
	// CYCLE_ONLY/manual-selection seed, where nothing has been written
	// yet and the document still holds OriginalText. The pipeline's
	// Alt-tap handler needs this to know what text is actually sitting
	// in the document before the tap, since that's what it must
	// backspace.
	replaced bool

	// autoRejectRecorded reports whether this Armed session has already
	// recorded its one auto-reject learning event. spec §4.10/§9's
	// "on the first Alt-tap ... that returns to original" wording gates
	// record_auto_reject to once per session: a round-1->round-2
	// expansion can bring a later tap back to the original alternative a
	// second time within the same continuous interaction, and that must
	// not count as a second occasion.
	autoRejectRecorded bool

	thirdLanguageCandidate *omfkmodel.Alternative
}

// New returns an idle Machine.
func New() *Machine {
	return &Machine{state: Idle}
}

// State reports the current state.
func (m *Machine) State() State { return m.state }

// Current returns the active cycling state; valid only when State() ==
// Armed.
func (m *Machine) Current() omfkmodel.CyclingState { return m.cur }

// SeedAfterAutoCorrect arms the machine after an AUTO_CORRECT commit:
// round 1, visible = [original, corrected], index at the corrected
// alternative (index 1), per spec §4.9.
func (m *Machine) SeedAfterAutoCorrect(original, corrected omfkmodel.Alternative, third *omfkmodel.Alternative) {
	m.state = Armed
	m.seed = SeedAutoCorrect
	m.roundStartIndex = 1
	m.replaced = true
	m.autoRejectRecorded = false
	m.thirdLanguageCandidate = third
	m.cur = omfkmodel.CyclingState{
		OriginalText:       original.Text,
		Alternatives:       []omfkmodel.Alternative{original, corrected},
		CurrentIndex:       1,
		Round:              omfkmodel.RoundOne,
		InsertedText:       corrected.Text,
		InsertedLength:     len([]rune(corrected.Text)),
		StartedAt:          time.Now(),
		SourceWasAutomatic: true,
	}
}

// SeedAfterManualBuffer arms the machine after a manual-buffer
// correction: round 1, visible = [smart, language_A, language_B,
// original], per spec §4.9.
func (m *Machine) SeedAfterManualBuffer(smart, langA, langB, original omfkmodel.Alternative) {
	m.state = Armed
	m.seed = SeedManualBuffer
	m.roundStartIndex = 0
	m.replaced = false
	m.autoRejectRecorded = false
	m.thirdLanguageCandidate = nil
	m.cur = omfkmodel.CyclingState{
		OriginalText:       original.Text,
		Alternatives:       []omfkmodel.Alternative{smart, langA, langB, original},
		CurrentIndex:       0,
		Round:              omfkmodel.RoundOne,
		InsertedText:       smart.Text,
		InsertedLength:     len([]rune(smart.Text)),
		StartedAt:          time.Now(),
		SourceWasAutomatic: false,
	}
}

// SeedAfterManualSelection arms the machine after a manual-selection
// correction: round 1, visible = [smart_per_word, whole->language_A,
// whole->language_B, original], per spec §4.9.
func (m *Machine) SeedAfterManualSelection(smartPerWord, wholeA, wholeB, original omfkmodel.Alternative) {
	m.state = Armed
	m.seed = SeedManualSelection
	m.roundStartIndex = 0
	m.replaced = false
	m.autoRejectRecorded = false
	m.thirdLanguageCandidate = nil
	m.cur = omfkmodel.CyclingState{
		OriginalText:       original.Text,
		Alternatives:       []omfkmodel.Alternative{smartPerWord, wholeA, wholeB, original},
		CurrentIndex:       0,
		Round:              omfkmodel.RoundOne,
		InsertedText:       smartPerWord.Text,
		InsertedLength:     len([]rune(smartPerWord.Text)),
		StartedAt:          time.Now(),
		SourceWasAutomatic: false,
	}
}

// AdvanceResult tells the caller what text to insert, or whether
// cycling has no further effect this tap.
type AdvanceResult struct {
	Alternative omfkmodel.Alternative
	Expanded    bool
}

// AltTap advances the cycling state on an Alt-tap, applying the
// round-1->round-2 expansion rule. It returns ok=false if the machine
// is Idle.
//
// "The next index wraps (would return to start)" (spec §4.9) means the
// next tap would redisplay the alternative Armed was entered on —
// roundStartIndex — not merely that incrementing overflows the slice.
// For a 2-element round-1 list that distinction matters: every other
// increment overflows the slice by simple modular arithmetic, but only
// the tap that would redisplay the original seed alternative is the
// spec's "wrap".
func (m *Machine) AltTap() (AdvanceResult, bool) {
	if m.state != Armed {
		return AdvanceResult{}, false
	}

	n := len(m.cur.Alternatives)
	next := (m.cur.CurrentIndex + 1) % n
	expanded := false

	if m.cur.Round == omfkmodel.RoundOne && next == m.roundStartIndex && m.thirdLanguageAvailable() {
		m.cur.Alternatives = append(m.cur.Alternatives, *m.thirdLanguageCandidate)
		m.cur.Round = omfkmodel.RoundTwo
		next = len(m.cur.Alternatives) - 1
		expanded = true
	}

	m.cur.CurrentIndex = next
	chosen := m.cur.Alternatives[next]
	m.cur.InsertedText = chosen.Text
	m.cur.InsertedLength = len([]rune(chosen.Text))
	return AdvanceResult{Alternative: chosen, Expanded: expanded}, true
}

// thirdLanguageAvailable implements spec §4.9's three conditions: a
// configured third language, a validated Ensemble alternative for it,
// and that it differs from both existing alternatives.
func (m *Machine) thirdLanguageAvailable() bool {
	if m.thirdLanguageCandidate == nil {
		return false
	}
	cand := m.thirdLanguageCandidate.Text
	for _, a := range m.cur.Alternatives {
		if a.Text == cand {
			return false
		}
	}
	return true
}

// CancelOnKeystroke implements the Armed->Idle transition for any
// typed keystroke other than Alt while Armed (spec §4.9).
func (m *Machine) CancelOnKeystroke() {
	if m.state != Armed {
		return
	}
	if time.Since(m.cur.StartedAt) < minRoundDuration {
		// Minimum round duration not yet elapsed: spec requires *both*
		// min-duration elapsed *and* further typing to cancel early: a
		// keystroke within the minimum window does not cancel.
		return
	}
	m.reset()
}

// FocusChanged cancels cycling unconditionally on app-focus change.
func (m *Machine) FocusChanged() {
	m.reset()
}

// CheckRetentionExpiry cancels cycling if the 60-second retention
// window has elapsed since StartedAt. The pipeline calls this
// periodically or before acting on a new Alt-tap.
func (m *Machine) CheckRetentionExpiry() bool {
	if m.state != Armed {
		return false
	}
	if time.Since(m.cur.StartedAt) >= retentionWindow {
		m.reset()
		return true
	}
	return false
}

func (m *Machine) reset() {
	m.state = Idle
	m.cur = omfkmodel.CyclingState{}
	m.autoRejectRecorded = false
	m.thirdLanguageCandidate = nil
}

// Replaced reports whether the document already holds cur.InsertedText
// as of the start of the current tap, per the replaced field's doc.
func (m *Machine) Replaced() bool { return m.replaced }

// MarkReplaced records that the pipeline has now written cur.InsertedText
// to the document, so the next tap's backspace target is InsertedText
// rather than OriginalText.
func (m *Machine) MarkReplaced() { m.replaced = true }

// AutoRejectRecorded reports whether this Armed session has already
// recorded its one record_auto_reject learning event.
func (m *Machine) AutoRejectRecorded() bool { return m.autoRejectRecorded }

// MarkAutoRejectRecorded flags that this Armed session has recorded its
// record_auto_reject event, so a later tap landing back on the original
// (e.g. after a round-1->round-2 expansion) does not fire it again.
func (m *Machine) MarkAutoRejectRecorded() { m.autoRejectRecorded = true }

// IsAtOriginal reports whether the currently-visible alternative is the
// original text — used by the pipeline's learning hook to detect the
// first Alt-tap-to-original (spec §4.10's record_auto_reject trigger).
func (m *Machine) IsAtOriginal() bool {
	if m.state != Armed || len(m.cur.Alternatives) == 0 {
		return false
	}
	return m.cur.Alternatives[m.cur.CurrentIndex].Text == m.cur.OriginalText
}

// WasAutomatic reports whether the active (or most recently active)
// cycling state originated from an AUTO_CORRECT.
func (m *Machine) WasAutomatic() bool {
	return m.cur.SourceWasAutomatic
}
