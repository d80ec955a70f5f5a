// Package buffer implements InputBuffer & Boundary Tracker (spec
// §4.8): the trailing token buffer, the bounded phrase buffer, and the
// single-slot pending-word. The timer/debounce shape — an
// AfterFunc-driven timeout plus a mutex-guarded accumulation buffer —
// is grounded in gordp/gui/input.KeyboardHandler's flushTimer /
// repeatTimer pattern, generalized from a 16ms keystroke-repeat flush
// to a 2-second word-boundary timeout.
package buffer

import (
	"strings"
	"sync"
	"time"

	"github.com/chernistry/omfk/internal/omfkmodel"
)

// TokenInitialCapacity and TokenHardCeiling bound the trailing token
// buffer per spec §4.8.
const (
	TokenInitialCapacity = 64
	TokenHardCeiling      = 1024
	PhraseBufferCeiling   = 256
)

// DefaultBoundarySet is the word-boundary character set named in spec
// §4.8. A Tracker's boundary set can be overridden via
// omfkconfig.Config.Punctuation.WordBoundary.
var DefaultBoundarySet = []string{" ", "\t", "\n", ".", "!", "?", ":", ")", "]", "}", "\"", "»", "」", "…"}

// EmitFunc receives a completed token at a boundary or timeout. It is
// called synchronously from whichever goroutine triggers the boundary
// (keystroke delivery or the timeout timer), so it must not block.
type EmitFunc func(text string, appID string)

// Tracker owns the token buffer, the phrase buffer, and the
// pending-word slot. All state transitions happen under mu, matching
// gordp's KeyboardHandler discipline of a single mutex guarding the
// buffer plus its timers.
type Tracker struct {
	mu sync.Mutex

	boundary map[rune]struct{}

	token          []rune
	tokenAppID     string
	tokenTimer     *time.Timer
	tokenTimeout   time.Duration

	phrase       []rune
	phraseTimer  *time.Timer
	phraseIdle   time.Duration

	pending       *PendingWord
	pendingTimer  *time.Timer
	pendingExpiry time.Duration

	onEmit        EmitFunc
	onPendingLost func(text string)
}

// PendingWord is the at-most-one DEFER-parked token spec §4.8 names.
type PendingWord struct {
	Text      string
	AppID     string
	CreatedAt time.Time
}

// Options configures a Tracker's timeouts and boundary set.
type Options struct {
	BoundarySet    []string
	TokenTimeout   time.Duration
	PhraseIdle     time.Duration
	PendingExpiry  time.Duration
	OnEmit         EmitFunc
	OnPendingLost  func(text string)
}

// New builds a Tracker. onEmit is required; a nil onEmit panics at
// first boundary rather than silently dropping tokens.
func New(opts Options) *Tracker {
	set := opts.BoundarySet
	if set == nil {
		set = DefaultBoundarySet
	}
	boundary := make(map[rune]struct{}, len(set))
	for _, s := range set {
		for _, r := range s {
			boundary[r] = struct{}{}
		}
	}
	t := &Tracker{
		boundary:      boundary,
		token:         make([]rune, 0, TokenInitialCapacity),
		tokenTimeout:  opts.TokenTimeout,
		phrase:        make([]rune, 0, PhraseBufferCeiling),
		phraseIdle:    opts.PhraseIdle,
		pendingExpiry: opts.PendingExpiry,
		onEmit:        opts.OnEmit,
		onPendingLost: opts.OnPendingLost,
	}
	return t
}

// Feed processes one printable character keystroke for appID.
func (t *Tracker) Feed(r rune, appID string) {
	t.mu.Lock()

	if _, isBoundary := t.boundary[r]; isBoundary {
		pending := t.flushTokenLocked()
		t.resetTokenTimerLocked()
		t.appendPhraseLocked(r)
		t.mu.Unlock()
		t.dispatch(pending)
		return
	}

	var pending []emission
	if t.tokenAppID != "" && t.tokenAppID != appID {
		pending = t.flushTokenLocked()
	}
	t.tokenAppID = appID
	t.token = append(t.token, r)
	if len(t.token) > TokenHardCeiling {
		// Exceeding the hard ceiling empties the buffer without emitting,
		// per spec §4.8.
		t.token = t.token[:0]
		t.stopTokenTimerLocked()
		t.mu.Unlock()
		t.dispatch(pending)
		return
	}
	t.appendPhraseLocked(r)
	t.resetTokenTimerLocked()
	t.mu.Unlock()
	t.dispatch(pending)
}

// Boundary forces a boundary event not tied to a character — e.g. a
// 2-second timeout firing, an app-focus change, a mouse click, or
// arrow-key navigation (spec §4.8).
func (t *Tracker) Boundary() {
	t.mu.Lock()
	pending := t.flushTokenLocked()
	t.stopTokenTimerLocked()
	t.mu.Unlock()
	t.dispatch(pending)
}

// FocusChanged is the app-focus-change boundary: it emits any in-flight
// token, then resets the phrase buffer and the pending-word slot.
func (t *Tracker) FocusChanged() {
	t.mu.Lock()
	pending := t.flushTokenLocked()
	t.stopTokenTimerLocked()
	t.resetPhraseLocked()
	t.clearPendingLocked()
	t.mu.Unlock()
	t.dispatch(pending)
}

// MouseClickOrArrowNav resets the phrase buffer and flushes any
// in-flight token as a boundary, per spec §4.8.
func (t *Tracker) MouseClickOrArrowNav() {
	t.mu.Lock()
	pending := t.flushTokenLocked()
	t.stopTokenTimerLocked()
	t.resetPhraseLocked()
	t.mu.Unlock()
	t.dispatch(pending)
}

// emission is a deferred EmitFunc call: flushTokenLocked reports what to
// emit instead of calling onEmit itself, so callers can fire it only
// after releasing t.mu. onEmit commonly re-enters the Tracker (e.g. a
// DEFER outcome calling ParkPending); calling it while t.mu is held
// would deadlock against that re-entry.
type emission struct {
	text  string
	appID string
}

func (t *Tracker) flushTokenLocked() []emission {
	if len(t.token) == 0 {
		return nil
	}
	text := string(t.token)
	appID := t.tokenAppID
	t.token = t.token[:0]
	t.tokenAppID = ""

	if merged, ok := t.tryMergePendingLocked(text, appID); ok {
		return []emission{merged}
	}
	return []emission{{text: text, appID: appID}}
}

// tryMergePendingLocked implements the pending-word merge rule: if a
// pending word exists and the new token adjoins it without an
// intervening boundary having been observed, the combined token
// replaces both and is re-classified as one emission.
func (t *Tracker) tryMergePendingLocked(text, appID string) (emission, bool) {
	if t.pending == nil {
		return emission{}, false
	}
	merged := t.pending.Text + text
	t.clearPendingLocked()
	return emission{text: merged, appID: appID}, true
}

// dispatch fires any pending emissions. Callers must hold no lock when
// calling this.
func (t *Tracker) dispatch(emissions []emission) {
	if t.onEmit == nil {
		return
	}
	for _, e := range emissions {
		t.onEmit(e.text, e.appID)
	}
}

func (t *Tracker) resetTokenTimerLocked() {
	t.stopTokenTimerLocked()
	if t.tokenTimeout <= 0 {
		return
	}
	t.tokenTimer = time.AfterFunc(t.tokenTimeout, t.Boundary)
}

func (t *Tracker) stopTokenTimerLocked() {
	if t.tokenTimer != nil {
		t.tokenTimer.Stop()
		t.tokenTimer = nil
	}
}

func (t *Tracker) appendPhraseLocked(r rune) {
	t.phrase = append(t.phrase, r)
	if len(t.phrase) > PhraseBufferCeiling {
		t.phrase = t.phrase[len(t.phrase)-PhraseBufferCeiling:]
	}
	if r == '\n' {
		t.resetPhraseLocked()
		return
	}
	t.resetPhraseTimerLocked()
}

func (t *Tracker) resetPhraseLocked() {
	t.phrase = t.phrase[:0]
	if t.phraseTimer != nil {
		t.phraseTimer.Stop()
		t.phraseTimer = nil
	}
}

func (t *Tracker) resetPhraseTimerLocked() {
	if t.phraseTimer != nil {
		t.phraseTimer.Stop()
	}
	if t.phraseIdle <= 0 {
		return
	}
	t.phraseTimer = time.AfterFunc(t.phraseIdle, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.resetPhraseLocked()
	})
}

// Phrase returns a snapshot of the current phrase buffer.
func (t *Tracker) Phrase() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.phrase)
}

// ParkPending stores text as the single pending-word slot, per spec
// §4.8's DEFER outcome. Any previously pending word is evicted (and
// reported via onPendingLost) since only one slot exists.
func (t *Tracker) ParkPending(text, appID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clearPendingLocked()
	t.pending = &PendingWord{Text: text, AppID: appID, CreatedAt: time.Now()}
	if t.pendingExpiry > 0 {
		t.pendingTimer = time.AfterFunc(t.pendingExpiry, func() {
			t.mu.Lock()
			if t.pending == nil {
				t.mu.Unlock()
				return
			}
			lost := t.pending.Text
			t.clearPendingLocked()
			t.mu.Unlock()
			if t.onPendingLost != nil {
				t.onPendingLost(lost)
			}
		})
	}
}

func (t *Tracker) clearPendingLocked() {
	if t.pendingTimer != nil {
		t.pendingTimer.Stop()
		t.pendingTimer = nil
	}
	t.pending = nil
}

// Pending returns the current pending word, if any.
func (t *Tracker) Pending() (PendingWord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending == nil {
		return PendingWord{}, false
	}
	return *t.pending, true
}

// TokenFromDecision is a small helper pipeline callers use to build an
// omfkmodel.Token from emitted buffer text plus a computed script
// profile, keeping buffer ignorant of classify.
func TokenFromDecision(text, appID string, profile omfkmodel.ScriptProfile) omfkmodel.Token {
	return omfkmodel.Token{RawText: text, ScriptProfile: profile, OriginTime: time.Now(), SourceAppID: appID}
}

// IsBoundaryString reports whether s consists solely of boundary runes
// and contains at least one; it is used by callers probing raw host
// events before they reach Feed.
func IsBoundaryString(s string, extra map[rune]struct{}) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool {
		_, ok := extra[r]
		return !ok
	}) == -1
}
