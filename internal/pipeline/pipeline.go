// Package pipeline implements CorrectionPipeline (spec §4.10): the
// orchestrator that wires LayoutTables/Transliterator, the Ensemble,
// UserDictionary, ConfidenceRouter, ReplacementEngine, InputBuffer, and
// CyclingStateMachine into the ingest -> classify -> route -> replace ->
// learn procedure. Every collaborator is constructor-injected, the way
// gordp.NewClient(option) assembles its collaborators and the way
// di.Container resolves named services without a package-level
// singleton (DESIGN NOTES §9).
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chernistry/omfk/internal/buffer"
	"github.com/chernistry/omfk/internal/classify"
	"github.com/chernistry/omfk/internal/cycle"
	"github.com/chernistry/omfk/internal/hostapi"
	"github.com/chernistry/omfk/internal/korerr"
	"github.com/chernistry/omfk/internal/korlog"
	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
	"github.com/chernistry/omfk/internal/replace"
	"github.com/chernistry/omfk/internal/router"
	"github.com/chernistry/omfk/internal/userdict"
)

// Observer is the documented extension point for corrections-beyond-
// the-50-record-ring persistence (spec §9's third Open Question):
// treated as optional observability, with no default disk-writing
// implementation in the core.
type Observer interface {
	OnCorrection(token omfkmodel.Token, outcome router.Outcome, target omfkmodel.Alternative)
}

// defaultHistoryCap bounds the in-memory ring of recent corrections
// that the pipeline records after each committed auto-correction.
const defaultHistoryCap = 50

type historyEntry struct {
	Text string
	At   time.Time
}

// Config bundles every collaborator pipeline.New needs, following the
// teacher's option-struct constructor shape.
type Config struct {
	Ensemble   *classify.Ensemble
	Dictionary *userdict.Dictionary
	Replacer   *replace.Engine
	Settings   *omfkconfig.Store
	Host       hostapi.TextHost
	AppFilter  func(appID string) bool // returns true if appID is excluded
	Observer   Observer
}

// Pipeline is the single-goroutine executor described in spec §5:
// InputBuffer, CyclingStateMachine, and ConfidenceRouter are all only
// ever touched from the goroutine running Run, so none of them need
// their own locking.
type Pipeline struct {
	ensemble   *classify.Ensemble
	dictionary *userdict.Dictionary
	replacer   *replace.Engine
	settings   *omfkconfig.Store
	host       hostapi.TextHost
	appFilter  func(string) bool
	observer   Observer

	tracker *buffer.Tracker
	cycler  *cycle.Machine

	mu               sync.Mutex
	lastLanguage     omfkmodel.Language
	lastCorrection   time.Time
	history          []historyEntry
	debugLogging     int32 // atomic bool

	dropCounter uint64 // atomic: back-pressure drop count, spec §5
}

// New assembles a Pipeline. It does not start the event loop; call Run.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		ensemble:   cfg.Ensemble,
		dictionary: cfg.Dictionary,
		replacer:   cfg.Replacer,
		settings:   cfg.Settings,
		host:       cfg.Host,
		appFilter:  cfg.AppFilter,
		observer:   cfg.Observer,
		cycler:     cycle.New(),
	}
	p.tracker = buffer.New(buffer.Options{
		TokenTimeout:  p.settings.Get().Timing.BufferTimeout,
		PhraseIdle:    p.settings.Get().Timing.PhraseBufferIdle,
		PendingExpiry: p.settings.Get().Timing.PendingWordTimeout,
		OnEmit:        p.handleEmittedToken,
		OnPendingLost: func(string) {},
	})
	return p
}

// SetDebugLogging toggles verbose per-token logging, per spec §6's
// debug-log environment switch.
func (p *Pipeline) SetDebugLogging(enabled bool) {
	v := int32(0)
	if enabled {
		v = 1
	}
	atomic.StoreInt32(&p.debugLogging, v)
}

func (p *Pipeline) debugEnabled() bool {
	return atomic.LoadInt32(&p.debugLogging) == 1
}

// Run drives the ingestion channel until ctx is canceled. It is the
// "single dedicated goroutine" of spec §5; every call into
// buffer.Tracker, cycle.Machine, or router.Route happens from here.
func (p *Pipeline) Run(ctx context.Context, events <-chan hostapi.KeyEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			p.handleEvent(ev)
		}
	}
}

// DropCount reports the ingestion channel's back-pressure drop counter
// (spec §5's "observability counter" for the drop-oldest policy). The
// counter is an unexported field that nothing in this module
// increments, so DropCount always reports 0.
func (p *Pipeline) DropCount() uint64 {
	return atomic.LoadUint64(&p.dropCounter)
}

// handleEvent wraps handleEventSafe in korerr.Try so that a panic while
// processing one keystroke is logged and contained rather than taking
// down the pipeline goroutine, per spec §7's "the pipeline never halts"
// propagation policy.
func (p *Pipeline) handleEvent(ev hostapi.KeyEvent) {
	if err := korerr.Try(func() { p.handleEventSafe(ev) }); err != nil {
		korlog.Default().Warn("recovered panic processing keystroke", korlog.Fields{"error": err.Error()})
	}
}

func (p *Pipeline) handleEventSafe(ev hostapi.KeyEvent) {
	if !ev.Down {
		return
	}

	if p.cycler.State() == cycle.Armed {
		if isAltTap(ev) {
			p.onAltTap(ev.AppID)
			return
		}
		p.cycler.CancelOnKeystroke()
	}
	p.cycler.CheckRetentionExpiry()

	if !ev.HasChar {
		return
	}
	p.tracker.Feed(ev.ProducedChar, ev.AppID)
}

// isAltTap reports whether ev represents the Alt-tap hotkey. The exact
// modifier encoding is host-specific; here it is "Alt held, no
// printable character produced", matching spec §6's keystroke contract.
func isAltTap(ev hostapi.KeyEvent) bool {
	return layout.Modifier(ev.ModifierMask)&layout.ModifierAlt != 0 && !ev.HasChar
}

// handleEmittedToken is InputBuffer's EmitFunc: the core of
// CorrectionPipeline's step-by-step procedure (spec §4.10).
func (p *Pipeline) handleEmittedToken(text string, appID string) {
	if p.appFilter != nil && p.appFilter(appID) {
		return
	}
	if text == "" {
		return
	}

	token := omfkmodel.Token{
		RawText:       text,
		ScriptProfile: classify.ComputeScriptProfile(text),
		OriginTime:    time.Now(),
		SourceAppID:   appID,
	}

	p.mu.Lock()
	ctx := classify.Context{LastLanguage: p.lastLanguage}
	p.mu.Unlock()

	decision := p.ensemble.Classify(token, ctx)

	var rule *omfkmodel.UserDictionaryRule
	if p.dictionary != nil {
		if r, ok := p.dictionary.Lookup(text); ok && r.Action.AffectsRouting() {
			rule = r
		}
	}

	routed := router.Route(decision, rule, text, p.settings.Get())

	if p.debugEnabled() {
		korlog.Default().Info("routed token", korlog.Fields{
			"outcome": routed.Outcome.String(), "confidence": routed.Decision.Confidence,
			"script":  token.ScriptProfile.AsFields(),
		})
	}

	switch routed.Outcome {
	case router.KeepOriginal:
		return
	case router.Defer:
		p.tracker.ParkPending(text, appID)
		return
	case router.CycleOnly:
		p.seedCycleOnly(routed, text)
		return
	case router.AutoCorrect:
		p.commitAutoCorrect(token, routed)
	}
}

// commitAutoCorrect executes the AUTO_CORRECT outcome via
// ReplacementEngine, seeds cycling on commit, and records the
// correction in the recent-history ring (spec §4.10 steps 4-5).
func (p *Pipeline) commitAutoCorrect(token omfkmodel.Token, routed router.Routed) {
	target := replace.TargetSpec{Kind: replace.FreshBuffer, Text: token.RawText, Length: len([]rune(token.RawText))}
	outcome := p.replacer.Replace(context.Background(), target, routed.Target.Text)
	if outcome != replace.Committed {
		if p.observer != nil {
			p.observer.OnCorrection(token, routed.Outcome, routed.Target)
		}
		return
	}

	original := omfkmodel.Alternative{Hypothesis: impliedAsIsHypothesis(token), Text: token.RawText, Score: 0}
	third := thirdLanguageAlternative(routed.Decision, routed.Target)
	p.cycler.SeedAfterAutoCorrect(original, routed.Target, third)

	p.mu.Lock()
	p.lastLanguage = routed.Target.Hypothesis.Language()
	p.lastCorrection = time.Now()
	p.recordHistoryLocked(token.RawText)
	p.mu.Unlock()

	if p.observer != nil {
		p.observer.OnCorrection(token, routed.Outcome, routed.Target)
	}
}

// seedCycleOnly arms cycling without mutating text, per CYCLE_ONLY's
// contract (spec §4.6): alternatives are available on Alt within the
// retention window, but nothing is replaced yet.
func (p *Pipeline) seedCycleOnly(routed router.Routed, rawText string) {
	if len(routed.Decision.Alternatives) < 2 {
		return
	}
	original := omfkmodel.Alternative{Hypothesis: "", Text: rawText, Score: 0}
	smart := routed.Decision.Alternatives[0]
	var langA, langB omfkmodel.Alternative
	if len(routed.Decision.Alternatives) > 1 {
		langA = routed.Decision.Alternatives[1]
	}
	if len(routed.Decision.Alternatives) > 2 {
		langB = routed.Decision.Alternatives[2]
	}
	p.cycler.SeedAfterManualBuffer(smart, langA, langB, original)
}

func thirdLanguageAlternative(decision omfkmodel.Decision, chosen omfkmodel.Alternative) *omfkmodel.Alternative {
	for i := range decision.Alternatives {
		a := decision.Alternatives[i]
		if a.Hypothesis != chosen.Hypothesis && !a.Hypothesis.IsAsIs() {
			return &a
		}
	}
	return nil
}

func (p *Pipeline) recordHistoryLocked(text string) {
	p.history = append(p.history, historyEntry{Text: text, At: time.Now()})
	historyCap := defaultHistoryCap
	if p.settings != nil {
		if c := p.settings.Get().Correction.HistoryCap; c > 0 {
			historyCap = c
		}
	}
	if len(p.history) > historyCap {
		p.history = p.history[len(p.history)-historyCap:]
	}
}

// onAltTap implements spec §4.10 step 6's learning hooks tied to
// cycling advancement.
//
// The text/length to backspace must be captured before AltTap runs:
// AltTap mutates cur.InsertedText/InsertedLength to the newly-selected
// alternative, so reading them afterward would describe what's about to
// be inserted, not what the document currently holds. For a
// CYCLE_ONLY-seeded session nothing has been inserted yet at all — the
// document still shows the raw original token — so the pre-tap target
// is OriginalText until the first replace actually lands.
//
// record_auto_reject fires on the first Alt-tap of an Armed session that
// returns to the original text (spec §4.10/§9), not on every such tap:
// a round-1->round-2 expansion can bring a later tap back to the
// original a second time within the same continuous session, and that
// must not count as a second occasion. cycler.AutoRejectRecorded() gates
// this.
func (p *Pipeline) onAltTap(appID string) {
	cur := p.cycler.Current()
	wasAutomatic := p.cycler.WasAutomatic()
	original := cur.OriginalText

	var prevTarget replace.TargetSpec
	if p.cycler.Replaced() {
		prevTarget = replace.TargetSpec{Kind: replace.RecentInsertion, Text: cur.InsertedText, Length: cur.InsertedLength}
	} else {
		prevTarget = replace.TargetSpec{Kind: replace.RecentInsertion, Text: cur.OriginalText, Length: len([]rune(cur.OriginalText))}
	}

	result, ok := p.cycler.AltTap()
	if !ok {
		return
	}
	p.cycler.MarkReplaced()

	if wasAutomatic && p.cycler.IsAtOriginal() {
		if !p.cycler.AutoRejectRecorded() {
			if p.dictionary != nil {
				p.dictionary.RecordAutoReject(original)
			}
			p.cycler.MarkAutoRejectRecorded()
		}
		_ = p.replacer.Replace(context.Background(), prevTarget, original)
		return
	}

	if !result.Alternative.Hypothesis.IsAsIs() && result.Alternative.Text != original {
		if p.dictionary != nil {
			p.dictionary.RecordManualApply(original, result.Alternative.Hypothesis)
		}
	}

	_ = p.replacer.Replace(context.Background(), prevTarget, result.Alternative.Text)
}

// impliedAsIsHypothesis is a small helper: the "hypothesis" a raw,
// uncommitted token implicitly stands for when boxed as an Alternative
// for cycling's "original" slot. It carries no scoring meaning.
func impliedAsIsHypothesis(t omfkmodel.Token) omfkmodel.Hypothesis {
	lang, _ := t.ScriptProfile.Dominant()
	switch lang {
	case omfkmodel.RU:
		return omfkmodel.HypRuAsIs
	case omfkmodel.HE:
		return omfkmodel.HypHeAsIs
	default:
		return omfkmodel.HypEnAsIs
	}
}
