package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernistry/omfk/internal/classify"
	"github.com/chernistry/omfk/internal/cycle"
	"github.com/chernistry/omfk/internal/hostapi"
	"github.com/chernistry/omfk/internal/hostapi/fake"
	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
	"github.com/chernistry/omfk/internal/replace"
	"github.com/chernistry/omfk/internal/router"
	"github.com/chernistry/omfk/internal/userdict"
)

type recordingObserver struct {
	outcomes []router.Outcome
}

func (r *recordingObserver) OnCorrection(token omfkmodel.Token, outcome router.Outcome, target omfkmodel.Alternative) {
	r.outcomes = append(r.outcomes, outcome)
}

func newTestPipeline(t *testing.T, host *fake.TextHost, obs Observer) *Pipeline {
	t.Helper()
	store, err := omfkconfig.NewStore("")
	require.NoError(t, err)

	tables := layout.EmbeddedTables()
	transliterator := layout.NewTransliterator(tables)
	oracle := classify.NewCompositeOracle()
	ensemble := classify.NewEnsemble(oracle, transliterator, store.Get())

	dict := userdict.New(userdict.Options{
		AutoRejectWindow:        14 * 24 * time.Hour,
		AutoRejectThreshold:     2,
		OverrideRemoveThreshold: 2,
	})

	clipboard := fake.NewClipboard()
	replacer := replace.New(host, clipboard, time.Millisecond, time.Millisecond, 20)

	return New(Config{
		Ensemble:   ensemble,
		Dictionary: dict,
		Replacer:   replacer,
		Settings:   store,
		Host:       host,
		Observer:   obs,
	})
}

// feedWord pushes a keystroke event per rune of word plus a trailing
// boundary space directly through the pipeline's event handling,
// bypassing Run's channel so the test can assert synchronously.
func feedWord(p *Pipeline, word, appID string) {
	for _, r := range word {
		p.handleEventSafe(hostapi.KeyEvent{Down: true, HasChar: true, ProducedChar: r, AppID: appID})
	}
	p.handleEventSafe(hostapi.KeyEvent{Down: true, HasChar: true, ProducedChar: ' ', AppID: appID})
}

func TestHandleEmittedTokenSkipsExcludedApp(t *testing.T) {
	host := fake.NewTextHost()
	obs := &recordingObserver{}
	p := newTestPipeline(t, host, obs)
	p.appFilter = func(appID string) bool { return appID == "terminal" }

	feedWord(p, "ghbdtn", "terminal")

	assert.Empty(t, obs.outcomes, "an excluded app's tokens must never reach the ensemble or observer")
	assert.Equal(t, "", host.Document)
}

func TestHandleEmittedTokenKeepAsIsRuleSuppressesCorrection(t *testing.T) {
	host := fake.NewTextHost()
	obs := &recordingObserver{}
	p := newTestPipeline(t, host, obs)
	p.dictionary.RecordAutoReject("ghbdtn")
	p.dictionary.RecordAutoReject("ghbdtn") // crosses the 2-event auto-reject threshold -> keep_as_is

	feedWord(p, "ghbdtn", "app1")

	assert.Empty(t, obs.outcomes, "a keep_as_is rule must short-circuit before any correction is attempted")
	assert.Equal(t, "", host.Document, "keep_as_is must never mutate the host document")
}

func decisionFor(original, corrected omfkmodel.Alternative) omfkmodel.Decision {
	return omfkmodel.Decision{Hypothesis: corrected.Hypothesis, Confidence: 0.9, Alternatives: []omfkmodel.Alternative{corrected, original}}
}

func TestCommitAutoCorrectWritesAndArmsCycling(t *testing.T) {
	host := fake.NewTextHost()
	obs := &recordingObserver{}
	p := newTestPipeline(t, host, obs)

	token := omfkmodel.Token{RawText: "ghbdtn", ScriptProfile: classify.ComputeScriptProfile("ghbdtn"), OriginTime: time.Now(), SourceAppID: "app1"}
	corrected := omfkmodel.Alternative{Hypothesis: omfkmodel.HypRuFromEnLayout, Text: "привет", Score: 0.9}
	original := omfkmodel.Alternative{Hypothesis: omfkmodel.HypEnAsIs, Text: "ghbdtn", Score: 0.1}
	routed := router.Routed{Outcome: router.AutoCorrect, Decision: decisionFor(original, corrected), Target: corrected}

	p.commitAutoCorrect(token, routed)

	assert.Equal(t, "привет", host.Document)
	require.Len(t, obs.outcomes, 1)
	assert.Equal(t, router.AutoCorrect, obs.outcomes[0])
	assert.Equal(t, cycle.Armed, p.cycler.State())
	assert.Equal(t, "привет", p.cycler.Current().Alternatives[p.cycler.Current().CurrentIndex].Text)
}

func TestOnAltTapAfterAutoCorrectRestoresOriginalAndLearns(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)

	token := omfkmodel.Token{RawText: "ghbdtn", ScriptProfile: classify.ComputeScriptProfile("ghbdtn"), OriginTime: time.Now(), SourceAppID: "app1"}
	corrected := omfkmodel.Alternative{Hypothesis: omfkmodel.HypRuFromEnLayout, Text: "привет", Score: 0.9}
	original := omfkmodel.Alternative{Hypothesis: omfkmodel.HypEnAsIs, Text: "ghbdtn", Score: 0.1}
	routed := router.Routed{Outcome: router.AutoCorrect, Decision: decisionFor(original, corrected), Target: corrected}
	p.commitAutoCorrect(token, routed)
	require.Equal(t, "привет", host.Document)

	p.onAltTap("app1")

	assert.Equal(t, "ghbdtn", host.Document, "an Alt-tap back to the original must restore the raw text")

	rule, ok := p.dictionary.Lookup("ghbdtn")
	require.True(t, ok, "the first Alt-tap-to-original records pending auto-reject evidence")
	assert.Equal(t, omfkmodel.ActionNone.Kind, rule.Action.Kind)
}

// TestOnAltTapRecordsAutoRejectOnlyOncePerSession closes the gap spec
// §4.10/§9's "on the first Alt-tap ... that returns to original" wording
// calls out: a round-1->round-2 expansion can land a later tap back on
// the original alternative a second time within one continuous session
// (tap1 -> original, tap2 -> expands to the third language, tap3 ->
// wraps back to original again since the expansion guard no longer
// applies in round 2). That must count as exactly one auto-reject
// occasion, not two, or AutoRejectThreshold=2 would promote the rule to
// keep_as_is from a single session.
func TestOnAltTapRecordsAutoRejectOnlyOncePerSession(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)

	token := omfkmodel.Token{RawText: "ghbdtn", ScriptProfile: classify.ComputeScriptProfile("ghbdtn"), OriginTime: time.Now(), SourceAppID: "app1"}
	corrected := omfkmodel.Alternative{Hypothesis: omfkmodel.HypRuFromEnLayout, Text: "привет", Score: 0.9}
	original := omfkmodel.Alternative{Hypothesis: omfkmodel.HypEnAsIs, Text: "ghbdtn", Score: 0.1}
	third := omfkmodel.Alternative{Hypothesis: omfkmodel.HypHeFromEnLayout, Text: "גהבדתנ", Score: 0.5}
	decision := omfkmodel.Decision{Hypothesis: corrected.Hypothesis, Confidence: 0.9, Alternatives: []omfkmodel.Alternative{corrected, original, third}}
	routed := router.Routed{Outcome: router.AutoCorrect, Decision: decision, Target: corrected}
	p.commitAutoCorrect(token, routed)
	require.Equal(t, "привет", host.Document)

	p.onAltTap("app1") // -> original, fires the one auto-reject event
	assert.Equal(t, "ghbdtn", host.Document)

	p.onAltTap("app1") // -> expands to round 2, lands on the third language
	assert.Equal(t, "גהבדתנ", host.Document)

	p.onAltTap("app1") // wraps back to original within round 2
	assert.Equal(t, "ghbdtn", host.Document)

	rule, ok := p.dictionary.Lookup("ghbdtn")
	require.True(t, ok)
	assert.Equal(t, 1, rule.Evidence.AutoRejectCount, "a single session must record at most one auto-reject occasion, not two")
}

func TestOnAltTapManualApplyLearnsPreferHypothesis(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)

	smart := omfkmodel.Alternative{Hypothesis: omfkmodel.HypRuFromEnLayout, Text: "привет", Score: 0.6}
	langA := omfkmodel.Alternative{Hypothesis: omfkmodel.HypHeFromEnLayout, Text: "שלום", Score: 0.3}
	original := omfkmodel.Alternative{Hypothesis: omfkmodel.HypEnAsIs, Text: "ghbdtn", Score: 0.2}
	p.cycler.SeedAfterManualBuffer(smart, langA, omfkmodel.Alternative{}, original)

	p.onAltTap("app1")

	assert.Equal(t, langA.Text, host.Document, "advancing past the smart pick inserts the next alternative")

	rule, ok := p.dictionary.Lookup("ghbdtn")
	require.True(t, ok)
	assert.Equal(t, langA.Hypothesis, rule.Action.Hypothesis)
}

func TestAltTapWhileIdleIsNoop(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)

	p.handleEventSafe(hostapi.KeyEvent{Down: true, HasChar: false, ModifierMask: uint8(layout.ModifierAlt), AppID: "app1"})

	assert.Equal(t, "", host.Document, "an Alt-tap with no cycling session armed must not touch the document")
	assert.Equal(t, cycle.Idle, p.cycler.State())
}

func TestDebugLoggingToggle(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)

	assert.False(t, p.debugEnabled())
	p.SetDebugLogging(true)
	assert.True(t, p.debugEnabled())
	p.SetDebugLogging(false)
	assert.False(t, p.debugEnabled())
}

func TestRunStopsOnContextCancel(t *testing.T) {
	host := fake.NewTextHost()
	p := newTestPipeline(t, host, nil)
	events := make(chan hostapi.KeyEvent)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx, events)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
