package cycle

import (
	"testing"
	"testing/quick"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernistry/omfk/internal/omfkmodel"
)

func alt(text string, hyp omfkmodel.Hypothesis) omfkmodel.Alternative {
	return omfkmodel.Alternative{Hypothesis: hyp, Text: text}
}

func TestIdleAltTapIsNoop(t *testing.T) {
	m := New()
	_, ok := m.AltTap()
	assert.False(t, ok)
}

func TestSeedAfterAutoCorrectStartsAtCorrected(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)

	assert.Equal(t, Armed, m.State())
	assert.Equal(t, "привет", m.Current().Alternatives[m.Current().CurrentIndex].Text)
	assert.True(t, m.WasAutomatic())
}

func TestAltTapReturnsToOriginalFirst(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)

	result, ok := m.AltTap()
	require.True(t, ok)
	assert.Equal(t, "ghbdtn", result.Alternative.Text)
	assert.True(t, m.IsAtOriginal())
}

func TestAltTapExpandsToThirdLanguageInsteadOfWrapping(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	third := alt("שלום", omfkmodel.HypHeFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, &third)

	_, ok := m.AltTap() // -> original (index 0)
	require.True(t, ok)
	result, ok := m.AltTap() // would wrap back to corrected, but round 1 + third available -> expand
	require.True(t, ok)

	assert.True(t, result.Expanded)
	assert.Equal(t, "שלום", result.Alternative.Text)
	assert.Equal(t, omfkmodel.RoundTwo, m.Current().Round)
}

func TestAltTapWrapsWhenNoThirdLanguage(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)

	_, _ = m.AltTap() // -> original
	result, ok := m.AltTap() // wraps back to corrected
	require.True(t, ok)
	assert.False(t, result.Expanded)
	assert.Equal(t, "привет", result.Alternative.Text)
}

func TestCancelOnKeystrokeAfterMinDuration(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)
	m.cur.StartedAt = time.Now().Add(-time.Second)

	m.CancelOnKeystroke()
	assert.Equal(t, Idle, m.State())
}

func TestCancelOnKeystrokeWithinMinDurationIsIgnored(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)

	m.CancelOnKeystroke()
	assert.Equal(t, Armed, m.State(), "a keystroke within the minimum round duration must not cancel cycling")
}

func TestFocusChangedAlwaysCancels(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)

	m.FocusChanged()
	assert.Equal(t, Idle, m.State())
}

// TestCyclingDeterminismMatchesDirectJump is the property-based test
// named in spec §8: with no third-language candidate available, the
// visible alternative list never grows, so k Alt-taps from CurrentIndex
// i0 must land on exactly (i0+k) mod |visible| — the same index a
// direct jump would compute.
func TestCyclingDeterminismMatchesDirectJump(t *testing.T) {
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)

	f := func(k uint8) bool {
		m := New()
		m.SeedAfterAutoCorrect(original, corrected, nil)
		n := len(m.Current().Alternatives)
		i0 := m.Current().CurrentIndex

		steps := int(k) % 25
		for i := 0; i < steps; i++ {
			if _, ok := m.AltTap(); !ok {
				return false
			}
		}
		want := (i0 + steps) % n
		return m.Current().CurrentIndex == want
	}
	require.NoError(t, quick.Check(f, &quick.Config{MaxCount: 200}))
}

// TestCyclingDeterminismReplaysIdentically covers the expansion case
// the direct-jump formula above excludes: once a third-language
// candidate is available, the one-time round-1->round-2 expansion grows
// the visible list mid-sequence, so the closed-form index formula no
// longer applies past the expansion tap. The weaker, still-meaningful
// property is that the same seed replayed through the same number of
// taps always reaches the same alternative — cycling has no hidden
// non-determinism (time-of-day, map iteration order, and so on).
func TestCyclingDeterminismReplaysIdentically(t *testing.T) {
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	third := alt("שלום", omfkmodel.HypHeFromEnLayout)

	replay := func(k int) (string, int, omfkmodel.CyclingRound) {
		m := New()
		m.SeedAfterAutoCorrect(original, corrected, &third)
		var result AdvanceResult
		for i := 0; i < k; i++ {
			result, _ = m.AltTap()
		}
		return result.Alternative.Text, m.Current().CurrentIndex, m.Current().Round
	}

	for k := 1; k <= 6; k++ {
		wantText, wantIdx, wantRound := replay(k)
		gotText, gotIdx, gotRound := replay(k)
		assert.Equal(t, wantText, gotText, "tap %d", k)
		assert.Equal(t, wantIdx, gotIdx, "tap %d", k)
		assert.Equal(t, wantRound, gotRound, "tap %d", k)
	}
}

func TestRetentionExpiry(t *testing.T) {
	m := New()
	original := alt("ghbdtn", omfkmodel.HypEnAsIs)
	corrected := alt("привет", omfkmodel.HypRuFromEnLayout)
	m.SeedAfterAutoCorrect(original, corrected, nil)
	m.cur.StartedAt = time.Now().Add(-61 * time.Second)

	expired := m.CheckRetentionExpiry()
	assert.True(t, expired)
	assert.Equal(t, Idle, m.State())
}
