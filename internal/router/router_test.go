package router

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

func decisionWith(confidence float64, hyp omfkmodel.Hypothesis, text string) omfkmodel.Decision {
	return omfkmodel.Decision{
		Hypothesis: hyp, Confidence: confidence,
		Alternatives: []omfkmodel.Alternative{{Hypothesis: hyp, Text: text, Score: confidence}},
	}
}

func TestRouteKeepAsIsRuleWins(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	rule := &omfkmodel.UserDictionaryRule{Action: omfkmodel.ActionKeepAsIs}
	routed := Route(decisionWith(0.95, omfkmodel.HypRuFromEnLayout, "привет"), rule, "ghbdtn", cfg)
	assert.Equal(t, KeepOriginal, routed.Outcome)
	assert.True(t, routed.SuppressLearn)
}

func TestRoutePreferHypothesisBoosts(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	decision := omfkmodel.Decision{
		Hypothesis: omfkmodel.HypEnAsIs,
		Confidence: 0.5,
		Alternatives: []omfkmodel.Alternative{
			{Hypothesis: omfkmodel.HypEnAsIs, Text: "ytn", Score: 0.5},
			{Hypothesis: omfkmodel.HypRuFromEnLayout, Text: "нет", Score: 0.4},
		},
	}
	rule := &omfkmodel.UserDictionaryRule{Action: omfkmodel.ActionPreferHypothesis(omfkmodel.HypRuFromEnLayout)}
	routed := Route(decision, rule, "ytn", cfg)
	assert.Equal(t, omfkmodel.HypRuFromEnLayout, routed.Decision.Hypothesis, "boosted hypothesis should win the re-sort")
}

func TestRouteAutoCorrectAboveThreshold(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.90, omfkmodel.HypRuFromEnLayout, "привет"), nil, "ghbdtn", cfg)
	assert.Equal(t, AutoCorrect, routed.Outcome)
	assert.Equal(t, "привет", routed.Target.Text)
}

func TestRouteDeferBetweenThresholds(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.5, omfkmodel.HypRuFromEnLayout, "привет"), nil, "ghbdtn", cfg)
	assert.Equal(t, Defer, routed.Outcome)
}

func TestRouteCycleOnlyBelowDeferThreshold(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.2, omfkmodel.HypRuFromEnLayout, "xyz"), nil, "xyzxyz", cfg)
	assert.Equal(t, CycleOnly, routed.Outcome)
}

func TestRouteValidationGateRejectsIdenticalText(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.95, omfkmodel.HypEnAsIs, "same"), nil, "same", cfg)
	assert.NotEqual(t, AutoCorrect, routed.Outcome, "identical rewrite must fail the validation gate")
}

func TestRouteValidationGateRejectsLengthOutOfBounds(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.95, omfkmodel.HypEnAsIs, "waytoolongrewriteforatinyinputword"), nil, "ab", cfg)
	assert.NotEqual(t, AutoCorrect, routed.Outcome)
}

func TestRouteValidationGateRejectsControlChars(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.95, omfkmodel.HypEnAsIs, "bad\x00text"), nil, "badxtext", cfg)
	assert.NotEqual(t, AutoCorrect, routed.Outcome)
}

func TestRouteValidationGateRejectsPureDuplication(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	routed := Route(decisionWith(0.95, omfkmodel.HypEnAsIs, "abab"), nil, "ab", cfg)
	assert.NotEqual(t, AutoCorrect, routed.Outcome)
}

func TestRouteShortWordPrepositionDefers(t *testing.T) {
	cfg := omfkconfig.DefaultConfig()
	decision := omfkmodel.Decision{
		Hypothesis:   omfkmodel.HypEnAsIs,
		Confidence:   0.05,
		Alternatives: []omfkmodel.Alternative{{Hypothesis: omfkmodel.HypEnAsIs, Text: "f", Score: 0.05}},
	}
	routed := Route(decision, nil, "f", cfg)
	assert.Equal(t, Defer, routed.Outcome, "the Russian single-letter preposition table should force a defer")
}
