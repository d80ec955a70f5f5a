package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

func newTestEnsemble() *Ensemble {
	tables := layout.EmbeddedTables()
	tr := layout.NewTransliterator(tables)
	oracle := NewCompositeOracle()
	cfg := omfkconfig.DefaultConfig()
	return NewEnsemble(oracle, tr, cfg)
}

func tokenFor(text string) omfkmodel.Token {
	return omfkmodel.Token{RawText: text, ScriptProfile: ComputeScriptProfile(text), OriginTime: time.Now()}
}

func TestEnsemblePrefersRussianFromEnLayout(t *testing.T) {
	e := newTestEnsemble()
	d := e.Classify(tokenFor("ghbdtn"), Context{})
	require.NotEmpty(t, d.Alternatives)
	assert.Equal(t, omfkmodel.HypRuFromEnLayout, d.Hypothesis)
	assert.Equal(t, "привет", d.Head().Text)
}

func TestEnsembleShortTokenGated(t *testing.T) {
	e := newTestEnsemble()
	d := e.Classify(tokenFor("ый"), Context{})
	assert.LessOrEqual(t, d.Confidence, 0.5)
	for _, a := range d.Alternatives {
		assert.True(t, a.Hypothesis.IsAsIs(), "short tokens must reject from-layout hypotheses")
	}
}

func TestEnsembleContextBoostPrefersLastLanguage(t *testing.T) {
	e := newTestEnsemble()
	withoutCtx := e.Classify(tokenFor("ytn"), Context{})
	withCtx := e.Classify(tokenFor("ytn"), Context{LastLanguage: omfkmodel.RU})

	var ruScoreNoCtx, ruScoreCtx float64
	for _, a := range withoutCtx.Alternatives {
		if a.Hypothesis.Language() == omfkmodel.RU {
			ruScoreNoCtx = a.Score
		}
	}
	for _, a := range withCtx.Alternatives {
		if a.Hypothesis.Language() == omfkmodel.RU {
			ruScoreCtx = a.Score
		}
	}
	assert.GreaterOrEqual(t, ruScoreCtx, ruScoreNoCtx)
}

// TestScriptDeterminism is the property-based test named in spec §8:
// a token with >= 80% of one script and length >= 3 must have the
// Ensemble's highest-language match equal that script's language.
func TestScriptDeterminism(t *testing.T) {
	e := newTestEnsemble()
	cases := []struct {
		text string
		lang omfkmodel.Language
	}{
		{"привет", omfkmodel.RU},
		{"hello", omfkmodel.EN},
	}
	for _, c := range cases {
		d := e.Classify(tokenFor(c.text), Context{})
		assert.Equal(t, c.lang, d.Hypothesis.Language(), "text=%s", c.text)
	}
}
