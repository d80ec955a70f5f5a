// Package classify implements StatisticalClassifier (an oracle ensemble
// scoring a token under each of the nine language/origin-layout
// hypotheses) and Ensemble (the procedure that turns those scores, plus
// script-profile and context signals, into a ranked Decision).
package classify

import (
	"strings"
	"unicode"

	"github.com/abadojack/whatlanggo"

	"github.com/chernistry/omfk/internal/omfkmodel"
)

// Oracle is the black-box scorer contract: given raw text, return the
// single best hypothesis tag and a confidence in [0,1]. Implementations
// must allocate once and be safe to call many times per second without
// per-call allocation in the hot path, per spec §4.3.
type Oracle interface {
	Predict(text string) (omfkmodel.Hypothesis, float32)
}

// scriptGuess classifies text purely by character set when there isn't
// enough signal for a trained model — the fallback spec §4.3 requires
// for inputs shorter than 2 code points.
func scriptGuess(text string) (omfkmodel.Hypothesis, float32) {
	profile := ComputeScriptProfile(text)
	lang, frac := profile.Dominant()
	switch lang {
	case omfkmodel.RU:
		return omfkmodel.HypRuAsIs, float32(frac) * 0.5
	case omfkmodel.HE:
		return omfkmodel.HypHeAsIs, float32(frac) * 0.5
	default:
		return omfkmodel.HypEnAsIs, float32(frac) * 0.5
	}
}

// ComputeScriptProfile counts the scalars of text by script, the shared
// signal consumed by both the classifier's fallback and the Ensemble's
// step 1.
func ComputeScriptProfile(text string) omfkmodel.ScriptProfile {
	var p omfkmodel.ScriptProfile
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Latin, r):
			p.Latin++
		case unicode.Is(unicode.Cyrillic, r):
			p.Cyrillic++
		case unicode.Is(unicode.Hebrew, r):
			p.Hebrew++
		case unicode.IsDigit(r):
			p.Digit++
		default:
			p.Other++
		}
	}
	return p
}

// NgramOracle scores text with a small embedded character-trigram
// frequency table per (language) view. It stands in for "a
// character-n-gram scorer trained over balanced monolingual corpora"
// (spec §4.3) — the corpus/training tooling itself is explicitly out of
// scope (spec §1); only the trained artifact ships, as three small
// embedded frequency tables.
type NgramOracle struct {
	trigramWeight map[omfkmodel.Language]map[string]float64
}

// NewNgramOracle builds the oracle once; its tables are immutable after
// construction so Predict never allocates beyond the trigram scan.
func NewNgramOracle() *NgramOracle {
	return &NgramOracle{trigramWeight: embeddedTrigramTables()}
}

func (o *NgramOracle) Predict(text string) (omfkmodel.Hypothesis, float32) {
	runes := []rune(normalizeForScoring(text))
	if len(runes) < 2 {
		return scriptGuess(text)
	}
	best := omfkmodel.Language("")
	bestScore := 0.0
	for lang, table := range o.trigramWeight {
		score := scoreTrigrams(runes, table)
		if score > bestScore {
			best, bestScore = lang, score
		}
	}
	if best == "" {
		// No trigram matched any table; fall back to script classification
		// rather than an arbitrary (map-iteration-order) pick.
		return scriptGuess(text)
	}
	conf := float32(clamp01(bestScore))
	switch best {
	case omfkmodel.RU:
		return omfkmodel.HypRuAsIs, conf
	case omfkmodel.HE:
		return omfkmodel.HypHeAsIs, conf
	default:
		return omfkmodel.HypEnAsIs, conf
	}
}

func scoreTrigrams(runes []rune, table map[string]float64) float64 {
	if len(runes) < 3 {
		// Too short for a trigram window; fall back to a unigram-ish
		// membership check scaled down.
		hits := 0
		for _, r := range runes {
			if _, ok := table[string(r)]; ok {
				hits++
			}
		}
		return float64(hits) / float64(len(runes)) * 0.5
	}
	total := 0.0
	count := 0
	for i := 0; i+3 <= len(runes); i++ {
		g := string(runes[i : i+3])
		total += table[g]
		count++
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// WhatlangOracle wraps whatlanggo as the "OS-provided language
// recognizer restricted to {EN, RU, HE}" from spec §4.3.
type WhatlangOracle struct {
	allow map[whatlanggo.Lang]omfkmodel.Language
}

// NewWhatlangOracle builds the restricted allow-list once.
func NewWhatlangOracle() *WhatlangOracle {
	return &WhatlangOracle{
		allow: map[whatlanggo.Lang]omfkmodel.Language{
			whatlanggo.Eng: omfkmodel.EN,
			whatlanggo.Rus: omfkmodel.RU,
			whatlanggo.Heb: omfkmodel.HE,
		},
	}
}

func (o *WhatlangOracle) Predict(text string) (omfkmodel.Hypothesis, float32) {
	if len([]rune(text)) < 2 {
		return scriptGuess(text)
	}
	info := whatlanggo.Detect(text)
	lang, ok := o.allow[info.Lang]
	if !ok {
		return scriptGuess(text)
	}
	conf := float32(clamp01(info.Confidence))
	switch lang {
	case omfkmodel.RU:
		return omfkmodel.HypRuAsIs, conf
	case omfkmodel.HE:
		return omfkmodel.HypHeAsIs, conf
	default:
		return omfkmodel.HypEnAsIs, conf
	}
}

// CompositeOracle averages a primary n-gram oracle and the OS-style
// recognizer, with a memo keyed by text that lives as long as the
// oracle, so a text already scored never re-invokes either sub-oracle
// (spec §4.4: "No hypothesis shall be evaluated more than once per
// token"). The memo is never cleared.
type CompositeOracle struct {
	primary   Oracle
	secondary Oracle
	memo      map[string][2]interface{}
}

// NewCompositeOracle builds a composite over ngram + whatlang oracles,
// both allocated once and reused.
func NewCompositeOracle() *CompositeOracle {
	return &CompositeOracle{
		primary:   NewNgramOracle(),
		secondary: NewWhatlangOracle(),
		memo:      map[string][2]interface{}{},
	}
}

func (o *CompositeOracle) Predict(text string) (omfkmodel.Hypothesis, float32) {
	if cached, ok := o.memo[text]; ok {
		return cached[0].(omfkmodel.Hypothesis), cached[1].(float32)
	}
	h1, c1 := o.primary.Predict(text)
	h2, c2 := o.secondary.Predict(text)

	var hyp omfkmodel.Hypothesis
	var conf float32
	if h1 == h2 {
		hyp, conf = h1, (c1+c2)/2
	} else if c1 >= c2 {
		hyp, conf = h1, c1
	} else {
		hyp, conf = h2, c2
	}
	o.memo[text] = [2]interface{}{hyp, conf}
	return hyp, conf
}

// normalizeForScoring lowercases text for trigram lookups without
// touching the original casing used elsewhere.
func normalizeForScoring(text string) string {
	return strings.ToLower(text)
}
