// Package router implements ConfidenceRouter: the five ordered decision
// rules and four validation gates of spec §4.6/§4.6.1 that turn an
// Ensemble Decision, plus user-rule and context signals, into one of
// KEEP_ORIGINAL / AUTO_CORRECT / DEFER / CYCLE_ONLY.
package router

import (
	"sort"
	"unicode"
	"unicode/utf8"

	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

// Outcome tags the routed decision.
type Outcome int

const (
	KeepOriginal Outcome = iota
	AutoCorrect
	Defer
	CycleOnly
)

func (o Outcome) String() string {
	switch o {
	case KeepOriginal:
		return "KEEP_ORIGINAL"
	case AutoCorrect:
		return "AUTO_CORRECT"
	case Defer:
		return "DEFER"
	case CycleOnly:
		return "CYCLE_ONLY"
	default:
		return "UNKNOWN"
	}
}

// Routed is the router's full verdict: the outcome plus the decision it
// was computed from (possibly re-sorted by a user-rule boost) and,
// for AUTO_CORRECT, the chosen target text.
type Routed struct {
	Outcome        Outcome
	Decision       omfkmodel.Decision
	Target         omfkmodel.Alternative
	SuppressLearn  bool
}

// russianSingleLetterPrepositions is the short-word mapping spec
// §4.6 rule 4 names explicitly.
var russianSingleLetterPrepositions = map[string]string{
	"f": "а", "d": "в", "r": "к", "j": "о", "e": "у", "b": "и", "z": "я",
}

const shortWordPrepositionMinConfidence = 0.10

// Route applies the five ordered decision rules of spec §4.6 to
// decision, given an optional user rule and the token's raw text/
// length. n is the original token's length in code points (needed for
// the length-based validation gate).
func Route(decision omfkmodel.Decision, rule *omfkmodel.UserDictionaryRule, rawText string, cfg *omfkconfig.Config) Routed {
	n := utf8.RuneCountInString(rawText)

	// Rule 1: keep_as_is suppresses learning and wins outright.
	if rule != nil && rule.Action.Kind == omfkmodel.ActionKeepAsIs.Kind {
		return Routed{Outcome: KeepOriginal, Decision: decision, SuppressLearn: true}
	}

	// Rule 2: prefer_hypothesis(H) boosts H's score by 0.20 and re-sorts.
	if rule != nil && rule.Action.Kind == "prefer_hypothesis" {
		decision = boostAndResort(decision, rule.Action.Hypothesis, 0.20)
	}

	head := decision.Head()

	// Rule 3: confident + valid -> AUTO_CORRECT.
	if decision.Confidence >= cfg.Detection.AutoThreshold && passesValidationGates(rawText, head.Text, n) {
		return Routed{Outcome: AutoCorrect, Decision: decision, Target: head}
	}

	// Rule 4: defer threshold, or short-word preposition special case.
	if decision.Confidence >= cfg.Detection.DeferThreshold {
		return Routed{Outcome: Defer, Decision: decision}
	}
	if n < cfg.Heuristic.ShortWordMinLength {
		if _, ok := shortWordPrepositionMapping(rawText, cfg); ok {
			return Routed{Outcome: Defer, Decision: decision}
		}
	}

	// Rule 5: fall through.
	return Routed{Outcome: CycleOnly, Decision: decision}
}

// shortWordPrepositionMapping applies the Russian single-letter
// preposition table at a minimum confidence of 0.10, per spec §4.6
// rule 4.
func shortWordPrepositionMapping(rawText string, cfg *omfkconfig.Config) (string, bool) {
	mapped, ok := cfg.Heuristic.RussianPrepositions[rawText]
	if !ok {
		mapped, ok = russianSingleLetterPrepositions[rawText]
	}
	if !ok {
		return "", false
	}
	if cfg.Heuristic.PrepositionMinScore > shortWordPrepositionMinConfidence {
		return "", false
	}
	return mapped, true
}

func boostAndResort(decision omfkmodel.Decision, hyp omfkmodel.Hypothesis, boost float64) omfkmodel.Decision {
	alts := make([]omfkmodel.Alternative, len(decision.Alternatives))
	copy(alts, decision.Alternatives)
	for i := range alts {
		if alts[i].Hypothesis == hyp {
			alts[i].Score += boost
			if alts[i].Score > 1.0 {
				alts[i].Score = 1.0
			}
		}
	}
	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Score > alts[j].Score })
	return omfkmodel.Decision{Hypothesis: alts[0].Hypothesis, Confidence: alts[0].Score, Alternatives: alts}
}

// passesValidationGates implements spec §4.6.1's four gates (a)-(d).
func passesValidationGates(original, rewritten string, n int) bool {
	if rewritten == "" || rewritten == original {
		return false
	}
	if containsDisallowedControlChar(rewritten) {
		return false
	}
	m := utf8.RuneCountInString(rewritten)
	if float64(m) < 0.5*float64(n) || float64(m) > 2.0*float64(n) {
		return false
	}
	if isPureDuplication(original, rewritten) {
		return false
	}
	return true
}

// containsDisallowedControlChar rejects U+0000-U+001F and U+007F other
// than permitted whitespace (tab, newline).
func containsDisallowedControlChar(s string) bool {
	for _, r := range s {
		if r == '\t' || r == '\n' {
			continue
		}
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}

// isPureDuplication rejects a rewrite that is just the original
// repeated (e.g. "abab" from "ab"), a degenerate case distinct from
// "equal to original" (already checked above).
func isPureDuplication(original, rewritten string) bool {
	if original == "" {
		return false
	}
	if len(rewritten)%len(original) != 0 {
		return false
	}
	repeats := len(rewritten) / len(original)
	if repeats < 2 {
		return false
	}
	expected := ""
	for i := 0; i < repeats; i++ {
		expected += original
	}
	return expected == rewritten
}
