package classify

import (
	"sort"

	"github.com/chernistry/omfk/internal/layout"
	"github.com/chernistry/omfk/internal/omfkconfig"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

// Context carries the recent-usage bias Ensemble applies in step 4.
type Context struct {
	// LastLanguage is the language of the most recently corrected or
	// confirmed token, or "" if none.
	LastLanguage omfkmodel.Language
}

// candidatePair names one (origin layout, target language) rewrite the
// Ensemble is willing to evaluate for a given script profile.
type candidatePair struct {
	hyp    omfkmodel.Hypothesis
	origin omfkmodel.LayoutID
	target omfkmodel.Language
}

var allFromLayoutHypotheses = []omfkmodel.Hypothesis{
	omfkmodel.HypRuFromEnLayout, omfkmodel.HypHeFromEnLayout,
	omfkmodel.HypEnFromRuLayout, omfkmodel.HypHeFromRuLayout,
	omfkmodel.HypEnFromHeLayout, omfkmodel.HypRuFromHeLayout,
}

// Ensemble assembles a ranked Decision from the StatisticalClassifier,
// script-profile heuristics, length gating, and recent-context bias,
// per spec §4.4.
type Ensemble struct {
	oracle          Oracle
	transliterator  *layout.Transliterator
	cfg             *omfkconfig.Config
}

// NewEnsemble builds an Ensemble over a shared oracle and transliterator
// (both allocated once by the caller and reused across calls, per spec).
func NewEnsemble(oracle Oracle, transliterator *layout.Transliterator, cfg *omfkconfig.Config) *Ensemble {
	return &Ensemble{oracle: oracle, transliterator: transliterator, cfg: cfg}
}

// Classify runs the full Ensemble procedure over token, returning a
// Decision whose Alternatives are sorted by descending score and whose
// head corresponds to Decision.Hypothesis.
func (e *Ensemble) Classify(token omfkmodel.Token, ctx Context) omfkmodel.Decision {
	text := token.RawText
	n := token.Length()
	profile := token.ScriptProfile

	// Step 1: script profile bias.
	dominantLang, frac := profile.Dominant()
	scriptBoost := 0.0
	if frac >= e.cfg.Scoring.DominantScriptFraction {
		scriptBoost = e.cfg.Scoring.DominantScriptBoost
	}

	// Step 2: as-is score.
	asIsHyp, asIsConf := e.oracle.Predict(text)

	alts := []omfkmodel.Alternative{{Hypothesis: asIsHyp, Text: text, Score: float64(asIsConf)}}

	// Step 5: length gating — reject from-layout hypotheses for n < 3.
	if n >= e.cfg.Heuristic.ShortWordMinLength {
		// Step 3: hypothesis rewrites, bounded to at most six, filtered
		// by script-profile plausibility.
		for _, cand := range plausibleCandidates(profile, dominantLang) {
			rewritten, changed := e.transliterator.Transliterate(text, cand.origin, cand.target.CanonicalLayout())
			if !changed {
				continue
			}
			hypConf := scoreRewrite(e.oracle, rewritten, cand.hyp)
			alts = append(alts, omfkmodel.Alternative{Hypothesis: cand.hyp, Text: rewritten, Score: hypConf})
			if len(alts)-1 >= e.cfg.Scoring.MaxHypothesisRewrites {
				break
			}
		}
	}

	// Apply script-profile bias and step-4 context bias uniformly.
	for i := range alts {
		if alts[i].Hypothesis.Language() == dominantLang {
			alts[i].Score += scriptBoost
		}
		if ctx.LastLanguage != "" && alts[i].Hypothesis.Language() == ctx.LastLanguage {
			alts[i].Score += e.cfg.Correction.ContextBoost
		}
		if alts[i].Score > 1.0 {
			alts[i].Score = 1.0
		}
	}

	sort.SliceStable(alts, func(i, j int) bool { return alts[i].Score > alts[j].Score })

	if n < e.cfg.Heuristic.ShortWordMinLength {
		head := alts[0]
		if head.Score > 0.5 {
			head.Score = 0.5
		}
		return omfkmodel.Decision{Hypothesis: head.Hypothesis, Confidence: head.Score, Alternatives: []omfkmodel.Alternative{head}}
	}

	return omfkmodel.Decision{Hypothesis: alts[0].Hypothesis, Confidence: alts[0].Score, Alternatives: alts}
}

// plausibleCandidates returns the from-layout hypotheses worth
// evaluating given a token's script profile: a pure-Latin token only
// considers non-EN targets (EN as-is is already covered by step 2), and
// likewise for pure-Cyrillic/Hebrew tokens.
func plausibleCandidates(profile omfkmodel.ScriptProfile, dominant omfkmodel.Language) []candidatePair {
	var out []candidatePair
	add := func(hyp omfkmodel.Hypothesis) {
		out = append(out, candidatePair{hyp: hyp, origin: hyp.OriginLayout(), target: hyp.Language()})
	}
	switch dominant {
	case omfkmodel.EN:
		add(omfkmodel.HypRuFromEnLayout)
		add(omfkmodel.HypHeFromEnLayout)
	case omfkmodel.RU:
		add(omfkmodel.HypEnFromRuLayout)
		add(omfkmodel.HypHeFromRuLayout)
	case omfkmodel.HE:
		add(omfkmodel.HypEnFromHeLayout)
		add(omfkmodel.HypRuFromHeLayout)
	default:
		out = append(out, candidatePair{hyp: allFromLayoutHypotheses[0], origin: allFromLayoutHypotheses[0].OriginLayout(), target: allFromLayoutHypotheses[0].Language()})
	}
	return out
}

func scoreRewrite(oracle Oracle, rewritten string, expect omfkmodel.Hypothesis) float64 {
	hyp, conf := oracle.Predict(rewritten)
	if hyp.Language() == expect.Language() {
		return float64(conf)
	}
	// The oracle disagrees about the rewritten text's language; trust it
	// but discount, since the rewrite's target language didn't win.
	return float64(conf) * 0.5
}
