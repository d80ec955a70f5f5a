package layout

import (
	"strings"

	"github.com/chernistry/omfk/internal/omfkmodel"
)

// Transliterator rewrites text typed under one layout as if another
// layout had been active, per spec §4.2. It is deterministic and O(|T|)
// because Tables pre-builds a rune→position reverse index at load time.
type Transliterator struct {
	tables *Tables
}

// NewTransliterator builds a Transliterator over the given tables.
func NewTransliterator(tables *Tables) *Transliterator {
	return &Transliterator{tables: tables}
}

// Transliterate produces the text the user would have typed had target
// been the active layout while typing text under source. It returns
// (rewritten, true) if at least one character was actually remapped, or
// (text, false) if nothing changed — the idiomatic stand-in for
// Option<str>, per spec's contract.
func (tr *Transliterator) Transliterate(text string, source, target omfkmodel.LayoutID) (string, bool) {
	var out strings.Builder
	changed := false

	for _, c := range text {
		pos, ok := tr.tables.positionOf(source, c)
		if !ok {
			// Unmappable characters (digits, space, most punctuation)
			// pass through unchanged; the transliterator never fails.
			out.WriteRune(c)
			continue
		}
		repl, ok := tr.tables.Lookup(target, pos.key, pos.mod)
		if !ok {
			out.WriteRune(c)
			continue
		}
		repl = preserveHebrewFinalForm(c, repl)
		out.WriteString(repl)
		if repl != string(c) {
			changed = true
		}
	}

	result := out.String()
	if result == text {
		return text, false
	}
	return result, changed
}

// preserveHebrewFinalForm keeps a source final-form letter final even
// when the emitted key maps to the medial form in the target layout,
// per spec §4.2 ("Hebrew final forms: ... preserve the final form from
// the source layout as-is").
func preserveHebrewFinalForm(source rune, emitted string) string {
	for medial, final := range finalForms {
		if source == final {
			// source was already a final form; if emitted resolved to
			// the medial counterpart, swap it back to final.
			if emitted == string(medial) {
				return string(final)
			}
		}
	}
	return emitted
}
