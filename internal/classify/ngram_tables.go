package classify

import "github.com/chernistry/omfk/internal/omfkmodel"

// embeddedTrigramTables returns small, hand-curated character-trigram
// weight tables for EN/RU/HE. These stand in for a corpus-trained model
// (the corpus-generation and model-training tooling is explicitly out
// of scope per spec §1); the tables are intentionally tiny, enough to
// separate the three scripts' common trigrams in unit tests and to
// demonstrate the Oracle contract.
func embeddedTrigramTables() map[omfkmodel.Language]map[string]float64 {
	return map[omfkmodel.Language]map[string]float64{
		omfkmodel.EN: {
			"the": 1.0, "ing": 0.9, "and": 0.9, "tio": 0.7, "ent": 0.7,
			"for": 0.6, "thi": 0.6, "ver": 0.5, "all": 0.5, "you": 0.6,
		},
		omfkmodel.RU: {
			"при": 1.0, "ств": 0.9, "ени": 0.9, "ост": 0.7, "ого": 0.7,
			"ать": 0.6, "что": 0.8, "как": 0.6, "его": 0.6, "для": 0.6,
		},
		omfkmodel.HE: {
			"שלו": 1.0, "של ": 0.8, "את ": 0.8, "הוא": 0.7, "היא": 0.7,
			"לא ": 0.6, "גם ": 0.5, "זה ": 0.6, "כל ": 0.5, "עם ": 0.5,
		},
	}
}
