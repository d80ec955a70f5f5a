// Package layout implements LayoutTables (bidirectional character maps
// per layout/key/modifier) and LayoutTransliterator (rewriting a token
// across layouts). Table data loads from a bundled YAML file; a minimal
// embedded fallback covers en_us/ru_pc/he_standard so the system boots
// even with a corrupt data file, per spec §4.1.
package layout

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/chernistry/omfk/internal/korerr"
	"github.com/chernistry/omfk/internal/korlog"
	"github.com/chernistry/omfk/internal/omfkmodel"
)

// KeyCode identifies a physical key, independent of layout.
type KeyCode uint8

// Modifier is a bitmask of active modifier keys.
type Modifier uint8

// Modifier bit values, named individually for clarity at call sites.
const (
	ModifierNone      Modifier = 0
	ModifierShift     Modifier = 1
	ModifierAlt       Modifier = 2
	ModifierShiftAlt  Modifier = ModifierShift | ModifierAlt
)

// PhysicalKeyCount is the number of physical keys every documented
// layout must cover under the base and shift modifiers (spec §4.1).
const PhysicalKeyCount = 47

type position struct {
	key KeyCode
	mod Modifier
}

// layoutData is the YAML shape of the bundled layout data file (spec §6).
type layoutData struct {
	SchemaVersion  int                            `yaml:"schema_version"`
	Layouts        map[string]layoutMeta          `yaml:"layouts"`
	LayoutAliases  map[string]string              `yaml:"layout_aliases"`
	Keys           []keyMeta                      `yaml:"keys"`
	Map            map[KeyCode]map[string]keyMods `yaml:"map"`
}

type layoutMeta struct {
	Name     string `yaml:"name"`
	Platform string `yaml:"platform"`
	Note     string `yaml:"note,omitempty"`
}

type keyMeta struct {
	Code        KeyCode `yaml:"code"`
	QwertyLabel string  `yaml:"qwerty_label"`
}

type keyMods struct {
	N  *string `yaml:"n"`
	S  *string `yaml:"s"`
	A  *string `yaml:"a,omitempty"`
	SA *string `yaml:"sa,omitempty"`
}

// finalForms maps a Hebrew medial letter to its word-final form, used to
// preserve final forms through transliteration (spec §4.2).
var finalForms = map[rune]rune{
	'כ': 'ך',
	'מ': 'ם',
	'נ': 'ן',
	'פ': 'ף',
	'צ': 'ץ',
}

// Tables holds every loaded layout's lookup and reverse-lookup maps.
type Tables struct {
	aliases      map[omfkmodel.LayoutID]omfkmodel.LayoutID
	lookup       map[omfkmodel.LayoutID]map[position]string
	charToPos    map[omfkmodel.LayoutID]map[rune]position
	knownLayouts []omfkmodel.LayoutID
}

// Lookup returns the character(s) layout would produce for (key, mod).
func (t *Tables) Lookup(layout omfkmodel.LayoutID, key KeyCode, mod Modifier) (string, bool) {
	layout = t.Canonicalize(layout)
	m, ok := t.lookup[layout]
	if !ok {
		return "", false
	}
	s, ok := m[position{key: key, mod: mod}]
	return s, ok
}

// Canonicalize chases the alias chain to a canonical LayoutID, guarding
// against a cycle by bounding the chase to the number of known layouts.
func (t *Tables) Canonicalize(id omfkmodel.LayoutID) omfkmodel.LayoutID {
	seen := 0
	for {
		next, ok := t.aliases[id]
		if !ok || next == id {
			return id
		}
		id = next
		seen++
		if seen > len(t.knownLayouts)+1 {
			korlog.Default().Warn("layout alias cycle detected", korlog.Fields{"layout": string(id)})
			return id
		}
	}
}

// positionOf finds where rune r sits in layout's table, for use by the
// transliterator's reverse index.
func (t *Tables) positionOf(layout omfkmodel.LayoutID, r rune) (position, bool) {
	layout = t.Canonicalize(layout)
	m, ok := t.charToPos[layout]
	if !ok {
		return position{}, false
	}
	p, ok := m[r]
	return p, ok
}

// LoadLayoutData reads the layout data file at path. On any error it
// falls back to the embedded minimal tables and returns a
// ConfigurationMissing error so the caller can log it once.
func LoadLayoutData(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return EmbeddedTables(), korerr.Wrap(korerr.ConfigurationMissing, err, "read layout data file")
	}
	var raw layoutData
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return EmbeddedTables(), korerr.Wrap(korerr.ConfigurationMissing, err, "parse layout data file")
	}
	tables, err := buildTables(raw)
	if err != nil {
		return EmbeddedTables(), err
	}
	return tables, nil
}

func buildTables(raw layoutData) (*Tables, error) {
	t := &Tables{
		aliases:   map[omfkmodel.LayoutID]omfkmodel.LayoutID{},
		lookup:    map[omfkmodel.LayoutID]map[position]string{},
		charToPos: map[omfkmodel.LayoutID]map[rune]position{},
	}
	for from, to := range raw.LayoutAliases {
		t.aliases[omfkmodel.LayoutID(from)] = omfkmodel.LayoutID(to)
	}
	for id := range raw.Layouts {
		t.knownLayouts = append(t.knownLayouts, omfkmodel.LayoutID(id))
		t.lookup[omfkmodel.LayoutID(id)] = map[position]string{}
		t.charToPos[omfkmodel.LayoutID(id)] = map[rune]position{}
	}

	// Validate base/shift coverage for every documented layout (spec §4.1:
	// missing n or s for a key in a documented layout is a load-time
	// validation error).
	for keyCode, perLayout := range raw.Map {
		for layoutID, mods := range perLayout {
			id := omfkmodel.LayoutID(layoutID)
			if _, known := raw.Layouts[layoutID]; !known {
				continue
			}
			if mods.N == nil || mods.S == nil {
				return nil, korerr.Newf(korerr.ConfigurationMissing,
					"layout %s missing base/shift mapping for key %d", layoutID, keyCode)
			}
			assign := func(mod Modifier, val *string) {
				if val == nil {
					return
				}
				pos := position{key: keyCode, mod: mod}
				t.lookup[id][pos] = *val
				for _, r := range *val {
					t.charToPos[id][r] = pos
					break // only the first rune anchors reverse lookup
				}
			}
			assign(ModifierNone, mods.N)
			assign(ModifierShift, mods.S)
			assign(ModifierAlt, mods.A)
			assign(ModifierShiftAlt, mods.SA)
		}
	}
	for _, id := range t.knownLayouts {
		covered := 0
		for pos := range t.lookup[id] {
			if pos.mod == ModifierNone {
				covered++
			}
		}
		if covered < PhysicalKeyCount {
			return nil, korerr.Newf(korerr.ConfigurationMissing,
				"layout %s maps %d of %d physical keys", id, covered, PhysicalKeyCount)
		}
	}
	return t, nil
}

// EmbeddedTables returns the minimal built-in fallback covering en_us,
// ru_pc, and he_standard. It is intentionally small: just enough Latin
// letters, Cyrillic letters, and Hebrew letters (with final forms) for
// the three canonical layouts to transliterate between each other.
func EmbeddedTables() *Tables {
	t := &Tables{
		aliases: map[omfkmodel.LayoutID]omfkmodel.LayoutID{
			"ru": "ru_pc",
			"he": "he_standard",
			"en": "en_us",
		},
		lookup:       map[omfkmodel.LayoutID]map[position]string{},
		charToPos:    map[omfkmodel.LayoutID]map[rune]position{},
		knownLayouts: []omfkmodel.LayoutID{"en_us", "ru_pc", "he_standard"},
	}
	for _, id := range t.knownLayouts {
		t.lookup[id] = map[position]string{}
		t.charToPos[id] = map[rune]position{}
	}

	// QWERTY row order shared by all three embedded layouts; key codes
	// are positional (0-based across the alphabetic rows), not scancodes.
	type row struct {
		en, ru, he string
	}
	rows := []row{
		{"qwertyuiop", "йцукенгшщз", "/'קראטוןםפ"},
		{"asdfghjkl", "фывапролд", "שדגכעיחלך"},
		{"zxcvbnm", "ячсмитьб", "זסבהנמצ"},
	}
	code := KeyCode(0)
	for _, r := range rows {
		enRunes, ruRunes, heRunes := []rune(r.en), []rune(r.ru), []rune(r.he)
		n := len(enRunes)
		for i := 0; i < n; i++ {
			assignEmbedded(t, "en_us", code, enRunes[i])
			if i < len(ruRunes) {
				assignEmbedded(t, "ru_pc", code, ruRunes[i])
			}
			if i < len(heRunes) {
				assignEmbedded(t, "he_standard", code, heRunes[i])
			}
			code++
		}
	}
	return t
}

func assignEmbedded(t *Tables, id omfkmodel.LayoutID, key KeyCode, lower rune) {
	pos := position{key: key, mod: ModifierNone}
	t.lookup[id][pos] = string(lower)
	t.charToPos[id][lower] = pos

	upperStr := string(upperOf(lower))
	posShift := position{key: key, mod: ModifierShift}
	t.lookup[id][posShift] = upperStr
	for _, r := range upperStr {
		t.charToPos[id][r] = posShift
	}
}

func upperOf(r rune) rune {
	upper := r
	switch {
	case r >= 'a' && r <= 'z':
		upper = r - ('a' - 'A')
	case r >= 'а' && r <= 'я':
		upper = r - ('а' - 'А')
	}
	return upper
}
