package pii

import (
	"regexp"
	"strings"
)

// Restoration reports how well the placeholders in a rewritten text matched
// the recorded originals.
type Restoration struct {
	// Restored counts placeholder occurrences replaced by an original.
	Restored int `json:"restored"`
	// Unresolved counts, per placeholder, occurrences left in the text
	// because every recorded original had already been used.
	Unresolved map[string]int `json:"unresolved,omitempty"`
	// Unused counts, per placeholder, originals the text never asked for.
	Unused map[string]int `json:"unused,omitempty"`
}

// Incomplete reports whether some placeholder occurrences were left in the
// text without an original value.
func (r Restoration) Incomplete() bool {
	return len(r.Unresolved) > 0
}

// Restore puts the originals recorded in m back into text. Each occurrence
// of a placeholder consumes the next original for that placeholder, so the
// n-th "[Name]" in text receives the n-th recorded name.
//
// Surplus occurrences stay as placeholders; values are never invented.
// Originals left over because the text dropped or merged placeholders are
// not reinserted.
func Restore(text string, m *PlaceholderMap) (string, Restoration) {
	var rep Restoration
	if !m.hasEntries() {
		return text, rep
	}

	placeholders := m.Placeholders()
	quoted := make([]string, len(placeholders))
	for i, ph := range placeholders {
		quoted[i] = regexp.QuoteMeta(ph)
	}
	re := regexp.MustCompile(strings.Join(quoted, "|"))

	next := make(map[string]int, len(placeholders))
	out := re.ReplaceAllStringFunc(text, func(ph string) string {
		originals := m.values[ph]
		i := next[ph]
		if i >= len(originals) {
			if rep.Unresolved == nil {
				rep.Unresolved = make(map[string]int)
			}
			rep.Unresolved[ph]++
			return ph
		}
		next[ph] = i + 1
		rep.Restored++
		return originals[i]
	})

	for _, ph := range placeholders {
		if left := len(m.values[ph]) - next[ph]; left > 0 {
			if rep.Unused == nil {
				rep.Unused = make(map[string]int)
			}
			rep.Unused[ph] = left
		}
	}
	return out, rep
}
