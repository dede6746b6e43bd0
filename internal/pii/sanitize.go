package pii

import (
	"encoding/json"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

// PlaceholderMap records, for each placeholder token, the original values it
// replaced in document order. Placeholders are shared by every entity of a
// category, so restoration consumes originals positionally.
//
// A PlaceholderMap is built once by Sanitize and is read-only afterwards; it
// is safe for concurrent readers.
type PlaceholderMap struct {
	order    []string
	values   map[string][]string
	literals int
}

func newPlaceholderMap() *PlaceholderMap {
	return &PlaceholderMap{values: make(map[string][]string)}
}

func (m *PlaceholderMap) add(placeholder, original string) {
	if _, ok := m.values[placeholder]; !ok {
		m.order = append(m.order, placeholder)
	}
	m.values[placeholder] = append(m.values[placeholder], original)
}

// addLiterals records every placeholder token in s as its own original.
func (m *PlaceholderMap) addLiterals(s string) {
	for _, ph := range literalPlaceholders.FindAllString(s, -1) {
		m.add(ph, ph)
		m.literals++
	}
}

// Placeholders returns the recorded placeholder tokens in first-seen order.
func (m *PlaceholderMap) Placeholders() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Originals returns the originals recorded for placeholder, in document order.
func (m *PlaceholderMap) Originals(placeholder string) []string {
	if m == nil {
		return nil
	}
	vals := m.values[placeholder]
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Len returns the number of substitutions recorded. Placeholder tokens that
// were already in the input are not substitutions and are not counted.
func (m *PlaceholderMap) Len() int {
	if m == nil {
		return 0
	}
	n := 0
	for _, v := range m.values {
		n += len(v)
	}
	return n - m.literals
}

// IsEmpty reports whether no substitution was recorded.
func (m *PlaceholderMap) IsEmpty() bool {
	return m.Len() == 0
}

// hasEntries reports whether Restore has anything to match, substitutions or
// placeholder tokens carried over from the input.
func (m *PlaceholderMap) hasEntries() bool {
	return m != nil && len(m.order) > 0
}

// MarshalJSON encodes the map as {"[Name]": ["John Smith", ...], ...}.
func (m *PlaceholderMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m.values)
}

// region is a byte range about to be replaced by a placeholder. entity is the
// entity that decided its category, widened to the whole region.
type region struct {
	start  int
	end    int
	entity ScoredEntity
}

// literalPlaceholders matches placeholder tokens already present in input.
var literalPlaceholders = func() *regexp.Regexp {
	quoted := make([]string, len(Categories))
	for i, c := range Categories {
		quoted[i] = regexp.QuoteMeta(c.Placeholder())
	}
	return regexp.MustCompile(strings.Join(quoted, "|"))
}()

// Sanitize replaces exactly the spans of entities in text with their
// placeholder tokens and returns the sanitized text plus the map needed to
// restore the originals.
//
// Substitution works on byte offsets, never on surface strings: identical
// text elsewhere in the document is left untouched. Entities are applied in
// descending start order. When two spans overlap, the one reached later in
// that pass (the one starting earlier) decides the category and the replaced
// region covers both spans.
//
// Placeholder tokens already present outside every entity span are recorded
// as their own originals so that Restore stays aligned with document order.
func Sanitize(text string, entities []ScoredEntity) (string, *PlaceholderMap) {
	sanitized, m, _ := SanitizeEntities(text, entities)
	return sanitized, m
}

// SanitizeEntities is Sanitize that also returns the entities actually
// substituted, in document order. An entity that absorbed overlapping spans
// is reported with the merged offsets and text; the entities it absorbed and
// entities whose offsets could not be applied are left out.
func SanitizeEntities(text string, entities []ScoredEntity) (string, *PlaceholderMap, []ScoredEntity) {
	valid := validEntities(text, entities)
	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Start != valid[j].Start {
			return valid[i].Start > valid[j].Start
		}
		return valid[i].End < valid[j].End
	})

	// kept is ordered by descending start; the last element always has the
	// smallest start seen so far.
	kept := make([]region, 0, len(valid))
	for _, e := range valid {
		r := region{start: e.Start, end: e.End, entity: e}
		for len(kept) > 0 && r.end > kept[len(kept)-1].start {
			prev := kept[len(kept)-1]
			log.Warn().
				Int("start", r.start).
				Int("end", r.end).
				Int("overlapped_start", prev.start).
				Int("overlapped_end", prev.end).
				Str("category", string(r.entity.Category)).
				Msg("pii_overlapping_spans_merged")
			if prev.end > r.end {
				r.end = prev.end
				r.entity.TokenEnd = prev.entity.TokenEnd
			}
			kept = kept[:len(kept)-1]
		}
		kept = append(kept, r)
	}

	m := newPlaceholderMap()
	applied := make([]ScoredEntity, 0, len(kept))
	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for i := len(kept) - 1; i >= 0; i-- {
		r := kept[i]
		m.addLiterals(text[cursor:r.start])
		b.WriteString(text[cursor:r.start])
		ph := r.entity.Category.Placeholder()
		b.WriteString(ph)
		m.add(ph, text[r.start:r.end])
		cursor = r.end

		e := r.entity
		e.Start, e.End, e.Text = r.start, r.end, text[r.start:r.end]
		applied = append(applied, e)
	}
	m.addLiterals(text[cursor:])
	b.WriteString(text[cursor:])
	return b.String(), m, applied
}

// validEntities drops entities whose offsets cannot be applied to text:
// out of range, empty, splitting a UTF-8 sequence, disagreeing with the
// reported surface text, or already a placeholder token.
func validEntities(text string, entities []ScoredEntity) []ScoredEntity {
	out := make([]ScoredEntity, 0, len(entities))
	for _, e := range entities {
		if e.Start < 0 || e.End > len(text) || e.Start >= e.End {
			log.Warn().Int("start", e.Start).Int("end", e.End).Int("text_len", len(text)).Msg("pii_span_out_of_range")
			continue
		}
		if !onRuneBoundary(text, e.Start) || !onRuneBoundary(text, e.End) {
			log.Warn().Int("start", e.Start).Int("end", e.End).Msg("pii_span_splits_rune")
			continue
		}
		surface := text[e.Start:e.End]
		if e.Text != "" && e.Text != surface {
			log.Warn().Int("start", e.Start).Int("end", e.End).Str("label", e.Label).Msg("pii_span_text_mismatch")
			continue
		}
		if IsPlaceholder(surface) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func onRuneBoundary(s string, i int) bool {
	return i == 0 || i == len(s) || utf8.RuneStart(s[i])
}
