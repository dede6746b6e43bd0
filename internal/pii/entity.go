// Package pii holds the detection-and-sanitization core: confidence scoring,
// placeholder assignment, offset-exact substitution, and positional
// restoration of original values into rewritten text.
//
// Everything in this package is pure. Recognizers and rewrite providers live
// elsewhere and hand their results in as plain values.
package pii

import "sort"

// Detection is a raw entity as reported by a recognizer.
// Start and End are byte offsets into the source text (half-open).
// TokenStart and TokenEnd are token indices (half-open) in the document's
// tokenization.
type Detection struct {
	Text       string `json:"text"`
	Label      string `json:"label"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	TokenStart int    `json:"token_start"`
	TokenEnd   int    `json:"token_end"`
}

// Span is a half-open byte range.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Document is the analysed text together with the token boundaries the
// recognizer used. Positional confidence is measured against these tokens.
type Document struct {
	Text   string
	Tokens []Span
}

// TokenCount returns the number of tokens in the document.
func (d Document) TokenCount() int {
	return len(d.Tokens)
}

// TokenSpan maps a byte range onto token indices. Tokens that intersect the
// range are included. A range that touches no token maps to an empty span at
// the first token after it.
func (d Document) TokenSpan(start, end int) (int, int) {
	first := sort.Search(len(d.Tokens), func(i int) bool { return d.Tokens[i].End > start })
	last := first
	for last < len(d.Tokens) && d.Tokens[last].Start < end {
		last++
	}
	return first, last
}

// ScoredEntity is a Detection that survived confidence filtering, together
// with its confidence and placeholder category.
type ScoredEntity struct {
	Detection
	Confidence float64  `json:"confidence"`
	Category   Category `json:"category"`
}

// Placeholder returns the placeholder token substituted for this entity.
func (e ScoredEntity) Placeholder() string {
	return e.Category.Placeholder()
}
