package pii

import (
	"sort"
	"strings"
)

const (
	// MinConfidence is the exclusive acceptance threshold. Detections scoring
	// at or below it are dropped before sanitization.
	MinConfidence = 0.6

	// MaxConfidence caps every score.
	MaxConfidence = 0.98

	baseConfidence     = 0.75
	wordBonus          = 0.05
	maxLengthBonus     = 0.15
	contextBonus       = 0.05
	defaultReliability = 0.70
)

// reliability is the per-label trust placed in a recognizer label.
var reliability = map[string]float64{
	"PERSON":        0.90,
	"ORG":           0.85,
	"GPE":           0.88,
	"LOC":           0.88,
	"FAC":           0.88,
	"DATE":          0.82,
	"TIME":          0.82,
	"MONEY":         0.90,
	"CARDINAL":      0.70,
	"NUMBER":        0.70,
	"PHONE_NUMBER":  0.95,
	"EMAIL_ADDRESS": 0.90,
	"IBAN_CODE":     0.90,
	"CREDIT_CARD":   0.90,
	"IP_ADDRESS":    0.80,
}

// Reliability returns the reliability factor for a label. Unknown labels
// get 0.70.
func Reliability(label string) float64 {
	if r, ok := reliability[strings.ToUpper(strings.TrimSpace(label))]; ok {
		return r
	}
	return defaultReliability
}

// Scorer assigns deterministic confidence scores to detections.
// The zero value is ready to use.
type Scorer struct{}

// Score returns the confidence for d within doc, in [0, MaxConfidence].
func (Scorer) Score(d Detection, doc Document) float64 {
	return scoreWith(Reliability(d.Label), d, doc)
}

func scoreWith(rel float64, d Detection, doc Document) float64 {
	score := baseConfidence * rel

	lengthBonus := float64(len(strings.Fields(d.Text))) * wordBonus
	if lengthBonus > maxLengthBonus {
		lengthBonus = maxLengthBonus
	}
	score += lengthBonus

	if d.TokenStart > 0 && d.TokenEnd < doc.TokenCount() {
		score += contextBonus
	}

	if score > MaxConfidence {
		score = MaxConfidence
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Filter scores every detection, drops those at or below MinConfidence,
// assigns placeholder categories, and returns the survivors in document
// order. The input slice is not modified.
func (s Scorer) Filter(doc Document, detections []Detection) []ScoredEntity {
	out := make([]ScoredEntity, 0, len(detections))
	for _, d := range detections {
		conf := s.Score(d, doc)
		if conf <= MinConfidence {
			continue
		}
		out = append(out, ScoredEntity{
			Detection:  d,
			Confidence: conf,
			Category:   Assign(d.Label, d.Text),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].End > out[j].End
	})
	return out
}
