package recognizer

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dativo-io/cloak/patterns"
)

// RecognizerFile is the top-level YAML structure of a pattern file. It
// follows Presidio's recognizer registry format.
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig mirrors Presidio's YAML recognizer schema plus a
// validate extension naming a hard check applied to every match.
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	// Validate is one of "", "luhn", "iban" or "phone".
	Validate string `yaml:"validate,omitempty" json:"validate,omitempty"`
}

// PatternConfig is a single regex pattern within a recognizer.
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext holds context words for a specific language.
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

func (r *RecognizerConfig) contextWords() []string {
	var words []string
	for _, l := range r.SupportedLanguages {
		words = append(words, l.Context...)
	}
	return words
}

// compiledPattern is one regex of one recognizer, ready to run.
type compiledPattern struct {
	recognizer   string
	label        string
	re           *regexp.Regexp
	score        float64
	contextWords []string
	validator    validator
}

// ParseRecognizerFile parses recognizer YAML.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a pattern file from disk. A missing
// file yields nil without error.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// DefaultRecognizers returns the recognizers embedded in patterns/pii.yaml.
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(patterns.PIIYAML())
	if err != nil {
		return nil, fmt.Errorf("parsing embedded patterns: %w", err)
	}
	return rf.Recognizers, nil
}

// MergeRecognizers layers recognizer lists. A later entry replaces an
// earlier one with the same Name; new names are appended.
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig
	for _, layer := range layers {
		for _, rc := range layer {
			if idx, ok := index[rc.Name]; ok {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// FilterByEntities keeps only recognizers whose supported entity is in
// enabled (when non-empty) and not in disabled.
func FilterByEntities(recognizers []RecognizerConfig, enabled, disabled []string) []RecognizerConfig {
	allowed := toSet(enabled)
	blocked := toSet(disabled)
	var out []RecognizerConfig
	for _, r := range recognizers {
		if len(allowed) > 0 && !allowed[r.SupportedEntity] {
			continue
		}
		if blocked[r.SupportedEntity] {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, s := range items {
		set[s] = true
	}
	return set
}

// compilePatterns turns enabled recognizers into runtime patterns.
func compilePatterns(recognizers []RecognizerConfig, phoneRegion string) ([]compiledPattern, error) {
	var out []compiledPattern
	for i := range recognizers {
		rec := &recognizers[i]
		if !rec.isEnabled() {
			continue
		}
		v, err := validatorFor(rec.Validate, phoneRegion)
		if err != nil {
			return nil, fmt.Errorf("recognizer %q: %w", rec.Name, err)
		}
		for _, p := range rec.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rec.Name, err)
			}
			out = append(out, compiledPattern{
				recognizer:   rec.Name,
				label:        rec.SupportedEntity,
				re:           re,
				score:        p.Score,
				contextWords: rec.contextWords(),
				validator:    v,
			})
		}
	}
	return out, nil
}
