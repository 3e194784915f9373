package privacy

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/raaihank/pii-gateway/internal/config"
)

const (
	// JargonRecognizerName is the registry slot for the operator jargon list.
	JargonRecognizerName = "Jargon_List"
	// JargonCategory is the category assigned to jargon matches.
	JargonCategory = "CUSTOM_JARGON"
)

// RecognizerFile is the top-level YAML structure for a recognizer file.
type RecognizerFile struct {
	Recognizers []config.RecognizerConfig `yaml:"recognizers"`
}

// validators are the named match validators a definition may reference.
var validators = map[string]func(string) bool{
	"luhn": func(s string) bool { return luhnValid(stripNonDigits(s)) },
	"iban": func(s string) bool {
		clean := strings.ToUpper(strings.ReplaceAll(s, " ", ""))
		return validateIBANChecksum(clean)
	},
}

// DefaultRecognizers returns the built-in recognizer definitions.
func DefaultRecognizers() []config.RecognizerConfig {
	return []config.RecognizerConfig{
		{
			Name:            "Force_SSN",
			SupportedEntity: "US_SSN",
			Patterns:        []config.PatternConfig{{Name: "ssn_pattern", Regex: `\b\d{3}-\d{2}-\d{4}\b`, Score: 0.9}},
		},
		{
			Name:            "Force_CC",
			SupportedEntity: "CREDIT_CARD",
			Patterns:        []config.PatternConfig{{Name: "cc_pattern", Regex: `\b\d{4}-\d{4}-\d{4}-\d{4}\b`, Score: 0.9}},
		},
		{
			Name:            "Credit_Card_Luhn",
			SupportedEntity: "CREDIT_CARD",
			Patterns:        []config.PatternConfig{{Name: "cc_digits", Regex: `\b(?:\d[ ]?){12,18}\d\b`, Score: 0.5}},
			Validator:       "luhn",
		},
		{
			Name:            "Email",
			SupportedEntity: "EMAIL_ADDRESS",
			Patterns:        []config.PatternConfig{{Name: "email", Regex: `\b[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}\b`, Score: 1.0}},
		},
		{
			Name:            "Phone",
			SupportedEntity: "PHONE_NUMBER",
			Patterns: []config.PatternConfig{{
				Name:  "phone",
				Regex: `(?:\+\d{1,3}[\s.\-]?)?\(?\b\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}\b`,
				Score: 0.6,
			}},
		},
		{
			Name:            "IBAN",
			SupportedEntity: "IBAN_CODE",
			Patterns:        []config.PatternConfig{{Name: "iban", Regex: `\b[A-Z]{2}\d{2}(?:[ ]?[A-Z0-9]{4}){2,7}(?:[ ]?[A-Z0-9]{1,4})?\b`, Score: 0.5}},
			Validator:       "iban",
		},
		{
			Name:            "US_Passport",
			SupportedEntity: "US_PASSPORT",
			Patterns:        []config.PatternConfig{{Name: "passport", Regex: `\b[A-Z]?\d{9}\b`, Score: 0.1}},
		},
		{
			Name:            "Person_Title",
			SupportedEntity: "PERSON",
			Patterns: []config.PatternConfig{{
				Name:  "honorific",
				Regex: `\b(?:Mr|Mrs|Ms|Miss|Dr|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?`,
				Score: 0.6,
			}},
		},
	}
}

// ParseRecognizerFile parses recognizer YAML bytes into a RecognizerFile.
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads and parses a recognizer YAML file from disk.
// A missing file yields (nil, nil).
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

// MergeRecognizers layers definitions: later layers replace earlier entries
// with the same Name in place, new names are appended.
func MergeRecognizers(layers ...[]config.RecognizerConfig) []config.RecognizerConfig {
	index := make(map[string]int)
	var merged []config.RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// Build turns one definition into recognizers. Disabled definitions yield
// nothing. A definition with several patterns yields one recognizer per
// pattern, named "<name>/<pattern>".
func Build(def config.RecognizerConfig) ([]Recognizer, error) {
	if !def.IsEnabled() {
		return nil, nil
	}

	if len(def.DenyList) > 0 {
		if len(def.Patterns) > 0 {
			return nil, configErr(def.Name, "deny_list and patterns are mutually exclusive", nil)
		}
		score := def.DenyListScore
		if score == 0 {
			score = DefaultDenyListScore
		}
		rec, err := NewDenyListRecognizer(def.Name, def.SupportedEntity, def.DenyList, score, def.CaseSensitive)
		if err != nil {
			return nil, err
		}
		return []Recognizer{rec}, nil
	}

	if len(def.Patterns) == 0 {
		return nil, configErr(def.Name, "no patterns and no deny_list", nil)
	}

	var opts []PatternOption
	if def.Validator != "" {
		fn, ok := validators[def.Validator]
		if !ok {
			return nil, configErr(def.Name, fmt.Sprintf("unknown validator %q", def.Validator), nil)
		}
		opts = append(opts, WithValidator(fn))
	}

	out := make([]Recognizer, 0, len(def.Patterns))
	for _, p := range def.Patterns {
		name := def.Name
		if len(def.Patterns) > 1 {
			name = def.Name + "/" + p.Name
		}
		rec, err := NewPatternRecognizer(name, def.SupportedEntity, p.Regex, p.Score, opts...)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// BuildRegistry assembles the registry from the privacy configuration:
// built-ins, then the recognizer file, then inline definitions, then the
// jargon list.
func BuildRegistry(cfg config.PrivacyConfig) (*Registry, error) {
	var layers [][]config.RecognizerConfig
	if !cfg.DisableBuiltins {
		layers = append(layers, DefaultRecognizers())
	}
	if cfg.RecognizersFile != "" {
		rf, err := LoadRecognizerFile(cfg.RecognizersFile)
		if err != nil {
			return nil, err
		}
		if rf != nil {
			layers = append(layers, rf.Recognizers)
		}
	}
	layers = append(layers, cfg.Recognizers)

	registry, err := NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, def := range MergeRecognizers(layers...) {
		recs, err := Build(def)
		if err != nil {
			return nil, err
		}
		for _, rec := range recs {
			if err := registry.Add(rec); err != nil {
				return nil, err
			}
		}
	}

	if err := SetJargon(registry, cfg.Jargon.Terms, cfg.Jargon.CaseSensitive); err != nil {
		return nil, err
	}
	return registry, nil
}

// SetJargon installs terms as the jargon deny list, replacing any previous
// list. An empty list removes the jargon recognizer.
func SetJargon(registry *Registry, terms []string, caseSensitive bool) error {
	if len(normalizeTerms(terms, caseSensitive)) == 0 {
		registry.Remove(JargonRecognizerName)
		return nil
	}
	rec, err := NewDenyListRecognizer(JargonRecognizerName, JargonCategory, terms, DefaultDenyListScore, caseSensitive)
	if err != nil {
		return err
	}
	return registry.Add(rec)
}

// ParseTermList splits a comma-separated term list, dropping blanks.
func ParseTermList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// luhnValid checks whether a digit string passes the Luhn algorithm (ISO/IEC 7812).
func luhnValid(number string) bool {
	n := len(number)
	if n < 2 {
		return false
	}
	sum := 0
	alt := false
	for i := n - 1; i >= 0; i-- {
		d := int(number[i] - '0')
		if d < 0 || d > 9 {
			return false
		}
		if alt {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		alt = !alt
	}
	return sum%10 == 0
}

// validateIBANChecksum verifies the MOD-97 check digits per ISO 13616.
func validateIBANChecksum(iban string) bool {
	if len(iban) < 5 {
		return false
	}
	rearranged := iban[4:] + iban[:4]
	var numStr strings.Builder
	for _, ch := range rearranged {
		switch {
		case ch >= '0' && ch <= '9':
			numStr.WriteRune(ch)
		case ch >= 'A' && ch <= 'Z':
			fmt.Fprintf(&numStr, "%d", ch-'A'+10)
		default:
			return false
		}
	}
	n := new(big.Int)
	if _, ok := n.SetString(numStr.String(), 10); !ok {
		return false
	}
	return new(big.Int).Mod(n, big.NewInt(97)).Int64() == 1
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, ch := range s {
		if ch >= '0' && ch <= '9' {
			b.WriteRune(ch)
		}
	}
	return b.String()
}
