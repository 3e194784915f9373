package privacy

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultDenyListScore is the confidence given to deny-list matches.
const DefaultDenyListScore = 1.0

var categoryPattern = regexp.MustCompile(`^[A-Z][A-Z0-9_]*$`)

// Recognizer scans text for spans of one category. The set of implementations
// is closed to this package: PatternRecognizer and DenyListRecognizer.
type Recognizer interface {
	Name() string
	Category() string
	Detect(text string) ([]Detection, error)

	isRecognizer()
}

var (
	_ Recognizer = (*PatternRecognizer)(nil)
	_ Recognizer = (*DenyListRecognizer)(nil)
)

// PatternRecognizer matches a regular expression and tags every match with a
// fixed category and score. An optional validator can veto individual
// matches (checksums and the like).
type PatternRecognizer struct {
	name     string
	category string
	pattern  *regexp.Regexp
	score    float64
	validate func(match string) bool
}

// PatternOption configures a PatternRecognizer.
type PatternOption func(*PatternRecognizer)

// WithValidator rejects matches for which fn returns false.
func WithValidator(fn func(match string) bool) PatternOption {
	return func(p *PatternRecognizer) { p.validate = fn }
}

// NewPatternRecognizer compiles expr. A malformed expression, an empty name,
// a category outside [A-Z0-9_] or a score outside [0,1] yields a
// *ConfigurationError.
func NewPatternRecognizer(name, category, expr string, score float64, opts ...PatternOption) (*PatternRecognizer, error) {
	if err := checkIdentity(name, category, score); err != nil {
		return nil, err
	}
	if expr == "" {
		return nil, configErr(name, "empty regex", nil)
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, configErr(name, "compiling regex", err)
	}

	p := &PatternRecognizer{name: name, category: category, pattern: re, score: score}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *PatternRecognizer) Name() string     { return p.name }
func (p *PatternRecognizer) Category() string { return p.category }
func (p *PatternRecognizer) Score() float64   { return p.score }
func (p *PatternRecognizer) isRecognizer()    {}

// Detect returns every non-empty, validator-approved match.
func (p *PatternRecognizer) Detect(text string) ([]Detection, error) {
	var out []Detection
	for _, loc := range p.pattern.FindAllStringIndex(text, -1) {
		if loc[1] <= loc[0] {
			continue
		}
		if p.validate != nil && !p.validate(text[loc[0]:loc[1]]) {
			continue
		}
		out = append(out, Detection{
			Category:   p.category,
			Start:      loc[0],
			End:        loc[1],
			Score:      p.score,
			Recognizer: p.name,
		})
	}
	return out, nil
}

// DenyListRecognizer matches a literal term list on word boundaries. It is
// how organization-specific jargon gets masked.
type DenyListRecognizer struct {
	name          string
	category      string
	terms         []string
	score         float64
	caseSensitive bool
	pattern       *regexp.Regexp
	// anchored holds one ^term expression per term, longest first, for
	// retrying shorter terms where a longer one fails the word boundary.
	anchored []*regexp.Regexp
}

// NewDenyListRecognizer builds a recognizer for terms. Blank and duplicate
// terms are dropped; an empty resulting list is a *ConfigurationError.
func NewDenyListRecognizer(name, category string, terms []string, score float64, caseSensitive bool) (*DenyListRecognizer, error) {
	if err := checkIdentity(name, category, score); err != nil {
		return nil, err
	}

	clean := normalizeTerms(terms, caseSensitive)
	if len(clean) == 0 {
		return nil, configErr(name, "deny list has no terms", nil)
	}

	// Longer terms first so "Project Apollo" wins over "Apollo" in the
	// leftmost-first alternation.
	quoted := make([]string, len(clean))
	for i, term := range clean {
		quoted[i] = regexp.QuoteMeta(term)
	}
	expr := "(?:" + strings.Join(quoted, "|") + ")"
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, configErr(name, "compiling deny list", err)
	}
	anchored := make([]*regexp.Regexp, len(quoted))
	for i, q := range quoted {
		a := "^" + q
		if !caseSensitive {
			a = "(?i)" + a
		}
		if anchored[i], err = regexp.Compile(a); err != nil {
			return nil, configErr(name, "compiling deny list", err)
		}
	}

	return &DenyListRecognizer{
		name:          name,
		category:      category,
		terms:         clean,
		score:         score,
		caseSensitive: caseSensitive,
		pattern:       re,
		anchored:      anchored,
	}, nil
}

func (d *DenyListRecognizer) Name() string     { return d.name }
func (d *DenyListRecognizer) Category() string { return d.category }
func (d *DenyListRecognizer) Score() float64   { return d.score }
func (d *DenyListRecognizer) isRecognizer()    {}

// Terms returns a copy of the normalized term list.
func (d *DenyListRecognizer) Terms() []string {
	return append([]string(nil), d.terms...)
}

// Detect finds every term occurrence that is not glued to surrounding word
// characters, so "Skynet" does not fire inside "Skynetwork".
func (d *DenyListRecognizer) Detect(text string) ([]Detection, error) {
	var out []Detection
	pos := 0
	for pos < len(text) {
		loc := d.pattern.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		if end, ok := d.matchAt(text, start); ok {
			out = append(out, Detection{
				Category:   d.category,
				Start:      start,
				End:        end,
				Score:      d.score,
				Recognizer: d.name,
			})
			pos = end
			continue
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		if size == 0 {
			size = 1
		}
		pos = start + size
	}
	return out, nil
}

// matchAt returns the end of the longest term starting at start that sits
// on word boundaries.
func (d *DenyListRecognizer) matchAt(text string, start int) (int, bool) {
	if !wordBoundaryBefore(text, start) {
		return 0, false
	}
	for _, re := range d.anchored {
		loc := re.FindStringIndex(text[start:])
		if loc == nil || loc[1] == 0 {
			continue
		}
		if end := start + loc[1]; wordBoundaryAfter(text, end) {
			return end, true
		}
	}
	return 0, false
}

func checkIdentity(name, category string, score float64) error {
	if strings.TrimSpace(name) == "" {
		return configErr(name, "empty name", nil)
	}
	if !categoryPattern.MatchString(category) {
		return configErr(name, fmt.Sprintf("category %q must match %s", category, categoryPattern), nil)
	}
	if score < 0 || score > 1 {
		return configErr(name, fmt.Sprintf("score %v outside [0,1]", score), nil)
	}
	return nil
}

func normalizeTerms(terms []string, caseSensitive bool) []string {
	seen := make(map[string]bool, len(terms))
	var out []string
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		key := t
		if !caseSensitive {
			key = strings.ToLower(t)
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

func wordBoundaryBefore(text string, start int) bool {
	if start == 0 {
		return true
	}
	first, _ := utf8.DecodeRuneInString(text[start:])
	if !isWordRune(first) {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:start])
	return !isWordRune(prev)
}

func wordBoundaryAfter(text string, end int) bool {
	if end >= len(text) {
		return true
	}
	last, _ := utf8.DecodeLastRuneInString(text[:end])
	if !isWordRune(last) {
		return true
	}
	next, _ := utf8.DecodeRuneInString(text[end:])
	return !isWordRune(next)
}

// IsConfigurationError reports whether err is or wraps a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
