// Package validator screens raw input before any detection runs.
package validator

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Kind classifies why an input was rejected.
type Kind string

const (
	EmptyInput         Kind = "EmptyInput"
	InputTooLong       Kind = "InputTooLong"
	InjectionSuspected Kind = "InjectionSuspected"
)

// Rejection is returned for input that must not enter the pipeline. Its
// message never quotes the input.
type Rejection struct {
	Kind Kind
	// Limit is the configured maximum for InputTooLong, zero otherwise.
	Limit int
}

func (r *Rejection) Error() string {
	switch r.Kind {
	case EmptyInput:
		return "input is empty"
	case InputTooLong:
		return fmt.Sprintf("input exceeds %d characters", r.Limit)
	case InjectionSuspected:
		return "input contains a forbidden phrase"
	default:
		return "input rejected"
	}
}

// Config holds validation limits.
type Config struct {
	MaxLength        int
	ForbiddenPhrases []string
}

// Validator checks raw text against Config.
type Validator struct {
	maxLength int
	phrases   []string
}

// New creates a validator. Forbidden phrases are matched case-insensitively;
// blank phrases are ignored.
func New(cfg Config) *Validator {
	v := &Validator{maxLength: cfg.MaxLength}
	for _, p := range cfg.ForbiddenPhrases {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			v.phrases = append(v.phrases, p)
		}
	}
	return v
}

// Validate returns raw trimmed of surrounding whitespace, or a *Rejection.
// Length is measured in characters of the trimmed text.
func (v *Validator) Validate(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	if clean == "" {
		return "", &Rejection{Kind: EmptyInput}
	}
	if v.maxLength > 0 && utf8.RuneCountInString(clean) > v.maxLength {
		return "", &Rejection{Kind: InputTooLong, Limit: v.maxLength}
	}

	lower := strings.ToLower(clean)
	for _, p := range v.phrases {
		if strings.Contains(lower, p) {
			return "", &Rejection{Kind: InjectionSuspected}
		}
	}
	return clean, nil
}
