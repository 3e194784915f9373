// Package generator calls the external text-generation service that
// receives masked prompts.
package generator

import (
	"context"
	"fmt"
)

// Generator produces text for a prompt under a system directive. A returned
// error is always a *Error; on success the text is the service's answer and
// never an error marker.
type Generator interface {
	Generate(ctx context.Context, prompt, directive string) (string, error)
}

// Error reports a failed generation. It never carries prompt or response
// text.
type Error struct {
	Provider   string
	StatusCode int
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("generator %s: %s", e.Provider, e.Reason)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Func adapts a function to Generator.
type Func func(ctx context.Context, prompt, directive string) (string, error)

func (f Func) Generate(ctx context.Context, prompt, directive string) (string, error) {
	return f(ctx, prompt, directive)
}
