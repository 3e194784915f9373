// Package audit keeps the append-only record of masking operations. Events
// carry counts and categories only, never the masked content.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

// EventDataMasking is the event name written for every masking operation.
const EventDataMasking = "DATA_MASKING"

// Event is one ledger record.
type Event struct {
	Timestamp    time.Time      `json:"timestamp"`
	Event        string         `json:"event"`
	InputLength  int            `json:"input_length"`
	BlockedItems int            `json:"blocked_items"`
	RiskTypes    []string       `json:"risk_types"`
	Details      map[string]int `json:"details"`
}

// NewEvent builds a DATA_MASKING event from per-category counts.
func NewEvent(at time.Time, inputLength int, counts map[string]int) Event {
	ev := Event{
		Timestamp:   at,
		Event:       EventDataMasking,
		InputLength: inputLength,
		RiskTypes:   make([]string, 0, len(counts)),
		Details:     make(map[string]int, len(counts)),
	}
	for category, n := range counts {
		if n <= 0 {
			continue
		}
		ev.RiskTypes = append(ev.RiskTypes, category)
		ev.Details[category] = n
		ev.BlockedItems += n
	}
	sort.Strings(ev.RiskTypes)
	return ev
}

// Ledger is durable append-only event storage. Implementations serialize
// concurrent appends and initialize themselves on first write.
type Ledger interface {
	Append(ctx context.Context, ev Event) error
	Events(ctx context.Context) ([]Event, error)
	Backend() string
	Close() error
}

var (
	// ErrQueueFull means an event was dropped because the writer is behind.
	ErrQueueFull = errors.New("audit queue full")
	// ErrClosed means an event arrived after the logger was closed.
	ErrClosed = errors.New("audit logger closed")
)

// WriteFailure reports an event that did not reach the ledger.
type WriteFailure struct {
	Backend string
	Err     error
}

func (w *WriteFailure) Error() string {
	return fmt.Sprintf("audit %s append failed: %v", w.Backend, w.Err)
}

func (w *WriteFailure) Unwrap() error { return w.Err }

// Summary aggregates a ledger for operators.
type Summary struct {
	TotalOperations int            `json:"total_operations"`
	TotalBlocked    int            `json:"total_blocked"`
	PrimaryThreat   string         `json:"primary_threat,omitempty"`
	CategoryTotals  map[string]int `json:"category_totals"`
}

// Summarize computes a Summary. The primary threat is the category present
// in the most events; ties go to the lexicographically smaller name.
func Summarize(events []Event) Summary {
	s := Summary{CategoryTotals: make(map[string]int)}
	presence := make(map[string]int)

	for _, ev := range events {
		s.TotalOperations++
		s.TotalBlocked += ev.BlockedItems
		for category, n := range ev.Details {
			s.CategoryTotals[category] += n
		}
		for _, category := range ev.RiskTypes {
			presence[category]++
		}
	}

	best := 0
	for category, n := range presence {
		if n > best || (n == best && category < s.PrimaryThreat) {
			best = n
			s.PrimaryThreat = category
		}
	}
	return s
}
