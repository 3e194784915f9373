package audit

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/privacy"
)

// brokenLedger fails every append.
type brokenLedger struct{}

func (brokenLedger) Append(context.Context, Event) error {
	return errors.New("disk full")
}
func (brokenLedger) Events(context.Context) ([]Event, error) { return nil, nil }
func (brokenLedger) Backend() string                         { return "broken" }
func (brokenLedger) Close() error                            { return nil }

// gatedLedger blocks appends until release is closed.
type gatedLedger struct {
	release chan struct{}
	mu      sync.Mutex
	events  []Event
}

func (g *gatedLedger) Append(_ context.Context, ev Event) error {
	<-g.release
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = append(g.events, ev)
	return nil
}

func (g *gatedLedger) Events(context.Context) ([]Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Event(nil), g.events...), nil
}
func (g *gatedLedger) Backend() string { return "gated" }
func (g *gatedLedger) Close() error    { return nil }

func TestLoggerRecordAggregates(t *testing.T) {
	ledger := NewFileLedger(filepath.Join(t.TempDir(), "audit_log.json"))
	al := NewLogger(ledger, nil, Options{})

	al.Record(64, []privacy.Detection{
		{Category: "EMAIL_ADDRESS", Start: 0, End: 5},
		{Category: "US_SSN", Start: 10, End: 21},
		{Category: "EMAIL_ADDRESS", Start: 30, End: 40},
	})
	require.NoError(t, al.Close())

	events, err := ledger.Events(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, "DATA_MASKING", ev.Event)
	assert.Equal(t, 64, ev.InputLength)
	assert.Equal(t, 3, ev.BlockedItems)
	assert.ElementsMatch(t, []string{"EMAIL_ADDRESS", "US_SSN"}, ev.RiskTypes)
	assert.Equal(t, map[string]int{"EMAIL_ADDRESS": 2, "US_SSN": 1}, ev.Details)
	assert.Equal(t, int64(1), al.Recorded())
	assert.Zero(t, al.Failures())
}

func TestLoggerUsesClock(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 30, 0, 0, time.UTC)
	ledger := &gatedLedger{release: make(chan struct{})}
	close(ledger.release)

	al := NewLogger(ledger, nil, Options{Now: func() time.Time { return at }})
	al.Record(1, nil)
	require.NoError(t, al.Close())

	events, _ := ledger.Events(context.Background())
	require.Len(t, events, 1)
	assert.Equal(t, at, events[0].Timestamp)
	assert.Zero(t, events[0].BlockedItems)
}

func TestLoggerFailuresAreTraced(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	var mu sync.Mutex
	var seen []*WriteFailure
	al := NewLogger(brokenLedger{}, logger.Wrap(zap.New(core)), Options{
		OnFailure: func(f *WriteFailure) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, f)
		},
	})

	al.Record(10, []privacy.Detection{{Category: "US_SSN", Start: 0, End: 3}})
	al.Record(10, nil)
	require.NoError(t, al.Close())

	assert.Equal(t, int64(2), al.Failures())
	assert.Zero(t, al.Recorded())

	mu.Lock()
	require.Len(t, seen, 2)
	assert.Equal(t, "broken", seen[0].Backend)
	assert.Contains(t, seen[0].Error(), "disk full")
	mu.Unlock()

	entries := logs.FilterMessage("Audit write failed").All()
	require.Len(t, entries, 2)
	assert.Equal(t, "broken", entries[0].ContextMap()["backend"])
}

func TestLoggerQueueFullIsAFailure(t *testing.T) {
	ledger := &gatedLedger{release: make(chan struct{})}
	al := NewLogger(ledger, nil, Options{QueueSize: 1})

	// One event may be held by the writer and one sits in the queue; the
	// rest overflow.
	for i := 0; i < 5; i++ {
		al.Record(i, nil)
	}
	assert.GreaterOrEqual(t, al.Failures(), int64(3))

	close(ledger.release)
	require.NoError(t, al.Close())

	events, _ := ledger.Events(context.Background())
	assert.Equal(t, int64(5), int64(len(events))+al.Failures())
}

func TestLoggerRecordAfterClose(t *testing.T) {
	ledger := NewFileLedger(filepath.Join(t.TempDir(), "audit_log.json"))
	al := NewLogger(ledger, nil, Options{})
	require.NoError(t, al.Close())
	require.NoError(t, al.Close())

	al.Record(3, nil)
	assert.Equal(t, int64(1), al.Failures())
}

func TestLoggerSummary(t *testing.T) {
	ledger := NewFileLedger(filepath.Join(t.TempDir(), "audit_log.json"))
	ctx := context.Background()
	require.NoError(t, ledger.Append(ctx, NewEvent(time.Now(), 10, map[string]int{"US_SSN": 1})))
	require.NoError(t, ledger.Append(ctx, NewEvent(time.Now(), 10, map[string]int{"US_SSN": 2, "PERSON": 1})))

	al := NewLogger(ledger, nil, Options{})
	defer al.Close()

	s, err := al.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, s.TotalOperations)
	assert.Equal(t, 4, s.TotalBlocked)
	assert.Equal(t, "US_SSN", s.PrimaryThreat)
	assert.Equal(t, "file", al.Backend())
}

func TestLoggerConcurrentRecords(t *testing.T) {
	ledger := NewFileLedger(filepath.Join(t.TempDir(), "audit_log.json"))
	al := NewLogger(ledger, nil, Options{QueueSize: 64})

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			al.Record(5, []privacy.Detection{{Category: "PERSON", Start: 0, End: 5}})
		}()
	}
	wg.Wait()
	require.NoError(t, al.Close())

	events, err := ledger.Events(context.Background())
	require.NoError(t, err)
	assert.Len(t, events, 32)
}
