package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/privacy"
)

const appendTimeout = 5 * time.Second

// Options configures a Logger.
type Options struct {
	// QueueSize bounds the events waiting for the writer. Defaults to 256.
	QueueSize int
	// OnFailure, when set, is called for every event that did not reach the
	// ledger. It runs on the writer goroutine or the recording caller and
	// must not block.
	OnFailure func(*WriteFailure)
	// Now overrides the event clock.
	Now func() time.Time
}

// Logger records masking operations to a Ledger without blocking callers.
// A single writer goroutine drains the queue, so appends reach the ledger
// one at a time and in order.
type Logger struct {
	ledger    Ledger
	logger    *logger.Logger
	onFailure func(*WriteFailure)
	now       func() time.Time

	queue chan Event
	done  chan struct{}

	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
	closeErr  error

	recorded atomic.Int64
	failures atomic.Int64
}

// NewLogger starts the writer for ledger.
func NewLogger(ledger Ledger, log *logger.Logger, opts Options) *Logger {
	if log == nil {
		log = logger.Nop()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	l := &Logger{
		ledger:    ledger,
		logger:    log.WithComponent("audit"),
		onFailure: opts.OnFailure,
		now:       opts.Now,
		queue:     make(chan Event, opts.QueueSize),
		done:      make(chan struct{}),
	}
	go l.run()
	return l
}

// Record queues one DATA_MASKING event for an input of inputLength
// characters and its detections. It never blocks and never fails; events
// that cannot be written are reported as *WriteFailure through the log,
// Failures and the failure hook.
func (l *Logger) Record(inputLength int, detections []privacy.Detection) {
	l.RecordCounts(inputLength, privacy.CategoryCounts(detections))
}

// RecordCounts is Record for callers that already aggregated.
func (l *Logger) RecordCounts(inputLength int, counts map[string]int) {
	ev := NewEvent(l.now(), inputLength, counts)

	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.closed {
		l.fail(ErrClosed)
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.fail(ErrQueueFull)
	}
}

func (l *Logger) run() {
	defer close(l.done)
	for ev := range l.queue {
		ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
		err := l.ledger.Append(ctx, ev)
		cancel()
		if err != nil {
			l.fail(err)
			continue
		}
		l.recorded.Add(1)
	}
}

func (l *Logger) fail(err error) {
	l.failures.Add(1)
	failure := &WriteFailure{Backend: l.ledger.Backend(), Err: err}
	l.logger.Error("Audit write failed",
		zap.String("backend", failure.Backend),
		zap.Error(err),
		zap.Int64("total_failures", l.failures.Load()),
	)
	if l.onFailure != nil {
		l.onFailure(failure)
	}
}

// Events reads the ledger.
func (l *Logger) Events(ctx context.Context) ([]Event, error) {
	return l.ledger.Events(ctx)
}

// Summary aggregates the ledger.
func (l *Logger) Summary(ctx context.Context) (Summary, error) {
	events, err := l.ledger.Events(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(events), nil
}

// Recorded returns how many events reached the ledger.
func (l *Logger) Recorded() int64 { return l.recorded.Load() }

// Failures returns how many events did not reach the ledger.
func (l *Logger) Failures() int64 { return l.failures.Load() }

// Backend names the ledger in use.
func (l *Logger) Backend() string { return l.ledger.Backend() }

// Close drains queued events, stops the writer and closes the ledger.
func (l *Logger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()

		<-l.done
		l.closeErr = l.ledger.Close()
	})
	return l.closeErr
}
