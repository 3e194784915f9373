// Package gateway runs the reversible redaction round trip: validate,
// detect, mask, generate and unmask.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/generator"
	"github.com/raaihank/pii-gateway/internal/logger"
	"github.com/raaihank/pii-gateway/internal/privacy"
	"github.com/raaihank/pii-gateway/internal/validator"
	"github.com/raaihank/pii-gateway/internal/websocket"
)

// Recorder receives one audit record per masking operation. Record must
// not block.
type Recorder interface {
	Record(inputLength int, detections []privacy.Detection)
}

// Broadcaster receives live events for operators. BroadcastEvent must not
// block.
type Broadcaster interface {
	BroadcastEvent(event websocket.Event)
}

// Settings are the detection knobs that can change at runtime.
type Settings struct {
	MinScore   float64  `json:"min_score"`
	Categories []string `json:"categories"`
}

// Options wires a Pipeline. Registry, Validator and Generator are required.
type Options struct {
	Registry            *privacy.Registry
	Validator           *validator.Validator
	Generator           generator.Generator
	Audit               Recorder
	Events              Broadcaster
	Logger              *logger.Logger
	Settings            Settings
	Directive           string
	JargonCaseSensitive bool
}

// Pipeline is safe for concurrent use. The registry is the only state it
// shares between requests besides the audit ledger.
type Pipeline struct {
	registry  *privacy.Registry
	detector  *privacy.Detector
	validator *validator.Validator
	generator generator.Generator
	audit     Recorder
	events    Broadcaster
	logger    *logger.Logger
	directive string

	mu                  sync.RWMutex
	settings            Settings
	jargonCaseSensitive bool
}

// MaskResult is the outcome of the forward half of the round trip.
type MaskResult struct {
	// Original is the validated input; it is what Unmask restores from.
	Original   string              `json:"-"`
	Masked     string              `json:"masked"`
	Mapping    privacy.MaskMapping `json:"mapping"`
	Detections []privacy.Detection `json:"detections"`
	Counts     map[string]int      `json:"counts"`
}

// ProcessResult is the outcome of a full round trip.
type ProcessResult struct {
	Masked    string                     `json:"masked"`
	Generated string                     `json:"generated"`
	Text      string                     `json:"text"`
	Mapping   privacy.MaskMapping        `json:"mapping"`
	Counts    map[string]int             `json:"counts"`
	Restored  int                        `json:"restored"`
	Exhausted []privacy.MappingExhausted `json:"exhausted,omitempty"`
}

// New builds a pipeline from opts.
func New(opts Options) (*Pipeline, error) {
	if opts.Registry == nil {
		return nil, errors.New("gateway: registry is required")
	}
	if opts.Validator == nil {
		return nil, errors.New("gateway: validator is required")
	}
	if opts.Generator == nil {
		return nil, errors.New("gateway: generator is required")
	}
	if err := checkSettings(opts.Settings); err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Pipeline{
		registry:            opts.Registry,
		detector:            privacy.NewDetector(opts.Registry, log.WithComponent("detector")),
		validator:           opts.Validator,
		generator:           opts.Generator,
		audit:               opts.Audit,
		events:              opts.Events,
		logger:              log.WithComponent("pipeline"),
		directive:           opts.Directive,
		settings:            copySettings(opts.Settings),
		jargonCaseSensitive: opts.JargonCaseSensitive,
	}, nil
}

// Registry returns the shared recognizer registry.
func (p *Pipeline) Registry() *privacy.Registry { return p.registry }

// Settings returns the current detection settings.
func (p *Pipeline) Settings() Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return copySettings(p.settings)
}

// UpdateSettings replaces the detection settings for subsequent requests.
func (p *Pipeline) UpdateSettings(minScore float64, categories []string) error {
	s := Settings{MinScore: minScore, Categories: categories}
	if err := checkSettings(s); err != nil {
		return err
	}
	p.mu.Lock()
	p.settings = copySettings(s)
	p.mu.Unlock()

	p.logger.Info("Detection settings updated",
		zap.Float64("min_score", minScore),
		zap.Strings("categories", categories),
	)
	return nil
}

// SetJargon replaces the organization jargon list. An empty list removes
// it.
func (p *Pipeline) SetJargon(terms []string) error {
	p.mu.RLock()
	caseSensitive := p.jargonCaseSensitive
	p.mu.RUnlock()

	if err := privacy.SetJargon(p.registry, terms, caseSensitive); err != nil {
		return err
	}
	p.logger.Info("Jargon list updated", zap.Int("terms", len(terms)))
	return nil
}

// SetJargonCaseSensitive changes how future SetJargon calls match.
func (p *Pipeline) SetJargonCaseSensitive(caseSensitive bool) {
	p.mu.Lock()
	p.jargonCaseSensitive = caseSensitive
	p.mu.Unlock()
}

// Mask validates raw, detects sensitive spans and replaces them with
// placeholders. The operation is audited and announced to operators.
func (p *Pipeline) Mask(ctx context.Context, raw string) (*MaskResult, error) {
	start := time.Now()
	log := p.requestLogger(ctx)

	clean, err := p.validator.Validate(raw)
	if err != nil {
		log.Info("Input rejected", zap.Error(err))
		return nil, err
	}

	settings := p.Settings()
	detections, err := p.detector.Detect(ctx, clean, settings.Categories, settings.MinScore)
	if err != nil {
		return nil, fmt.Errorf("detecting sensitive data: %w", err)
	}

	masked, mapping, err := privacy.Mask(clean, detections)
	if err != nil {
		return nil, fmt.Errorf("masking: %w", err)
	}

	inputLength := utf8.RuneCountInString(clean)
	counts := privacy.CategoryCounts(detections)

	if p.audit != nil {
		p.audit.Record(inputLength, detections)
	}
	log.LogRedaction(inputLength, counts)
	p.broadcast(ctx, websocket.EventTypeRedaction, websocket.RedactionEvent{
		Operation:    "mask",
		InputLength:  inputLength,
		BlockedItems: len(detections),
		Categories:   counts,
		ProcessingMS: float64(time.Since(start).Microseconds()) / 1000,
	})

	return &MaskResult{
		Original:   clean,
		Masked:     masked,
		Mapping:    mapping,
		Detections: detections,
		Counts:     counts,
	}, nil
}

// Unmask restores original values into generated. Exhausted placeholders
// are logged as a warning and returned in the result.
func (p *Pipeline) Unmask(ctx context.Context, generated string, mapping privacy.MaskMapping, original string) (privacy.UnmaskResult, error) {
	result, err := privacy.Unmask(generated, mapping, original)
	if err != nil {
		return privacy.UnmaskResult{}, err
	}
	for _, w := range result.Exhausted {
		p.requestLogger(ctx).Warn("Generated text has more placeholders than were masked",
			zap.String("category", w.Category),
			zap.Int("excess", w.Excess),
		)
	}
	return result, nil
}

// Process runs the whole round trip. A generator failure is returned as
// is and nothing is unmasked.
func (p *Pipeline) Process(ctx context.Context, raw string) (*ProcessResult, error) {
	masked, err := p.Mask(ctx, raw)
	if err != nil {
		return nil, err
	}

	generated, err := p.generator.Generate(ctx, masked.Masked, p.directive)
	if err != nil {
		return nil, err
	}

	restored, err := p.Unmask(ctx, generated, masked.Mapping, masked.Original)
	if err != nil {
		return nil, err
	}

	return &ProcessResult{
		Masked:    masked.Masked,
		Generated: generated,
		Text:      restored.Text,
		Mapping:   masked.Mapping,
		Counts:    masked.Counts,
		Restored:  restored.Restored,
		Exhausted: restored.Exhausted,
	}, nil
}

func (p *Pipeline) broadcast(ctx context.Context, t websocket.EventType, data interface{}) {
	if p.events == nil {
		return
	}
	p.events.BroadcastEvent(websocket.Event{
		Type:      t,
		Timestamp: time.Now(),
		Data:      data,
		RequestID: RequestID(ctx),
	})
}

func (p *Pipeline) requestLogger(ctx context.Context) *logger.Logger {
	if id := RequestID(ctx); id != "" {
		return p.logger.WithRequestID(id)
	}
	return p.logger
}

func checkSettings(s Settings) error {
	if s.MinScore < 0 || s.MinScore > 1 {
		return fmt.Errorf("min score %v outside [0,1]", s.MinScore)
	}
	return nil
}

func copySettings(s Settings) Settings {
	return Settings{MinScore: s.MinScore, Categories: append([]string(nil), s.Categories...)}
}
