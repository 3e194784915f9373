package privacy

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/raaihank/pii-gateway/internal/logger"
)

// Detector runs every registered recognizer over a text and resolves the
// raw matches into a non-overlapping, position-ordered detection list.
type Detector struct {
	registry *Registry
	logger   *logger.Logger
}

// NewDetector creates a detector bound to registry.
func NewDetector(registry *Registry, log *logger.Logger) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{registry: registry, logger: log}
}

// Registry returns the registry the detector scans with.
func (d *Detector) Registry() *Registry { return d.registry }

type candidate struct {
	det  Detection
	rank int // registration position of the producing recognizer
}

// Detect scans text with a snapshot of the registry. Detections whose
// category is not in categories (nil or empty means every category) or whose
// score is below minScore are dropped. Overlaps resolve to the higher score,
// then to the earlier-registered recognizer. The result is sorted by Start.
//
// A recognizer that fails or panics is logged and skipped; the remaining
// recognizers still contribute. The only error returned is ctx's.
func (d *Detector) Detect(ctx context.Context, text string, categories []string, minScore float64) ([]Detection, error) {
	if text == "" {
		return []Detection{}, nil
	}

	var allowed map[string]bool
	if len(categories) > 0 {
		allowed = make(map[string]bool, len(categories))
		for _, c := range categories {
			allowed[c] = true
		}
	}

	snapshot := d.registry.Snapshot()
	var candidates []candidate
	failed := 0

	for rank, rec := range snapshot {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := runRecognizer(rec, text)
		if err != nil {
			failed++
			// The error text may quote matched content, so only the
			// recognizer identity is logged.
			d.logger.Warn("Recognizer failed, skipping",
				zap.String("recognizer", rec.Name()),
				zap.String("category", rec.Category()),
			)
			continue
		}

		for _, det := range raw {
			if det.Start < 0 || det.End > len(text) || det.Start >= det.End {
				d.logger.Debug("Discarding out-of-range detection", zap.String("recognizer", rec.Name()))
				continue
			}
			if allowed != nil && !allowed[det.Category] {
				continue
			}
			if det.Score < minScore {
				continue
			}
			if det.Recognizer == "" {
				det.Recognizer = rec.Name()
			}
			candidates = append(candidates, candidate{det: det, rank: rank})
		}
	}

	resolved := resolveOverlaps(candidates)

	d.logger.Debug("Scan complete",
		zap.Int("recognizers", len(snapshot)),
		zap.Int("failed_recognizers", failed),
		zap.Int("candidates", len(candidates)),
		zap.Int("detections", len(resolved)),
	)

	return resolved, nil
}

// runRecognizer isolates a single recognizer, turning a panic into an error.
func runRecognizer(rec Recognizer, text string) (dets []Detection, err error) {
	defer func() {
		if r := recover(); r != nil {
			dets = nil
			err = fmt.Errorf("recognizer %s panicked", rec.Name())
		}
	}()
	return rec.Detect(text)
}

// resolveOverlaps keeps, greedily by priority, every candidate that does not
// overlap an already accepted one. Priority: higher score, earlier
// registration, earlier start, longer span.
func resolveOverlaps(candidates []candidate) []Detection {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.det.Score != b.det.Score {
			return a.det.Score > b.det.Score
		}
		if a.rank != b.rank {
			return a.rank < b.rank
		}
		if a.det.Start != b.det.Start {
			return a.det.Start < b.det.Start
		}
		return a.det.Len() > b.det.Len()
	})

	accepted := make([]Detection, 0, len(candidates))
	for _, c := range candidates {
		clash := false
		for _, kept := range accepted {
			if c.det.overlaps(kept) {
				clash = true
				break
			}
		}
		if !clash {
			accepted = append(accepted, c.det)
		}
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].Start < accepted[j].Start })
	return accepted
}
