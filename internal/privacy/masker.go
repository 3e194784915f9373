package privacy

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"
)

var placeholderPattern = regexp.MustCompile(`<([A-Z][A-Z0-9_]*)>`)

// Mask replaces every detected span of text with its category placeholder
// and records the span in a fresh mapping. detections may come in any order
// but must be in bounds and must not overlap. text is not modified.
//
// Placeholder-shaped tokens already present in text, outside any detected
// span, are recorded as passthrough entries. They hold their place in the
// per-category queue so Unmask gives them back verbatim instead of handing
// them a masked value.
//
// Occurrence and mapping IDs are random, so no two masking operations ever
// share an occurrence.
func Mask(text string, detections []Detection) (string, MaskMapping, error) {
	mapping := MaskMapping{ID: uuid.NewString(), Entries: make([]MaskEntry, 0, len(detections))}

	ordered := make([]Detection, len(detections))
	copy(ordered, detections)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Start < ordered[j].Start })

	for i, d := range ordered {
		if d.Start < 0 || d.End > len(text) || d.Start >= d.End {
			return "", MaskMapping{}, fmt.Errorf("%w: span [%d,%d) outside text of length %d", ErrInvalidDetection, d.Start, d.End, len(text))
		}
		if !categoryPattern.MatchString(d.Category) {
			return "", MaskMapping{}, fmt.Errorf("%w: category %q", ErrInvalidDetection, d.Category)
		}
		if i > 0 && ordered[i-1].End > d.Start {
			return "", MaskMapping{}, fmt.Errorf("%w: spans [%d,%d) and [%d,%d) overlap", ErrInvalidDetection, ordered[i-1].Start, ordered[i-1].End, d.Start, d.End)
		}
	}

	for _, d := range detections {
		mapping.Entries = append(mapping.Entries, MaskEntry{
			OccurrenceID: uuid.NewString(),
			Category:     d.Category,
			Start:        d.Start,
			End:          d.End,
		})
	}

	mapping.Entries = append(mapping.Entries, literalTokens(text, ordered)...)
	if len(detections) == 0 {
		return text, mapping, nil
	}

	var b strings.Builder
	b.Grow(len(text))
	cursor := 0
	for _, d := range ordered {
		b.WriteString(text[cursor:d.Start])
		b.WriteString(Placeholder(d.Category))
		cursor = d.End
	}
	b.WriteString(text[cursor:])

	return b.String(), mapping, nil
}

// literalTokens returns passthrough entries for the placeholder tokens of
// text that no span in ordered covers.
func literalTokens(text string, ordered []Detection) []MaskEntry {
	var out []MaskEntry
	next := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(text, -1) {
		start, end := loc[0], loc[1]
		for next < len(ordered) && ordered[next].End <= start {
			next++
		}
		if next < len(ordered) && ordered[next].Start < end {
			continue
		}
		out = append(out, MaskEntry{
			OccurrenceID: uuid.NewString(),
			Category:     text[loc[2]:loc[3]],
			Start:        start,
			End:          end,
			Passthrough:  true,
		})
	}
	return out
}
