package privacy

import (
	"fmt"
	"sort"
	"strings"
)

// UnmaskResult is the outcome of restoring a generated text.
type UnmaskResult struct {
	Text      string             `json:"text"`
	Restored  int                `json:"restored"`
	Exhausted []MappingExhausted `json:"exhausted,omitempty"`
}

// Unmask restores original values into generated. Placeholders are consumed
// left to right: the k-th <CATEGORY> in generated receives the k-th span of
// that category, by position, from original. Placeholders beyond what the
// mapping recorded stay verbatim and are reported in Exhausted. Tokens the
// generator misspelled, and tokens of categories absent from the mapping,
// are left alone.
//
// The only error is ErrMappingMismatch, when mapping cannot have come from
// original.
func Unmask(generated string, mapping MaskMapping, original string) (UnmaskResult, error) {
	queues := make(map[string][]MaskEntry)
	for _, e := range mapping.Entries {
		if e.Start < 0 || e.End > len(original) || e.Start >= e.End {
			return UnmaskResult{}, fmt.Errorf("%w: entry %s [%d,%d) vs length %d", ErrMappingMismatch, e.OccurrenceID, e.Start, e.End, len(original))
		}
		if _, ok := queues[e.Category]; !ok {
			queues[e.Category] = mapping.ByCategory(e.Category)
		}
	}

	result := UnmaskResult{}
	consumed := make(map[string]int)
	excess := make(map[string]int)

	var b strings.Builder
	b.Grow(len(generated))
	cursor := 0
	for _, loc := range placeholderPattern.FindAllStringSubmatchIndex(generated, -1) {
		category := generated[loc[2]:loc[3]]
		queue, known := queues[category]
		if !known {
			continue
		}
		k := consumed[category]
		if k >= len(queue) {
			excess[category]++
			continue
		}
		consumed[category] = k + 1

		entry := queue[k]
		b.WriteString(generated[cursor:loc[0]])
		b.WriteString(original[entry.Start:entry.End])
		cursor = loc[1]
		if !entry.Passthrough {
			result.Restored++
		}
	}
	b.WriteString(generated[cursor:])
	result.Text = b.String()

	if len(excess) > 0 {
		categories := make([]string, 0, len(excess))
		for c := range excess {
			categories = append(categories, c)
		}
		sort.Strings(categories)
		for _, c := range categories {
			result.Exhausted = append(result.Exhausted, MappingExhausted{Category: c, Excess: excess[c]})
		}
	}

	return result, nil
}
