package privacy

import "sort"

// Detection is one recognized occurrence of a category within a text span.
// Start and End are byte offsets into the scanned text, End exclusive.
type Detection struct {
	Category   string  `json:"category"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Recognizer string  `json:"recognizer,omitempty"`
}

// Len returns the span length in bytes.
func (d Detection) Len() int { return d.End - d.Start }

func (d Detection) overlaps(o Detection) bool {
	return d.Start < o.End && o.Start < d.End
}

// MaskEntry records a single masked span.
type MaskEntry struct {
	OccurrenceID string `json:"occurrence_id"`
	Category     string `json:"category"`
	Start        int    `json:"start"`
	End          int    `json:"end"`
	// Passthrough marks a placeholder-shaped token that was already in the
	// input. It restores to itself and is not a masked span.
	Passthrough bool `json:"passthrough,omitempty"`
}

// MaskMapping is the span-to-placeholder record of one masking operation.
// Entries are kept in the order the detections were supplied.
type MaskMapping struct {
	ID      string      `json:"id"`
	Entries []MaskEntry `json:"entries"`
}

// Len returns the number of masked spans. Passthrough entries do not count.
func (m MaskMapping) Len() int {
	n := 0
	for _, e := range m.Entries {
		if !e.Passthrough {
			n++
		}
	}
	return n
}

// ByCategory returns the entries of one category ordered by position. The
// n-th placeholder of that category in the masked text stands for the n-th
// entry returned here.
func (m MaskMapping) ByCategory(category string) []MaskEntry {
	var out []MaskEntry
	for _, e := range m.Entries {
		if e.Category == category {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// CategoryCounts aggregates detections per category.
func CategoryCounts(detections []Detection) map[string]int {
	counts := make(map[string]int)
	for _, d := range detections {
		counts[d.Category]++
	}
	return counts
}

// Placeholder returns the token substituted for a span of the given category.
func Placeholder(category string) string {
	return "<" + category + ">"
}
