package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-gateway/internal/config"
)

func mustPattern(t *testing.T, name, category, expr string, score float64) *PatternRecognizer {
	t.Helper()
	rec, err := NewPatternRecognizer(name, category, expr, score)
	require.NoError(t, err)
	return rec
}

func TestRegistryAddReplaceRemove(t *testing.T) {
	reg, err := NewRegistry(
		mustPattern(t, "a", "CAT_A", `a+`, 0.5),
		mustPattern(t, "b", "CAT_B", `b+`, 0.5),
		mustPattern(t, "c", "CAT_C", `c+`, 0.5),
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())

	replacement := mustPattern(t, "b", "CAT_B", `bb`, 0.9)
	require.NoError(t, reg.Add(replacement))
	assert.Equal(t, 3, reg.Len())
	assert.Equal(t, []string{"a", "b", "c"}, reg.Names())

	got, ok := reg.Get("b")
	require.True(t, ok)
	assert.Same(t, replacement, got)

	assert.True(t, reg.Remove("a"))
	assert.False(t, reg.Remove("a"))
	assert.False(t, reg.Remove("missing"))
	assert.Equal(t, []string{"b", "c"}, reg.Names())

	got, ok = reg.Get("c")
	require.True(t, ok)
	assert.Equal(t, "CAT_C", got.Category())

	_, ok = reg.Get("a")
	assert.False(t, ok)
}

func TestRegistryRejectsInvalidRecognizer(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	err = reg.Add(nil)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	err = reg.Add(&faultyRecognizer{name: "", category: "X"})
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Zero(t, reg.Len())
}

func TestRegistrySnapshotIsolation(t *testing.T) {
	reg, err := NewRegistry(mustPattern(t, "a", "CAT_A", `a+`, 0.5))
	require.NoError(t, err)

	snap := reg.Snapshot()
	require.NoError(t, reg.Add(mustPattern(t, "b", "CAT_B", `b+`, 0.5)))
	reg.Remove("a")

	require.Len(t, snap, 1)
	assert.Equal(t, "a", snap[0].Name())
	assert.Equal(t, []string{"b"}, reg.Names())
}

func TestRegistryRemoveDefinition(t *testing.T) {
	recs, err := Build(config.RecognizerConfig{
		Name:            "Ids",
		SupportedEntity: "ID",
		Patterns: []config.PatternConfig{
			{Name: "one", Regex: `ID1-\d+`, Score: 0.5},
			{Name: "two", Regex: `ID2-\d+`, Score: 0.6},
		},
	})
	require.NoError(t, err)
	reg, err := NewRegistry(append(recs,
		mustPattern(t, "Idsx", "OTHER", `x+`, 0.5),
		mustPattern(t, "tail", "TAIL", `t+`, 0.5),
	)...)
	require.NoError(t, err)

	assert.Equal(t, 2, reg.RemoveDefinition("Ids"))
	assert.Equal(t, []string{"Idsx", "tail"}, reg.Names())
	assert.Zero(t, reg.RemoveDefinition("Ids"))

	assert.Equal(t, 1, reg.RemoveDefinition("tail"))
	_, ok := reg.Get("Idsx")
	assert.True(t, ok)
}
