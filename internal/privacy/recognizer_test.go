package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPatternRecognizerRejectsBadDefinitions(t *testing.T) {
	cases := []struct {
		name     string
		recName  string
		category string
		expr     string
		score    float64
	}{
		{"malformed regex", "bad", "US_SSN", `(\d{3}`, 0.9},
		{"empty regex", "empty", "US_SSN", "", 0.9},
		{"empty name", "", "US_SSN", `\d+`, 0.9},
		{"lowercase category", "lower", "email", `\d+`, 0.9},
		{"score above one", "hi", "US_SSN", `\d+`, 1.5},
		{"negative score", "lo", "US_SSN", `\d+`, -0.1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, err := NewPatternRecognizer(tc.recName, tc.category, tc.expr, tc.score)
			require.Error(t, err)
			assert.Nil(t, rec)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestPatternRecognizerDetect(t *testing.T) {
	rec, err := NewPatternRecognizer("Force_SSN", "US_SSN", `\b\d{3}-\d{2}-\d{4}\b`, 0.9)
	require.NoError(t, err)

	text := "SSN 123-45-6789 and 987-65-4321."
	dets, err := rec.Detect(text)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "123-45-6789", text[dets[0].Start:dets[0].End])
	assert.Equal(t, "987-65-4321", text[dets[1].Start:dets[1].End])
	assert.Equal(t, "US_SSN", dets[0].Category)
	assert.Equal(t, 0.9, dets[0].Score)
	assert.Equal(t, "Force_SSN", dets[0].Recognizer)
}

func TestPatternRecognizerSkipsEmptyMatches(t *testing.T) {
	rec, err := NewPatternRecognizer("opt", "DIGITS", `\d*`, 0.5)
	require.NoError(t, err)

	dets, err := rec.Detect("ab12cd")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 2, dets[0].Start)
	assert.Equal(t, 4, dets[0].End)
}

func TestPatternRecognizerValidator(t *testing.T) {
	rec, err := NewPatternRecognizer("cc", "CREDIT_CARD", `\b\d{16}\b`, 0.5, WithValidator(validators["luhn"]))
	require.NoError(t, err)

	dets, err := rec.Detect("valid 4111111111111111 invalid 4111111111111112")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 6, dets[0].Start)
}

func TestDenyListRecognizer(t *testing.T) {
	rec, err := NewDenyListRecognizer("Jargon_List", "CUSTOM_JARGON", []string{"Skynet", " Project Apollo ", "", "Apollo"}, 1.0, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"Project Apollo", "Skynet", "Apollo"}, rec.Terms())

	t.Run("case insensitive and longest term wins", func(t *testing.T) {
		text := "Status of project apollo and SKYNET."
		dets, err := rec.Detect(text)
		require.NoError(t, err)
		require.Len(t, dets, 2)
		assert.Equal(t, "project apollo", text[dets[0].Start:dets[0].End])
		assert.Equal(t, "SKYNET", text[dets[1].Start:dets[1].End])
		assert.Equal(t, 1.0, dets[0].Score)
	})

	t.Run("word boundaries", func(t *testing.T) {
		dets, err := rec.Detect("Skynetwork and unApollo are different")
		require.NoError(t, err)
		assert.Empty(t, dets)
	})

	t.Run("retries after rejected boundary", func(t *testing.T) {
		text := "xSkynet Skynet"
		dets, err := rec.Detect(text)
		require.NoError(t, err)
		require.Len(t, dets, 1)
		assert.Equal(t, 8, dets[0].Start)
	})
}

func TestDenyListRecognizerCaseSensitive(t *testing.T) {
	rec, err := NewDenyListRecognizer("codes", "CODENAME", []string{"Falcon"}, 0.8, true)
	require.NoError(t, err)

	dets, err := rec.Detect("falcon Falcon FALCON")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 7, dets[0].Start)
	assert.Equal(t, 0.8, dets[0].Score)
}

func TestDenyListRecognizerRequiresTerms(t *testing.T) {
	_, err := NewDenyListRecognizer("empty", "CUSTOM_JARGON", []string{" ", ""}, 1.0, false)
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}

func TestDenyListRecognizerQuotesMetacharacters(t *testing.T) {
	rec, err := NewDenyListRecognizer("meta", "CUSTOM_JARGON", []string{"C++ (v2)"}, 1.0, false)
	require.NoError(t, err)

	text := "We ship C++ (v2) soon"
	dets, err := rec.Detect(text)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, "C++ (v2)", text[dets[0].Start:dets[0].End])
}

func TestDenyListRecognizerFallsBackToShorterTerm(t *testing.T) {
	rec, err := NewDenyListRecognizer("places", "CUSTOM_JARGON", []string{"New York", "New"}, 1.0, false)
	require.NoError(t, err)

	text := "New Yorker arrived in new york"
	dets, err := rec.Detect(text)
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, "New", text[dets[0].Start:dets[0].End])
	assert.Equal(t, "new york", text[dets[1].Start:dets[1].End])
}
