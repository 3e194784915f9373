package privacy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raaihank/pii-gateway/internal/config"
)

const recognizerYAML = `
recognizers:
  - name: Employee_ID
    supported_entity: EMPLOYEE_ID
    patterns:
      - name: emp
        regex: "\\bEMP-\\d{6}\\b"
        score: 0.8
  - name: Email
    supported_entity: EMAIL_ADDRESS
    enabled: false
  - name: Codenames
    supported_entity: CODENAME
    deny_list: ["Bluebird", "Nightjar"]
    deny_list_score: 0.7
`

func TestParseRecognizerFile(t *testing.T) {
	rf, err := ParseRecognizerFile([]byte(recognizerYAML))
	require.NoError(t, err)
	require.Len(t, rf.Recognizers, 3)

	emp := rf.Recognizers[0]
	assert.Equal(t, "EMPLOYEE_ID", emp.SupportedEntity)
	require.Len(t, emp.Patterns, 1)
	assert.Equal(t, `\bEMP-\d{6}\b`, emp.Patterns[0].Regex)
	assert.True(t, emp.IsEnabled())
	assert.False(t, rf.Recognizers[1].IsEnabled())
	assert.Equal(t, []string{"Bluebird", "Nightjar"}, rf.Recognizers[2].DenyList)
}

func TestParseRecognizerFileMalformed(t *testing.T) {
	_, err := ParseRecognizerFile([]byte("recognizers: [unterminated"))
	assert.Error(t, err)
}

func TestLoadRecognizerFileMissing(t *testing.T) {
	rf, err := LoadRecognizerFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Nil(t, rf)
}

func TestMergeRecognizersReplacesByName(t *testing.T) {
	base := []config.RecognizerConfig{{Name: "A", SupportedEntity: "A"}, {Name: "B", SupportedEntity: "B"}}
	override := []config.RecognizerConfig{{Name: "B", SupportedEntity: "B2"}, {Name: "C", SupportedEntity: "C"}}

	merged := MergeRecognizers(base, override)
	require.Len(t, merged, 3)
	assert.Equal(t, "A", merged[0].Name)
	assert.Equal(t, "B2", merged[1].SupportedEntity)
	assert.Equal(t, "C", merged[2].Name)
}

func TestBuild(t *testing.T) {
	t.Run("multi pattern", func(t *testing.T) {
		recs, err := Build(config.RecognizerConfig{
			Name:            "Ids",
			SupportedEntity: "ID",
			Patterns: []config.PatternConfig{
				{Name: "one", Regex: `ID1-\d+`, Score: 0.5},
				{Name: "two", Regex: `ID2-\d+`, Score: 0.6},
			},
		})
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "Ids/one", recs[0].Name())
		assert.Equal(t, "Ids/two", recs[1].Name())
	})

	t.Run("disabled", func(t *testing.T) {
		off := false
		recs, err := Build(config.RecognizerConfig{Name: "Off", SupportedEntity: "X", Enabled: &off})
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	invalid := map[string]config.RecognizerConfig{
		"no patterns": {Name: "Empty", SupportedEntity: "X"},
		"bad regex": {Name: "Bad", SupportedEntity: "X", Patterns: []config.PatternConfig{
			{Name: "p", Regex: `[unclosed`, Score: 0.5},
		}},
		"unknown validator": {Name: "V", SupportedEntity: "X", Validator: "crc", Patterns: []config.PatternConfig{
			{Name: "p", Regex: `\d+`, Score: 0.5},
		}},
		"deny list with patterns": {Name: "Both", SupportedEntity: "X", DenyList: []string{"a"}, Patterns: []config.PatternConfig{
			{Name: "p", Regex: `\d+`, Score: 0.5},
		}},
	}
	for name, def := range invalid {
		t.Run(name, func(t *testing.T) {
			_, err := Build(def)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
		})
	}
}

func TestBuildRegistryLayersFileAndInline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recognizers.yaml")
	require.NoError(t, os.WriteFile(path, []byte(recognizerYAML), 0o600))

	cfg := config.GetDefaults().Privacy
	cfg.RecognizersFile = path
	cfg.Recognizers = []config.RecognizerConfig{{
		Name:            "Force_SSN",
		SupportedEntity: "US_SSN",
		Patterns:        []config.PatternConfig{{Name: "strict", Regex: `\bSSN#\d{9}\b`, Score: 0.95}},
	}}

	reg, err := BuildRegistry(cfg)
	require.NoError(t, err)

	names := reg.Names()
	assert.Equal(t, "Force_SSN", names[0])
	assert.NotContains(t, names, "Email")
	assert.Contains(t, names, "Employee_ID")
	assert.Contains(t, names, "Codenames")
	assert.Equal(t, JargonRecognizerName, names[len(names)-1])

	text := "EMP-123456 met Bluebird, old SSN 123-45-6789, new SSN#123456789, mail a@b.com"
	dets, err := NewDetector(reg, nil).Detect(context.Background(), text, nil, 0.4)
	require.NoError(t, err)

	got := map[string][]string{}
	for _, d := range dets {
		got[d.Category] = append(got[d.Category], text[d.Start:d.End])
	}
	assert.Equal(t, []string{"EMP-123456"}, got["EMPLOYEE_ID"])
	assert.Equal(t, []string{"Bluebird"}, got["CODENAME"])
	assert.Equal(t, []string{"SSN#123456789"}, got["US_SSN"])
	assert.NotContains(t, got, "EMAIL_ADDRESS")
}

func TestBuildRegistryWithoutBuiltins(t *testing.T) {
	reg, err := BuildRegistry(config.PrivacyConfig{DisableBuiltins: true})
	require.NoError(t, err)
	assert.Zero(t, reg.Len())
}

func TestSetJargon(t *testing.T) {
	reg, err := BuildRegistry(config.GetDefaults().Privacy)
	require.NoError(t, err)
	before := reg.Len()

	require.NoError(t, SetJargon(reg, []string{"Orion"}, false))
	assert.Equal(t, before, reg.Len())

	rec, ok := reg.Get(JargonRecognizerName)
	require.True(t, ok)
	dets, err := rec.Detect("orion and Skynet")
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, 0, dets[0].Start)

	require.NoError(t, SetJargon(reg, []string{" ", ""}, false))
	_, ok = reg.Get(JargonRecognizerName)
	assert.False(t, ok)
	assert.Equal(t, before-1, reg.Len())
}

func TestParseTermList(t *testing.T) {
	assert.Equal(t, []string{"Project Apollo", "Skynet"}, ParseTermList(" Project Apollo , ,Skynet,"))
	assert.Empty(t, ParseTermList(""))
}

func TestChecksumValidators(t *testing.T) {
	assert.True(t, luhnValid("4111111111111111"))
	assert.True(t, luhnValid("79927398713"))
	assert.False(t, luhnValid("4111111111111112"))
	assert.False(t, luhnValid("1"))

	iban := validators["iban"]
	assert.True(t, iban("GB82 WEST 1234 5698 7654 32"))
	assert.True(t, iban("DE89370400440532013000"))
	assert.False(t, iban("GB82 WEST 1234 5698 7654 33"))
	assert.False(t, iban("GB8"))
}

func TestDefaultsMaskCreditCardsAndIBAN(t *testing.T) {
	text := "Card 4111 1111 1111 1111 and IBAN DE89370400440532013000"
	dets, err := defaultDetector(t).Detect(context.Background(), text, nil, 0.4)
	require.NoError(t, err)

	cats := map[string]string{}
	for _, d := range dets {
		cats[d.Category] = text[d.Start:d.End]
	}
	assert.Equal(t, "4111 1111 1111 1111", cats["CREDIT_CARD"])
	assert.Equal(t, "DE89370400440532013000", cats["IBAN_CODE"])
}
