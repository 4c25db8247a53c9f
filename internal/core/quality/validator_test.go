package quality

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_PlainSentencePasses(t *testing.T) {
	v := Validate("The quick brown fox jumped over the lazy dog")

	assert.True(t, v.Pass, "reasons: %v", v.Reasons)
	assert.Empty(t, v.Reasons)
	assert.InDelta(t, 1.0, v.Confidence, 1e-9)
	assert.Equal(t, 9, v.Metrics.Words)
	assert.InDelta(t, 4.0, v.Metrics.AvgWordLen, 1e-9)
	assert.Zero(t, v.Metrics.SpecialRatio)
}

func TestValidate_SubstitutedSentenceFailsSpecialRatio(t *testing.T) {
	v := Validate("Th3 qu1ck br0wn f0x jum*ped ov&r th& l@zy d0g")

	assert.False(t, v.Pass)
	assert.Greater(t, v.Metrics.SpecialRatio, DefaultThresholds().MaxSpecialCharRatio)
	assert.Equal(t, 9, v.Metrics.Special)
	assert.LessOrEqual(t, v.Confidence, hardFailConfidence)

	found := false
	for _, r := range v.Reasons {
		if strings.Contains(r, "special character ratio") {
			found = true
		}
	}
	assert.True(t, found, "reasons: %v", v.Reasons)
}

func TestValidate_Deterministic(t *testing.T) {
	text := "Invoice 2024-03 total 45.00 paid by card ending 1234"
	first := Validate(text)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, Validate(text))
	}
}

func TestValidate_HardChecks(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		reason string
	}{
		{"empty", "   \n\t ", "empty text"},
		{"too few words", "hello world", "words, need at least"},
		{"symbol soup", "#### @@@ $$$ %%% ^^^ &&& hello there friend", "valid character ratio"},
		{"long words dominate", "aaaaabbbbbcccccdddddeeeee fffffggggghhhhhiiiiijjjjj kkkkklllllmmmmmnnnnnooooo ok", "dominate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Validate(tt.text)
			assert.False(t, v.Pass)
			require.NotEmpty(t, v.Reasons)
			assert.Contains(t, strings.Join(v.Reasons, "; "), tt.reason)
		})
	}
}

func TestValidate_SoftSignals(t *testing.T) {
	// One soft signal alone stays under the failure line.
	v := Validate("a b c d e f g the quick brown fox jumps")
	assert.Greater(t, v.Metrics.SingleCharRatio, 0.30)
	assert.True(t, v.Pass, "reasons: %v", v.Reasons)
	assert.InDelta(t, 1-weightSingleChar, v.Confidence, 1e-9)

	// Repeated-character artifacts on their own cross it.
	v = Validate("heeeeello wooooorld theeeeere friend")
	assert.False(t, v.Pass)
	assert.Equal(t, 3, v.Metrics.ArtifactWords)
}

func TestValidate_IgnoresRedactionRuns(t *testing.T) {
	v := Validate("Account XXXXXXXX1234 balance 100000 due soon")
	assert.Zero(t, v.Metrics.ArtifactWords)
}

func TestValidate_NumbersAreValid(t *testing.T) {
	v := Validate("Total 1250.00 due 2024/05/01 net 30 days")
	assert.True(t, v.Pass, "reasons: %v", v.Reasons)
	assert.Zero(t, v.Metrics.Special)
}

func TestNewValidator_Overrides(t *testing.T) {
	th := DefaultThresholds()
	th.MinWords = 20
	strict := NewValidator(th)
	v := strict.Validate("The quick brown fox jumped over the lazy dog")
	assert.False(t, v.Pass)
	assert.Equal(t, 0.15, strict.Thresholds().MaxSpecialCharRatio)

	assert.Equal(t, DefaultThresholds(), NewValidator(Thresholds{}).Thresholds())
}

func TestNewValidator_ZeroLimitsAreHonored(t *testing.T) {
	text := "The quick brown fox jumped over the lazy d0g"
	require.True(t, Validate(text).Pass)

	th := DefaultThresholds()
	th.MaxSpecialCharRatio = 0
	th.MaxArtifactRatio = 0
	v := NewValidator(th)
	assert.Equal(t, 0.0, v.Thresholds().MaxSpecialCharRatio)
	assert.Equal(t, 0.0, v.Thresholds().MaxArtifactRatio)

	got := v.Validate(text)
	assert.False(t, got.Pass)
	assert.Contains(t, got.Reasons[0], "special character ratio")
}

func TestIsWordLike(t *testing.T) {
	tests := map[string]bool{
		"hello":      true,
		"Th3":        true,
		"don't":      true,
		"well-known": true,
		"a1b2":       false,
		"3rd":        false,
		"l@zy":       false,
	}
	for w, want := range tests {
		assert.Equal(t, want, isWordLike(w), w)
	}
}
