// Package quality scores recognized text and decides whether it can be trusted.
package quality

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Thresholds tune the validator. Every field is used as given, so a zero
// ratio is a real limit; only the zero Thresholds means DefaultThresholds.
// Start from DefaultThresholds to override a few values.
type Thresholds struct {
	MinValidCharRatio      float64 `toml:"min_valid_char_ratio" yaml:"min_valid_char_ratio" json:"min_valid_char_ratio"`
	MaxSpecialCharRatio    float64 `toml:"max_special_char_ratio" yaml:"max_special_char_ratio" json:"max_special_char_ratio"`
	MinWordLen             int     `toml:"min_word_len" yaml:"min_word_len" json:"min_word_len"`
	MaxWordLen             int     `toml:"max_word_len" yaml:"max_word_len" json:"max_word_len"`
	MaxOutOfRangeWordRatio float64 `toml:"max_out_of_range_word_ratio" yaml:"max_out_of_range_word_ratio" json:"max_out_of_range_word_ratio"`
	MinWords               int     `toml:"min_words" yaml:"min_words" json:"min_words"`
	MinAvgWordLen          float64 `toml:"min_avg_word_len" yaml:"min_avg_word_len" json:"min_avg_word_len"`
	MaxAvgWordLen          float64 `toml:"max_avg_word_len" yaml:"max_avg_word_len" json:"max_avg_word_len"`
	MaxSingleCharRatio     float64 `toml:"max_single_char_ratio" yaml:"max_single_char_ratio" json:"max_single_char_ratio"`
	MinWordLikeRatio       float64 `toml:"min_word_like_ratio" yaml:"min_word_like_ratio" json:"min_word_like_ratio"`
	RepeatRun              int     `toml:"repeat_run" yaml:"repeat_run" json:"repeat_run"`
	MaxArtifactRatio       float64 `toml:"max_artifact_ratio" yaml:"max_artifact_ratio" json:"max_artifact_ratio"`
	FailLine               float64 `toml:"fail_line" yaml:"fail_line" json:"fail_line"`
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinValidCharRatio:      0.80,
		MaxSpecialCharRatio:    0.15,
		MinWordLen:             1,
		MaxWordLen:             20,
		MaxOutOfRangeWordRatio: 0.08,
		MinWords:               3,
		MinAvgWordLen:          2,
		MaxAvgWordLen:          15,
		MaxSingleCharRatio:     0.30,
		MinWordLikeRatio:       0.40,
		RepeatRun:              5,
		MaxArtifactRatio:       0.10,
		FailLine:               0.30,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	if t == (Thresholds{}) {
		return DefaultThresholds()
	}
	return t
}

// Soft signal weights. Their sum against FailLine decides a verdict once the
// hard checks hold.
const (
	weightWordLength = 0.15
	weightAvgLength  = 0.25
	weightSingleChar = 0.20
	weightWordLike   = 0.30
	weightArtifacts  = 0.30

	// confidence ceiling when a hard check fails
	hardFailConfidence = 0.25
)

// Metrics are the raw measurements behind a verdict.
type Metrics struct {
	Chars           int     `json:"chars"`
	NonSpace        int     `json:"non_space"`
	Special         int     `json:"special"`
	ValidRatio      float64 `json:"valid_ratio"`
	SpecialRatio    float64 `json:"special_ratio"`
	Words           int     `json:"words"`
	OutOfRangeWords int     `json:"out_of_range_words"`
	AvgWordLen      float64 `json:"avg_word_len"`
	SingleCharRatio float64 `json:"single_char_ratio"`
	WordLikeRatio   float64 `json:"word_like_ratio"`
	ArtifactWords   int     `json:"artifact_words"`
	ArtifactRatio   float64 `json:"artifact_ratio"`
	Penalty         float64 `json:"penalty"`
}

// Verdict is the judgment on one piece of text. It is never persisted.
type Verdict struct {
	Pass       bool     `json:"pass"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons,omitempty"`
	Metrics    Metrics  `json:"metrics"`
}

// Validator applies Thresholds. It holds no mutable state and is safe for
// concurrent use.
type Validator struct {
	t Thresholds
}

func NewValidator(t Thresholds) *Validator {
	return &Validator{t: t.withDefaults()}
}

// Thresholds returns the effective thresholds.
func (v *Validator) Thresholds() Thresholds { return v.t }

// Validate scores text. A failing verdict is data, never an error.
func (v *Validator) Validate(text string) Verdict {
	t := v.t
	var m Metrics
	var reasons []string

	m.Chars = utf8.RuneCountInString(text)
	if strings.TrimSpace(text) == "" {
		return Verdict{Pass: false, Confidence: 0, Reasons: []string{"empty text"}, Metrics: m}
	}

	tokens := strings.Fields(text)
	spaces := m.Chars
	var (
		wordLens    int
		singles     int
		wordLike    int
		artifacts   int
		outOfRange  int
		wordCount   int
		validNonSps int
	)
	for _, tok := range tokens {
		n, special := classifyToken(tok)
		spaces -= n
		m.NonSpace += n
		m.Special += special
		validNonSps += n - special

		w := trimPunct(tok)
		if w == "" {
			continue
		}
		wordCount++
		l := utf8.RuneCountInString(w)
		wordLens += l
		if l == 1 {
			singles++
		}
		if l < t.MinWordLen || l > t.MaxWordLen {
			outOfRange++
		}
		if isWordLike(w) {
			wordLike++
		}
		if hasRepeatRun(w, t.RepeatRun) {
			artifacts++
		}
	}

	m.ValidRatio = float64(spaces+validNonSps) / float64(m.Chars)
	if m.NonSpace > 0 {
		m.SpecialRatio = float64(m.Special) / float64(m.NonSpace)
	}
	m.Words = wordCount
	m.OutOfRangeWords = outOfRange
	m.ArtifactWords = artifacts
	if wordCount > 0 {
		wc := float64(wordCount)
		m.AvgWordLen = float64(wordLens) / wc
		m.SingleCharRatio = float64(singles) / wc
		m.WordLikeRatio = float64(wordLike) / wc
		m.ArtifactRatio = float64(artifacts) / wc
	}

	hardOK := true
	if m.ValidRatio < t.MinValidCharRatio {
		hardOK = false
		reasons = append(reasons, fmt.Sprintf("valid character ratio %.2f below %.2f", m.ValidRatio, t.MinValidCharRatio))
	}
	if m.SpecialRatio > t.MaxSpecialCharRatio {
		hardOK = false
		reasons = append(reasons, fmt.Sprintf("special character ratio %.2f above %.2f", m.SpecialRatio, t.MaxSpecialCharRatio))
	}
	if wordCount < t.MinWords {
		hardOK = false
		reasons = append(reasons, fmt.Sprintf("%d words, need at least %d", wordCount, t.MinWords))
	}

	var penalty float64
	if wordCount > 0 {
		oor := float64(outOfRange) / float64(wordCount)
		if oor > 0.5 {
			hardOK = false
			reasons = append(reasons, fmt.Sprintf("words outside %d..%d characters dominate (%.2f)", t.MinWordLen, t.MaxWordLen, oor))
		} else if oor > t.MaxOutOfRangeWordRatio {
			penalty += weightWordLength
			reasons = append(reasons, fmt.Sprintf("%.2f of words outside %d..%d characters", oor, t.MinWordLen, t.MaxWordLen))
		}
		if m.AvgWordLen < t.MinAvgWordLen || m.AvgWordLen > t.MaxAvgWordLen {
			penalty += weightAvgLength
			reasons = append(reasons, fmt.Sprintf("average word length %.1f outside %.0f..%.0f", m.AvgWordLen, t.MinAvgWordLen, t.MaxAvgWordLen))
		}
		if m.SingleCharRatio > t.MaxSingleCharRatio {
			penalty += weightSingleChar
			reasons = append(reasons, fmt.Sprintf("single character word ratio %.2f above %.2f", m.SingleCharRatio, t.MaxSingleCharRatio))
		}
		if m.WordLikeRatio < t.MinWordLikeRatio {
			penalty += weightWordLike
			reasons = append(reasons, fmt.Sprintf("word-like ratio %.2f below %.2f", m.WordLikeRatio, t.MinWordLikeRatio))
		}
		if m.ArtifactRatio > t.MaxArtifactRatio {
			penalty += weightArtifacts
			reasons = append(reasons, fmt.Sprintf("repeated character artifacts in %.2f of words", m.ArtifactRatio))
		}
	}
	m.Penalty = penalty

	conf := 1 - penalty
	if !hardOK && conf > hardFailConfidence {
		conf = hardFailConfidence
	}
	if conf < 0 {
		conf = 0
	}

	return Verdict{
		Pass:       hardOK && penalty < t.FailLine,
		Confidence: conf,
		Reasons:    reasons,
		Metrics:    m,
	}
}

// Validate scores text with the default thresholds.
func Validate(text string) Verdict {
	return defaultValidator.Validate(text)
}

var defaultValidator = NewValidator(DefaultThresholds())

func isCommonPunct(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '\'', '"', '(', ')', '-', '!', '?', '/':
		return true
	}
	return false
}

// classifyToken returns the rune count of tok and how many of its runes fall
// outside the validity set. Digits sitting inside a token that also has
// letters are the usual OCR substitutions (0 for O, 1 for l) and count as
// special.
func classifyToken(tok string) (n, special int) {
	hasLetter := false
	for _, r := range tok {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	for _, r := range tok {
		n++
		switch {
		case unicode.IsLetter(r), isCommonPunct(r):
		case unicode.IsDigit(r):
			if hasLetter {
				special++
			}
		default:
			special++
		}
	}
	return n, special
}

func trimPunct(tok string) string {
	return strings.TrimFunc(tok, isCommonPunct)
}

// isWordLike: starts with a letter, then letters with at most one digit run;
// apostrophes and hyphens may join letters.
func isWordLike(w string) bool {
	digitRuns := 0
	inDigits := false
	for i, r := range w {
		switch {
		case unicode.IsLetter(r):
			inDigits = false
		case unicode.IsDigit(r):
			if i == 0 {
				return false
			}
			if !inDigits {
				digitRuns++
				inDigits = true
			}
		case (r == '\'' || r == '-' || r == '’') && i > 0:
			inDigits = false
		default:
			return false
		}
	}
	return digitRuns <= 1
}

// hasRepeatRun reports a run of at least n identical runes. Runs of x, 0 and
// leader characters are common in real documents and ignored.
func hasRepeatRun(w string, n int) bool {
	if n <= 1 {
		return false
	}
	var prev rune
	run := 0
	for _, r := range w {
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run >= n {
			switch r {
			case 'x', 'X', '0', '-', '_', '.':
				continue
			}
			return true
		}
	}
	return false
}
