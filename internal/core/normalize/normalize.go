// Package normalize cleans extracted and recognized text.
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	reLineBreaks = regexp.MustCompile("\r\n|[\r\f\v\u0085\u2028\u2029]")
	// explicit page markers only: "Page 3", "Page 3 of 10", "- 3 -"
	rePageNumber = regexp.MustCompile(`(?i)^(?:page ?\d{1,4}(?: ?(?:of|/) ?\d{1,4})?|[-–—] ?\d{1,4} ?[-–—])$`)
)

// minPunctRun is the shortest punctuation-only token treated as scan noise.
const minPunctRun = 3

// Text normalizes s. It is deterministic and idempotent:
// Text(Text(s)) == Text(s).
//
// In order: line breaks become "\n"; control and format characters other
// than newline and tab are dropped; punctuation-only tokens of three or more
// characters and page marker lines ("Page 3 of 10", "- 3 -") are removed;
// bare numbers are content and stay; whitespace runs collapse
// to one space and paragraph breaks to a single newline.
func Text(s string) string {
	if s == "" {
		return s
	}
	s = reLineBreaks.ReplaceAllString(s, "\n")
	s = stripControl(s)

	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, ln := range lines {
		ln = cleanLine(ln)
		if ln == "" || rePageNumber.MatchString(ln) {
			continue
		}
		out = append(out, ln)
	}
	return strings.Join(out, "\n")
}

// Lines normalizes s and returns its non-empty lines.
func Lines(s string) []string {
	s = Text(s)
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func stripControl(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if r == utf8.RuneError || unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, s)
}

// cleanLine collapses whitespace in one line and drops punctuation runs.
func cleanLine(ln string) string {
	fields := strings.Fields(ln)
	kept := fields[:0]
	for _, f := range fields {
		if isPunctRun(f) {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func isPunctRun(tok string) bool {
	if utf8.RuneCountInString(tok) < minPunctRun {
		return false
	}
	for _, r := range tok {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}
