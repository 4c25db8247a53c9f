package normalize

import (
	"math/rand"
	"strings"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"collapses spaces and tabs", "hello   \t world", "hello world"},
		{"crlf and cr", "one\r\ntwo\rthree", "one\ntwo\nthree"},
		{"paragraph break becomes one newline", "first para\n\n\n  \nsecond para", "first para\nsecond para"},
		{"form feed page separator", "page one text\fpage two text", "page one text\npage two text"},
		{"control characters", "he\x00llo\x07 wor\u200bld\tend", "hello world end"},
		{"punctuation runs", "Total ........ 45.00\n-----------\n|||| noise", "Total 45.00\nnoise"},
		{"short punctuation kept", "a -- b ... c", "a -- b c"},
		{"page markers", "Intro text\n- 12 -\nPage 3 of 10\npage 4\n\u2014 5 \u2014\nmore text", "Intro text\nmore text"},
		{"bare numbers are content", "Invoice total\n1250\nItems shipped\n42\n3/4\nThanks", "Invoice total\n1250\nItems shipped\n42\n3/4\nThanks"},
		{"numbers inside text kept", "Room 12 is open", "Room 12 is open"},
		{"unicode spaces", "a\u00a0\u00a0b\u3000c", "a b c"},
		{"line separators", "a\u2028b\u2029c", "a\nb\nc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Text(tt.in))
		})
	}
}

func TestText_KeepsWordOrder(t *testing.T) {
	in := "zeta alpha\n\nmid   beta\tgamma"
	assert.Equal(t, []string{"zeta", "alpha", "mid", "beta", "gamma"}, strings.Fields(Text(in)))
}

func TestText_Idempotent(t *testing.T) {
	samples := []string{
		"--- 12 ---",
		"Page 4\n\n\n...\n",
		"a\r\n\r\nb\x01c \t\t d",
		"  ___ Heading ___  \n\f\n- 2 -\nBody text ....... 3",
		"\u0085 x\u200b",
		"Th3 qu1ck br0wn f0x jum*ped",
	}
	for _, s := range samples {
		once := Text(s)
		assert.Equal(t, once, Text(once), "input %q", s)
	}
}

func TestText_IdempotentRandom(t *testing.T) {
	alphabet := []rune("ab1 \t\n\r\f\v.-_|*Page of/\u00a0\u2028\u200b\x00é")
	gen := func(r *rand.Rand) string {
		n := r.Intn(64)
		var b strings.Builder
		for i := 0; i < n; i++ {
			b.WriteRune(alphabet[r.Intn(len(alphabet))])
		}
		return b.String()
	}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 2000; i++ {
		s := gen(r)
		once := Text(s)
		if !assert.Equal(t, once, Text(once), "input %q", s) {
			return
		}
	}

	f := func(s string) bool {
		once := Text(s)
		return Text(once) == once
	}
	assert.NoError(t, quick.Check(f, &quick.Config{MaxCount: 500}))
}

func TestLines(t *testing.T) {
	assert.Nil(t, Lines("  \n\n "))
	assert.Equal(t, []string{"a b", "c"}, Lines("a   b\n\n\nc"))
}
