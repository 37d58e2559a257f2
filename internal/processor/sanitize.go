package processor

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Sanitizer cleans raw engine text. Sanitize is idempotent.
type Sanitizer struct {
	// Corrections enables the heuristic corrector. Its substitutions are
	// context-free guesses at common recognition confusions and can turn
	// correct text into wrong text.
	Corrections bool
}

// Sanitize applies the character filter, Unicode NFC, the whitespace
// normalizer and, when enabled, the heuristic corrector.
func (s Sanitizer) Sanitize(text string) string {
	out := FilterCharacters(text)
	out = norm.NFC.String(out)
	out = NormalizeWhitespace(out)
	if s.Corrections {
		out = Correct(out)
		out = norm.NFC.String(out)
	}
	return out
}

// FilterCharacters keeps printable ASCII and valid multi-byte UTF-8,
// collapses CR/LF runs to a single newline, maps tab to a space and drops
// every other control character and invalid byte.
func FilterCharacters(text string) string {
	var b strings.Builder
	b.Grow(len(text))

	inBreak := false
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		i += size

		if r == '\r' || r == '\n' {
			if !inBreak {
				b.WriteByte('\n')
				inBreak = true
			}
			continue
		}
		inBreak = false

		switch {
		case r == utf8.RuneError && size == 1:
			// invalid byte
		case r == '\t':
			b.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeWhitespace collapses every whitespace run, newlines included, to
// one space and trims both ends.
func NormalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// letter pair confusions, applied until nothing changes
var pairCorrections = strings.NewReplacer(
	"rn", "m",
	"vv", "w",
	"VV", "W",
	"cl", "d",
	"II", "ll",
)

// digits commonly recognized in place of letters
var digitCorrections = map[rune]rune{
	'0': 'O',
	'1': 'l',
	'5': 'S',
	'8': 'B',
}

// Correct applies the heuristic substitution table. Digits are replaced
// only when the nearest non-mark runes on both sides are letters; letter
// pairs are replaced until a fixpoint.
func Correct(text string) string {
	out := correctDigits(text)
	for {
		next := pairCorrections.Replace(out)
		if next == out {
			return out
		}
		out = next
	}
}

func correctDigits(text string) string {
	runes := []rune(text)
	out := make([]rune, len(runes))
	copy(out, runes)

	for i, r := range runes {
		sub, ok := digitCorrections[r]
		if !ok {
			continue
		}
		if letterAt(runes, i, -1) && letterAt(runes, i, +1) {
			out[i] = sub
		}
	}
	return string(out)
}

// letterAt reports whether the first non-mark rune from i in direction dir
// is a letter.
func letterAt(runes []rune, i, dir int) bool {
	for j := i + dir; j >= 0 && j < len(runes); j += dir {
		if unicode.IsMark(runes[j]) {
			continue
		}
		return unicode.IsLetter(runes[j])
	}
	return false
}

// CountWords counts maximal runs of non-whitespace characters.
func CountWords(text string) int {
	return len(strings.Fields(text))
}

// CountChars counts characters (runes), not bytes.
func CountChars(text string) int {
	return utf8.RuneCountInString(text)
}
