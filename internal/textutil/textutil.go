// Package textutil normalizes free text written by reviewers.
package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Clean squeezes noise out of review text before it is measured or sent to
// a language model: runs of three or more identical characters collapse to
// one ("holaaaa" -> "hola", "!!!" -> "!"), doubled sentence punctuation
// collapses too ("..", "??", "--"), and whitespace runs become one space.
func Clean(s string) string {
	if s == "" {
		return ""
	}
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(s))

	space := false
	for i := 0; i < len(runes); {
		r := runes[i]
		j := i + 1
		for j < len(runes) && runes[j] == r {
			j++
		}
		run := j - i

		if unicode.IsSpace(r) {
			space = true
			i = j
			continue
		}
		if space {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			space = false
		}

		switch {
		case run >= 3:
			b.WriteRune(r)
		case run == 2 && isSqueezable(r):
			b.WriteRune(r)
		default:
			for range run {
				b.WriteRune(r)
			}
		}
		i = j
	}
	return b.String()
}

func isSqueezable(r rune) bool {
	switch r {
	case '.', '!', '?', '-':
		return true
	}
	return false
}

// Length returns the rune count of the cleaned text.
func Length(s string) int {
	return utf8.RuneCountInString(Clean(s))
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
