package agent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	countRe  = regexp.MustCompile(`\d[\d.,\s\x{00a0}]*`)
	ratingRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)
)

// ParseCount reads a displayed total such as "(1.234)", "1,234 reviews" or
// "2 345 opiniones". Thousands separators are dropped. Unreadable text gives 0.
func ParseCount(text string) int {
	m := countRe.FindString(text)
	if m == "" {
		return 0
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, m)
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0
	}
	return n
}

// ParseRating reads the first decimal number in text, accepting a comma as
// decimal separator ("4,5 estrellas", "Rated 4.0 out of 5").
func ParseRating(text string) *float64 {
	m := ratingRe.FindString(text)
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(strings.Replace(m, ",", ".", 1), 64)
	if err != nil {
		return nil
	}
	return &v
}
