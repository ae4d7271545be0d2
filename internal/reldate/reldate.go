// Package reldate turns the relative dates shown next to reviews
// ("hace 3 días", "a week ago") into approximate calendar dates.
package reldate

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

var numberWords = map[string]int{
	"un": 1, "una": 1, "uno": 1, "a": 1, "an": 1, "one": 1,
	"dos": 2, "two": 2,
	"tres": 3, "three": 3,
	"cuatro": 4, "four": 4,
	"cinco": 5, "five": 5,
	"seis": 6, "six": 6,
	"siete": 7, "seven": 7,
	"ocho": 8, "eight": 8,
	"nueve": 9, "nine": 9,
	"diez": 10, "ten": 10,
	"once": 11, "eleven": 11,
	"doce": 12, "twelve": 12,
}

type unit struct {
	prefixes []string
	step     time.Duration
}

// Months and years are approximated as 30 and 365 days.
var units = []unit{
	{[]string{"día", "dia", "day"}, 24 * time.Hour},
	{[]string{"semana", "week"}, 7 * 24 * time.Hour},
	{[]string{"mes", "month"}, 30 * 24 * time.Hour},
	{[]string{"año", "ano", "year"}, 365 * 24 * time.Hour},
	{[]string{"hora", "hour"}, time.Hour},
	{[]string{"minuto", "minute"}, time.Minute},
}

// Resolve returns the day text refers to, counted back from now, truncated
// to midnight UTC. Absolute dates in YYYY-MM-DD form are accepted as is.
// The second result is false when text names no known unit.
func Resolve(text string, now time.Time) (time.Time, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.DateOnly, text); err == nil {
		return t, true
	}

	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	amount := 0
	var step time.Duration
	for _, w := range words {
		if amount == 0 {
			n, err := strconv.Atoi(w)
			if err == nil {
				amount = n
				continue
			}
			if errors.Is(err, strconv.ErrRange) {
				return time.Time{}, false
			}
			if n, ok := numberWords[w]; ok {
				amount = n
				continue
			}
		}
		if step == 0 {
			step = unitOf(w)
		}
	}
	if step == 0 {
		return time.Time{}, false
	}
	if amount == 0 {
		amount = 1
	}
	if int64(amount) > math.MaxInt64/int64(step) {
		return time.Time{}, false
	}

	at := now.UTC().Add(-time.Duration(amount) * step)
	return time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, time.UTC), true
}

func unitOf(word string) time.Duration {
	for _, u := range units {
		for _, p := range u.prefixes {
			if strings.HasPrefix(word, p) {
				return u.step
			}
		}
	}
	return 0
}
