// Package fingerprint derives the stable identity of a feedback item.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"placewatch/internal/model"
)

// PrefixLength is the number of leading runes of the item text that take
// part in the identity. Edits past the prefix do not change the fingerprint.
const PrefixLength = 50

// Size is the length in characters of every fingerprint.
const Size = 32

// Of returns the fingerprint of an item of target targetID.
// Missing fields are treated as empty strings.
func Of(targetID, author, dateText, text string) string {
	var b strings.Builder
	b.WriteString(targetID)
	b.WriteByte('|')
	b.WriteString(normalize(author))
	b.WriteByte('|')
	b.WriteString(normalize(dateText))
	b.WriteByte('|')
	b.WriteString(normalize(prefix(text, PrefixLength)))

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:Size/2])
}

// FromRaw returns the fingerprint of an extracted item.
func FromRaw(targetID string, item model.RawItem) string {
	return Of(targetID, item.Author, item.DateText, item.Text)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func prefix(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
