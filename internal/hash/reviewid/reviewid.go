// Package reviewid derives stable review identifiers from review content.
package reviewid

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// textPrefixLen bounds how much review text participates in identity, so
// trailing edits to long reviews do not spawn duplicate rows.
const textPrefixLen = 200

// New derives a 16-hex-char identifier from the fields that make a review
// unique. The same review crawled twice maps to the same ID.
func New(bookURL, author, publishedAt, text string) string {
	if len(text) > textPrefixLen {
		text = text[:textPrefixLen]
	}
	src := strings.Join([]string{bookURL, author, publishedAt, text}, "|")
	sum := sha1.Sum([]byte(src))
	return hex.EncodeToString(sum[:])[:16]
}
