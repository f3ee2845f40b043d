// Package knol identifies flashcards by their content so that re-importing a
// deck does not duplicate cards.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/conorfennell/kotoba/internal/domain"
)

// Normalize folds a card's front, back and context into one canonical string.
// Each field is NFKC-normalised (full-width latin and half-width kana fold to
// their common forms), lower-cased, and has its whitespace collapsed.
func Normalize(card domain.Card) string {
	fields := []string{card.Front, card.Back, card.Context}
	for i, f := range fields {
		f = norm.NFKC.String(f)
		f = strings.ReplaceAll(f, "\r\n", "\n")
		lines := strings.Split(strings.ToLower(f), "\n")
		for j, l := range lines {
			lines[j] = strings.Join(strings.Fields(l), " ")
		}
		fields[i] = strings.TrimSpace(strings.Join(lines, "\n"))
	}

	// Fields are newline separated so "ab"+"c" and "a"+"bc" differ.
	return strings.Join(fields, "\n")
}

// Hash returns the hex SHA-256 of the normalised card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}
