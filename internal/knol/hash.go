// Package knol derives stable content hashes for cards so an import can
// tell new cards from ones it has seen before.
package knol

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/conorfennell/recall/internal/domain"
)

var lineEndings = strings.NewReplacer("\r\n", "\n", "\r", "\n")

func normalizePart(part string) string {
	return strings.TrimSpace(strings.ToLower(lineEndings.Replace(part)))
}

// Normalize joins the card's question, answer and context with newlines
// after lowercasing and trimming each of them.
func Normalize(card domain.Card) string {
	return strings.Join([]string{
		normalizePart(card.Question),
		normalizePart(card.Answer),
		normalizePart(card.Context),
	}, "\n")
}

// Hash returns the hex SHA-256 of the normalized card.
func Hash(card domain.Card) string {
	sum := sha256.Sum256([]byte(Normalize(card)))
	return hex.EncodeToString(sum[:])
}

// Stamp sets the Hash of every card and drops later duplicates.
func Stamp(cards []domain.Card) []domain.Card {
	seen := make(map[string]bool, len(cards))
	out := cards[:0]
	for _, c := range cards {
		c.Hash = Hash(c)
		if seen[c.Hash] {
			continue
		}
		seen[c.Hash] = true
		out = append(out, c)
	}
	return out
}
