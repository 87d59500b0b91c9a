// Package scoring implements the deterministic keyword/length heuristic
// that turns a chat message into a convincing-score delta.
package scoring

import (
	"strings"
	"unicode"
)

const (
	positiveWeight = 3
	strongWeight   = 5
	hedgingWeight  = 4

	lengthBonusShortAt = 100
	lengthBonusShort   = 3
	lengthBonusLongAt  = 200
	lengthBonusLong    = 5

	digitBonus = 2

	capsPenalty       = 10
	capsPenaltyMinLen = 10

	// Single-message swing caps, applied after all weights.
	DeltaMin = -20
	DeltaMax = 25
)

// MaxScore bounds the convincing score; MinScore is the floor.
const (
	MinScore = 0
	MaxScore = 100
)

// Lexicons are matched as case-insensitive substrings, so stems like
// "científic" also hit "científica" and "científicos".
var positiveLexicon = []string{
	"porque", "evidência", "prova", "pesquisa", "estudo",
	"dados", "fato", "lógica", "razão", "garantia", "benefício",
}

var strongPositiveLexicon = []string{
	"científic", "comprovad", "estatístic", "especialista", "demonstr",
}

var hedgingLexicon = []string{
	"talvez", "acho que", "possivelmente", "quem sabe", "não sei",
}

// Delta computes the score delta for a single message. It is pure and
// deterministic: the same message and current score always produce the same
// delta. The caller is responsible for rejecting blank messages and for
// clamping the applied score to [MinScore, MaxScore].
func Delta(message string, currentScore int) int {
	lower := strings.ToLower(message)

	delta := 0
	for _, word := range positiveLexicon {
		delta += positiveWeight * strings.Count(lower, word)
	}
	for _, word := range strongPositiveLexicon {
		delta += strongWeight * strings.Count(lower, word)
	}
	for _, word := range hedgingLexicon {
		delta -= hedgingWeight * strings.Count(lower, word)
	}

	length := len([]rune(message))
	if length >= lengthBonusShortAt {
		delta += lengthBonusShort
	}
	if length >= lengthBonusLongAt {
		delta += lengthBonusLong
	}

	if strings.ContainsFunc(message, unicode.IsDigit) {
		delta += digitBonus
	}

	if length > capsPenaltyMinLen && isShouting(message) {
		delta -= capsPenalty
	}

	return clamp(delta, DeltaMin, DeltaMax)
}

// Apply clamps currentScore+delta to the valid score range.
func Apply(currentScore, delta int) int {
	return clamp(currentScore+delta, MinScore, MaxScore)
}

// isShouting reports whether the message equals its own upper-cased form
// and actually contains at least one letter.
func isShouting(message string) bool {
	if message != strings.ToUpper(message) {
		return false
	}
	return strings.ContainsFunc(message, unicode.IsLetter)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
