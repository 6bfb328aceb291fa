// Package secretword implements the positional secret-word challenge used for
// account recovery. Positions are 1-indexed for display.
package secretword

import (
	"math/rand"
	"sort"
	"strings"
)

// DefaultQuestions is the number of positions asked for when the word is long enough.
const DefaultQuestions = 3

// GeneratePositionQuestions samples count distinct positions from 1..wordLength
// and returns them sorted. count is clamped to wordLength; a non-positive count
// means DefaultQuestions.
func GeneratePositionQuestions(wordLength, count int) []int {
	if wordLength <= 0 {
		return nil
	}
	if count <= 0 {
		count = DefaultQuestions
	}
	if count > wordLength {
		count = wordLength
	}
	perm := rand.Perm(wordLength)[:count]
	positions := make([]int, count)
	for i, p := range perm {
		positions[i] = p + 1
	}
	sort.Ints(positions)
	return positions
}

// Verify reports whether every supplied answer matches, case-insensitively, the
// character at its position in the trimmed, lowercased word. An empty answer
// set never verifies.
func Verify(word string, answers map[int]string) bool {
	chars := []rune(strings.ToLower(strings.TrimSpace(word)))
	if len(chars) == 0 || len(answers) == 0 {
		return false
	}
	for pos, answer := range answers {
		if pos < 1 || pos > len(chars) {
			return false
		}
		guess := []rune(strings.ToLower(strings.TrimSpace(answer)))
		if len(guess) != 1 || guess[0] != chars[pos-1] {
			return false
		}
	}
	return true
}

// VerifyChallenge checks the answers for exactly the challenged positions. A
// missing answer for any position fails the whole challenge.
func VerifyChallenge(word string, positions []int, answers map[int]string) bool {
	if len(positions) == 0 {
		return false
	}
	scoped := make(map[int]string, len(positions))
	for _, pos := range positions {
		answer, ok := answers[pos]
		if !ok {
			return false
		}
		scoped[pos] = answer
	}
	return Verify(word, scoped)
}
