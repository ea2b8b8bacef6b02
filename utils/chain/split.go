package chain

import (
	"slices"
	"strings"
)

// DefaultEndChars are the characters a chunk prefers to end on
var DefaultEndChars = []rune{'.', ',', ';', ':', '!', '?', '\n'}

// SplitIntoChunks splits input into trimmed chunks of at most maxLength characters.
// A chunk ends on the last end character inside the window; without one it runs on
// to the next end character, or is cut at maxLength when none follows.
// Chunks that trim to nothing are dropped.
func SplitIntoChunks(input string, maxLength int, endChars ...rune) []string {
	if input == "" || maxLength <= 0 {
		return nil
	}
	if len(endChars) == 0 {
		endChars = DefaultEndChars
	}
	isEnd := func(r rune) bool { return slices.Contains(endChars, r) }

	runes := []rune(input)
	var chunks []string
	add := func(part []rune) {
		if chunk := strings.TrimSpace(string(part)); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for start := 0; start < len(runes); {
		end := start + maxLength
		if end >= len(runes) {
			add(runes[start:])
			break
		}

		cut := -1
		for i := end - 1; i >= start; i-- {
			if isEnd(runes[i]) {
				cut = i
				break
			}
		}
		if cut == -1 {
			for i := end; i < len(runes); i++ {
				if isEnd(runes[i]) {
					cut = i
					break
				}
			}
		}
		if cut == -1 {
			cut = end - 1
		}

		add(runes[start : cut+1])
		start = cut + 1
	}
	return chunks
}
