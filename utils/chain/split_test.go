package chain

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

const longerString = "This is a longer string. It has more words and needs to be split into several chunks. " +
	"The chunks should end on a punctuation mark or a new line."

func TestSplitIntoChunks(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		maxLength int
		want      []string
	}{
		{
			name:      "sentences at 32",
			input:     longerString,
			maxLength: 32,
			want: []string{
				"This is a longer string.",
				"It has more words and needs to be split into several chunks.",
				"The chunks should end on a punctuation mark or a new line.",
			},
		},
		{
			name:      "sentences at 30",
			input:     longerString,
			maxLength: 30,
			want: []string{
				"This is a longer string.",
				"It has more words and needs to be split into several chunks.",
				"The chunks should end on a punctuation mark or a new line.",
			},
		},
		{
			name:      "consecutive spaces at 12",
			input:     "This is\na    string with. consecutive spaces",
			maxLength: 12,
			want:      []string{"This is", "a    string with.", "consecutive", "spaces"},
		},
		{
			name:      "consecutive spaces at 10",
			input:     "This is\na    string with. consecutive spaces",
			maxLength: 10,
			want:      []string{"This is", "a    string with.", "consecuti", "ve spaces"},
		},
		{
			name:      "no end characters",
			input:     "abcdefghijklmnopqrstuvwxyz",
			maxLength: 10,
			want:      []string{"abcdefghij", "klmnopqrst", "uvwxyz"},
		},
		{
			name:      "fits in one chunk",
			input:     "  short text  ",
			maxLength: 100,
			want:      []string{"short text"},
		},
		{
			name:      "whitespace only",
			input:     "   \n  ",
			maxLength: 2,
			want:      nil,
		},
		{
			name:      "empty",
			input:     "",
			maxLength: 10,
			want:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitIntoChunks(tt.input, tt.maxLength))
		})
	}
}

func TestSplitIntoChunksCustomEndChars(t *testing.T) {
	got := SplitIntoChunks("a|b|c", 2, '|')
	assert.Equal(t, []string{"a|", "b|", "c"}, got)
}

func TestSplitIntoChunksHardCutLength(t *testing.T) {
	input := strings.Repeat("x", 95)
	for _, chunk := range SplitIntoChunks(input, 32) {
		assert.LessOrEqual(t, utf8.RuneCountInString(chunk), 32)
	}
	assert.Equal(t, []string{strings.Repeat("x", 32), strings.Repeat("x", 32), strings.Repeat("x", 31)},
		SplitIntoChunks(input, 32))
}

func TestSplitIntoChunksCountsRunes(t *testing.T) {
	got := SplitIntoChunks("ééééé.ééééé", 6)
	assert.Equal(t, []string{"ééééé.", "ééééé"}, got)
}
