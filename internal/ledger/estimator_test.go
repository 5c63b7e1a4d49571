package ledger

import (
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWordCharEstimator(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want int64
	}{
		{"empty", "", 0},
		{"single word", "hello", 1},
		{"two words", "hello world", 3},
		{"whitespace only", "   \n\t", 0},
		{"cyrillic counts characters not bytes", "привет мир", 3},
		{"hundred chars", strings.Repeat("a", 100), 11},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, DefaultEstimator.Estimate(tt.text))
		})
	}
}

func TestEstimatorMonotonicUnderExtension(t *testing.T) {
	t.Parallel()

	text := "The quick brown fox jumps over the lazy dog.  Again,\tand again\nand again! Ещё раз."
	var prev int64
	ends := []int{len(text)}
	for i := range text {
		ends = append(ends, i)
	}
	slices.Sort(ends)
	for _, end := range ends {
		prefix := text[:end]
		got := DefaultEstimator.Estimate(prefix)
		assert.GreaterOrEqual(t, got, prev, "prefix %q", prefix)
		assert.Equal(t, got, DefaultEstimator.Estimate(prefix), "deterministic")
		prev = got
	}
}
