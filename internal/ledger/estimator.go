package ledger

import (
	"strings"
	"unicode/utf8"
)

// Estimator prices a text in token units. Implementations must be
// deterministic and must never return less for a text than for any of its
// prefixes.
type Estimator interface {
	Estimate(text string) int64
}

// EstimatorFunc adapts a plain function to Estimator.
type EstimatorFunc func(text string) int64

func (f EstimatorFunc) Estimate(text string) int64 { return f(text) }

// WordCharEstimator charges WordWeight per whitespace-separated word plus
// CharFraction per character, truncated.
type WordCharEstimator struct {
	WordWeight   int64
	CharFraction float64
}

// DefaultEstimator is words + int(chars * 0.1).
var DefaultEstimator = WordCharEstimator{WordWeight: 1, CharFraction: 0.1}

func (e WordCharEstimator) Estimate(text string) int64 {
	words := int64(len(strings.Fields(text)))
	chars := float64(utf8.RuneCountInString(text))
	return words*e.WordWeight + int64(chars*e.CharFraction)
}
