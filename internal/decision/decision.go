// Package decision turns a classifier probability vector into an open-set
// verdict: a confident primary label or an explicit unknown, plus a ranked
// list of alternatives.
package decision

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// UnknownLabel is reported as the primary label when the winning
// probability falls below the open-set threshold.
const UnknownLabel = "Undetectable / Outside Supported Classes"

// ErrInvalidInput signals a malformed probability vector or a catalog,
// threshold or k that the engine cannot work with.
var ErrInvalidInput = errors.New("invalid decision input")

// Ranked is a single entry of the top-k list. Probability is a percentage.
type Ranked struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Verdict is the outcome of Decide. Confidence and Threshold are percentages
// and are never rounded here.
type Verdict struct {
	Unknown      bool     `json:"unknown"`
	PrimaryLabel string   `json:"primary_label"`
	Confidence   float64  `json:"confidence"`
	Threshold    float64  `json:"threshold"`
	Ranked       []Ranked `json:"ranked"`
}

// Decide applies the open-set policy to probabilities, which must be aligned
// index by index with catalog.
func Decide(probabilities []float64, catalog []string, threshold float64, k int) (Verdict, error) {
	if err := validate(probabilities, catalog, threshold, k); err != nil {
		return Verdict{}, err
	}

	order := make([]int, len(probabilities))
	for i := range order {
		order[i] = i
	}
	// Stable sort keeps ascending index order among equal probabilities.
	sort.SliceStable(order, func(a, b int) bool {
		return probabilities[order[a]] > probabilities[order[b]]
	})

	best := order[0]
	maxProb := probabilities[best]
	unknown := maxProb < threshold

	n := k
	if n > len(order) {
		n = len(order)
	}
	ranked := make([]Ranked, n)
	for i := 0; i < n; i++ {
		idx := order[i]
		ranked[i] = Ranked{Label: catalog[idx], Probability: probabilities[idx] * 100}
	}

	primary := catalog[best]
	if unknown {
		primary = UnknownLabel
	}

	return Verdict{
		Unknown:      unknown,
		PrimaryLabel: primary,
		Confidence:   maxProb * 100,
		Threshold:    threshold * 100,
		Ranked:       ranked,
	}, nil
}

func validate(probabilities []float64, catalog []string, threshold float64, k int) error {
	if len(probabilities) == 0 {
		return fmt.Errorf("%w: empty probability vector", ErrInvalidInput)
	}
	if len(probabilities) != len(catalog) {
		return fmt.Errorf("%w: %d probabilities for %d catalog labels", ErrInvalidInput, len(probabilities), len(catalog))
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return fmt.Errorf("%w: threshold %v outside [0,1]", ErrInvalidInput, threshold)
	}
	if k < 1 {
		return fmt.Errorf("%w: k must be at least 1, got %d", ErrInvalidInput, k)
	}
	for i, p := range probabilities {
		if math.IsNaN(p) || math.IsInf(p, 0) || p < 0 {
			return fmt.Errorf("%w: probability at index %d is %v", ErrInvalidInput, i, p)
		}
	}
	return nil
}

// Padded returns the ranked list extended with empty entries up to k.
// It never truncates.
func (v Verdict) Padded(k int) []Ranked {
	out := make([]Ranked, len(v.Ranked), max(k, len(v.Ranked)))
	copy(out, v.Ranked)
	for len(out) < k {
		out = append(out, Ranked{})
	}
	return out
}

// Round2 rounds a percentage to two decimals for display.
func Round2(x float64) float64 {
	return math.Round(x*100) / 100
}
