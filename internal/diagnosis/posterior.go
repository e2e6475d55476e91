package diagnosis

import (
	"fmt"
	"math"
	"sort"
)

// #region posterior
// Posterior is a probability distribution over the condition set, indexed by
// condition id.
type Posterior []float64

// Tolerance is the allowed deviation of a posterior's sum from 1.
const Tolerance = 1e-6

// Uniform returns a flat distribution over k conditions.
func Uniform(k int) Posterior {
	p := make(Posterior, k)
	for i := range p {
		p[i] = 1 / float64(k)
	}
	return p
}

// Clone returns an independent copy.
func (p Posterior) Clone() Posterior {
	out := make(Posterior, len(p))
	copy(out, p)
	return out
}

// Sum returns the total mass.
func (p Posterior) Sum() float64 {
	var s float64
	for _, v := range p {
		s += v
	}
	return s
}

// Normalize returns a copy rescaled to sum to 1. It reports false, and
// returns an all-zero copy, when there is no mass to rescale.
func (p Posterior) Normalize() (Posterior, bool) {
	out := p.Clone()
	s := p.Sum()
	if s <= 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		for i := range out {
			out[i] = 0
		}
		return out, false
	}
	for i := range out {
		out[i] /= s
	}
	return out, true
}

// Entropy returns the Shannon entropy in nats; zero entries contribute 0.
func (p Posterior) Entropy() float64 {
	var h float64
	for _, v := range p {
		if v > 0 {
			h -= v * math.Log(v)
		}
	}
	return h
}

// Argmax returns the index of the largest entry, lowest index on ties, or
// -1 for an empty or all-zero posterior.
func (p Posterior) Argmax() int {
	best := -1
	for i, v := range p {
		if v <= 0 {
			continue
		}
		if best < 0 || v > p[best] {
			best = i
		}
	}
	return best
}

// Validate checks non-negativity and that the entries sum to 1.
func (p Posterior) Validate() error {
	for i, v := range p {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("posterior[%d] = %v is not a probability", i, v)
		}
	}
	if s := p.Sum(); math.Abs(s-1) > Tolerance {
		return fmt.Errorf("posterior sums to %.9f, want 1", s)
	}
	return nil
}

// #endregion posterior

// #region ranking
// Ranked is one entry of a sorted posterior.
type Ranked struct {
	Condition   int
	Probability float64
}

// Rank returns entries with non-zero mass, probability descending and
// condition id ascending on ties.
func (p Posterior) Rank() []Ranked {
	out := make([]Ranked, 0, len(p))
	for i, v := range p {
		if v > 0 {
			out = append(out, Ranked{Condition: i, Probability: v})
		}
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Probability != out[b].Probability {
			return out[a].Probability > out[b].Probability
		}
		return out[a].Condition < out[b].Condition
	})
	return out
}

// #endregion ranking
