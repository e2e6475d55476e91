// Package selector picks the next symptom to ask about by expected
// information gain over the staged posterior, and decides when to stop.
package selector

import (
	"errors"
	"math"
	"sort"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// ErrExhausted signals that no eligible symptom remains. It is an implicit
// stop, not a failure.
var ErrExhausted = errors.New("selector exhausted: no eligible symptoms")

// tieTolerance treats EIG values this close as equal so ordering falls back
// to symptom id.
const tieTolerance = 1e-12

// #region likelihood
// Likelihood supplies P(symptom present | condition) from corpus frequencies.
type Likelihood interface {
	PYes(condition int, s symptom.ID) float64
}

// #endregion likelihood

// #region candidate
// Candidate is one ranked symptom.
type Candidate struct {
	Symptom  symptom.ID
	EIG      float64
	Eligible bool
}

// #endregion candidate

// #region eig
// EIG returns the expected entropy reduction from asking about s under p.
// The result is clamped at 0 against rounding.
func EIG(p diagnosis.Posterior, lk Likelihood, s symptom.ID) float64 {
	yes := make(diagnosis.Posterior, len(p))
	no := make(diagnosis.Posterior, len(p))
	var pYes float64
	for d, pd := range p {
		if pd <= 0 {
			continue
		}
		q := clamp01(lk.PYes(d, s))
		yes[d] = pd * q
		no[d] = pd * (1 - q)
		pYes += yes[d]
	}
	pYes = clamp01(pYes)
	pNo := 1 - pYes

	expected := 0.0
	if post, ok := yes.Normalize(); ok {
		expected += pYes * post.Entropy()
	}
	if post, ok := no.Normalize(); ok {
		expected += pNo * post.Entropy()
	}
	gain := p.Entropy() - expected
	if gain < 0 {
		return 0
	}
	return gain
}

// #endregion eig

// #region rank
// Rank scores every candidate symptom. Eligible symptoms are those in
// eligible that are not yet answered. The result is ordered eligible first,
// then by EIG descending, then by symptom id ascending.
func Rank(p diagnosis.Posterior, lk Likelihood, v *symptom.Vector, eligible []symptom.ID) []Candidate {
	allowed := make(map[symptom.ID]bool, len(eligible))
	for _, id := range eligible {
		allowed[id] = true
	}

	out := make([]Candidate, 0, symptom.Count)
	for _, id := range symptom.All() {
		c := Candidate{Symptom: id}
		if allowed[id] && v.Get(id).Presence == symptom.Unknown {
			c.Eligible = true
			c.EIG = EIG(p, lk, id)
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].Eligible != out[b].Eligible {
			return out[a].Eligible
		}
		if math.Abs(out[a].EIG-out[b].EIG) > tieTolerance {
			return out[a].EIG > out[b].EIG
		}
		return out[a].Symptom < out[b].Symptom
	})
	return out
}

// Next returns the eligible symptom with maximal EIG, or ErrExhausted.
func Next(p diagnosis.Posterior, lk Likelihood, v *symptom.Vector, eligible []symptom.ID) (Candidate, error) {
	ranked := Rank(p, lk, v, eligible)
	if len(ranked) == 0 || !ranked[0].Eligible {
		return Candidate{}, ErrExhausted
	}
	return ranked[0], nil
}

// Top returns up to k eligible candidates in rank order.
func Top(p diagnosis.Posterior, lk Likelihood, v *symptom.Vector, eligible []symptom.ID, k int) []Candidate {
	var out []Candidate
	for _, c := range Rank(p, lk, v, eligible) {
		if !c.Eligible || len(out) >= k {
			break
		}
		out = append(out, c)
	}
	return out
}

// #endregion rank

func clamp01(x float64) float64 {
	return math.Min(1, math.Max(0, x))
}
