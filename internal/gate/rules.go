package gate

import (
	"fmt"
	"strings"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region rule-order
// Rules returns the gate's rules in evaluation order. Vetoes run first so
// boosts never resurrect a ruled-out condition; red flags run last and never
// touch probabilities.
func Rules() []Rule {
	return []Rule{
		{Name: "veto-negative-test", Kind: KindVeto, Veto: vetoNegativeTest},
		{Name: "veto-key-symptoms-absent", Kind: KindVeto, Veto: vetoKeySymptomsAbsent},
		{Name: "boost-centor", Kind: KindBoost, Boost: boostCentor},
		{Name: "boost-curb", Kind: KindBoost, Boost: boostCurb},
		{Name: "boost-syndrome-scope", Kind: KindBoost, Boost: boostSyndromeScope},
		{Name: "boost-patterns", Kind: KindBoost, Boost: boostPatterns},
		{Name: "red-flags", Kind: KindRedFlag, Flag: redFlags},
	}
}

// #endregion rule-order

// #region vetoes

// vetoNegativeTest rules out a condition when one of its required tests was
// reported negative.
func vetoNegativeTest(c *Context) []Veto {
	var out []Veto
	for i, cond := range c.Table.Conditions {
		for _, tid := range cond.RequiredTests {
			if c.Vector.Test(tid) == symptom.TestNegative {
				out = append(out, Veto{
					Condition: i,
					Reason:    fmt.Sprintf("%s negative", c.Table.TestName(tid)),
				})
				break
			}
		}
	}
	return out
}

// vetoKeySymptomsAbsent rules out a condition when every key symptom was
// explicitly denied. Unanswered symptoms keep the condition alive.
func vetoKeySymptomsAbsent(c *Context) []Veto {
	var out []Veto
	for i := range c.Table.Conditions {
		if c.Table.KeySymptomsAllAbsent(i, c.Vector) {
			out = append(out, Veto{Condition: i, Reason: "all key symptoms denied"})
		}
	}
	return out
}

// #endregion vetoes

// #region boosts

// boostCentor scores a modified Centor count for streptococcal pharyngitis.
// It only applies once sore throat has been asked.
func boostCentor(c *Context) []Factor {
	target, ok := c.Table.Index(c.Config.CentorTarget)
	if !ok || c.Vector.Get(symptom.SoreThroat).Presence == symptom.Unknown {
		return nil
	}
	score := 0
	if c.Vector.IsPresent(symptom.Fever) && c.severity(symptom.Fever) > 0.3 {
		score++
	}
	if c.Vector.IsAbsent(symptom.Cough) {
		score++
	}
	if c.Vector.IsPresent(symptom.SoreThroat) && c.severity(symptom.SoreThroat) > 0.5 {
		score++
	}
	if c.Vector.IsPresent(symptom.Swelling) {
		score++
	}

	m := c.Config.CentorLow
	switch {
	case score >= 3:
		m = c.Config.CentorHigh
	case score == 2:
		m = c.Config.CentorMid
	}
	return []Factor{{Condition: target, Multiplier: m, Reason: fmt.Sprintf("centor score %d", score)}}
}

// boostCurb counts CURB-65 style severity markers for pneumonia.
func boostCurb(c *Context) []Factor {
	target, ok := c.Table.Index(c.Config.CurbTarget)
	if !ok {
		return nil
	}
	score := 0
	if c.Vector.IsPresent(symptom.Confusion) {
		score++
	}
	if c.Vector.IsPresent(symptom.ShortnessOfBreath) && c.severity(symptom.ShortnessOfBreath) >= 0.7 {
		score++
	}
	if c.Vector.IsPresent(symptom.ChestPain) && c.severity(symptom.ChestPain) >= 0.4 {
		score++
	}
	if score < c.Config.CurbMin {
		return nil
	}
	return []Factor{{Condition: target, Multiplier: c.Config.CurbFactor, Reason: fmt.Sprintf("curb score %d", score)}}
}

// boostSyndromeScope upweights conditions belonging to the matched syndrome
// and downweights the rest.
func boostSyndromeScope(c *Context) []Factor {
	if c.Syndrome == knowledge.Undifferentiated {
		return nil
	}
	out := make([]Factor, 0, c.Table.Len())
	for i := range c.Table.Conditions {
		if c.Vetoed[i] {
			continue
		}
		if c.Table.InScope(i, c.Syndrome) {
			out = append(out, Factor{Condition: i, Multiplier: c.Config.InScopeFactor, Reason: "in " + c.Syndrome})
		} else {
			out = append(out, Factor{Condition: i, Multiplier: c.Config.OutOfScopeFactor, Reason: "outside " + c.Syndrome})
		}
	}
	return out
}

// boostPatterns applies every discriminative pattern whose requirements hold.
func boostPatterns(c *Context) []Factor {
	var out []Factor
	for _, p := range c.Table.Patterns {
		if !patternHolds(p, c) {
			continue
		}
		for key, m := range p.Boost {
			i, ok := c.Table.Index(key)
			if !ok {
				continue
			}
			out = append(out, Factor{Condition: i, Multiplier: m, Reason: p.Name})
		}
	}
	return out
}

func patternHolds(p knowledge.Pattern, c *Context) bool {
	for _, r := range p.Requires {
		if !r.Holds(c.Vector, c.Config.DefaultSeverity) {
			return false
		}
	}
	return len(p.Requires) > 0
}

// #endregion boosts

// #region red-flags

// redFlags emits every general red flag whose symptom is present above its
// severity threshold, then the primary condition's own flags for symptoms
// not already flagged.
func redFlags(c *Context) []diagnosis.RedFlag {
	var out []diagnosis.RedFlag
	flagged := make(map[symptom.ID]bool)
	emit := func(r knowledge.RedFlagRule, condition string) {
		id := r.SymptomID()
		if flagged[id] || !c.Vector.IsPresent(id) {
			return
		}
		s := c.severity(id)
		if !r.Fires(s) {
			return
		}
		flagged[id] = true
		out = append(out, diagnosis.RedFlag{Name: r.Name, Symptom: id.Key(), Severity: s, Message: r.Message, Condition: condition})
	}
	for _, r := range c.Table.RedFlags {
		emit(r, "")
	}
	if c.Primary >= 0 {
		cond := c.Table.Condition(c.Primary)
		for _, r := range cond.RedFlags {
			emit(r, cond.Key)
		}
	}
	return out
}

// #endregion red-flags

func joinReasons[T any](items []T, reason func(T) string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = reason(it)
	}
	return strings.Join(parts, "; ")
}
