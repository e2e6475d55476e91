// Package gate converts a raw classifier posterior into a staged,
// syndrome-first diagnosis by running a fixed list of veto, boost and
// red-flag rules.
package gate

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

// #region gate
// Gate stages raw posteriors against a knowledge table.
type Gate struct {
	table  *knowledge.Table
	config GateConfig
	rules  []Rule
}

// NewGate creates a gate over the given table.
func NewGate(table *knowledge.Table, config GateConfig) *Gate {
	if config.DifferentialSize <= 0 {
		config.DifferentialSize = 5
	}
	return &Gate{table: table, config: config, rules: Rules()}
}

// Table returns the knowledge table the gate reads.
func (g *Gate) Table() *knowledge.Table { return g.table }

// Config returns the gate configuration.
func (g *Gate) Config() GateConfig { return g.config }

// Stage runs every rule in order over raw and returns the staged diagnosis.
// Each veto or boost renormalizes before the next rule observes the
// posterior. When no probability mass survives, the result falls back to the
// indeterminate pseudo-condition; that is never an error. The only error is a
// posterior whose length does not match the table.
func (g *Gate) Stage(raw diagnosis.Posterior, v *symptom.Vector) (Staging, error) {
	k := g.table.Len()
	if len(raw) != k {
		return Staging{}, &symptom.ShapeError{Want: k, Got: len(raw), Reason: "posterior length"}
	}

	ctx := &Context{
		Table:    g.table,
		Vector:   v,
		Syndrome: g.table.MatchSyndrome(v),
		Vetoed:   make([]bool, k),
		Primary:  -1,
		Config:   g.config,
	}
	post, ok := raw.Normalize()
	ctx.Posterior = post
	collapsed := !ok

	var trace []diagnosis.TraceEntry
	var flags []diagnosis.RedFlag

	for _, r := range g.rules {
		switch r.Kind {
		case KindVeto:
			if collapsed {
				trace = append(trace, skipped(r))
				continue
			}
			vetoes := r.Veto(ctx)
			for _, vt := range vetoes {
				ctx.Vetoed[vt.Condition] = true
				ctx.Posterior[vt.Condition] = 0
			}
			trace = append(trace, diagnosis.TraceEntry{
				Rule:   r.Name,
				Kind:   string(r.Kind),
				Fired:  len(vetoes) > 0,
				Detail: joinReasons(vetoes, func(vt Veto) string { return g.table.Conditions[vt.Condition].Key + ": " + vt.Reason }),
			})
			collapsed = !ctx.renormalize()

		case KindBoost:
			if collapsed {
				trace = append(trace, skipped(r))
				continue
			}
			factors := r.Boost(ctx)
			slices.SortStableFunc(factors, func(a, b Factor) int {
				return cmp.Or(cmp.Compare(a.Condition, b.Condition), cmp.Compare(a.Reason, b.Reason))
			})
			for _, f := range factors {
				ctx.Posterior[f.Condition] *= f.Multiplier
			}
			trace = append(trace, diagnosis.TraceEntry{
				Rule:  r.Name,
				Kind:  string(r.Kind),
				Fired: len(factors) > 0,
				Detail: joinReasons(factors, func(f Factor) string {
					return fmt.Sprintf("%s x%.2f (%s)", g.table.Conditions[f.Condition].Key, f.Multiplier, f.Reason)
				}),
			})
			collapsed = !ctx.renormalize()

		case KindRedFlag:
			if !collapsed {
				ctx.Primary = ctx.Posterior.Argmax()
			}
			emitted := r.Flag(ctx)
			flags = append(flags, emitted...)
			trace = append(trace, diagnosis.TraceEntry{
				Rule:   r.Name,
				Kind:   string(r.Kind),
				Fired:  len(emitted) > 0,
				Detail: joinReasons(emitted, func(f diagnosis.RedFlag) string { return f.Name }),
			})
		}
	}

	st := Staging{
		RedFlags: flags,
		Syndrome: ctx.Syndrome,
		Severity: g.assessSeverity(v, flags),
		Trace:    trace,
	}
	for i, vetoed := range ctx.Vetoed {
		if vetoed {
			st.Vetoed = append(st.Vetoed, i)
		}
	}

	if collapsed {
		st.Posterior = make(diagnosis.Posterior, k)
		st.Indeterminate = 1
		st.Primary = -1
		st.Tier = diagnosis.TierNeedsMoreInformation
		st.SyndromeDiagnosis = diagnosis.IndeterminateName
		st.Reasoning = g.reason(st.Primary, st.Syndrome, v)
		st.Recommendations = g.recommend(st)
		return st, nil
	}

	st.Posterior = ctx.Posterior
	st.Primary = st.Posterior.Argmax()
	st.Tier = g.tier(st.Primary, ctx)
	st.Differential = g.differential(st.Primary, ctx)

	primary := g.table.Condition(st.Primary)
	st.SyndromeDiagnosis = primary.Name
	if st.Tier != diagnosis.TierConfirmatory {
		for _, tid := range primary.RequiredTests {
			if v.Test(tid) != symptom.TestPositive {
				st.RequiredTests = append(st.RequiredTests, g.table.TestName(tid))
			}
		}
		if primary.DowngradeTo != "" {
			st.SyndromeDiagnosis = primary.DowngradeTo
		}
	}
	st.Reasoning = g.reason(st.Primary, st.Syndrome, v)
	st.Recommendations = g.recommend(st)
	return st, nil
}

// Eligible returns the symptoms worth asking about under a syndrome. Symptoms
// no in-scope condition discriminates on are excluded.
func (g *Gate) Eligible(syndrome string) []symptom.ID {
	return g.table.Relevant(syndrome)
}

// SupportMet reports whether condition i has its minimum supporting evidence.
func (g *Gate) SupportMet(i int, v *symptom.Vector) bool {
	if i < 0 {
		return false
	}
	return g.table.SupportMet(i, v)
}

// #endregion gate

// #region result
// Result freezes a staging into a diagnostic result. Forced and exhausted
// stops degrade the tier to needs-more-information.
func (g *Gate) Result(st Staging, stop diagnosis.StopReason, asked int) diagnosis.Result {
	r := diagnosis.Result{
		Primary:           st.Primary,
		Posterior:         st.Posterior.Clone(),
		Indeterminate:     st.Indeterminate,
		Tier:              st.Tier,
		RedFlags:          slices.Clone(st.RedFlags),
		Differential:      slices.Clone(st.Differential),
		RequiredTests:     slices.Clone(st.RequiredTests),
		Reasoning:         st.Reasoning.Clone(),
		Recommendations:   slices.Clone(st.Recommendations),
		Syndrome:          g.table.SyndromeName(st.Syndrome),
		SyndromeDiagnosis: st.SyndromeDiagnosis,
		Severity:          st.Severity,
		StopReason:        stop,
		QuestionsAsked:    asked,
		KnowledgeVersion:  g.table.Version,
		Trace:             slices.Clone(st.Trace),
	}
	if st.Primary < 0 {
		r.PrimaryName = diagnosis.IndeterminateName
	} else {
		c := g.table.Condition(st.Primary)
		r.PrimaryName = c.Name
		r.ICD10 = c.ICD10
		r.Confidence = st.Posterior[st.Primary]
		r.SupportiveTests = slices.Clone(c.SupportiveTests)
		r.ClinicalPearls = slices.Clone(c.Pearls)
	}
	if stop == diagnosis.StopForced || stop == diagnosis.StopExhausted {
		r.Tier = diagnosis.TierNeedsMoreInformation
		if st.Primary >= 0 {
			r.Recommendations = append([]string{RecommendIncomplete}, r.Recommendations...)
		}
	}
	return r
}

// #endregion result

// #region reasoning

// reason relates the evidence to the primary condition's symptom
// frequencies. Only explicit denials count as expected-but-absent.
func (g *Gate) reason(primary int, syndrome string, v *symptom.Vector) diagnosis.Reasoning {
	r := diagnosis.Reasoning{Syndrome: g.table.SyndromeName(syndrome)}
	if primary < 0 {
		return r
	}
	cond := g.table.Condition(primary)
	for _, id := range v.PresentIDs() {
		f, ok := cond.Frequency(id)
		switch {
		case !ok || f == 0:
			r.Inconsistent = append(r.Inconsistent, diagnosis.Finding{Symptom: id.Name(), Note: "not typical for this diagnosis"})
		case f > g.config.KeyFindingFrequency:
			r.KeyFindings = append(r.KeyFindings, diagnosis.Finding{
				Symptom: id.Name(), Frequency: f, Note: fmt.Sprintf("common in this condition (%.0f%% of cases)", 100*f),
			})
		default:
			r.Supporting = append(r.Supporting, diagnosis.Finding{
				Symptom: id.Name(), Frequency: f, Note: fmt.Sprintf("sometimes seen (%.0f%% of cases)", 100*f),
			})
		}
	}
	for _, id := range symptom.All() {
		f, ok := cond.Frequency(id)
		if !ok || f <= g.config.ExpectedFrequency || !v.IsAbsent(id) {
			continue
		}
		r.Inconsistent = append(r.Inconsistent, diagnosis.Finding{
			Symptom: id.Name() + " (absent)", Frequency: f, Note: fmt.Sprintf("expected in %.0f%% of cases", 100*f),
		})
	}
	return r
}

// recommend lists next steps: pending confirmatory tests, the urgency the
// severity calls for, then the condition's own advice and first pearl.
func (g *Gate) recommend(st Staging) []string {
	var out []string
	if st.Primary < 0 {
		out = append(out, RecommendIndeterminate)
	} else if len(st.RequiredTests) > 0 {
		tests := strings.Join(st.RequiredTests, ", ")
		if g.table.Condition(st.Primary).Certainty == knowledge.CertaintyConfirmatory {
			out = append(out, "Confirmatory testing recommended: "+tests)
		} else {
			out = append(out, "Consider testing to confirm: "+tests)
		}
	}

	switch {
	case strings.HasPrefix(st.Severity, SeveritySevere):
		out = append(out, RecommendImmediate)
	case st.Severity == SeverityModerate:
		out = append(out, RecommendSoon)
	default:
		out = append(out, RecommendMonitor)
	}

	if st.Primary >= 0 {
		cond := g.table.Condition(st.Primary)
		out = append(out, cond.Advice...)
		if len(cond.Pearls) > 0 {
			out = append(out, "Clinical note: "+cond.Pearls[0])
		}
	}
	return out
}

// Fixed recommendation lines.
const (
	RecommendImmediate     = "Immediate medical evaluation recommended"
	RecommendSoon          = "Medical evaluation within 24-48 hours"
	RecommendMonitor       = "Monitor symptoms, seek care if worsening"
	RecommendIndeterminate = "Findings fit no listed condition: see a clinician for assessment"
	RecommendIncomplete    = "Assessment ended early: answer more questions or see a clinician before relying on this result"
)

// #endregion reasoning

// #region helpers

// renormalize rescales the working posterior; false when no mass remains.
func (c *Context) renormalize() bool {
	p, ok := c.Posterior.Normalize()
	if !ok {
		return false
	}
	c.Posterior = p
	return true
}

func skipped(r Rule) diagnosis.TraceEntry {
	return diagnosis.TraceEntry{Rule: r.Name, Kind: string(r.Kind), Detail: "skipped: all conditions vetoed"}
}

// tier derives diagnostic certainty for the primary condition. A condition
// with a required test is Confirmatory only once that test is positive;
// a clinical condition is Clinical when its syndrome matched and its key
// symptoms are supported.
func (g *Gate) tier(primary int, c *Context) diagnosis.Tier {
	cond := g.table.Condition(primary)
	if cond.NeedsTest() {
		for _, tid := range cond.RequiredTests {
			if c.Vector.Test(tid) == symptom.TestPositive {
				return diagnosis.TierConfirmatory
			}
		}
		return diagnosis.TierPresumptive
	}
	if cond.Certainty == knowledge.CertaintyClinical &&
		c.Syndrome != knowledge.Undifferentiated &&
		g.table.InScope(primary, c.Syndrome) &&
		g.table.SupportMet(primary, c.Vector) {
		return diagnosis.TierClinical
	}
	return diagnosis.TierPresumptive
}

// differential lists the primary followed by the most probable in-scope,
// non-vetoed conditions, up to DifferentialSize entries.
func (g *Gate) differential(primary int, c *Context) []diagnosis.Candidate {
	out := []diagnosis.Candidate{g.candidate(primary, c.Posterior)}
	for _, rk := range c.Posterior.Rank() {
		if len(out) >= g.config.DifferentialSize {
			break
		}
		if rk.Condition == primary || c.Vetoed[rk.Condition] || !g.table.InScope(rk.Condition, c.Syndrome) {
			continue
		}
		out = append(out, g.candidate(rk.Condition, c.Posterior))
	}
	return out
}

func (g *Gate) candidate(i int, p diagnosis.Posterior) diagnosis.Candidate {
	return diagnosis.Candidate{Condition: i, Name: g.table.Condition(i).Name, Probability: p[i]}
}

// assessSeverity grades overall severity: any red flag is severe, otherwise
// the mean severity of present symptoms decides.
func (g *Gate) assessSeverity(v *symptom.Vector, flags []diagnosis.RedFlag) string {
	if len(flags) > 0 {
		return SeveritySevereUrgent
	}
	present := v.PresentIDs()
	if len(present) == 0 {
		return SeverityMild
	}
	var sum float64
	for _, id := range present {
		sum += v.Severity(id, g.config.DefaultSeverity)
	}
	mean := sum / float64(len(present))
	switch {
	case mean > 0.7:
		return SeveritySevere
	case mean > 0.5:
		return SeverityModerate
	default:
		return SeverityMild
	}
}

// Severity labels.
const (
	SeveritySevereUrgent = "SEVERE - immediate evaluation needed"
	SeveritySevere       = "SEVERE"
	SeverityModerate     = "MODERATE"
	SeverityMild         = "MILD"
)

// #endregion helpers
