package gate

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
	"github.com/danielpatrickdp/adaptive-triage/internal/knowledge"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

func newTestGate(t *testing.T) *Gate {
	t.Helper()
	table, err := knowledge.Default()
	if err != nil {
		t.Fatalf("Default: %v", err)
	}
	return NewGate(table, DefaultGateConfig())
}

func mustIndex(t *testing.T, g *Gate, key string) int {
	t.Helper()
	i, ok := g.Table().Index(key)
	if !ok {
		t.Fatalf("unknown condition %s", key)
	}
	return i
}

// peaked puts weight w on key and spreads the rest evenly.
func peaked(t *testing.T, g *Gate, key string, w float64) diagnosis.Posterior {
	t.Helper()
	k := g.Table().Len()
	p := make(diagnosis.Posterior, k)
	for i := range p {
		p[i] = (1 - w) / float64(k-1)
	}
	p[mustIndex(t, g, key)] = w
	return p
}

func present(t *testing.T, v *symptom.Vector, id symptom.ID, s float64) {
	t.Helper()
	if err := v.Set(id, symptom.Present, &s); err != nil {
		t.Fatalf("Set %s: %v", id, err)
	}
}

func absent(t *testing.T, v *symptom.Vector, id symptom.ID) {
	t.Helper()
	if err := v.Set(id, symptom.Absent, nil); err != nil {
		t.Fatalf("Set %s: %v", id, err)
	}
}

func fluPicture(t *testing.T) *symptom.Vector {
	v := symptom.NewVector()
	present(t, v, symptom.Fever, 0.8)
	present(t, v, symptom.Cough, 0.7)
	present(t, v, symptom.MusclePain, 0.6)
	present(t, v, symptom.Fatigue, 0.6)
	return v
}

func traceFor(st Staging, rule string) diagnosis.TraceEntry {
	for _, e := range st.Trace {
		if e.Rule == rule {
			return e
		}
	}
	return diagnosis.TraceEntry{}
}

func TestGatePresumptiveWithoutConfirmatoryTest(t *testing.T) {
	g := newTestGate(t)
	v := fluPicture(t)

	st, err := g.Stage(peaked(t, g, "influenza_confirmed", 0.6), v)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if st.Syndrome != "respiratory_febrile" {
		t.Fatalf("expected respiratory_febrile, got %s", st.Syndrome)
	}
	if st.Primary != mustIndex(t, g, "influenza_confirmed") {
		t.Fatalf("unexpected primary %d", st.Primary)
	}
	if st.Tier != diagnosis.TierPresumptive {
		t.Fatalf("expected presumptive, got %s", st.Tier)
	}
	if len(st.RequiredTests) != 1 || !strings.Contains(st.RequiredTests[0], "Influenza") {
		t.Fatalf("expected flu test required, got %v", st.RequiredTests)
	}
	if st.SyndromeDiagnosis != "Influenza-like Illness" {
		t.Fatalf("expected downgrade, got %s", st.SyndromeDiagnosis)
	}
	if err := st.Posterior.Validate(); err != nil {
		t.Fatalf("staged posterior invalid: %v", err)
	}
}

func TestGateConfirmatoryOnPositiveTest(t *testing.T) {
	g := newTestGate(t)
	v := fluPicture(t)
	if err := v.SetTest("flu_test", symptom.TestPositive); err != nil {
		t.Fatal(err)
	}

	st, err := g.Stage(peaked(t, g, "influenza_confirmed", 0.6), v)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if st.Tier != diagnosis.TierConfirmatory {
		t.Fatalf("expected confirmatory, got %s", st.Tier)
	}
	if len(st.RequiredTests) != 0 {
		t.Fatalf("expected no required tests, got %v", st.RequiredTests)
	}
	if st.SyndromeDiagnosis != "Influenza (Confirmed)" {
		t.Fatalf("unexpected syndrome diagnosis %s", st.SyndromeDiagnosis)
	}
}

func TestGateVetoOnNegativeTest(t *testing.T) {
	g := newTestGate(t)
	v := fluPicture(t)
	if err := v.SetTest("flu_test", symptom.TestNegative); err != nil {
		t.Fatal(err)
	}

	st, err := g.Stage(peaked(t, g, "influenza_confirmed", 0.6), v)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	for _, key := range []string{"influenza_confirmed", "influenza_like_illness"} {
		if p := st.Posterior[mustIndex(t, g, key)]; p != 0 {
			t.Fatalf("%s should be vetoed, got %f", key, p)
		}
	}
	if st.Primary == mustIndex(t, g, "influenza_confirmed") {
		t.Fatal("vetoed condition cannot be primary")
	}
	if !traceFor(st, "veto-negative-test").Fired {
		t.Fatal("expected veto-negative-test to fire")
	}
	if math.Abs(st.Posterior.Sum()-1) > diagnosis.Tolerance {
		t.Fatalf("posterior not renormalized: %f", st.Posterior.Sum())
	}
}

func TestGateUnknownKeySymptomsNeverVeto(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	absent(t, v, symptom.RunnyNose)

	st, err := g.Stage(peaked(t, g, "allergic_rhinitis", 0.9), v)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if traceFor(st, "veto-key-symptoms-absent").Fired {
		t.Fatalf("unexpected veto: %s", traceFor(st, "veto-key-symptoms-absent").Detail)
	}
	if st.Primary != mustIndex(t, g, "allergic_rhinitis") {
		t.Fatalf("unexpected primary %d", st.Primary)
	}
}

func TestGateAllVetoedFallsBackToIndeterminate(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	absent(t, v, symptom.RunnyNose)
	absent(t, v, symptom.NasalCongestion)
	absent(t, v, symptom.Itching)
	present(t, v, symptom.Confusion, 0.4)

	raw := make(diagnosis.Posterior, g.Table().Len())
	raw[mustIndex(t, g, "allergic_rhinitis")] = 1

	st, err := g.Stage(raw, v)
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if st.Primary != -1 || st.Indeterminate != 1 {
		t.Fatalf("expected indeterminate, got primary %d mass %f", st.Primary, st.Indeterminate)
	}
	if st.Tier != diagnosis.TierNeedsMoreInformation {
		t.Fatalf("expected needs_more_information, got %s", st.Tier)
	}
	if len(st.RedFlags) != 1 || st.RedFlags[0].Name != "altered_mental_status" {
		t.Fatalf("red flags must still run, got %v", st.RedFlags)
	}
	if !strings.HasPrefix(traceFor(st, "boost-patterns").Detail, "skipped") {
		t.Fatal("boosts should be skipped after collapse")
	}

	r := g.Result(st, diagnosis.StopRedFlag, 0)
	if !r.IsIndeterminate() || r.PrimaryName != diagnosis.IndeterminateName {
		t.Fatalf("unexpected result %+v", r)
	}
}

func TestGateRedFlagDoesNotChangeProbabilities(t *testing.T) {
	g := newTestGate(t)
	raw := diagnosis.Uniform(g.Table().Len())

	base := fluPicture(t)
	flagged := base.Clone()
	present(t, flagged, symptom.Dizziness, 0.9)

	a, err := g.Stage(raw, base)
	if err != nil {
		t.Fatal(err)
	}
	b, err := g.Stage(raw, flagged)
	if err != nil {
		t.Fatal(err)
	}
	if len(a.RedFlags) != 0 {
		t.Fatalf("unexpected red flags %v", a.RedFlags)
	}
	if len(b.RedFlags) != 1 || b.RedFlags[0].Name != "severe_dizziness" {
		t.Fatalf("expected severe_dizziness, got %v", b.RedFlags)
	}
	for i := range a.Posterior {
		if a.Posterior[i] != b.Posterior[i] {
			t.Fatalf("red flag changed posterior at %d: %f vs %f", i, a.Posterior[i], b.Posterior[i])
		}
	}
	if b.Severity != SeveritySevereUrgent {
		t.Fatalf("expected urgent severity, got %s", b.Severity)
	}
}

func TestGateRedFlagThresholdIsStrict(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.Dizziness, 0.3)
	// shortness of breath without severity reads as the 0.5 default, which
	// sits exactly on the dyspnea threshold
	if err := v.Set(symptom.ShortnessOfBreath, symptom.Present, nil); err != nil {
		t.Fatal(err)
	}

	st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), v)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.RedFlags) != 0 {
		t.Fatalf("threshold value must not flag, got %v", st.RedFlags)
	}

	present(t, v, symptom.ShortnessOfBreath, 0.51)
	st, err = g.Stage(diagnosis.Uniform(g.Table().Len()), v)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.RedFlags) != 1 || st.RedFlags[0].Name != "significant_dyspnea" {
		t.Fatalf("unexpected red flags %v", st.RedFlags)
	}
}

func TestGateCentorBoost(t *testing.T) {
	g := newTestGate(t)
	raw := diagnosis.Uniform(g.Table().Len())
	strep := mustIndex(t, g, "strep_pharyngitis")

	unasked := symptom.NewVector()
	present(t, unasked, symptom.Fever, 0.6)
	st, err := g.Stage(raw, unasked)
	if err != nil {
		t.Fatal(err)
	}
	if traceFor(st, "boost-centor").Fired {
		t.Fatal("centor should not fire before sore throat is asked")
	}

	high := unasked.Clone()
	present(t, high, symptom.SoreThroat, 0.8)
	absent(t, high, symptom.Cough)
	present(t, high, symptom.Swelling, 0.4)
	hs, err := g.Stage(raw, high)
	if err != nil {
		t.Fatal(err)
	}
	if e := traceFor(hs, "boost-centor"); !e.Fired || !strings.Contains(e.Detail, "centor score 4") {
		t.Fatalf("unexpected centor trace %+v", e)
	}

	low := unasked.Clone()
	present(t, low, symptom.SoreThroat, 0.2)
	present(t, low, symptom.Cough, 0.5)
	ls, err := g.Stage(raw, low)
	if err != nil {
		t.Fatal(err)
	}
	if e := traceFor(ls, "boost-centor"); !strings.Contains(e.Detail, "centor score 1") {
		t.Fatalf("unexpected centor trace %+v", e)
	}
	if ls.Posterior[strep] >= hs.Posterior[strep] {
		t.Fatalf("low centor score should rank strep lower: %f vs %f", ls.Posterior[strep], hs.Posterior[strep])
	}
}

func TestGateCurbBoost(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.ShortnessOfBreath, 0.8)
	present(t, v, symptom.ChestPain, 0.5)

	st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), v)
	if err != nil {
		t.Fatal(err)
	}
	if e := traceFor(st, "boost-curb"); !e.Fired || !strings.Contains(e.Detail, "pneumonia_syndrome") {
		t.Fatalf("unexpected curb trace %+v", e)
	}
}

func TestGateDifferentialIsSyndromeScoped(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.Nausea, 0.6)
	present(t, v, symptom.Vomiting, 0.6)
	present(t, v, symptom.Diarrhea, 0.7)

	st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), v)
	if err != nil {
		t.Fatal(err)
	}
	if st.Syndrome != "gastrointestinal" {
		t.Fatalf("expected gastrointestinal, got %s", st.Syndrome)
	}
	gastro := mustIndex(t, g, "acute_gastroenteritis")
	if st.Primary != gastro {
		t.Fatalf("expected gastroenteritis primary, got %d", st.Primary)
	}
	if st.Tier != diagnosis.TierClinical {
		t.Fatalf("expected clinical tier, got %s", st.Tier)
	}
	for _, c := range st.Differential {
		if !g.Table().InScope(c.Condition, st.Syndrome) {
			t.Fatalf("%s outside syndrome in differential", c.Name)
		}
	}
	if st.Differential[0].Condition != gastro {
		t.Fatal("differential must lead with the primary")
	}
}

func TestGateDifferentialRespectsSize(t *testing.T) {
	table, err := knowledge.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg := DefaultGateConfig()
	cfg.DifferentialSize = 3
	g := NewGate(table, cfg)

	st, err := g.Stage(diagnosis.Uniform(table.Len()), symptom.NewVector())
	if err != nil {
		t.Fatal(err)
	}
	if st.Syndrome != knowledge.Undifferentiated {
		t.Fatalf("expected undifferentiated, got %s", st.Syndrome)
	}
	if len(st.Differential) != 3 {
		t.Fatalf("expected 3 candidates, got %d", len(st.Differential))
	}
}

func TestGateRejectsWrongLength(t *testing.T) {
	g := newTestGate(t)
	_, err := g.Stage(diagnosis.Uniform(3), symptom.NewVector())
	var se *symptom.ShapeError
	if !errors.As(err, &se) {
		t.Fatalf("expected ShapeError, got %v", err)
	}
}

func TestGateResultForcedDegradesTier(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.Nausea, 0.6)
	present(t, v, symptom.Vomiting, 0.6)
	present(t, v, symptom.Diarrhea, 0.7)
	st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), v)
	if err != nil {
		t.Fatal(err)
	}

	done := g.Result(st, diagnosis.StopConfident, 3)
	if done.Tier != diagnosis.TierClinical || done.QuestionsAsked != 3 {
		t.Fatalf("unexpected result %+v", done)
	}
	if done.KnowledgeVersion != g.Table().Version {
		t.Fatalf("missing knowledge version")
	}

	forced := g.Result(st, diagnosis.StopForced, 1)
	if forced.Tier != diagnosis.TierNeedsMoreInformation {
		t.Fatalf("expected needs_more_information, got %s", forced.Tier)
	}
	if forced.PrimaryName != "Acute Gastroenteritis" {
		t.Fatalf("unexpected primary %s", forced.PrimaryName)
	}
}

func TestGateSeverityFromMean(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.Headache, 0.9)
	present(t, v, symptom.Fatigue, 0.8)
	if got := g.assessSeverity(v, nil); got != SeveritySevere {
		t.Fatalf("expected SEVERE, got %s", got)
	}
	present(t, v, symptom.Fatigue, 0.3)
	if got := g.assessSeverity(v, nil); got != SeverityModerate {
		t.Fatalf("expected MODERATE, got %s", got)
	}
	if got := g.assessSeverity(symptom.NewVector(), nil); got != SeverityMild {
		t.Fatalf("expected MILD, got %s", got)
	}
}

func utiPicture(t *testing.T) *symptom.Vector {
	v := symptom.NewVector()
	present(t, v, symptom.PainfulUrination, 0.7)
	present(t, v, symptom.FrequentUrination, 0.6)
	return v
}

func TestGatePrimaryConditionRedFlags(t *testing.T) {
	g := newTestGate(t)
	uti := mustIndex(t, g, "urinary_tract_infection")

	febrile := utiPicture(t)
	present(t, febrile, symptom.Fever, 0.6)
	st, err := g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), febrile)
	if err != nil {
		t.Fatal(err)
	}
	if st.Primary != uti {
		t.Fatalf("expected UTI primary, got %d", st.Primary)
	}
	if len(st.RedFlags) != 1 || st.RedFlags[0].Name != "uti_fever" || st.RedFlags[0].Condition != "urinary_tract_infection" {
		t.Fatalf("expected uti_fever, got %v", st.RedFlags)
	}
	if e := traceFor(st, "red-flags"); !e.Fired || e.Detail != "uti_fever" {
		t.Fatalf("unexpected red-flag trace %+v", e)
	}
	if st.Severity != SeveritySevereUrgent {
		t.Fatalf("expected urgent severity, got %s", st.Severity)
	}

	lowGrade := utiPicture(t)
	present(t, lowGrade, symptom.Fever, 0.3)
	st, err = g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), lowGrade)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.RedFlags) != 0 {
		t.Fatalf("low-grade fever must not flag, got %v", st.RedFlags)
	}

	// the same fever is no red flag when UTI is not the primary
	st, err = g.Stage(peaked(t, g, "influenza_like_illness", 0.6), fluPicture(t))
	if err != nil {
		t.Fatal(err)
	}
	if len(st.RedFlags) != 0 {
		t.Fatalf("unexpected red flags %v", st.RedFlags)
	}
}

func TestGateConditionRedFlagDefersToGeneralFlag(t *testing.T) {
	g := newTestGate(t)
	cases := []struct {
		name          string
		chestPain     float64
		wantName      string
		wantCondition string
	}{
		{"general flag wins", 0.8, "chest_pain", ""},
		{"condition flag below general threshold", 0.5, "uri_chest_pain", "viral_uri"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := symptom.NewVector()
			present(t, v, symptom.RunnyNose, 0.6)
			present(t, v, symptom.NasalCongestion, 0.6)
			present(t, v, symptom.ChestPain, tc.chestPain)

			st, err := g.Stage(peaked(t, g, "viral_uri", 0.9), v)
			if err != nil {
				t.Fatal(err)
			}
			if st.Primary != mustIndex(t, g, "viral_uri") {
				t.Fatalf("expected viral_uri primary, got %d", st.Primary)
			}
			if len(st.RedFlags) != 1 {
				t.Fatalf("expected one flag per symptom, got %v", st.RedFlags)
			}
			if f := st.RedFlags[0]; f.Name != tc.wantName || f.Condition != tc.wantCondition {
				t.Fatalf("got %+v, want %s/%q", f, tc.wantName, tc.wantCondition)
			}
		})
	}
}

func TestGateSyndromeScopeBoost(t *testing.T) {
	g := newTestGate(t)
	gastro := mustIndex(t, g, "acute_gastroenteritis")
	uri := mustIndex(t, g, "viral_uri")

	gi := symptom.NewVector()
	present(t, gi, symptom.Nausea, 0.6)
	present(t, gi, symptom.Vomiting, 0.6)
	present(t, gi, symptom.Diarrhea, 0.7)

	cases := []struct {
		name       string
		vector     *symptom.Vector
		fired      bool
		wantDetail []string
		ratio      float64 // posterior[gastro] / posterior[uri]
	}{
		{
			name:   "gastrointestinal",
			vector: gi,
			fired:  true,
			wantDetail: []string{
				"acute_gastroenteritis x4.00 (in gastrointestinal)",
				"viral_uri x0.25 (outside gastrointestinal)",
			},
			ratio: 16,
		},
		{
			name:   "undifferentiated",
			vector: symptom.NewVector(),
			fired:  false,
			ratio:  1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), tc.vector)
			if err != nil {
				t.Fatal(err)
			}
			e := traceFor(st, "boost-syndrome-scope")
			if e.Fired != tc.fired {
				t.Fatalf("fired = %v, want %v (%s)", e.Fired, tc.fired, e.Detail)
			}
			for _, want := range tc.wantDetail {
				if !strings.Contains(e.Detail, want) {
					t.Fatalf("expected %q in %q", want, e.Detail)
				}
			}
			if got := st.Posterior[gastro] / st.Posterior[uri]; math.Abs(got-tc.ratio) > 1e-9 {
				t.Fatalf("ratio = %f, want %f", got, tc.ratio)
			}
			if math.Abs(st.Posterior.Sum()-1) > diagnosis.Tolerance {
				t.Fatalf("posterior not renormalized: %f", st.Posterior.Sum())
			}
		})
	}
}

func TestGatePatternBoost(t *testing.T) {
	g := newTestGate(t)

	coryza := func(fever float64, denied bool) *symptom.Vector {
		v := symptom.NewVector()
		present(t, v, symptom.RunnyNose, 0.5)
		present(t, v, symptom.NasalCongestion, 0.5)
		if denied {
			absent(t, v, symptom.Fever)
		} else {
			present(t, v, symptom.Fever, fever)
		}
		return v
	}

	cases := []struct {
		name       string
		vector     *symptom.Vector
		fired      bool
		wantDetail []string
		num, den   string
		ratio      float64
	}{
		{
			name:   "influenza pattern",
			vector: fluPicture(t),
			fired:  true,
			wantDetail: []string{
				"influenza_like_illness x3.00 (influenza_pattern)",
				"influenza_confirmed x2.00 (influenza_pattern)",
			},
			num: "influenza_like_illness", den: "influenza_confirmed",
			ratio: 1.5,
		},
		{
			name:       "upper respiratory pattern with fever denied",
			vector:     coryza(0, true),
			fired:      true,
			wantDetail: []string{"viral_uri x2.00 (upper_respiratory_pattern)"},
			num:        "viral_uri", den: "allergic_rhinitis",
			ratio: 2,
		},
		{
			name:   "upper respiratory pattern blocked by fever",
			vector: coryza(0.6, false),
			fired:  false,
			num:    "viral_uri", den: "influenza_like_illness",
			ratio: 1,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st, err := g.Stage(diagnosis.Uniform(g.Table().Len()), tc.vector)
			if err != nil {
				t.Fatal(err)
			}
			e := traceFor(st, "boost-patterns")
			if e.Fired != tc.fired {
				t.Fatalf("fired = %v, want %v (%s)", e.Fired, tc.fired, e.Detail)
			}
			for _, want := range tc.wantDetail {
				if !strings.Contains(e.Detail, want) {
					t.Fatalf("expected %q in %q", want, e.Detail)
				}
			}
			num, den := mustIndex(t, g, tc.num), mustIndex(t, g, tc.den)
			if got := st.Posterior[num] / st.Posterior[den]; math.Abs(got-tc.ratio) > 1e-9 {
				t.Fatalf("%s/%s = %f, want %f", tc.num, tc.den, got, tc.ratio)
			}
		})
	}
}

func TestGateClinicalReasoning(t *testing.T) {
	g := newTestGate(t)
	v := utiPicture(t)
	absent(t, v, symptom.FrequentUrination)
	present(t, v, symptom.Fever, 0.2)
	present(t, v, symptom.Itching, 0.4)

	st, err := g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), v)
	if err != nil {
		t.Fatal(err)
	}
	r := st.Reasoning
	if r.Syndrome != "Genitourinary" {
		t.Fatalf("unexpected syndrome %q", r.Syndrome)
	}
	if len(r.KeyFindings) != 1 || r.KeyFindings[0].Symptom != "Painful Urination" || r.KeyFindings[0].Frequency != 0.95 {
		t.Fatalf("unexpected key findings %+v", r.KeyFindings)
	}
	if len(r.Supporting) != 1 || r.Supporting[0].Symptom != "Fever" {
		t.Fatalf("unexpected supporting features %+v", r.Supporting)
	}
	want := []string{"Itching", "Frequent Urination (absent)"}
	if len(r.Inconsistent) != len(want) {
		t.Fatalf("unexpected inconsistent features %+v", r.Inconsistent)
	}
	for i, name := range want {
		if r.Inconsistent[i].Symptom != name {
			t.Fatalf("inconsistent[%d] = %q, want %q", i, r.Inconsistent[i].Symptom, name)
		}
	}
	if !strings.Contains(r.Inconsistent[1].Note, "90%") {
		t.Fatalf("expected frequency in note, got %q", r.Inconsistent[1].Note)
	}
}

func TestGateReasoningIgnoresUnansweredSymptoms(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	present(t, v, symptom.PainfulUrination, 0.7)

	st, err := g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), v)
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Reasoning.Inconsistent) != 0 {
		t.Fatalf("unanswered symptoms are not evidence: %+v", st.Reasoning.Inconsistent)
	}
}

func TestGateRecommendations(t *testing.T) {
	g := newTestGate(t)

	febrile := utiPicture(t)
	present(t, febrile, symptom.Fever, 0.6)
	st, err := g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), febrile)
	if err != nil {
		t.Fatal(err)
	}
	r := g.Result(st, diagnosis.StopRedFlag, 2)
	want := []string{
		"Consider testing to confirm: Urinalysis",
		RecommendImmediate,
		"Clinical note: Uncomplicated in healthy women",
	}
	if strings.Join(r.Recommendations, "|") != strings.Join(want, "|") {
		t.Fatalf("recommendations = %q, want %q", r.Recommendations, want)
	}
	if len(r.SupportiveTests) != 1 || len(r.ClinicalPearls) != 3 {
		t.Fatalf("unexpected tests %v pearls %v", r.SupportiveTests, r.ClinicalPearls)
	}

	confirmed := fluPicture(t)
	if err := confirmed.SetTest("flu_test", symptom.TestPositive); err != nil {
		t.Fatal(err)
	}
	st, err = g.Stage(peaked(t, g, "influenza_confirmed", 0.6), confirmed)
	if err != nil {
		t.Fatal(err)
	}
	for _, rec := range st.Recommendations {
		if strings.Contains(rec, "testing") {
			t.Fatalf("no testing advice once confirmed, got %q", rec)
		}
	}
	if st.Recommendations[0] != RecommendSoon {
		t.Fatalf("moderate severity should advise evaluation soon, got %q", st.Recommendations[0])
	}

	forced := g.Result(st, diagnosis.StopForced, 1)
	if forced.Recommendations[0] != RecommendIncomplete {
		t.Fatalf("forced result should lead with %q, got %q", RecommendIncomplete, forced.Recommendations)
	}
}

func TestGateRecommendationsIndeterminate(t *testing.T) {
	g := newTestGate(t)
	v := symptom.NewVector()
	absent(t, v, symptom.RunnyNose)
	absent(t, v, symptom.NasalCongestion)
	absent(t, v, symptom.Itching)
	raw := make(diagnosis.Posterior, g.Table().Len())
	raw[mustIndex(t, g, "allergic_rhinitis")] = 1

	st, err := g.Stage(raw, v)
	if err != nil {
		t.Fatal(err)
	}
	if st.Recommendations[0] != RecommendIndeterminate {
		t.Fatalf("unexpected recommendations %q", st.Recommendations)
	}
	r := g.Result(st, diagnosis.StopForced, 0)
	if len(r.ClinicalPearls) != 0 || len(r.Reasoning.KeyFindings) != 0 {
		t.Fatalf("indeterminate result carries condition detail: %+v", r)
	}
}

func TestGateResultIsDetached(t *testing.T) {
	g := newTestGate(t)
	st, err := g.Stage(peaked(t, g, "urinary_tract_infection", 0.6), utiPicture(t))
	if err != nil {
		t.Fatal(err)
	}
	r := g.Result(st, diagnosis.StopConfident, 2)
	r.Posterior[0] = 42
	r.Recommendations[0] = "changed"
	r.Reasoning.KeyFindings[0].Symptom = "changed"

	if st.Posterior[0] == 42 || st.Recommendations[0] == "changed" || st.Reasoning.KeyFindings[0].Symptom == "changed" {
		t.Fatal("result shares storage with the staging")
	}
}
