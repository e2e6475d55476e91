// Package knowledge holds the static, versioned clinical table consumed by the
// rule gate and selector: conditions, symptom frequencies, syndromes, red
// flags and discriminative patterns.
package knowledge

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/danielpatrickdp/adaptive-triage/internal/schemas"
	"github.com/danielpatrickdp/adaptive-triage/internal/symptom"
)

//go:embed table.schema.json
var tableSchema []byte

//go:embed default.json
var defaultTable []byte

// Undifferentiated is the syndrome key used when no syndrome matches.
const Undifferentiated = "undifferentiated"

// #region table
// Table is an immutable, validated knowledge table.
type Table struct {
	Version           string        `json:"version"`
	BaselineFrequency float64       `json:"baseline_frequency"`
	Tests             []Test        `json:"tests,omitempty"`
	Conditions        []Condition   `json:"conditions"`
	Syndromes         []Syndrome    `json:"syndromes"`
	RedFlags          []RedFlagRule `json:"red_flags,omitempty"`
	Patterns          []Pattern     `json:"patterns,omitempty"`

	freq      [][]float64 // [condition][symptom] -> P(yes|d)
	index     map[string]int
	syndromes map[string]int
	tests     map[string]int
}

// #endregion table

// #region load
// Default returns the embedded table.
func Default() (*Table, error) {
	t, err := Parse(defaultTable)
	if err != nil {
		return nil, fmt.Errorf("embedded table: %w", err)
	}
	return t, nil
}

// Load reads a table from disk. An empty path returns the embedded table.
func Load(path string) (*Table, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read knowledge table %s: %w", path, err)
	}
	t, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("knowledge table %s: %w", path, err)
	}
	return t, nil
}

// Parse validates data against the table schema, decodes it and resolves all
// symptom, syndrome and test references.
func Parse(data []byte) (*Table, error) {
	if err := schemas.Validate("knowledge-table", tableSchema, data); err != nil {
		return nil, err
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("decode table: %w", err)
	}
	if err := t.resolve(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Table) resolve() error {
	t.tests = make(map[string]int, len(t.Tests))
	for i, tc := range t.Tests {
		if _, dup := t.tests[tc.ID]; dup {
			return fmt.Errorf("duplicate test %q", tc.ID)
		}
		t.tests[tc.ID] = i
	}

	t.syndromes = make(map[string]int, len(t.Syndromes))
	for i := range t.Syndromes {
		s := &t.Syndromes[i]
		if s.Key == Undifferentiated {
			return fmt.Errorf("syndrome key %q is reserved", Undifferentiated)
		}
		if _, dup := t.syndromes[s.Key]; dup {
			return fmt.Errorf("duplicate syndrome %q", s.Key)
		}
		t.syndromes[s.Key] = i
		for ci := range s.Match {
			for ki := range s.Match[ci].Counts {
				cnt := &s.Match[ci].Counts[ki]
				ids, err := resolveSymptoms(cnt.Of)
				if err != nil {
					return fmt.Errorf("syndrome %s: %w", s.Key, err)
				}
				cnt.ids = ids
			}
		}
	}

	t.index = make(map[string]int, len(t.Conditions))
	t.freq = make([][]float64, len(t.Conditions))
	for i := range t.Conditions {
		c := &t.Conditions[i]
		if _, dup := t.index[c.Key]; dup {
			return fmt.Errorf("duplicate condition %q", c.Key)
		}
		t.index[c.Key] = i

		for _, s := range c.Syndromes {
			if _, ok := t.syndromes[s]; !ok && s != Undifferentiated {
				return fmt.Errorf("condition %s: unknown syndrome %q", c.Key, s)
			}
		}
		for _, tid := range c.RequiredTests {
			if _, ok := t.tests[tid]; !ok {
				return fmt.Errorf("condition %s: unknown test %q", c.Key, tid)
			}
		}
		ids, err := resolveSymptoms(c.KeySymptoms)
		if err != nil {
			return fmt.Errorf("condition %s: %w", c.Key, err)
		}
		c.keyIDs = ids
		if c.MinSupporting > len(ids) {
			return fmt.Errorf("condition %s: min_supporting %d exceeds %d key symptoms", c.Key, c.MinSupporting, len(ids))
		}

		row := make([]float64, symptom.Count)
		for j := range row {
			row[j] = t.BaselineFrequency
		}
		c.freqIDs = make(map[symptom.ID]float64, len(c.Frequencies))
		for name, f := range c.Frequencies {
			id, err := symptom.ParseID(name)
			if err != nil {
				return fmt.Errorf("condition %s frequencies: %w", c.Key, err)
			}
			row[id] = f
			c.freqIDs[id] = f
		}
		t.freq[i] = row

		if err := resolveRedFlags(c.RedFlags); err != nil {
			return fmt.Errorf("condition %s: %w", c.Key, err)
		}
	}

	if err := resolveRedFlags(t.RedFlags); err != nil {
		return err
	}

	for pi := range t.Patterns {
		p := &t.Patterns[pi]
		for ri := range p.Requires {
			req := &p.Requires[ri]
			id, err := symptom.ParseID(req.Symptom)
			if err != nil {
				return fmt.Errorf("pattern %s: %w", p.Name, err)
			}
			req.id = id
		}
		for key := range p.Boost {
			if _, ok := t.index[key]; !ok {
				return fmt.Errorf("pattern %s: unknown condition %q", p.Name, key)
			}
		}
	}
	return nil
}

func resolveRedFlags(rules []RedFlagRule) error {
	for i := range rules {
		r := &rules[i]
		id, err := symptom.ParseID(r.Symptom)
		if err != nil {
			return fmt.Errorf("red flag %s: %w", r.Name, err)
		}
		r.id = id
	}
	return nil
}

func resolveSymptoms(names []string) ([]symptom.ID, error) {
	ids := make([]symptom.ID, 0, len(names))
	for _, n := range names {
		id, err := symptom.ParseID(n)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// #endregion load

// #region lookups

// Len returns the number of conditions (K).
func (t *Table) Len() int { return len(t.Conditions) }

// Labels returns the condition keys in id order.
func (t *Table) Labels() []string {
	out := make([]string, len(t.Conditions))
	for i, c := range t.Conditions {
		out[i] = c.Key
	}
	return out
}

// Index resolves a condition key or display name to its id.
func (t *Table) Index(key string) (int, bool) {
	if i, ok := t.index[key]; ok {
		return i, true
	}
	for i, c := range t.Conditions {
		if c.Name == key {
			return i, true
		}
	}
	return -1, false
}

// Condition returns the condition with id i.
func (t *Table) Condition(i int) Condition { return t.Conditions[i] }

// TestName returns the display name of a test id, or the id itself.
func (t *Table) TestName(id string) string {
	if i, ok := t.tests[id]; ok {
		return t.Tests[i].Name
	}
	return id
}

// HasTest reports whether id is a known test.
func (t *Table) HasTest(id string) bool {
	_, ok := t.tests[id]
	return ok
}

// PYes returns P(symptom present | condition). Symptoms the condition does
// not list read as the table's baseline frequency.
func (t *Table) PYes(condition int, s symptom.ID) float64 {
	if condition < 0 || condition >= len(t.freq) || !s.Valid() {
		return t.BaselineFrequency
	}
	return t.freq[condition][s]
}

// SyndromeName returns the display name for a syndrome key.
func (t *Table) SyndromeName(key string) string {
	if i, ok := t.syndromes[key]; ok {
		return t.Syndromes[i].Name
	}
	if key == Undifferentiated {
		return "Undifferentiated"
	}
	return key
}

// InScope reports whether condition i belongs to syndrome key. Every
// condition is in scope of the undifferentiated syndrome.
func (t *Table) InScope(i int, key string) bool {
	if key == Undifferentiated {
		return true
	}
	for _, s := range t.Conditions[i].Syndromes {
		if s == key {
			return true
		}
	}
	return false
}

// #endregion lookups

// #region matching

// MatchSyndrome returns the first syndrome, in table order, whose pattern
// holds over the explicitly present symptoms, or Undifferentiated.
func (t *Table) MatchSyndrome(v *symptom.Vector) string {
	for _, s := range t.Syndromes {
		for _, clause := range s.Match {
			if clauseHolds(clause, v) {
				return s.Key
			}
		}
	}
	return Undifferentiated
}

func clauseHolds(c Clause, v *symptom.Vector) bool {
	for _, cnt := range c.Counts {
		n := 0
		for _, id := range cnt.ids {
			if v.IsPresent(id) {
				n++
			}
		}
		if n < cnt.Min {
			return false
		}
		if cnt.Max != nil && n > *cnt.Max {
			return false
		}
	}
	return true
}

// SupportingCount returns how many key symptoms of condition i are present.
func (t *Table) SupportingCount(i int, v *symptom.Vector) int {
	n := 0
	for _, id := range t.Conditions[i].keyIDs {
		if v.IsPresent(id) {
			n++
		}
	}
	return n
}

// SupportMet reports whether condition i has its minimum supporting evidence.
func (t *Table) SupportMet(i int, v *symptom.Vector) bool {
	return t.SupportingCount(i, v) >= t.Conditions[i].MinSupporting
}

// KeySymptomsAllAbsent reports whether every key symptom of condition i was
// explicitly answered absent. Unknown key symptoms never count as absent.
func (t *Table) KeySymptomsAllAbsent(i int, v *symptom.Vector) bool {
	ids := t.Conditions[i].keyIDs
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !v.IsAbsent(id) {
			return false
		}
	}
	return true
}

// Holds evaluates a pattern requirement against the vector. def is the
// severity assumed for a present symptom with no recorded severity.
func (r Requirement) Holds(v *symptom.Vector, def float64) bool {
	hi := 1.0
	if r.Max != nil {
		hi = *r.Max
	}
	switch r.State {
	case "absent":
		return v.IsAbsent(r.id)
	case "any":
		s := v.Severity(r.id, def)
		return s >= r.Min && s <= hi
	default:
		if !v.IsPresent(r.id) {
			return false
		}
		s := v.Severity(r.id, def)
		return s >= r.Min && s <= hi
	}
}

// Relevant returns the symptoms with non-baseline frequency for any condition
// in scope of the syndrome, ascending. This is the selector's eligible pool.
func (t *Table) Relevant(syndrome string) []symptom.ID {
	set := map[symptom.ID]bool{}
	for i, c := range t.Conditions {
		if !t.InScope(i, syndrome) {
			continue
		}
		for name := range c.Frequencies {
			id, err := symptom.ParseID(name)
			if err == nil {
				set[id] = true
			}
		}
	}
	ids := make([]symptom.ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
	return ids
}

// #endregion matching
