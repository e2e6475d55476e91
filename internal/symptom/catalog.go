package symptom

import (
	"fmt"
	"strings"
)

// #region ids
// ID identifies one of the canonical symptoms. Values are stable and index
// both halves of the encoded feature vector.
type ID int

const (
	Fever ID = iota
	Fatigue
	WeightLoss
	Cough
	ShortnessOfBreath
	Wheezing
	SoreThroat
	RunnyNose
	NasalCongestion
	Nausea
	Vomiting
	Diarrhea
	Headache
	Dizziness
	Confusion
	JointPain
	MusclePain
	BackPain
	ChestPain
	RapidHeartbeat
	IrregularHeartbeat
	Rash
	Itching
	Swelling
	Anxiety
	Depression
	FrequentUrination
	PainfulUrination
	BlurredVision
	HearingLoss

	// Count is the number of canonical symptoms (N).
	Count = int(HearingLoss) + 1
)

// #endregion ids

// #region catalog
type entry struct {
	key      string
	name     string
	medical  string
	category string
}

var catalog = [Count]entry{
	Fever:              {"fever", "Fever", "pyrexia", "general"},
	Fatigue:            {"fatigue", "Fatigue", "malaise", "general"},
	WeightLoss:         {"weight_loss", "Weight Loss", "cachexia", "general"},
	Cough:              {"cough", "Cough", "tussis", "respiratory"},
	ShortnessOfBreath:  {"shortness_of_breath", "Shortness of Breath", "dyspnea", "respiratory"},
	Wheezing:           {"wheezing", "Wheezing", "sibilant rhonchi", "respiratory"},
	SoreThroat:         {"sore_throat", "Sore Throat", "pharyngitis", "respiratory"},
	RunnyNose:          {"runny_nose", "Runny Nose", "rhinorrhea", "respiratory"},
	NasalCongestion:    {"nasal_congestion", "Nasal Congestion", "rhinitis", "respiratory"},
	Nausea:             {"nausea", "Nausea", "nausea", "gastrointestinal"},
	Vomiting:           {"vomiting", "Vomiting", "emesis", "gastrointestinal"},
	Diarrhea:           {"diarrhea", "Diarrhea", "diarrhea", "gastrointestinal"},
	Headache:           {"headache", "Headache", "cephalgia", "neurological"},
	Dizziness:          {"dizziness", "Dizziness", "vertigo", "neurological"},
	Confusion:          {"confusion", "Confusion", "altered mental status", "neurological"},
	JointPain:          {"joint_pain", "Joint Pain", "arthralgia", "musculoskeletal"},
	MusclePain:         {"muscle_pain", "Muscle Pain", "myalgia", "musculoskeletal"},
	BackPain:           {"back_pain", "Back Pain", "dorsalgia", "musculoskeletal"},
	ChestPain:          {"chest_pain", "Chest Pain", "thoracic pain", "cardiovascular"},
	RapidHeartbeat:     {"rapid_heartbeat", "Rapid Heartbeat", "tachycardia", "cardiovascular"},
	IrregularHeartbeat: {"irregular_heartbeat", "Irregular Heartbeat", "arrhythmia", "cardiovascular"},
	Rash:               {"rash", "Rash", "exanthem", "dermatological"},
	Itching:            {"itching", "Itching", "pruritus", "dermatological"},
	Swelling:           {"swelling", "Swelling", "edema", "dermatological"},
	Anxiety:            {"anxiety", "Anxiety", "anxiety", "psychological"},
	Depression:         {"depression", "Depression", "depression", "psychological"},
	FrequentUrination:  {"frequent_urination", "Frequent Urination", "polyuria", "urological"},
	PainfulUrination:   {"painful_urination", "Painful Urination", "dysuria", "urological"},
	BlurredVision:      {"blurred_vision", "Blurred Vision", "blurred vision", "sensory"},
	HearingLoss:        {"hearing_loss", "Hearing Loss", "hypoacusis", "sensory"},
}

var lookup = func() map[string]ID {
	m := make(map[string]ID, Count*3)
	for i, e := range catalog {
		id := ID(i)
		m[normalizeName(e.key)] = id
		m[normalizeName(e.name)] = id
		m[normalizeName(e.medical)] = id
	}
	return m
}()

// #endregion catalog

// #region accessors

// Valid reports whether id is inside the catalog.
func (id ID) Valid() bool {
	return id >= 0 && int(id) < Count
}

// Key returns the canonical snake_case key, e.g. "shortness_of_breath".
func (id ID) Key() string {
	if !id.Valid() {
		return fmt.Sprintf("symptom(%d)", int(id))
	}
	return catalog[id].key
}

// Name returns the display name.
func (id ID) Name() string {
	if !id.Valid() {
		return fmt.Sprintf("Symptom(%d)", int(id))
	}
	return catalog[id].name
}

// MedicalTerm returns the clinical term for the symptom.
func (id ID) MedicalTerm() string {
	if !id.Valid() {
		return ""
	}
	return catalog[id].medical
}

// Category returns the body-system grouping.
func (id ID) Category() string {
	if !id.Valid() {
		return ""
	}
	return catalog[id].category
}

func (id ID) String() string { return id.Key() }

// All returns every catalog id in ascending order.
func All() []ID {
	ids := make([]ID, Count)
	for i := range ids {
		ids[i] = ID(i)
	}
	return ids
}

// ParseID resolves a canonical key, display name or medical term.
// Matching ignores case, surrounding space, hyphens and underscores.
func ParseID(name string) (ID, error) {
	id, ok := lookup[normalizeName(name)]
	if !ok {
		return 0, &ShapeError{Key: name, Reason: "unrecognized symptom"}
	}
	return id, nil
}

func normalizeName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", " ", "-", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// #endregion accessors
