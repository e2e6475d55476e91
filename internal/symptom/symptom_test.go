package symptom

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sev(f float64) *float64 { return &f }

func TestParseIDAcceptsKeysNamesAndTerms(t *testing.T) {
	cases := map[string]ID{
		"fever":               Fever,
		"Shortness of Breath": ShortnessOfBreath,
		"shortness-of-breath": ShortnessOfBreath,
		"DYSPNEA":             ShortnessOfBreath,
		"  myalgia ":          MusclePain,
		"painful_urination":   PainfulUrination,
	}
	for in, want := range cases {
		got, err := ParseID(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestParseIDRejectsUnknown(t *testing.T) {
	_, err := ParseID("anosmia")
	var se *ShapeError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "anosmia", se.Key)
}

func TestCatalogIsComplete(t *testing.T) {
	assert.Equal(t, 30, Count)
	seen := map[string]bool{}
	for _, id := range All() {
		require.NotEmpty(t, id.Key())
		require.False(t, seen[id.Key()], "duplicate key %s", id.Key())
		seen[id.Key()] = true
	}
}

func TestAbsentForcesZeroSeverity(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.Set(Cough, Absent, sev(0.9)))
	o := v.Get(Cough)
	assert.Equal(t, Absent, o.Presence)
	assert.Equal(t, 0.0, o.Severity)
}

func TestUnknownIsNotCoerced(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.Set(Fever, Present, sev(0.7)))
	require.NoError(t, v.Set(Fever, Unknown, nil))
	assert.Equal(t, Unknown, v.Get(Fever).Presence)
	assert.False(t, v.IsAbsent(Fever))
	assert.Empty(t, v.Answered())
}

func TestSetRejectsSeverityOutOfRange(t *testing.T) {
	v := NewVector()
	err := v.Set(Fever, Present, sev(1.5))
	assert.ErrorIs(t, err, ErrSeverityRange)
}

func TestEncodeLayout(t *testing.T) {
	enc := NewEncoder(DefaultEncoderConfig())
	v := NewVector()
	require.NoError(t, v.Set(Fever, Present, sev(0.8)))
	require.NoError(t, v.Set(Cough, Absent, nil))
	require.NoError(t, v.Set(Headache, Present, nil))

	x := enc.Encode(v)
	require.Len(t, x, 2*Count)
	assert.Equal(t, 1.0, x[Fever])
	assert.Equal(t, 0.8, x[Count+int(Fever)])
	assert.Equal(t, 0.0, x[Cough])
	assert.Equal(t, 0.0, x[Count+int(Cough)])
	assert.Equal(t, 1.0, x[Headache])
	assert.Equal(t, 0.5, x[Count+int(Headache)])
	// never asked
	assert.Equal(t, 0.0, x[Rash])
	assert.Equal(t, 0.0, x[Count+int(Rash)])
}

func TestEncodeIsDeterministic(t *testing.T) {
	enc := NewEncoder(DefaultEncoderConfig())
	x1, err := enc.EncodeSeverities(map[string]float64{"fever": 0.4, "cough": 0})
	require.NoError(t, err)
	x2, err := enc.EncodeSeverities(map[string]float64{"cough": 0, "Fever": 0.4})
	require.NoError(t, err)
	assert.Equal(t, x1, x2)
}

func TestEncodeSeveritiesRejectsUnknownKey(t *testing.T) {
	enc := NewEncoder(DefaultEncoderConfig())
	_, err := enc.EncodeSeverities(map[string]float64{"fever": 0.4, "telepathy": 1})
	var se *ShapeError
	assert.ErrorAs(t, err, &se)
}

func TestCheckFeatures(t *testing.T) {
	assert.NoError(t, CheckFeatures(make([]float64, Dim), Dim))
	var se *ShapeError
	require.ErrorAs(t, CheckFeatures(make([]float64, 3), Dim), &se)
	assert.Equal(t, Dim, se.Want)
	assert.Equal(t, 3, se.Got)
}

func TestCloneIsIndependent(t *testing.T) {
	v := NewVector()
	require.NoError(t, v.Set(Fever, Present, sev(0.5)))
	require.NoError(t, v.SetTest("rapid_strep", TestPositive))

	c := v.Clone()
	require.NoError(t, c.Set(Fever, Absent, nil))
	require.NoError(t, c.SetTest("rapid_strep", TestNegative))

	assert.True(t, v.IsPresent(Fever))
	assert.Equal(t, TestPositive, v.Test("rapid_strep"))
	assert.Equal(t, TestNegative, c.Test("rapid_strep"))
}

func TestParsePresence(t *testing.T) {
	for in, want := range map[string]Presence{"yes": Present, "N": Absent, "unknown": Unknown, "": Unknown} {
		got, err := ParsePresence(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePresence("maybe")
	assert.Error(t, err)
}
