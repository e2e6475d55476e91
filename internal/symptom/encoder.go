package symptom

import "fmt"

// #region shape-error
// ShapeError reports malformed encoder input: an unrecognized symptom or a
// feature vector of the wrong length.
type ShapeError struct {
	Key    string
	Want   int
	Got    int
	Reason string
}

func (e *ShapeError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("shape error: %s: %q", e.Reason, e.Key)
	}
	return fmt.Sprintf("shape error: %s: want %d, got %d", e.Reason, e.Want, e.Got)
}

// #endregion shape-error

// #region encoder-config
// EncoderConfig controls feature encoding.
type EncoderConfig struct {
	// DefaultSeverity is used for symptoms answered present without a severity.
	DefaultSeverity float64
}

// DefaultEncoderConfig returns the standard encoding.
func DefaultEncoderConfig() EncoderConfig {
	return EncoderConfig{DefaultSeverity: 0.5}
}

// #endregion encoder-config

// #region encoder
// Dim is the encoded feature length: presence flags then severities.
const Dim = 2 * Count

// Encoder maps a Vector to a fixed-length feature slice.
type Encoder struct {
	config EncoderConfig
}

// NewEncoder creates an encoder with the given configuration.
func NewEncoder(config EncoderConfig) *Encoder {
	return &Encoder{config: config}
}

// Dim returns the feature length.
func (e *Encoder) Dim() int { return Dim }

// DefaultSeverity returns the severity assumed for present-without-severity.
func (e *Encoder) DefaultSeverity() float64 { return e.config.DefaultSeverity }

// Encode returns [presence_0..presence_N-1, severity_0..severity_N-1].
// Unknown encodes as 0 in both halves, the same as Absent; the rule gate is
// what tells the two apart.
func (e *Encoder) Encode(v *Vector) []float64 {
	x := make([]float64, Dim)
	for i := 0; i < Count; i++ {
		o := v.Get(ID(i))
		if o.Presence != Present {
			continue
		}
		x[i] = 1
		if o.SeverityKnown {
			x[Count+i] = o.Severity
		} else {
			x[Count+i] = e.config.DefaultSeverity
		}
	}
	return x
}

// EncodeSeverities is FromSeverities followed by Encode.
func (e *Encoder) EncodeSeverities(m map[string]float64) ([]float64, error) {
	v, err := FromSeverities(m)
	if err != nil {
		return nil, err
	}
	return e.Encode(v), nil
}

// CheckFeatures validates a raw feature slice length.
func CheckFeatures(x []float64, want int) error {
	if len(x) != want {
		return &ShapeError{Want: want, Got: len(x), Reason: "feature length mismatch"}
	}
	return nil
}

// #endregion encoder
