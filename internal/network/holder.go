package network

import (
	"sync/atomic"

	"github.com/danielpatrickdp/adaptive-triage/internal/diagnosis"
)

// Holder publishes the active model. Readers take a snapshot per call, so a
// Swap never disturbs a prediction already in flight.
type Holder struct {
	current atomic.Pointer[Model]
}

// NewHolder returns a holder serving m, which may be nil.
func NewHolder(m *Model) *Holder {
	h := &Holder{}
	if m != nil {
		h.current.Store(m)
	}
	return h
}

// Current returns the active model or nil.
func (h *Holder) Current() *Model { return h.current.Load() }

// Swap installs m and returns the previous model.
func (h *Holder) Swap(m *Model) *Model { return h.current.Swap(m) }

// Predict runs the active model.
func (h *Holder) Predict(x []float64) (diagnosis.Posterior, error) {
	m := h.current.Load()
	if m == nil {
		return nil, ErrNoModel
	}
	return m.Predict(x)
}
