// Package txstate holds the transmit amplitude/phase shared between the
// session server (command 3) and the PI sequencer.
package txstate

import "sync"

// TxState is mutex-guarded. The lock must never be held across a HAL
// waveform upload, so Set/Get only ever touch the two float fields, never a
// HAL call.
type TxState struct {
	mu        sync.Mutex
	amplitude float64
	phaseDeg  float64
}

// New returns a TxState seeded with the given amplitude/phase (the session
// server seeds it with zero).
func New(amplitude, phaseDeg float64) *TxState {
	return &TxState{amplitude: amplitude, phaseDeg: wrap180(phaseDeg)}
}

func wrap180(deg float64) float64 {
	for deg > 180 {
		deg -= 360
	}
	for deg < -180 {
		deg += 360
	}
	return deg
}

// Get returns the current amplitude and phase.
func (t *TxState) Get() (amplitude, phaseDeg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.amplitude, t.phaseDeg
}

// Set updates amplitude and phase (wrapped to [-180, 180]).
func (t *TxState) Set(amplitude, phaseDeg float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.amplitude = amplitude
	t.phaseDeg = wrap180(phaseDeg)
}
