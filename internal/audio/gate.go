// SPDX-License-Identifier: MIT
package audio

import "math"

// SetPeakThreshold adjusts the peak gate, in display units, from any
// goroutine. The loop applies it on the next frame. Negative values open
// the gate fully.
func (e *Engine) SetPeakThreshold(threshold float64) {
	if threshold < 0 || math.IsNaN(threshold) {
		threshold = 0
	}
	if threshold > e.config.Analysis.DisplayHeight {
		threshold = e.config.Analysis.DisplayHeight
	}
	e.gateThreshold.Store(math.Float64bits(threshold))
}

// PeakThreshold returns the current peak gate in display units.
func (e *Engine) PeakThreshold() float64 {
	return math.Float64frombits(e.gateThreshold.Load())
}
