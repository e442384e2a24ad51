// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"sync"
)

// Snapshot is a self-contained copy of one frame's analysis result.
type Snapshot struct {
	Seq         uint64      `json:"seq"`
	Spectrum    LogSpectrum `json:"spectrum"`
	Peak        PeakInfo    `json:"peak"`
	State       PeakState   `json:"-"`
	Frequencies []float64   `json:"-"`
}

// FrequencyAt returns the frequency under display column x. ok is false when
// x is outside the axis, including before the first frame.
func (s Snapshot) FrequencyAt(x int) (freq float64, ok bool) {
	if x < 0 || x >= len(s.Frequencies) {
		return 0, false
	}
	return s.Frequencies[x], true
}

// Monitor publishes the newest result from the audio goroutine to readers
// such as the UDP publisher and the terminal panel.
type Monitor struct {
	mu       sync.RWMutex
	seq      uint64
	spectrum []float64
	freqs    []float64
	peak     PeakInfo
	state    PeakState
	history  History
}

// NewMonitor returns an empty monitor.
func NewMonitor() *Monitor {
	return &Monitor{}
}

// StoreHistory mirrors h so readers can draw the decay trail.
func (m *Monitor) StoreHistory(h *History) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history.CopyFrom(h)
}

// Trail returns the mirrored history rendered for a display of the given
// height, newest entry first. See History.Trail.
func (m *Monitor) Trail(height float64) [][]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history.Trail(height)
}

// Store records a result. The spectrum and axis are copied; buffers are only
// reallocated when the width changes.
func (m *Monitor) Store(spectrum LogSpectrum, freqs []float64, peak PeakInfo, state PeakState) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.spectrum) != len(spectrum) {
		m.spectrum = make([]float64, len(spectrum))
	}
	copy(m.spectrum, spectrum)
	if len(m.freqs) != len(freqs) {
		m.freqs = make([]float64, len(freqs))
	}
	copy(m.freqs, freqs)
	m.peak = peak
	m.state = state
	m.seq++
}

// Width returns the length of the stored spectrum.
func (m *Monitor) Width() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.spectrum)
}

// LatestInto copies the stored spectrum into dst without allocating.
func (m *Monitor) LatestInto(dst []float64) (PeakInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(dst) != len(m.spectrum) {
		return PeakInfo{}, fmt.Errorf("destination slice length %d does not match required length %d", len(dst), len(m.spectrum))
	}
	copy(dst, m.spectrum)
	return m.peak, nil
}

// Latest returns a copy of the stored result. It allocates on every call;
// periodic readers should prefer LatestInto.
func (m *Monitor) Latest() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		Seq:         m.seq,
		Spectrum:    append(LogSpectrum(nil), m.spectrum...),
		Peak:        m.peak,
		State:       m.state,
		Frequencies: append([]float64(nil), m.freqs...),
	}
}
