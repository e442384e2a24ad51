// SPDX-License-Identifier: MIT
package analysis

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// PeakInfo is the last accepted dominant frequency and its note name. Note
// is empty when the note table has no entry for it.
type PeakInfo struct {
	Frequency float64 `json:"frequency"`
	Note      string  `json:"note"`
}

// PeakState reports whether the last Detect call accepted a new peak.
type PeakState int

const (
	// Held means the gate rejected the frame and the previous peak stands.
	Held PeakState = iota
	// Updated means the frame produced a new peak.
	Updated
)

func (s PeakState) String() string {
	if s == Updated {
		return "updated"
	}
	return "held"
}

// DisplayHeadroom scales a normalized spectrum below the top of the display,
// so a full-scale column reaches 95% of DisplayHeight.
const DisplayHeadroom = 0.95

// PeakOptions configures the detection gate.
type PeakOptions struct {
	// Threshold is the minimum spectrum maximum, in display units.
	Threshold float64
	// MinFrequency rejects peaks at or below it (Hz).
	MinFrequency float64
	// DisplayHeight converts normalized spectra to display units, together
	// with DisplayHeadroom.
	DisplayHeight float64
}

// PeakDetector tracks the dominant frequency across frames. Frames that fail
// the amplitude or frequency gate leave the previous result in place.
type PeakDetector struct {
	opts  PeakOptions
	notes NoteTable
	peak  PeakInfo
	state PeakState
}

// NewPeakDetector creates a detector. A nil table disables note names.
func NewPeakDetector(notes NoteTable, opts PeakOptions) *PeakDetector {
	return &PeakDetector{opts: opts, notes: notes}
}

// Detect inspects spectrum, sampled at freqs, and returns the current peak.
func (d *PeakDetector) Detect(spectrum LogSpectrum, freqs []float64) PeakInfo {
	n := min(len(spectrum), len(freqs))
	if n == 0 {
		d.state = Held
		return d.peak
	}
	idx := floats.MaxIdx(spectrum[:n])
	amplitude := spectrum[idx] * d.opts.DisplayHeight * DisplayHeadroom
	freq := freqs[idx]

	if !(amplitude > d.opts.Threshold) || !(freq > d.opts.MinFrequency) {
		d.state = Held
		return d.peak
	}
	d.peak = PeakInfo{Frequency: freq, Note: d.notes.Name(NoteNumber(freq))}
	d.state = Updated
	return d.peak
}

// SetThreshold changes the amplitude gate, in display units.
func (d *PeakDetector) SetThreshold(v float64) { d.opts.Threshold = v }

// Threshold returns the amplitude gate in display units.
func (d *PeakDetector) Threshold() float64 { return d.opts.Threshold }

// Peak returns the current result without inspecting a frame.
func (d *PeakDetector) Peak() PeakInfo { return d.peak }

// State reports whether the last Detect call updated the peak.
func (d *PeakDetector) State() PeakState { return d.state }

// NoteNumber maps a frequency to the nearest MIDI note, A4 = 440 Hz = 69.
func NoteNumber(freq float64) int {
	return int(math.Round(12*math.Log2(freq/440) + 69))
}
