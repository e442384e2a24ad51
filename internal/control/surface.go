// SPDX-License-Identifier: MIT

// Package control owns the user-facing parameters of the engine. Producers
// (the terminal panel, tests) mutate a Surface; the audio loop takes one
// Snapshot per frame so a frame never sees a half-applied change.
package control

import (
	"fmt"
	"math"
	"sync"
)

// Parameters is the per-frame view of every knob and toggle. It is a plain
// value and is always passed by value.
type Parameters struct {
	Gain       float64 `json:"gain"`
	Distortion float64 `json:"distortion"`
	Shift      float64 `json:"shift"`
	MicEnabled bool    `json:"mic_enabled"`
	Mute       bool    `json:"mute"`
	Freeze     bool    `json:"freeze"`
	Record     bool    `json:"record"`
}

// Limits bounds the continuous knobs. Gain is in [0, GainMax], distortion in
// [1, DistortionMax] and shift in [0, ShiftMax] with ShiftMax/2 meaning no
// shift.
type Limits struct {
	GainMax       float64
	DistortionMax float64
	ShiftMax      float64
}

// Validate reports limits the knobs cannot live inside.
func (l Limits) Validate() error {
	switch {
	case !(l.GainMax > 0):
		return fmt.Errorf("gain max must be positive, got %g", l.GainMax)
	case !(l.DistortionMax >= 1):
		return fmt.Errorf("distortion max must be >= 1, got %g", l.DistortionMax)
	case !(l.ShiftMax >= 0):
		return fmt.Errorf("shift max must be >= 0, got %g", l.ShiftMax)
	}
	return nil
}

// Clamp returns p with every knob forced into range. NaN knobs fall back to
// the bottom of their range.
func (l Limits) Clamp(p Parameters) Parameters {
	p.Gain = clamp(p.Gain, 0, l.GainMax)
	p.Distortion = clamp(p.Distortion, 1, l.DistortionMax)
	p.Shift = clamp(p.Shift, 0, l.ShiftMax)
	return p
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Knob names a continuous parameter.
type Knob int

const (
	KnobGain Knob = iota
	KnobDistortion
	KnobShift
)

func (k Knob) String() string {
	switch k {
	case KnobGain:
		return "gain"
	case KnobDistortion:
		return "distortion"
	case KnobShift:
		return "shift"
	default:
		return "unknown"
	}
}

// Knob travel: a full sweep is 270 degrees and one nudge moves five of them.
// Fine adjustment moves a fifth of that.
const (
	knobTravel   = 270.0
	knobStep     = 5.0
	fineDivision = 5.0
)

// Surface is the mutable parameter store shared between the control
// producer and the audio loop.
type Surface struct {
	mu       sync.RWMutex
	limits   Limits
	defaults Parameters
	params   Parameters
}

// NewSurface returns a Surface starting at defaults, clamped to limits.
func NewSurface(limits Limits, defaults Parameters) (*Surface, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	d := limits.Clamp(defaults)
	return &Surface{limits: limits, defaults: d, params: d}, nil
}

// Limits returns the knob ranges.
func (s *Surface) Limits() Limits { return s.limits }

// Snapshot returns a consistent copy of the current parameters.
func (s *Surface) Snapshot() Parameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Update applies fn to the parameters under the lock and clamps the result.
func (s *Surface) Update(fn func(*Parameters)) Parameters {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.params
	fn(&p)
	s.params = s.limits.Clamp(p)
	return s.params
}

// SetGain sets the gain knob, clamped to [0, GainMax].
func (s *Surface) SetGain(v float64) {
	s.Update(func(p *Parameters) { p.Gain = v })
}

// SetDistortion sets the distortion amount, clamped to [1, DistortionMax].
func (s *Surface) SetDistortion(v float64) {
	s.Update(func(p *Parameters) { p.Distortion = v })
}

// SetShift sets the shift knob, clamped to [0, ShiftMax].
func (s *Surface) SetShift(v float64) {
	s.Update(func(p *Parameters) { p.Shift = v })
}

func (s *Surface) SetMicEnabled(on bool) { s.Update(func(p *Parameters) { p.MicEnabled = on }) }
func (s *Surface) SetMute(on bool)       { s.Update(func(p *Parameters) { p.Mute = on }) }
func (s *Surface) SetFreeze(on bool)     { s.Update(func(p *Parameters) { p.Freeze = on }) }
func (s *Surface) SetRecord(on bool)     { s.Update(func(p *Parameters) { p.Record = on }) }

// ToggleMic flips the microphone and returns the new state.
func (s *Surface) ToggleMic() bool {
	return s.Update(func(p *Parameters) { p.MicEnabled = !p.MicEnabled }).MicEnabled
}

// ToggleMute flips playback muting and returns the new state.
func (s *Surface) ToggleMute() bool {
	return s.Update(func(p *Parameters) { p.Mute = !p.Mute }).Mute
}

// ToggleFreeze flips input freezing and returns the new state.
func (s *Surface) ToggleFreeze() bool {
	return s.Update(func(p *Parameters) { p.Freeze = !p.Freeze }).Freeze
}

// ToggleRecord flips recording and returns the new state.
func (s *Surface) ToggleRecord() bool {
	return s.Update(func(p *Parameters) { p.Record = !p.Record }).Record
}

// Nudge moves a knob by one step in direction dir (+1 or -1). A step is
// 5/270 of the knob range, or a fifth of that when fine is set.
func (s *Surface) Nudge(k Knob, dir float64, fine bool) Parameters {
	step := knobStep / knobTravel
	if fine {
		step /= fineDivision
	}
	return s.Update(func(p *Parameters) {
		switch k {
		case KnobGain:
			p.Gain += dir * step * s.limits.GainMax
		case KnobDistortion:
			p.Distortion += dir * step * (s.limits.DistortionMax - 1)
		case KnobShift:
			p.Shift += dir * step * s.limits.ShiftMax
		}
	})
}

// Reset returns a knob to its default position.
func (s *Surface) Reset(k Knob) Parameters {
	return s.Update(func(p *Parameters) {
		switch k {
		case KnobGain:
			p.Gain = s.defaults.Gain
		case KnobDistortion:
			p.Distortion = s.defaults.Distortion
		case KnobShift:
			p.Shift = s.defaults.Shift
		}
	})
}
