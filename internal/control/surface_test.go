// SPDX-License-Identifier: MIT
package control

import (
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{GainMax: 1.2, DistortionMax: 512, ShiftMax: 48}

func newTestSurface(t *testing.T) *Surface {
	t.Helper()
	s, err := NewSurface(testLimits, Parameters{Gain: 0.8, Distortion: 1, Shift: 24, MicEnabled: true})
	require.NoError(t, err)
	return s
}

func TestLimitsValidate(t *testing.T) {
	assert.NoError(t, testLimits.Validate())
	assert.Error(t, Limits{GainMax: 0, DistortionMax: 2, ShiftMax: 1}.Validate())
	assert.Error(t, Limits{GainMax: 1, DistortionMax: 0.5, ShiftMax: 1}.Validate())
	assert.Error(t, Limits{GainMax: 1, DistortionMax: 2, ShiftMax: -1}.Validate())
	assert.Error(t, Limits{GainMax: math.NaN(), DistortionMax: 2, ShiftMax: 1}.Validate())
}

func TestSettersClamp(t *testing.T) {
	s := newTestSurface(t)

	s.SetGain(-1)
	assert.Equal(t, 0.0, s.Snapshot().Gain)
	s.SetGain(99)
	assert.Equal(t, 1.2, s.Snapshot().Gain)

	s.SetDistortion(0)
	assert.Equal(t, 1.0, s.Snapshot().Distortion, "distortion amount below one is rejected")
	s.SetDistortion(math.NaN())
	assert.Equal(t, 1.0, s.Snapshot().Distortion)

	s.SetShift(100)
	assert.Equal(t, 48.0, s.Snapshot().Shift)
	s.SetShift(-3)
	assert.Equal(t, 0.0, s.Snapshot().Shift)
}

func TestToggles(t *testing.T) {
	s := newTestSurface(t)

	assert.False(t, s.ToggleMic())
	assert.True(t, s.ToggleMute())
	assert.True(t, s.ToggleFreeze())
	assert.True(t, s.ToggleRecord())

	p := s.Snapshot()
	assert.Equal(t, Parameters{Gain: 0.8, Distortion: 1, Shift: 24, Mute: true, Freeze: true, Record: true}, p)

	s.SetRecord(false)
	s.SetMicEnabled(true)
	s.SetMute(false)
	s.SetFreeze(false)
	assert.Equal(t, Parameters{Gain: 0.8, Distortion: 1, Shift: 24, MicEnabled: true}, s.Snapshot())
}

func TestNudgeAndReset(t *testing.T) {
	s := newTestSurface(t)

	p := s.Nudge(KnobGain, 1, false)
	assert.InDelta(t, 0.8+1.2*5/270, p.Gain, 1e-12)

	p = s.Nudge(KnobShift, -1, true)
	assert.InDelta(t, 24-48*1.0/270, p.Shift, 1e-12)

	for range 1000 {
		s.Nudge(KnobDistortion, 1, false)
	}
	assert.Equal(t, 512.0, s.Snapshot().Distortion)

	p = s.Reset(KnobDistortion)
	assert.Equal(t, 1.0, p.Distortion)
	p = s.Reset(KnobGain)
	assert.Equal(t, 0.8, p.Gain)
	p = s.Reset(KnobShift)
	assert.Equal(t, 24.0, p.Shift)
}

func TestDefaultsAreClamped(t *testing.T) {
	s, err := NewSurface(testLimits, Parameters{Gain: 5, Distortion: 0, Shift: 60})
	require.NoError(t, err)
	assert.Equal(t, Parameters{Gain: 1.2, Distortion: 1, Shift: 48}, s.Snapshot())
	s.SetGain(0.1)
	assert.Equal(t, 1.2, s.Reset(KnobGain).Gain)
}

func TestSnapshotIsConsistentUnderConcurrentWrites(t *testing.T) {
	s := newTestSurface(t)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range 1000 {
			v := float64(i%2) + 0.1
			// Gain and distortion always move together.
			s.Update(func(p *Parameters) {
				p.Gain = v
				p.Distortion = v + 1
			})
		}
	}()
	go func() {
		defer wg.Done()
		for range 1000 {
			p := s.Snapshot()
			if p.Gain != 0.8 && p.Distortion != p.Gain+1 {
				t.Errorf("torn snapshot: %+v", p)
				return
			}
		}
	}()
	wg.Wait()
}

func TestKnobString(t *testing.T) {
	assert.Equal(t, "gain", KnobGain.String())
	assert.Equal(t, "distortion", KnobDistortion.String())
	assert.Equal(t, "shift", KnobShift.String())
	assert.Equal(t, "unknown", Knob(9).String())
}
