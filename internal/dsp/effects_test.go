// SPDX-License-Identifier: MIT
package dsp

import (
	"math"
	"testing"

	"spectrumtool/internal/control"
)

const (
	testFrameSize  = 1024
	testSampleRate = 44100
)

var testLimits = control.Limits{GainMax: 1.2, DistortionMax: 512, ShiftMax: 48}

// neutral leaves every stage as an identity.
var neutral = control.Parameters{Gain: 1, Distortion: 1, Shift: 24, MicEnabled: true}

func sineFrame(n int, freq, amp float64) Frame {
	f := make(Frame, n)
	for i := range f {
		f[i] = int16(amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}
	return f
}

func newTestChain(t *testing.T, mode DistortionMode) *Chain {
	t.Helper()
	c, err := NewChain(testFrameSize, testLimits, mode)
	if err != nil {
		t.Fatalf("NewChain: %v", err)
	}
	return c
}

func TestNeutralChainIsIdentity(t *testing.T) {
	c := newTestChain(t, ModeDist)
	in := sineFrame(testFrameSize, 440, 20000)
	out := c.Process(in, neutral)
	for i := range in {
		if out[i] != float64(in[i]) {
			t.Fatalf("sample %d: got %f, want %d", i, out[i], in[i])
		}
	}
}

func TestOutputLengthMatchesFrame(t *testing.T) {
	c := newTestChain(t, ModeDist)
	out := c.Process(make(Frame, 10), neutral)
	if len(out) != testFrameSize {
		t.Errorf("len = %d, want %d", len(out), testFrameSize)
	}
}

func TestSilenceStaysSilent(t *testing.T) {
	c := newTestChain(t, ModeDist)
	p := control.Parameters{Gain: 1.2, Distortion: 300, Shift: 40}
	for i, v := range c.Process(make(Frame, testFrameSize), p) {
		if math.Abs(v) > 1e-9 {
			t.Fatalf("sample %d = %g, want 0", i, v)
		}
	}
}

func TestDistort(t *testing.T) {
	tests := []struct {
		name   string
		in     float64
		amount float64
		mode   DistortionMode
		want   float64
	}{
		{"amount one is identity", 30000, 1, ModeDist, 30000},
		{"amount below one is identity", -30000, 0.5, ModeClip, -30000},
		{"dist clips then rescales", 30000, 2, ModeDist, 16383.5 * 1},
		{"dist small signal scaled", 100, 14, ModeDist, 200},
		{"dist negative rail", -32768, 512, ModeDist, -64 * 522.0 / 12},
		{"clip rescales by amount", 30000, 2, ModeClip, 32767},
		{"clip small signal", 100, 4, ModeClip, 400},
		{"clip result bounded", 20000, 3, ModeClip, 32767},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := []float64{tt.in}
			Distort(buf, tt.amount, tt.mode)
			if math.Abs(buf[0]-tt.want) > 1e-9 {
				t.Errorf("Distort(%g, %g, %s) = %g, want %g", tt.in, tt.amount, tt.mode, buf[0], tt.want)
			}
		})
	}
}

func TestGainClips(t *testing.T) {
	buf := []float64{30000, -30000, 1000}
	Gain(buf, 1.2)
	want := []float64{32767, -32768, 1200}
	for i := range buf {
		if buf[i] != want[i] {
			t.Errorf("sample %d = %g, want %g", i, buf[i], want[i])
		}
	}
}

func TestShiftBins(t *testing.T) {
	tests := []struct {
		shift, max float64
		want       int
	}{
		{24, 48, 0},
		{0, 48, -24},
		{48, 48, 24},
		{24.6, 48, 1},
		{23.4, 48, -1},
	}
	for _, tt := range tests {
		if got := ShiftBins(tt.shift, tt.max); got != tt.want {
			t.Errorf("ShiftBins(%g, %g) = %d, want %d", tt.shift, tt.max, got, tt.want)
		}
	}
}

func TestRotate(t *testing.T) {
	s := []complex128{0, 1, 2, 3, 4}
	rotate(s, 2)
	want := []complex128{3, 4, 0, 1, 2}
	for i := range s {
		if s[i] != want[i] {
			t.Fatalf("rotate +2 = %v, want %v", s, want)
		}
	}
	rotate(s, -2)
	for i := range s {
		if s[i] != complex(float64(i), 0) {
			t.Fatalf("rotate -2 did not undo: %v", s)
		}
	}
}

func peakBin(c *Chain, buf []float64) int {
	coeffs := c.shifter.Forward(buf)
	best, bestMag := 0, 0.0
	for i, v := range coeffs {
		if m := real(v)*real(v) + imag(v)*imag(v); m > bestMag {
			best, bestMag = i, m
		}
	}
	return best
}

func TestFrequencyShiftMovesSpectrum(t *testing.T) {
	c := newTestChain(t, ModeDist)
	// Bin-aligned tone: bin 40 of a 1024 point frame.
	freq := 40 * float64(testSampleRate) / testFrameSize
	in := sineFrame(testFrameSize, freq, 10000)

	p := neutral
	p.Shift = 24 + 10
	out := c.Process(in, p)
	if got := peakBin(c, out); got != 50 {
		t.Errorf("shift up: peak bin = %d, want 50", got)
	}

	p.Shift = 24 - 10
	out = c.Process(in, p)
	if got := peakBin(c, out); got != 30 {
		t.Errorf("shift down: peak bin = %d, want 30", got)
	}
}

func TestToPCMTruncates(t *testing.T) {
	dst := make(Frame, 4)
	ToPCM(dst, []float64{1.9, -1.9, 40000, -40000})
	want := Frame{1, -1, 32767, -32768}
	for i := range dst {
		if dst[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, dst[i], want[i])
		}
	}
}

func TestParseDistortionMode(t *testing.T) {
	if m, err := ParseDistortionMode("CLIP"); err != nil || m != ModeClip {
		t.Errorf("ParseDistortionMode(CLIP) = %v, %v", m, err)
	}
	if m, err := ParseDistortionMode(""); err != nil || m != ModeDist {
		t.Errorf("empty mode should default to dist, got %v, %v", m, err)
	}
	if _, err := ParseDistortionMode("fuzz"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestProcessHotPath(t *testing.T) {
	c := newTestChain(t, ModeDist)
	in := sineFrame(testFrameSize, 440, 20000)
	p := control.Parameters{Gain: 0.8, Distortion: 20, Shift: 30}

	c.Process(in, p)
	allocs := testing.AllocsPerRun(100, func() {
		c.Process(in, p)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in effects hot path, got %.1f", allocs)
	}
}

func BenchmarkProcess(b *testing.B) {
	c, _ := NewChain(testFrameSize, testLimits, ModeDist)
	in := sineFrame(testFrameSize, 440, 20000)
	p := control.Parameters{Gain: 0.8, Distortion: 20, Shift: 30}

	b.ReportAllocs()

	for b.Loop() {
		c.Process(in, p)
	}
}
