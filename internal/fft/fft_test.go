// SPDX-License-Identifier: MIT
package fft

import (
	"math"
	"testing"
)

const (
	testFFTSize    = 1024
	testSampleRate = 44100
)

func testSignal(n int) []float64 {
	buf := make([]float64, n)
	for i := range buf {
		tm := float64(i) / testSampleRate
		buf[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buf
}

func TestNewRejectsBadSizes(t *testing.T) {
	if _, err := New(0, testSampleRate); err == nil {
		t.Error("expected error for zero size")
	}
	if _, err := New(testFFTSize, 0); err == nil {
		t.Error("expected error for zero sample rate")
	}
	if _, err := New(44100, testSampleRate); err != nil {
		t.Errorf("non power of two sizes must be accepted: %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	r, err := New(testFFTSize, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	in := testSignal(testFFTSize)
	out := r.Inverse(r.Forward(in))
	for i := range in {
		if math.Abs(in[i]-out[i]) > 1e-9 {
			t.Fatalf("sample %d: got %f, want %f", i, out[i], in[i])
		}
	}
}

func TestForwardZeroPads(t *testing.T) {
	r, err := New(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	// Fill the workspace with a long sequence first so stale data would show.
	r.Forward([]float64{1, 1, 1, 1, 1, 1, 1, 1})
	coeffs := r.Forward([]float64{1})
	for i, c := range coeffs {
		if math.Abs(real(c)-1) > 1e-12 || math.Abs(imag(c)) > 1e-12 {
			t.Errorf("bin %d = %v, want 1 (impulse spectrum)", i, c)
		}
	}
}

func TestMagnitudesPeak(t *testing.T) {
	r, err := New(testSampleRate, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	mags := make([]float64, r.Bins())
	if err := r.Magnitudes(mags, testSignal(testFFTSize)); err != nil {
		t.Fatal(err)
	}
	peak := 0
	for i := range mags {
		if mags[i] > mags[peak] {
			peak = i
		}
	}
	if f := float64(peak) * testSampleRate / float64(r.Size()); math.Abs(f-440) > 2 {
		t.Errorf("peak at %f Hz, want ~440", f)
	}
	if err := r.Magnitudes(mags[:3], nil); err == nil {
		t.Error("expected length mismatch error")
	}
}

func TestFFTHotPath(t *testing.T) {
	r, err := New(testFFTSize, testSampleRate)
	if err != nil {
		t.Fatal(err)
	}
	in := testSignal(testFFTSize)
	mags := make([]float64, r.Bins())

	// Warm-up call so lazy initialisation does not count.
	_ = r.Magnitudes(mags, in)
	allocs := testing.AllocsPerRun(100, func() {
		_ = r.Magnitudes(mags, in)
		_ = r.Inverse(r.Forward(in))
	})

	if allocs > 0 {
		t.Errorf("Expected zero allocations in FFT hot path, got %.1f", allocs)
	}
}

func BenchmarkMagnitudes(b *testing.B) {
	r, _ := New(testSampleRate, testSampleRate)
	in := testSignal(testFFTSize)
	mags := make([]float64, r.Bins())

	b.ReportAllocs()

	for b.Loop() {
		_ = r.Magnitudes(mags, in)
	}
}
