// SPDX-License-Identifier: MIT

// Package analysis turns processed frames into display-ready log-frequency
// spectra, keeps the short decay history and tracks the dominant pitch.
package analysis

import (
	"errors"
	"fmt"
	"math"

	"spectrumtool/internal/fft"

	"gonum.org/v1/gonum/floats"
)

// LogSpectrum is one frame's magnitude spectrum resampled onto a logarithmic
// frequency axis. Values are in [0, 1] and both endpoints are zero.
type LogSpectrum []float64

// Options configures an Analyzer.
type Options struct {
	SampleRate     float64    // Hz; the axis tops out at SampleRate/2.
	FrameSize      int        // Samples per input frame, used to size the window.
	Resolution     int        // FFT length; frames are zero padded or truncated to it.
	DisplayWidth   int        // Samples per LogSpectrum.
	MinFreq        float64    // Lowest frequency on the axis (Hz).
	ReferenceScale float64    // Magnitudes are divided by this before normalization.
	Window         WindowFunc // Applied to the frame before the FFT.
}

func (o Options) validate() error {
	var errs []error
	if o.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %g", o.SampleRate))
	}
	if o.FrameSize < 1 {
		errs = append(errs, fmt.Errorf("frame size must be positive, got %d", o.FrameSize))
	}
	if o.Resolution < 2 {
		errs = append(errs, fmt.Errorf("resolution must be >= 2, got %d", o.Resolution))
	}
	if o.DisplayWidth < 2 {
		errs = append(errs, fmt.Errorf("display width must be >= 2, got %d", o.DisplayWidth))
	}
	if o.MinFreq <= 0 || o.MinFreq >= o.SampleRate/2 {
		errs = append(errs, fmt.Errorf("min frequency %g outside (0, %g)", o.MinFreq, o.SampleRate/2))
	}
	if o.ReferenceScale <= 0 {
		errs = append(errs, fmt.Errorf("reference scale must be positive, got %g", o.ReferenceScale))
	}
	return errors.Join(errs...)
}

// Analyzer computes LogSpectrum values. It owns its buffers and must only be
// used from the audio goroutine.
type Analyzer struct {
	opts Options

	fft      *fft.Real
	window   []float64 // nil for Rectangular
	windowed []float64
	mags     []float64 // |X[k]|, Resolution/2+1 values
	binStep  float64   // Hz between magnitude bins

	freqs    []float64 // display axis
	spectrum LogSpectrum
}

// NewAnalyzer validates opts and preallocates every buffer the hot path uses.
func NewAnalyzer(opts Options) (*Analyzer, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	r, err := fft.New(opts.Resolution, opts.SampleRate)
	if err != nil {
		return nil, fmt.Errorf("failed to create analysis transform: %w", err)
	}
	a := &Analyzer{
		opts:     opts,
		fft:      r,
		window:   windowCoefficients(opts.Window, opts.FrameSize),
		windowed: make([]float64, opts.FrameSize),
		mags:     make([]float64, r.Bins()),
		binStep:  (opts.SampleRate / 2) / float64(r.Bins()-1),
		freqs:    FrequencyAxis(opts.DisplayWidth, opts.MinFreq, opts.SampleRate/2),
		spectrum: make(LogSpectrum, opts.DisplayWidth),
	}
	return a, nil
}

// Width returns the number of samples per LogSpectrum.
func (a *Analyzer) Width() int { return len(a.freqs) }

// Frequencies returns the display axis in Hz. Callers must not modify it.
func (a *Analyzer) Frequencies() []float64 { return a.freqs }

// Analyze computes the LogSpectrum of one processed frame. The result is
// owned by the analyzer and valid until the next call; use History.Push to
// keep it.
func (a *Analyzer) Analyze(frame []float64) LogSpectrum {
	seq := frame
	if a.window != nil {
		n := min(len(frame), len(a.windowed))
		for i := range n {
			a.windowed[i] = frame[i] * a.window[i]
		}
		seq = a.windowed[:n]
	}
	// Length always matches, the error is unreachable.
	_ = a.fft.Magnitudes(a.mags, seq)

	for i, f := range a.freqs {
		a.spectrum[i] = interpolate(a.mags, a.binStep, f) / a.opts.ReferenceScale
	}
	if peak := floats.Max(a.spectrum); peak > 1 {
		floats.Scale(1/peak, a.spectrum)
	}
	a.spectrum[0] = 0
	a.spectrum[len(a.spectrum)-1] = 0
	return a.spectrum
}

// FrequencyAxis returns width log-spaced frequencies starting at minFreq.
// Sample i is exp(log(min) + i*(log(max)-log(min))/width), so the axis
// approaches but never reaches maxFreq.
func FrequencyAxis(width int, minFreq, maxFreq float64) []float64 {
	freqs := make([]float64, width)
	lo, hi := math.Log(minFreq), math.Log(maxFreq)
	step := (hi - lo) / float64(width)
	for i := range freqs {
		freqs[i] = math.Exp(lo + float64(i)*step)
	}
	return freqs
}

// interpolate linearly samples ys, spaced step apart from 0, at x. Points
// outside the range take the nearest end value.
func interpolate(ys []float64, step, x float64) float64 {
	pos := x / step
	if !(pos > 0) {
		return ys[0]
	}
	last := len(ys) - 1
	j := int(pos)
	if j >= last {
		return ys[last]
	}
	frac := pos - float64(j)
	return ys[j] + frac*(ys[j+1]-ys[j])
}
