// SPDX-License-Identifier: MIT

// Package fft wraps the gonum real FFT with preallocated workspaces so the
// per-frame transforms used by the effects chain and the analyzer do not
// allocate.
package fft

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Workspace holds pre-allocated buffers for FFT calculations.
type Workspace struct {
	input     []float64    // ...for real input samples (zero padded or truncated)
	fftOutput []complex128 // ...for FFT complex output
	output    []float64    // ...for inverse transform output
}

// Real is a fixed-length real FFT. It is not safe for concurrent use; each
// goroutine that transforms audio owns its own Real.
type Real struct {
	size       int
	sampleRate float64
	fftObj     *fourier.FFT
	workspace  Workspace
}

// New creates a transform of length size. Any positive length is accepted;
// gonum handles mixed radix sizes such as 44100.
func New(size int, sampleRate float64) (*Real, error) {
	if size < 1 {
		return nil, fmt.Errorf("fft size must be positive, got %d", size)
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", sampleRate)
	}

	return &Real{
		size:       size,
		sampleRate: sampleRate,
		fftObj:     fourier.NewFFT(size),
		workspace: Workspace{
			input:     make([]float64, size),
			fftOutput: make([]complex128, size/2+1),
			output:    make([]float64, size),
		},
	}, nil
}

// Size returns the transform length.
func (r *Real) Size() int { return r.size }

// Bins returns the number of complex coefficients, Size()/2+1.
func (r *Real) Bins() int { return len(r.workspace.fftOutput) }

// Forward transforms seq, zero padding or truncating it to Size(). The
// returned coefficients are owned by r and valid until the next call.
func (r *Real) Forward(seq []float64) []complex128 {
	n := copy(r.workspace.input, seq)
	clear(r.workspace.input[n:])
	return r.fftObj.Coefficients(r.workspace.fftOutput, r.workspace.input)
}

// Inverse transforms coeff back to a time series normalized by 1/Size(), so
// Inverse(Forward(x)) reproduces x. The result is owned by r.
func (r *Real) Inverse(coeff []complex128) []float64 {
	out := r.fftObj.Sequence(r.workspace.output, coeff)
	scale := 1 / float64(r.size)
	for i := range out {
		out[i] *= scale
	}
	return out
}

// Magnitudes writes |X[k]| of the forward transform of seq into dst, which
// must hold Bins() values.
func (r *Real) Magnitudes(dst []float64, seq []float64) error {
	if len(dst) != r.Bins() {
		return fmt.Errorf("destination slice length %d does not match required length %d", len(dst), r.Bins())
	}
	for i, c := range r.Forward(seq) {
		dst[i] = cmplx.Abs(c)
	}
	return nil
}
