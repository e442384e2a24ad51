// SPDX-License-Identifier: MIT

// Package dsp implements the per-frame effects chain: distortion, frequency
// shift and gain, applied in that order to one mono int16 frame.
package dsp

import (
	"fmt"
	"math"
	"strings"

	"spectrumtool/internal/control"
	"spectrumtool/internal/fft"
)

// Sample range of 16-bit PCM.
const (
	MinInt = math.MinInt16
	MaxInt = math.MaxInt16
)

// Frame is one block of mono 16-bit PCM samples.
type Frame []int16

// DistortionMode selects the distortion transfer function.
type DistortionMode int

const (
	// ModeDist clips to [MinInt/a, MaxInt/a], rescales by (a+10)/12 and
	// clips to the int16 range again.
	ModeDist DistortionMode = iota
	// ModeClip clips to [MinInt/a, MaxInt/a] and rescales by a.
	ModeClip
)

func (m DistortionMode) String() string {
	if m == ModeClip {
		return "clip"
	}
	return "dist"
}

// ParseDistortionMode converts "dist" or "clip" (case-insensitive).
func ParseDistortionMode(name string) (DistortionMode, error) {
	switch strings.ToLower(name) {
	case "dist", "":
		return ModeDist, nil
	case "clip":
		return ModeClip, nil
	default:
		return ModeDist, fmt.Errorf("unknown distortion mode: '%s'", name)
	}
}

// Chain applies the effects stages to a frame. A Chain owns its working
// buffers and must only be used from one goroutine.
type Chain struct {
	frameSize int
	shiftMax  float64
	mode      DistortionMode

	shifter *fft.Real
	work    []float64 // stage output, returned by Process
}

// NewChain creates a chain for frames of frameSize samples.
func NewChain(frameSize int, limits control.Limits, mode DistortionMode) (*Chain, error) {
	if frameSize < 1 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	// The sample rate only labels bins; shifting works in bin units.
	shifter, err := fft.New(frameSize, 1)
	if err != nil {
		return nil, fmt.Errorf("failed to create shift transform: %w", err)
	}
	return &Chain{
		frameSize: frameSize,
		shiftMax:  limits.ShiftMax,
		mode:      mode,
		shifter:   shifter,
		work:      make([]float64, frameSize),
	}, nil
}

// FrameSize returns the number of samples per frame.
func (c *Chain) FrameSize() int { return c.frameSize }

// Process runs distortion, frequency shift and gain over frame using the
// knobs in p. The result has the frame's length (shorter frames are zero
// padded, longer ones truncated), is clipped to the int16 range, and is owned
// by the chain until the next call.
func (c *Chain) Process(frame Frame, p control.Parameters) []float64 {
	n := min(len(frame), c.frameSize)
	for i := range n {
		c.work[i] = float64(frame[i])
	}
	clear(c.work[n:])

	Distort(c.work, p.Distortion, c.mode)
	c.shift(c.work, ShiftBins(p.Shift, c.shiftMax))
	Gain(c.work, p.Gain)
	return c.work
}

// Distort applies the distortion stage in place. Amounts at or below one
// leave the buffer untouched.
func Distort(buf []float64, amount float64, mode DistortionMode) {
	if !(amount > 1) {
		return
	}
	lo, hi := MinInt/amount, MaxInt/amount
	scale := amount
	if mode == ModeDist {
		scale = (amount + 10) / 12
	}
	for i, v := range buf {
		v = min(max(v, lo), hi) * scale
		buf[i] = clipInt16(v)
	}
}

// ShiftBins converts the shift knob into a whole number of FFT bins. The
// centre of the knob range is zero.
func ShiftBins(shift, shiftMax float64) int {
	return int(math.Round(shift - shiftMax/2))
}

// shift rotates the real spectrum of buf by k bins and transforms back.
// Bin i moves to (i+k) mod bins, so content pushed past Nyquist wraps to DC.
func (c *Chain) shift(buf []float64, k int) {
	if k == 0 {
		return
	}
	coeffs := c.shifter.Forward(buf)
	rotate(coeffs, k)
	copy(buf, c.shifter.Inverse(coeffs))
}

// rotate performs an in-place circular rotation by k using three reversals.
func rotate(s []complex128, k int) {
	n := len(s)
	if n == 0 {
		return
	}
	k %= n
	if k < 0 {
		k += n
	}
	if k == 0 {
		return
	}
	reverse(s)
	reverse(s[:k])
	reverse(s[k:])
}

func reverse(s []complex128) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Gain multiplies buf by g in place and clips to the int16 range.
func Gain(buf []float64, g float64) {
	for i, v := range buf {
		buf[i] = clipInt16(v * g)
	}
}

func clipInt16(v float64) float64 {
	return min(max(v, MinInt), MaxInt)
}

// ToPCM converts processed samples back to int16, truncating toward zero.
// dst and src are processed up to the shorter length.
func ToPCM(dst Frame, src []float64) {
	n := min(len(dst), len(src))
	for i := range n {
		dst[i] = int16(clipInt16(src[i]))
	}
}
