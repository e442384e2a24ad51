// SPDX-License-Identifier: MIT

// Package recording captures processed frames while the record toggle is on
// and hands finished takes to a WAV writer.
package recording

import (
	"time"
)

// Take is one finished recording. Samples are the processed int16 values
// divided by SampleRate/4.
type Take struct {
	Samples    []float32
	SampleRate int
	StartedAt  time.Time
}

// FullScale is the factor that turns a stored sample back into its int16
// value.
func (t Take) FullScale() float64 { return float64(t.SampleRate) / 4 }

// Len returns the number of samples.
func (t Take) Len() int { return len(t.Samples) }

// Duration returns the playback length of the take.
func (t Take) Duration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(t.Samples)) * time.Second / time.Duration(t.SampleRate)
}

// Buffer accumulates scaled samples. It is owned by the audio goroutine.
type Buffer struct {
	sampleRate int
	scale      float64
	samples    []float32
	startedAt  time.Time
	now        func() time.Time
}

// NewBuffer creates an empty buffer for audio at sampleRate.
func NewBuffer(sampleRate int) *Buffer {
	return &Buffer{
		sampleRate: sampleRate,
		scale:      4 / float64(sampleRate),
		now:        time.Now,
	}
}

// Append converts frame to int16 (truncating toward zero, clipped to the
// int16 range) and stores each sample scaled by 1/(sampleRate/4).
func (b *Buffer) Append(frame []float64) {
	if len(b.samples) == 0 {
		b.startedAt = b.now()
	}
	for _, v := range frame {
		pcm := int16(min(max(v, -32768), 32767))
		b.samples = append(b.samples, float32(float64(pcm)*b.scale))
	}
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int { return len(b.samples) }

// Finalize returns everything appended so far as a Take and empties the
// buffer. Finalizing an empty buffer returns an empty Take.
func (b *Buffer) Finalize() Take {
	t := Take{
		Samples:    b.samples,
		SampleRate: b.sampleRate,
		StartedAt:  b.startedAt,
	}
	b.samples = nil
	b.startedAt = time.Time{}
	return t
}

// Recorder drives a Buffer from the per-frame record flag.
type Recorder struct {
	buf    *Buffer
	active bool
}

// NewRecorder creates a recorder for audio at sampleRate.
func NewRecorder(sampleRate int) *Recorder {
	return &Recorder{buf: NewBuffer(sampleRate)}
}

// Active reports whether a take is in progress.
func (r *Recorder) Active() bool { return r.active }

// Len returns the number of samples in the take in progress.
func (r *Recorder) Len() int { return r.buf.Len() }

// Step appends frame while record is set. When record drops after being set
// the take is finalized and returned with ok true.
func (r *Recorder) Step(record bool, frame []float64) (take Take, ok bool) {
	if record {
		r.active = true
		r.buf.Append(frame)
		return Take{}, false
	}
	if !r.active {
		return Take{}, false
	}
	r.active = false
	return r.buf.Finalize(), true
}

// Flush finalizes a take in progress, used at shutdown.
func (r *Recorder) Flush() (Take, bool) {
	if !r.active {
		return Take{}, false
	}
	r.active = false
	return r.buf.Finalize(), true
}
