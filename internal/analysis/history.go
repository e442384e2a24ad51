// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// History keeps the most recent spectra for the decay trail. It is a fixed
// ring over one preallocated arena; pushing past capacity overwrites the
// oldest entry.
type History struct {
	capacity int
	width    int
	arena    []float64
	head     int // slot the next Push writes
	count    int
}

// NewHistory creates a history holding up to capacity spectra of width
// samples.
func NewHistory(capacity, width int) (*History, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("history capacity must be >= 1, got %d", capacity)
	}
	if width < 1 {
		return nil, fmt.Errorf("history width must be >= 1, got %d", width)
	}
	return &History{
		capacity: capacity,
		width:    width,
		arena:    make([]float64, capacity*width),
	}, nil
}

// Capacity returns the maximum number of retained spectra.
func (h *History) Capacity() int { return h.capacity }

// Len returns the number of retained spectra.
func (h *History) Len() int { return h.count }

// Width returns the samples per entry.
func (h *History) Width() int { return h.width }

// Push copies s in as the newest entry. A spectrum of a different width
// clears the history first, since entries of mixed widths cannot be drawn
// together.
func (h *History) Push(s LogSpectrum) {
	if len(s) != h.width {
		h.Reset(len(s))
	}
	copy(h.slot(h.head), s)
	h.head = (h.head + 1) % h.capacity
	if h.count < h.capacity {
		h.count++
	}
}

// At returns the entry depth frames back, 0 being the newest. The slice
// aliases the arena and is overwritten once capacity more spectra are pushed.
func (h *History) At(depth int) (LogSpectrum, bool) {
	if depth < 0 || depth >= h.count {
		return nil, false
	}
	idx := (h.head - 1 - depth + h.capacity) % h.capacity
	return h.slot(idx), true
}

// Reset drops every entry and switches to width samples per entry.
func (h *History) Reset(width int) {
	if width < 1 {
		width = 1
	}
	if width != h.width {
		h.width = width
		h.arena = make([]float64, h.capacity*width)
	}
	h.head, h.count = 0, 0
}

// CopyFrom makes h an exact copy of src. It only allocates when the arena
// size changes.
func (h *History) CopyFrom(src *History) {
	if len(h.arena) != len(src.arena) {
		h.arena = make([]float64, len(src.arena))
	}
	copy(h.arena, src.arena)
	h.capacity, h.width = src.capacity, src.width
	h.head, h.count = src.head, src.count
}

func (h *History) slot(i int) []float64 {
	return h.arena[i*h.width : (i+1)*h.width : (i+1)*h.width]
}

// Trail renders the history as vertical positions for drawing, newest entry
// first. Entry d sample v (in [0, 1]) is drawn at
//
//	y = d*(v*height/capacity) + height - v*height
//
// so older entries sag towards the baseline at y = height.
func (h *History) Trail(height float64) [][]float64 {
	out := make([][]float64, h.count)
	for d := range h.count {
		s, _ := h.At(d)
		ys := make([]float64, len(s))
		for i, v := range s {
			value := v * height
			ys[i] = float64(d)*(value/float64(h.capacity)) + height - value
		}
		out[d] = ys
	}
	return out
}
