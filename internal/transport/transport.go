// SPDX-License-Identifier: MIT
package transport

import (
	"spectrumtool/internal/analysis"
	"spectrumtool/internal/control"
)

// Transport defines a generic interface for sending processed data or events.
// Implementations should be thread-safe and must not block the caller.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types carried in the "type" field.
const (
	TypeFrame       = "frame"
	TypeRecordSaved = "record_saved"
	TypeRecordError = "record_error"
)

// FrameMessage is the per-frame analysis result sent to visualization
// consumers.
type FrameMessage struct {
	Type     string             `json:"type"`
	Seq      uint64             `json:"seq"`
	Spectrum []float64          `json:"spectrum"`
	Peak     analysis.PeakInfo  `json:"peak"`
	Held     bool               `json:"held"`
	Params   control.Parameters `json:"params"`
}

// NewFrameMessage builds a frame message from a monitor snapshot. The
// message keeps the snapshot's spectrum, which Monitor.Latest already copied.
func NewFrameMessage(snap analysis.Snapshot, p control.Parameters) FrameMessage {
	return FrameMessage{
		Type:     TypeFrame,
		Seq:      snap.Seq,
		Spectrum: snap.Spectrum,
		Peak:     snap.Peak,
		Held:     snap.State == analysis.Held,
		Params:   p,
	}
}

// EventMessage reports something that happened outside the frame stream,
// such as a finished recording.
type EventMessage struct {
	Type  string `json:"type"`
	Path  string `json:"path,omitempty"`
	Error string `json:"error,omitempty"`
}

// RecordSaved builds the event for a written take.
func RecordSaved(path string) EventMessage {
	return EventMessage{Type: TypeRecordSaved, Path: path}
}

// RecordError builds the event for a take that could not be written.
func RecordError(err error) EventMessage {
	return EventMessage{Type: TypeRecordError, Error: err.Error()}
}

// Multi fans a message out to several transports. Send returns the first
// error but always tries every transport.
type Multi []Transport

func (m Multi) Send(data any) error {
	var first error
	for _, t := range m {
		if err := t.Send(data); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m Multi) Close() error {
	var first error
	for _, t := range m {
		if err := t.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

var _ Transport = Multi(nil)
