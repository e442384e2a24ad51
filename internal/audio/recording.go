// SPDX-License-Identifier: MIT
package audio

import (
	"spectrumtool/internal/recording"
	"spectrumtool/internal/transport"
)

const eventQueueSize = 16

// TakeSaver persists a finished take and returns where it went.
type TakeSaver interface {
	Save(take recording.Take) (string, error)
}

// Event reports the outcome of a recording handoff.
type Event struct {
	Path string // Written file, empty on failure.
	Err  error
}

// Events delivers recording outcomes. The channel is closed by Close.
// Events are dropped when nobody drains the channel.
func (e *Engine) Events() <-chan Event { return e.events }

// save hands take to the saver on its own goroutine so disk I/O never
// stalls the loop.
func (e *Engine) save(take recording.Take) {
	e.log.Infof("Recording stopped: %d samples (%s)", take.Len(), take.Duration())
	e.saves.Add(1)
	go func() {
		defer e.saves.Done()
		path, err := e.saver.Save(take)
		if err != nil {
			e.log.Errorf("Failed to save recording: %v", err)
			e.notify(Event{Err: err}, transport.RecordError(err))
			return
		}
		e.log.Infof("Saved file to %s", path)
		e.notify(Event{Path: path}, transport.RecordSaved(path))
	}()
}

func (e *Engine) notify(ev Event, msg transport.EventMessage) {
	if e.transport != nil {
		e.transport.Send(msg)
	}
	select {
	case e.events <- ev:
	default:
	}
}

// flushRecording saves a take that was still open when the loop stopped.
func (e *Engine) flushRecording() {
	if take, ok := e.recorder.Flush(); ok {
		e.save(take)
	}
}
