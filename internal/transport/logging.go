// SPDX-License-Identifier: MIT
package transport

import (
	"sync/atomic"

	applog "spectrumtool/internal/log"

	"github.com/sirupsen/logrus"
)

// LoggingTransport implements the Transport interface by logging messages at
// debug level. Frames are summarized every summaryEvery messages so the log
// stays readable at audio rates.
type LoggingTransport struct {
	log          *logrus.Entry
	summaryEvery uint64
	frames       atomic.Uint64
}

// NewLoggingTransport creates a new LoggingTransport instance. A
// summaryEvery of zero logs every frame.
func NewLoggingTransport(summaryEvery uint64) *LoggingTransport {
	lt := &LoggingTransport{
		log:          applog.Component("transport"),
		summaryEvery: max(summaryEvery, 1),
	}
	lt.log.Debug("Using LoggingTransport")
	return lt
}

// Send logs the received data.
func (lt *LoggingTransport) Send(data any) error {
	switch msg := data.(type) {
	case FrameMessage:
		if n := lt.frames.Add(1); n%lt.summaryEvery == 0 {
			lt.log.WithFields(applog.Fields{
				"seq":  msg.Seq,
				"peak": msg.Peak.Frequency,
				"note": msg.Peak.Note,
				"held": msg.Held,
			}).Debug("Frame")
		}
	case EventMessage:
		lt.log.WithFields(applog.Fields{"path": msg.Path, "error": msg.Error}).Info(msg.Type)
	default:
		lt.log.Debugf("Received %T", data)
	}
	return nil
}

// Frames returns the number of frame messages seen.
func (lt *LoggingTransport) Frames() uint64 { return lt.frames.Load() }

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	lt.log.Debugf("Closed after %d frames", lt.frames.Load())
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
