// SPDX-License-Identifier: MIT
package transport

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"spectrumtool/internal/analysis"
	"spectrumtool/internal/control"
	applog "spectrumtool/internal/log"

	"github.com/sirupsen/logrus"
)

// FramePublisher forwards the newest analysis result from a monitor to a
// Transport at a fixed rate. It runs on its own goroutine so the audio loop
// never builds messages for consumers.
type FramePublisher struct {
	out      Transport
	monitor  *analysis.Monitor
	params   func() control.Parameters
	interval time.Duration
	log      *logrus.Entry

	lastSeq   uint64 // owned by the publishing goroutine
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewFramePublisher creates a publisher sending at most one frame per
// interval. params supplies the knob positions reported with each frame and
// may be nil.
func NewFramePublisher(out Transport, monitor *analysis.Monitor, params func() control.Parameters, interval time.Duration) (*FramePublisher, error) {
	if out == nil {
		return nil, errors.New("frame publisher: transport cannot be nil")
	}
	if monitor == nil {
		return nil, errors.New("frame publisher: monitor cannot be nil")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("frame publisher: interval must be positive, got %s", interval)
	}
	if params == nil {
		params = func() control.Parameters { return control.Parameters{} }
	}
	return &FramePublisher{
		out:      out,
		monitor:  monitor,
		params:   params,
		interval: interval,
		log:      applog.Component("frames"),
		done:     make(chan struct{}),
	}, nil
}

// Start launches the publishing goroutine. Later calls do nothing.
func (p *FramePublisher) Start() {
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.loop()
	})
}

func (p *FramePublisher) loop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.publish()
		}
	}
}

// publish sends the newest frame when the monitor has advanced since the
// last one. It reports whether a frame went out.
func (p *FramePublisher) publish() bool {
	snap := p.monitor.Latest()
	if snap.Seq == 0 || snap.Seq == p.lastSeq {
		return false
	}
	p.lastSeq = snap.Seq
	if err := p.out.Send(NewFrameMessage(snap, p.params())); err != nil {
		p.log.Warnf("Frame %d not sent: %v", snap.Seq, err)
	}
	return true
}

// Close stops the goroutine and waits for it. It does not close the
// transport.
func (p *FramePublisher) Close() error {
	p.stopOnce.Do(func() { close(p.done) })
	p.wg.Wait()
	return nil
}
