// SPDX-License-Identifier: MIT
/*
Package audio runs the frame-at-a-time pipeline of the spectrum tool:
- Blocking capture and playback using PortAudio
- Effects chain, log-frequency analysis and peak detection per frame
- Recording handoff to a background WAV writer

Thread Safety:
- One goroutine owns the loop, the history and the recording buffer
- Parameters are read once per frame from the control surface
- Results are published through the monitor; events go to a non-blocking transport
- Locks OS thread during audio processing
*/
package audio

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"spectrumtool/internal/analysis"
	"spectrumtool/internal/config"
	"spectrumtool/internal/control"
	"spectrumtool/internal/dsp"
	applog "spectrumtool/internal/log"
	"spectrumtool/internal/recording"
	"spectrumtool/internal/transport"

	"github.com/sirupsen/logrus"
)

// ErrRunning is returned by Run when the loop is already active.
var ErrRunning = errors.New("engine already running")

type Engine struct {
	// Core configuration and state.
	config  *config.Config
	surface *control.Surface
	log     *logrus.Entry

	// Device I/O. sink may be nil for analysis-only runs.
	source FrameSource
	sink   FrameSink

	// Per-frame processing, owned by the loop goroutine.
	chain    *dsp.Chain
	analyzer *analysis.Analyzer
	history  *analysis.History
	detector *analysis.PeakDetector
	recorder *recording.Recorder
	input    dsp.Frame // Last captured frame; replayed while frozen.
	output   dsp.Frame

	// Consumers.
	monitor   *analysis.Monitor
	transport transport.Transport
	saver     TakeSaver
	saves     sync.WaitGroup
	events    chan Event

	framePeriod   time.Duration
	gateThreshold atomic.Uint64 // float64 bits, display units
	frames        atomic.Uint64
	running       atomic.Bool
	closeOnce     sync.Once
}

// Option customizes an Engine.
type Option func(*Engine)

// WithTransport reports recording events to t. Frames reach consumers
// through the monitor, see transport.FramePublisher.
func WithTransport(t transport.Transport) Option {
	return func(e *Engine) { e.transport = t }
}

// WithSaver replaces the default WAV writer.
func WithSaver(s TakeSaver) Option {
	return func(e *Engine) { e.saver = s }
}

// WithMonitor shares an existing monitor, typically with the control panel.
func WithMonitor(m *analysis.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithNotes sets the note table instead of loading analysis.note_map.
func WithNotes(t analysis.NoteTable) Option {
	return func(e *Engine) { e.detector = analysis.NewPeakDetector(t, peakOptions(e.config)) }
}

// NewEngine builds the pipeline described by cfg around source and sink.
// The engine takes ownership of both and closes them in Close.
func NewEngine(cfg *config.Config, surface *control.Surface, source FrameSource, sink FrameSink, opts ...Option) (*Engine, error) {
	if source == nil {
		return nil, errors.New("engine needs a frame source")
	}

	mode, err := dsp.ParseDistortionMode(cfg.Effects.DistortionMode)
	if err != nil {
		return nil, err
	}
	chain, err := dsp.NewChain(cfg.Audio.FramesPerBuffer, surface.Limits(), mode)
	if err != nil {
		return nil, fmt.Errorf("effects chain: %w", err)
	}

	window, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return nil, err
	}
	analyzer, err := analysis.NewAnalyzer(analysis.Options{
		SampleRate:     cfg.Audio.SampleRate,
		FrameSize:      cfg.Audio.FramesPerBuffer,
		Resolution:     cfg.Analysis.Resolution,
		DisplayWidth:   cfg.Analysis.DisplayWidth,
		MinFreq:        cfg.Analysis.MinFreq,
		ReferenceScale: cfg.Analysis.ReferenceScale,
		Window:         window,
	})
	if err != nil {
		return nil, fmt.Errorf("analyzer: %w", err)
	}

	history, err := analysis.NewHistory(cfg.Analysis.Decay, cfg.Analysis.DisplayWidth)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		config:      cfg,
		surface:     surface,
		log:         applog.Component("engine"),
		source:      source,
		sink:        sink,
		chain:       chain,
		analyzer:    analyzer,
		history:     history,
		recorder:    recording.NewRecorder(int(cfg.Audio.SampleRate)),
		input:       make(dsp.Frame, cfg.Audio.FramesPerBuffer),
		output:      make(dsp.Frame, cfg.Audio.FramesPerBuffer),
		events:      make(chan Event, eventQueueSize),
		framePeriod: time.Duration(float64(cfg.Audio.FramesPerBuffer) / cfg.Audio.SampleRate * float64(time.Second)),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.detector == nil {
		e.detector = analysis.NewPeakDetector(analysis.LoadNoteTable(cfg.Analysis.NoteMap), peakOptions(cfg))
	}
	if e.monitor == nil {
		e.monitor = analysis.NewMonitor()
	}
	if e.saver == nil {
		e.saver = recording.NewWavWriter(cfg.Recording.OutputDir, cfg.Recording.BitDepth)
	}
	e.SetPeakThreshold(cfg.Analysis.PeakThreshold)

	return e, nil
}

func peakOptions(cfg *config.Config) analysis.PeakOptions {
	return analysis.PeakOptions{
		Threshold:     cfg.Analysis.PeakThreshold,
		MinFrequency:  cfg.Analysis.MinPeakFreq,
		DisplayHeight: cfg.Analysis.DisplayHeight,
	}
}

// Monitor returns the monitor holding the latest analysis results.
func (e *Engine) Monitor() *analysis.Monitor { return e.monitor }

// Run processes frames until ctx is cancelled or a device fails. Cancellation
// is a clean stop and returns nil; an active recording is handed off for
// saving before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer e.running.Store(false)

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	e.log.WithFields(applog.Fields{
		"frames_per_buffer": e.config.Audio.FramesPerBuffer,
		"sample_rate":       e.config.Audio.SampleRate,
		"resolution":        e.config.Analysis.Resolution,
	}).Info("Engine started")

	pacer := time.NewTicker(e.framePeriod)
	defer pacer.Stop()

	var err error
	for err == nil {
		select {
		case <-ctx.Done():
			e.flushRecording()
			e.log.Infof("Engine stopped after %d frames", e.frames.Load())
			return nil
		default:
		}
		err = e.step(ctx, pacer.C)
	}

	e.flushRecording()
	return err
}

// step runs one frame through the pipeline. pace is waited on when the frame
// did no blocking device I/O, so freeze and mute do not spin the loop.
func (e *Engine) step(ctx context.Context, pace <-chan time.Time) error {
	p := e.surface.Snapshot()
	blocked := false

	// Freeze replays the held input with the current knobs.
	if !p.Freeze {
		if err := e.source.Read(e.input); err != nil {
			if !IsXrun(err) {
				return fmt.Errorf("read input: %w", err)
			}
			e.log.Warnf("Input: %v", err)
		}
		blocked = true
		if !p.MicEnabled {
			clear(e.input)
		}
	}

	processed := e.chain.Process(e.input, p)

	e.detector.SetThreshold(e.PeakThreshold())
	spectrum := e.analyzer.Analyze(processed)
	e.history.Push(spectrum)
	peak := e.detector.Detect(spectrum, e.analyzer.Frequencies())
	state := e.detector.State()

	e.monitor.Store(spectrum, e.analyzer.Frequencies(), peak, state)
	e.monitor.StoreHistory(e.history)
	e.frames.Add(1)

	if take, ok := e.recorder.Step(p.Record, processed); ok {
		e.save(take)
	}

	if !p.Mute && e.sink != nil {
		dsp.ToPCM(e.output, processed)
		if err := e.sink.Write(e.output); err != nil {
			if !IsXrun(err) {
				return fmt.Errorf("write output: %w", err)
			}
			e.log.Warnf("Output: %v", err)
		}
		blocked = true
	}

	if !blocked {
		select {
		case <-ctx.Done():
		case <-pace:
		}
	}
	return nil
}

// Close waits for pending recordings and releases the devices and
// transports. It must not be called while Run is active.
func (e *Engine) Close() error {
	var errs []error
	e.closeOnce.Do(func() {
		e.saves.Wait()
		close(e.events)

		if err := e.source.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close input: %w", err))
		}
		if e.sink != nil {
			if err := e.sink.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close output: %w", err))
			}
		}
		if e.transport != nil {
			if err := e.transport.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close transport: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}
