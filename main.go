// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"spectrumtool/cmd"
	"spectrumtool/internal/analysis"
	"spectrumtool/internal/audio"
	"spectrumtool/internal/config"
	"spectrumtool/internal/control"
	applog "spectrumtool/internal/log"
	"spectrumtool/internal/transport"
	"spectrumtool/internal/transport/udp"
	"spectrumtool/internal/tui"
	"spectrumtool/pkg/build"
)

// Frames are pushed to transports at most this often.
const frameInterval = 33 * time.Millisecond

// main is the entry point for the spectral audio engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and configuration
//   - Initialize PortAudio
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Open the input and output streams
//   - Run the engine loop on its own OS thread
//   - Publish frames from the monitor to the configured consumers
//   - Drive the control panel (or wait for a signal when headless)
//
// 3. Shutdown Phase (Cold Path):
//   - Stop the engine, flushing any open take
//   - Close streams and transports
func main() {
	os.Exit(run())
}

func run() int {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Debugf("Build information incomplete, using defaults: %v", err)
	}

	// One thread for the engine loop, which locks itself to it, and one for
	// the panel, the transports and I/O.
	runtime.GOMAXPROCS(max(2, runtime.GOMAXPROCS(0)))

	inv, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Errorf("%v", err)
		return 2
	}
	if inv == nil {
		return 0 // Help or version was printed.
	}
	cfg := inv.Config
	configureLogging(cfg)

	if err := audio.Initialize(); err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	defer audio.Terminate()

	switch inv.Command {
	case cmd.CommandList:
		if err := audio.ListDevices(); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		return 0

	case cmd.CommandDevices:
		sel, ok, err := tui.PickInput()
		if err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		if !ok {
			return 0
		}
		cfg.Audio.InputDevice = sel.DeviceID
		if sel.SampleRate != cfg.Audio.SampleRate && cfg.Analysis.Resolution == config.DefaultResolution {
			cfg.Analysis.Resolution = 0 // Re-derived from the picked rate.
		}
		cfg.Audio.SampleRate = sel.SampleRate
		if err := cfg.Validate(); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runEngine(ctx, cfg); err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	return 0
}

func configureLogging(cfg *config.Config) {
	if level, ok := applog.ParseLevel(cfg.LogLevel); ok {
		applog.SetLevel(level)
	}
	if cfg.Debug {
		applog.SetLevel(applog.LevelDebug)
	}
}

// newSurface builds the control surface from the configured knob ranges and
// start positions.
func newSurface(cfg *config.Config) (*control.Surface, error) {
	e := cfg.Effects
	return control.NewSurface(
		control.Limits{GainMax: e.GainMax, DistortionMax: e.DistortionMax, ShiftMax: e.ShiftMax},
		control.Parameters{
			Gain:       e.Gain,
			Distortion: e.Distortion,
			Shift:      e.Shift,
			MicEnabled: true,
			Record:     cfg.Recording.Start,
		},
	)
}

// newTransport assembles the frame consumers. It returns nil when none are
// configured.
func newTransport(cfg *config.Config) (transport.Transport, error) {
	var out transport.Multi

	if cfg.Transport.WebSocketEnabled {
		// Half the publisher interval, so tick jitter never drops a frame.
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddr, frameInterval/2)
		if err := ws.Start(); err != nil {
			ws.Close()
			return nil, fmt.Errorf("websocket server: %w", err)
		}
		out = append(out, ws)
	}
	if cfg.Debug {
		out = append(out, transport.NewLoggingTransport(uint64(time.Second/frameInterval)))
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func runEngine(ctx context.Context, cfg *config.Config) (err error) {
	surface, err := newSurface(cfg)
	if err != nil {
		return err
	}

	opts := audio.StreamOptions{
		DeviceID:        cfg.Audio.InputDevice,
		SampleRate:      cfg.Audio.SampleRate,
		FramesPerBuffer: cfg.Audio.FramesPerBuffer,
		LowLatency:      cfg.Audio.LowLatency,
	}
	source, err := audio.OpenInput(opts)
	if err != nil {
		return err
	}
	opts.DeviceID = cfg.Audio.OutputDevice
	sink, err := audio.OpenOutput(opts)
	if err != nil {
		source.Close()
		return err
	}

	notes := analysis.LoadNoteTable(cfg.Analysis.NoteMap)
	engineOpts := []audio.Option{audio.WithNotes(notes)}
	tr, err := newTransport(cfg)
	if err != nil {
		source.Close()
		sink.Close()
		return err
	}
	if tr != nil {
		engineOpts = append(engineOpts, audio.WithTransport(tr))
	}

	engine, err := audio.NewEngine(cfg, surface, source, sink, engineOpts...)
	if err != nil {
		source.Close()
		sink.Close()
		if tr != nil {
			tr.Close()
		}
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			applog.Warnf("Error closing audio engine: %v", cerr)
		}
	}()

	if tr != nil {
		frames, err := transport.NewFramePublisher(tr, engine.Monitor(), surface.Snapshot, frameInterval)
		if err != nil {
			return err
		}
		frames.Start()
		defer frames.Close()
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		defer sender.Close()
		publisher, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, engine.Monitor())
		if err != nil {
			return err
		}
		publisher.Start()
		defer publisher.Close()
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	engineCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	engineErr := make(chan error, 1)
	go func() {
		err := engine.Run(engineCtx)
		cancel() // Takes the panel down with the engine.
		engineErr <- err
	}()

	if cfg.UI.Headless {
		applog.Infof("Running headless, press Ctrl+C to stop")
		return <-engineErr
	}

	restore := redirectLogs(cfg.UI.LogFile)
	uiErr := tui.RunPanel(engineCtx, tui.PanelOptions{
		Surface: surface,
		Monitor: engine.Monitor(),
		Events:  engine.Events(),
		Notes:   notes,
	})
	restore()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	cancel()
	err = <-engineErr
	if uiErr != nil && !errors.Is(uiErr, context.Canceled) {
		err = errors.Join(err, fmt.Errorf("control panel: %w", uiErr))
	}
	return err
}

// redirectLogs keeps log lines off the terminal while the panel owns it.
// The returned func restores stderr.
func redirectLogs(path string) func() {
	var w io.Writer = io.Discard
	var f *os.File
	if path != "" {
		var err error
		f, err = os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			applog.Warnf("Cannot open log file %s: %v", path, err)
		} else {
			w = f
		}
	}
	applog.SetOutput(w)
	return func() {
		applog.SetOutput(os.Stderr)
		if f != nil {
			f.Close()
		}
	}
}
