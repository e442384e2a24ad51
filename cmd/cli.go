// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"
	"io"
	"time"

	"spectrumtool/internal/config"
	"spectrumtool/pkg/build"

	"github.com/spf13/cobra"
)

// Command names returned in Invocation.Command.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandDevices = "devices"
)

// Invocation is the parsed command line: what to do and the configuration
// to do it with. Config is nil when cobra only printed help or the version.
type Invocation struct {
	Command string
	Config  *config.Config
}

// flagValues holds raw flag values. Only flags the user actually set are
// applied over the loaded configuration.
type flagValues struct {
	configPath      string
	device          int
	outputDevice    int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	record          bool
	outputDir       string
	bitDepth        int
	verbose         bool
	logLevel        string
	wsAddr          string
	udpTarget       string
	udpInterval     time.Duration
	headless        bool
	logFile         string
	noteMap         string
	window          string
	resolution      int
	decay           int
	distortionMode  string
}

// ParseArgs parses args (without the program name) and loads the
// configuration they point at.
func ParseArgs(args []string) (*Invocation, error) {
	return parseArgs(args, nil)
}

func parseArgs(args []string, out io.Writer) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	var (
		flags flagValues
		inv   *Invocation
	)

	resolve := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		if err := applyFlags(cmd, &flags, cfg); err != nil {
			return err
		}
		inv = &Invocation{Command: command, Config: cfg}
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandRun)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandList)
		},
	})

	// Interactive device picker, then run with the chosen input.
	rootCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "Browse audio devices and run with the selected input",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandDevices)
		},
	})

	pf := rootCmd.PersistentFlags()

	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml when present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVar(&flags.outputDevice, "output-device", config.DefaultDeviceID,
		"Specify playback device ID")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Effects and analysis
	pf.StringVar(&flags.distortionMode, "distortion-mode", config.DefaultDistortionMode,
		"Distortion curve: dist or clip")
	pf.StringVar(&flags.window, "window", config.DefaultFFTWindow,
		"Analysis window: rectangular, hann, hamming, blackman, nuttall, flattop, ...")
	pf.IntVar(&flags.resolution, "resolution", config.DefaultResolution,
		"FFT length (0 picks the next power of two above the sample rate)")
	pf.IntVar(&flags.decay, "decay", config.DefaultDecay,
		"Number of spectra kept in the trail")
	pf.StringVar(&flags.noteMap, "note-map", "",
		"File mapping MIDI note numbers to names")

	// Recording Configuration
	pf.BoolVarP(&flags.record, "record", "r", false,
		"Start recording as soon as the engine runs")
	pf.StringVarP(&flags.outputDir, "output-dir", "o", config.DefaultRecordingDir,
		"Directory recorded takes are written to")
	pf.IntVar(&flags.bitDepth, "bit-depth", config.DefaultBitDepth,
		"Bit depth of recorded takes (16 or 24 PCM, 32 float)")

	// Transport Configuration
	pf.StringVar(&flags.wsAddr, "ws-addr", "",
		"Serve frames to websocket clients on this address, e.g. :8080")
	pf.StringVar(&flags.udpTarget, "udp", "",
		"Send spectrum packets to this UDP address, e.g. 127.0.0.1:9090")
	pf.DurationVar(&flags.udpInterval, "udp-interval", config.DefaultUDPSendInterval,
		"Interval between UDP packets")

	// UI Configuration
	pf.BoolVar(&flags.headless, "headless", false,
		"Run without the control panel")
	pf.StringVar(&flags.logFile, "log-file", "",
		"Write logs to this file while the control panel is open")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&flags.logLevel, "log-level", "",
		"Logging level: debug, info, warn, error")

	if out != nil {
		rootCmd.SetOut(out)
		rootCmd.SetErr(out)
	}

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyFlags copies explicitly set flags into cfg and validates the result.
func applyFlags(cmd *cobra.Command, f *flagValues, cfg *config.Config) error {
	set := cmd.Flags().Changed

	if set("device") {
		cfg.Audio.InputDevice = f.device
	}
	if set("output-device") {
		cfg.Audio.OutputDevice = f.outputDevice
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
		if !set("resolution") && cfg.Analysis.Resolution == config.DefaultResolution {
			cfg.Analysis.Resolution = 0 // Re-derived from the new rate.
		}
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if set("distortion-mode") {
		cfg.Effects.DistortionMode = f.distortionMode
	}
	if set("window") {
		cfg.Analysis.FFTWindow = f.window
	}
	if set("resolution") {
		cfg.Analysis.Resolution = f.resolution
	}
	if set("decay") {
		cfg.Analysis.Decay = f.decay
	}
	if set("note-map") {
		cfg.Analysis.NoteMap = f.noteMap
	}
	if set("record") {
		cfg.Recording.Start = f.record
	}
	if set("output-dir") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if set("bit-depth") {
		cfg.Recording.BitDepth = f.bitDepth
	}
	if set("ws-addr") {
		cfg.Transport.WebSocketEnabled = f.wsAddr != ""
		cfg.Transport.WebSocketAddr = f.wsAddr
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if set("udp-interval") {
		cfg.Transport.UDPSendInterval = f.udpInterval
	}
	if set("headless") {
		cfg.UI.Headless = f.headless
	}
	if set("log-file") {
		cfg.UI.LogFile = f.logFile
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
	if f.verbose {
		cfg.Debug = true
		cfg.LogLevel = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}
