// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	applog "spectrumtool/internal/log"
	"spectrumtool/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug mode (forces debug logging).
	LogLevel  string          `yaml:"log_level"` // Logging level ("debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Device and stream settings.
	Effects   EffectsConfig   `yaml:"effects"`   // Effects chain knobs and their ranges.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectral analysis and peak detection.
	Recording RecordingConfig `yaml:"recording"` // Take capture settings.
	Transport TransportConfig `yaml:"transport"` // Visualization consumers.
	UI        UIConfig        `yaml:"ui"`        // Terminal panel settings.
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for input (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Sample rate in Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Samples per frame.
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio.
}

// EffectsConfig holds the knob ranges and their start positions.
type EffectsConfig struct {
	Gain           float64 `yaml:"gain"`
	GainMax        float64 `yaml:"gain_max"`
	Distortion     float64 `yaml:"distortion"`
	DistortionMax  float64 `yaml:"distortion_max"`
	DistortionMode string  `yaml:"distortion_mode"` // "dist" or "clip".
	Shift          float64 `yaml:"shift"`
	ShiftMax       float64 `yaml:"shift_max"`
}

// AnalysisConfig holds spectrum and peak detection tunables.
type AnalysisConfig struct {
	Resolution     int     `yaml:"resolution"`      // FFT length; 0 picks the next power of two >= sample rate.
	MinFreq        float64 `yaml:"min_freq"`        // Lowest frequency on the log axis (Hz).
	DisplayWidth   int     `yaml:"display_width"`   // Samples per log spectrum.
	DisplayHeight  float64 `yaml:"display_height"`  // Display units for the peak threshold.
	ReferenceScale float64 `yaml:"reference_scale"` // Magnitude normalizer.
	Decay          int     `yaml:"decay"`           // History depth.
	PeakThreshold  float64 `yaml:"peak_threshold"`  // Peak gate in display units.
	MinPeakFreq    float64 `yaml:"min_peak_freq"`   // Peaks at or below this frequency are ignored (Hz).
	FFTWindow      string  `yaml:"fft_window"`      // Analysis window name.
	NoteMap        string  `yaml:"note_map"`        // Optional "<midi> <name>" table.
}

// RecordingConfig holds settings related to take capture.
type RecordingConfig struct {
	OutputDir string `yaml:"output_dir"` // Directory recorded takes are written to.
	BitDepth  int    `yaml:"bit_depth"`  // 16 or 24 integer PCM, 32 float.
	Start     bool   `yaml:"start"`      // Begin recording as soon as the engine runs.
}

// TransportConfig holds settings related to publishing analysis results.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"ws_enabled"`         // Serve frames to websocket clients.
	WebSocketAddr    string        `yaml:"ws_addr"`            // Listen address for the websocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Send spectrum packets over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets.
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Interval between UDP packets.
}

// UIConfig holds terminal panel settings.
type UIConfig struct {
	Headless bool   `yaml:"headless"` // Run without the control panel.
	LogFile  string `yaml:"log_file"` // Log destination while the panel owns the terminal; empty discards.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			LowLatency:      DefaultLowLatency,
		},
		Effects: EffectsConfig{
			Gain:           DefaultGain,
			GainMax:        DefaultGainMax,
			Distortion:     DefaultDistortion,
			DistortionMax:  DefaultDistortionMax,
			DistortionMode: DefaultDistortionMode,
			Shift:          DefaultShift,
			ShiftMax:       DefaultShiftMax,
		},
		Analysis: AnalysisConfig{
			Resolution:     DefaultResolution,
			MinFreq:        DefaultMinFreq,
			DisplayWidth:   DefaultDisplayWidth,
			DisplayHeight:  DefaultDisplayHeight,
			ReferenceScale: DefaultReferenceScale,
			Decay:          DefaultDecay,
			PeakThreshold:  DefaultPeakThreshold,
			MinPeakFreq:    DefaultMinPeakFreq,
			FFTWindow:      DefaultFFTWindow,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
			BitDepth:  DefaultBitDepth,
		},
		Transport: TransportConfig{
			WebSocketAddr:    DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTarget,
			UDPSendInterval:  DefaultUDPSendInterval,
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{"config.yaml"}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and fills derived values (auto resolution). It
// returns every problem it finds joined into one error.
func (c *Config) Validate() error {
	var errs []error

	a := &c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate))
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		errs = append(errs, fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames))
	} else if !bitint.IsPowerOfTwo(a.FramesPerBuffer) {
		applog.Warnf("configuration: audio.frames_per_buffer %d is not a power of two", a.FramesPerBuffer)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio device ids must be >= %d", MinDeviceID))
	}

	e := &c.Effects
	if e.GainMax <= 0 {
		errs = append(errs, fmt.Errorf("effects.gain_max must be positive, got %g", e.GainMax))
	}
	if e.Gain < 0 || e.Gain > e.GainMax {
		errs = append(errs, fmt.Errorf("effects.gain %g outside [0, %g]", e.Gain, e.GainMax))
	}
	if e.DistortionMax < 1 {
		errs = append(errs, fmt.Errorf("effects.distortion_max must be >= 1, got %g", e.DistortionMax))
	}
	if e.Distortion < 1 || e.Distortion > e.DistortionMax {
		errs = append(errs, fmt.Errorf("effects.distortion %g outside [1, %g]", e.Distortion, e.DistortionMax))
	}
	if e.ShiftMax < 0 {
		errs = append(errs, fmt.Errorf("effects.shift_max must be >= 0, got %g", e.ShiftMax))
	}
	if e.Shift < 0 || e.Shift > e.ShiftMax {
		errs = append(errs, fmt.Errorf("effects.shift %g outside [0, %g]", e.Shift, e.ShiftMax))
	}
	switch strings.ToLower(e.DistortionMode) {
	case "dist", "clip":
		e.DistortionMode = strings.ToLower(e.DistortionMode)
	default:
		errs = append(errs, fmt.Errorf("effects.distortion_mode must be \"dist\" or \"clip\", got %q", e.DistortionMode))
	}

	an := &c.Analysis
	if an.Resolution == 0 {
		an.Resolution = bitint.NextPowerOfTwo(int(a.SampleRate))
	}
	if an.Resolution < 2 {
		errs = append(errs, fmt.Errorf("analysis.resolution must be >= 2, got %d", an.Resolution))
	}
	if an.MinFreq <= 0 || an.MinFreq >= a.SampleRate/2 {
		errs = append(errs, fmt.Errorf("analysis.min_freq %g outside (0, %g)", an.MinFreq, a.SampleRate/2))
	}
	if an.DisplayWidth < 2 || an.DisplayWidth > MaxDisplayWidth {
		errs = append(errs, fmt.Errorf("analysis.display_width %d outside [2, %d]", an.DisplayWidth, MaxDisplayWidth))
	}
	if an.DisplayHeight <= 0 {
		errs = append(errs, fmt.Errorf("analysis.display_height must be positive, got %g", an.DisplayHeight))
	}
	if an.ReferenceScale <= 0 {
		errs = append(errs, fmt.Errorf("analysis.reference_scale must be positive, got %g", an.ReferenceScale))
	}
	if an.Decay < 1 || an.Decay > MaxDecay {
		errs = append(errs, fmt.Errorf("analysis.decay %d outside [1, %d]", an.Decay, MaxDecay))
	}
	if an.PeakThreshold < 0 || an.MinPeakFreq < 0 {
		errs = append(errs, errors.New("analysis.peak_threshold and analysis.min_peak_freq must be >= 0"))
	}

	if c.Recording.OutputDir == "" {
		errs = append(errs, errors.New("recording.output_dir must be set"))
	}
	switch c.Recording.BitDepth {
	case 16, 24, 32:
	default:
		errs = append(errs, fmt.Errorf("recording.bit_depth must be 16, 24 or 32, got %d", c.Recording.BitDepth))
	}

	t := &c.Transport
	if t.WebSocketEnabled && t.WebSocketAddr == "" {
		errs = append(errs, errors.New("transport.ws_addr must be set when the websocket server is enabled"))
	}
	if t.UDPEnabled {
		if t.UDPTargetAddress == "" {
			errs = append(errs, errors.New("transport.udp_target_address must be set when UDP is enabled"))
		} else if !strings.Contains(t.UDPTargetAddress, ":") {
			errs = append(errs, fmt.Errorf("transport.udp_target_address '%s' appears invalid (missing port?)", t.UDPTargetAddress))
		}
		if t.UDPSendInterval <= 0 {
			errs = append(errs, errors.New("transport.udp_send_interval must be positive when UDP is enabled"))
		}
	}

	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		errs = append(errs, fmt.Errorf("unknown log_level %q", c.LogLevel))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides lets ENV_* variables override file values. Unparseable
// values are ignored.
func (cfg *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Debug = bVal
			applog.Infof("configuration: Overriding debug from env: %v", bVal)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		cfg.LogLevel = val
		applog.Infof("configuration: Overriding log_level from env: %s", val)
	}
	// ENV_RECORDING_DIR
	if val, ok := os.LookupEnv("ENV_RECORDING_DIR"); ok {
		cfg.Recording.OutputDir = val
		applog.Infof("configuration: Overriding recording.output_dir from env: %s", val)
	}

	// ENV_WS_{...} and ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		cfg.Transport.WebSocketEnabled = val != ""
		cfg.Transport.WebSocketAddr = val
		applog.Infof("configuration: Overriding transport.ws_addr from env: %s", val)
	}
	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			cfg.Transport.UDPEnabled = bVal
			applog.Infof("configuration: Overriding transport.udp_enabled from env: %v", bVal)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		cfg.Transport.UDPTargetAddress = val
		applog.Infof("configuration: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			cfg.Transport.UDPSendInterval = dur
			applog.Infof("configuration: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}
}
