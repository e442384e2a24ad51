// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults
// for the spectral engine.
const (
	// Audio device defaults.
	DefaultDeviceID        = MinDeviceID // System default device.
	DefaultFramesPerBuffer = 1024        // Samples per frame.
	DefaultLowLatency      = false       // Standard latency mode.
	DefaultSampleRate      = 44100       // CD-quality audio.

	// Effects knobs.
	DefaultGain           = 0.8
	DefaultGainMax        = 1.2
	DefaultDistortion     = 1.0
	DefaultDistortionMax  = 512.0
	DefaultShiftMax       = 48.0
	DefaultShift          = DefaultShiftMax / 2 // Centre position, no shift.
	DefaultDistortionMode = "dist"

	// Analysis.
	DefaultResolution     = 44100   // FFT length, 1 Hz bins at 44.1 kHz.
	DefaultMinFreq        = 20.0    // Lowest displayed frequency (Hz).
	DefaultDisplayWidth   = 800     // Log-spectrum samples per frame.
	DefaultDisplayHeight  = 360     // Display units of the peak threshold; spectra top out at 95% of it.
	DefaultReferenceScale = 1 << 18 // Fixed magnitude normalizer.
	DefaultDecay          = 4       // History depth.
	DefaultPeakThreshold  = 30.0    // Display units.
	DefaultMinPeakFreq    = 60.0    // Hz.
	DefaultFFTWindow      = "rectangular"

	// Recording.
	DefaultRecordingDir = "out"
	DefaultBitDepth     = 32 // IEEE float, the take is stored unscaled.

	// Transport.
	DefaultWebSocketAddr   = ":8080"
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultUDPSendInterval = 33 * time.Millisecond

	// Hardware and processing limits.
	MinDeviceID     = -1     // -1 represents system default device.
	MinSampleRate   = 8000   // Minimum usable sample rate (Hz).
	MaxSampleRate   = 192000 // Maximum supported sample rate (Hz).
	MaxBufferFrames = 8192   // Maximum frames per buffer.
	MaxDecay        = 64     // Upper bound on history depth.
	MaxDisplayWidth = 16368  // Keeps a UDP spectrum packet inside one datagram.
)
