// SPDX-License-Identifier: MIT
package recording

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"time"

	applog "spectrumtool/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrEmptyTake is returned when asked to save a take with no samples.
var ErrEmptyTake = errors.New("recording: take is empty")

const (
	filePrefix = "recorded_audio_"
	timeLayout = "20060102-150405"
	// Samples are written in chunks so the int conversion buffer stays small.
	chunkSize = 4096

	// WAVE format tags.
	formatPCM   = 1
	formatFloat = 3
)

// WavWriter saves takes as mono WAV files named
// recorded_audio_<YYYYMMDD-HHMMSS>.wav inside Dir. A BitDepth of 32 writes
// IEEE float samples exactly as they sit in the take; 16 and 24 write
// integer PCM with the take's scale undone, so int16 full scale maps to the
// file's full scale.
type WavWriter struct {
	Dir      string
	BitDepth int // 16, 24 or 32 (float)
	now      func() time.Time
}

// NewWavWriter creates a writer targeting dir.
func NewWavWriter(dir string, bitDepth int) *WavWriter {
	return &WavWriter{Dir: dir, BitDepth: bitDepth, now: time.Now}
}

// FileName returns the name a take saved at t receives.
func FileName(t time.Time) string {
	return filePrefix + t.Format(timeLayout) + ".wav"
}

// Save writes take to a new file and returns its path. The directory is
// created if needed. If a file of the same name already exists a numeric
// suffix is added rather than overwriting it.
func (w *WavWriter) Save(take Take) (string, error) {
	if take.Len() == 0 {
		return "", ErrEmptyTake
	}
	if take.SampleRate <= 0 {
		return "", fmt.Errorf("recording: invalid sample rate %d", take.SampleRate)
	}
	bitDepth := w.BitDepth
	if bitDepth != 16 && bitDepth != 24 && bitDepth != 32 {
		return "", fmt.Errorf("recording: unsupported bit depth %d", bitDepth)
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create recording directory: %w", err)
	}

	f, path, err := w.create()
	if err != nil {
		return "", err
	}

	if err := encode(f, take, bitDepth); err != nil {
		f.Close()
		os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close recording file: %w", err)
	}

	applog.Infof("Recording: saved %s (%d samples, %s)", path, take.Len(), take.Duration())
	return path, nil
}

func (w *WavWriter) create() (*os.File, string, error) {
	base := FileName(w.now())
	name := base
	for i := 1; ; i++ {
		path := filepath.Join(w.Dir, name)
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return f, path, nil
		}
		if !errors.Is(err, fs.ErrExist) || i > 99 {
			return nil, "", fmt.Errorf("failed to create recording file: %w", err)
		}
		name = fmt.Sprintf("%s-%d.wav", base[:len(base)-len(".wav")], i)
	}
}

func encode(f *os.File, take Take, bitDepth int) error {
	format := formatPCM
	if bitDepth == 32 {
		format = formatFloat
	}
	enc := wav.NewEncoder(f, take.SampleRate, bitDepth, 1, format)

	// Stored samples are pcm/(rate/4); scale them back to the int16 domain
	// and then up to the target depth.
	toPCM := take.FullScale() * float64(int(1)<<(bitDepth-16))
	hi := float64(int(1)<<(bitDepth-1) - 1)

	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: take.SampleRate},
		Data:           make([]int, 0, chunkSize),
		SourceBitDepth: bitDepth,
	}
	for start := 0; start < len(take.Samples); start += chunkSize {
		end := min(start+chunkSize, len(take.Samples))
		buf.Data = buf.Data[:0]
		for _, s := range take.Samples[start:end] {
			if format == formatFloat {
				// The encoder writes 32-bit samples as raw little-endian words.
				buf.Data = append(buf.Data, int(int32(math.Float32bits(s))))
				continue
			}
			v := math.Round(float64(s) * toPCM)
			buf.Data = append(buf.Data, int(min(max(v, -hi-1), hi)))
		}
		if err := enc.Write(buf); err != nil {
			return fmt.Errorf("failed to write WAV data: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize WAV file: %w", err)
	}
	return nil
}
