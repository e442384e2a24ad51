// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"time"

	"spectrumtool/internal/dsp"
	applog "spectrumtool/internal/log"

	"github.com/gordonklaus/portaudio"
)

// FrameSource delivers captured frames. Read blocks until dst is filled.
type FrameSource interface {
	Read(dst dsp.Frame) error
	Close() error
}

// FrameSink plays frames. Write blocks until the device accepts src.
type FrameSink interface {
	Write(src dsp.Frame) error
	Close() error
}

// StreamOptions describes a mono int16 PortAudio stream.
type StreamOptions struct {
	DeviceID        int
	SampleRate      float64
	FramesPerBuffer int
	LowLatency      bool
}

// IsXrun reports whether err is a buffer overflow or underflow. These are
// recoverable: the frame is still delivered or accepted.
func IsXrun(err error) bool {
	return errors.Is(err, portaudio.InputOverflowed) || errors.Is(err, portaudio.OutputUnderflowed)
}

// InputStream is a blocking capture stream.
type InputStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenInput opens and starts a capture stream on the given device.
func OpenInput(opts StreamOptions) (*InputStream, error) {
	device, err := InputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighInputLatency
	if opts.LowLatency {
		latency = device.DefaultLowInputLatency
	}

	s := &InputStream{buf: make([]int16, opts.FramesPerBuffer)}
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: opts.FramesPerBuffer,
		SampleRate:      opts.SampleRate,
	}
	if s.stream, err = openStarted(params, s.buf); err != nil {
		return nil, fmt.Errorf("open input %q: %w", device.Name, err)
	}
	applog.Component("audio").Infof("Input: %s (%.1fms latency)", device.Name, ms(latency))
	return s, nil
}

// Read fills dst with the next captured frame. On an overflow the frame is
// still copied and the error returned for the caller to report.
func (s *InputStream) Read(dst dsp.Frame) error {
	err := s.stream.Read()
	copy(dst, s.buf)
	return err
}

// Close stops and releases the stream.
func (s *InputStream) Close() error {
	return closeStream(s.stream)
}

// OutputStream is a blocking playback stream.
type OutputStream struct {
	stream *portaudio.Stream
	buf    []int16
}

// OpenOutput opens and starts a playback stream on the given device.
func OpenOutput(opts StreamOptions) (*OutputStream, error) {
	device, err := OutputDevice(opts.DeviceID)
	if err != nil {
		return nil, err
	}

	latency := device.DefaultHighOutputLatency
	if opts.LowLatency {
		latency = device.DefaultLowOutputLatency
	}

	s := &OutputStream{buf: make([]int16, opts.FramesPerBuffer)}
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Channels: 1,
			Device:   device,
			Latency:  latency,
		},
		FramesPerBuffer: opts.FramesPerBuffer,
		SampleRate:      opts.SampleRate,
	}
	if s.stream, err = openStarted(params, s.buf); err != nil {
		return nil, fmt.Errorf("open output %q: %w", device.Name, err)
	}
	applog.Component("audio").Infof("Output: %s (%.1fms latency)", device.Name, ms(latency))
	return s, nil
}

// Write queues src for playback. Short frames are padded with silence.
func (s *OutputStream) Write(src dsp.Frame) error {
	n := copy(s.buf, src)
	clear(s.buf[n:])
	return s.stream.Write()
}

// Close stops and releases the stream.
func (s *OutputStream) Close() error {
	return closeStream(s.stream)
}

func openStarted(params portaudio.StreamParameters, buf []int16) (*portaudio.Stream, error) {
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		return nil, err
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}
	return stream, nil
}

func closeStream(stream *portaudio.Stream) error {
	if stream == nil {
		return nil
	}
	if err := stream.Stop(); err != nil {
		stream.Close()
		return err
	}
	return stream.Close()
}

func ms(d time.Duration) float64 {
	return d.Seconds() * 1000
}
