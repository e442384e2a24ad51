// SPDX-License-Identifier: MIT
package udp

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"spectrumtool/internal/analysis"
	applog "spectrumtool/internal/log"
)

// PacketSender is the destination for packed frames. *UDPSender implements it.
type PacketSender interface {
	Send(data []byte) error
}

// UDPPublisher periodically fetches the latest log spectrum and peak, packs
// them into a defined binary format, and sends them over UDP using a
// UDPSender. It runs in a separate goroutine managed by Start and Stop.
type UDPPublisher struct {
	sender   PacketSender              // The underlying UDP sender instance.
	provider analysis.SpectrumProvider // Source of the latest analysis result.
	interval time.Duration             // The interval at which packets are sent.

	ticker   *time.Ticker   // Ticker that triggers packet sending.
	doneChan chan struct{}  // Channel used to signal the publisher goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the publisher goroutine to finish during Stop.
	mu       sync.Mutex     // Protects access to ticker and doneChan during Start/Stop.

	sequenceNum uint32 // Monotonically increasing sequence number for packets.

	// Buffers reused across packets; resized only when the display width changes.
	spectrumBuf  []float64     // Receives the spectrum from the provider.
	f32Buf       []float32     // Spectrum narrowed for binary packing.
	packetBuffer *bytes.Buffer // Reusable buffer for constructing the binary packet.

	now func() time.Time
}

// NewUDPPublisher creates and initializes a new UDPPublisher.
// It requires a valid sender and spectrum provider.
// If the provided interval is invalid (<= 0), it defaults to 16ms (~60Hz).
func NewUDPPublisher(interval time.Duration, sender PacketSender, provider analysis.SpectrumProvider) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("UDPPublisher: spectrum provider cannot be nil")
	}

	if interval <= 0 {
		interval = 16 * time.Millisecond
		applog.Warnf("UDPPublisher: Invalid interval provided, defaulting to %s", interval)
	}
	applog.Infof("UDPPublisher: Initializing (Interval: %s)", interval)

	return &UDPPublisher{
		sender:       sender,
		provider:     provider,
		interval:     interval,
		packetBuffer: new(bytes.Buffer),
		now:          time.Now,
	}, nil
}

// Start launches the publishing goroutine. Calling Start on a running
// publisher only logs a warning.
func (p *UDPPublisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		applog.Warnf("UDPPublisher: Start called but already running.")
		return
	}
	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker, done := p.ticker, p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			select {
			case <-ticker.C:
				p.buildAndSendPacket()
			case <-done:
				return
			}
		}
	}()
}

// Stop signals the publishing goroutine and waits for it to exit. It is
// safe to call on a stopped publisher.
func (p *UDPPublisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	applog.Debugf("UDPPublisher: Stopped after %d packets", p.sequenceNum)
	return nil
}

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Peak Frequency    | float32        | 4            | Last accepted peak (Hz) |
| Sample Count      | uint16         | 2            | Number of floats (N)    |
| Spectrum          | []float32      | N * 4        | Log spectrum in [0, 1]  |
+-----------------------------------------------------------------------------+
*/

const (
	// HeaderSize is the number of bytes before the spectrum payload.
	HeaderSize = 4 + 8 + 4 + 2
	// MaxDatagramSize is the largest UDP payload over IPv4.
	MaxDatagramSize = 65507
	// MaxSpectrumBins is the widest spectrum that fits one datagram. It is
	// also well inside the uint16 count field.
	MaxSpectrumBins = (MaxDatagramSize - HeaderSize) / 4
)

// ErrSpectrumTooWide is returned when the display width cannot be packed
// into a single datagram.
var ErrSpectrumTooWide = errors.New("spectrum does not fit in one UDP datagram")

// buildAndSendPacket is executed on each ticker interval. Nothing is sent
// until the engine has produced a frame.
func (p *UDPPublisher) buildAndSendPacket() {
	packet, err := p.buildPacket()
	if err != nil {
		applog.Errorf("UDPPublisher: %v", err)
		return
	}
	if packet == nil {
		return
	}

	if err := p.sender.Send(packet); err != nil {
		applog.Warnf("UDPPublisher: Packet %d not sent: %v", p.sequenceNum, err)
		return
	}
	applog.Debugf("UDPPublisher: Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
}

// buildPacket packs the provider's latest result. The returned slice is
// reused by the next call.
func (p *UDPPublisher) buildPacket() ([]byte, error) {
	width := p.provider.Width()
	if width == 0 {
		return nil, nil
	}
	if width > MaxSpectrumBins {
		return nil, fmt.Errorf("%w: %d bins, limit %d", ErrSpectrumTooWide, width, MaxSpectrumBins)
	}
	if len(p.spectrumBuf) != width {
		p.spectrumBuf = make([]float64, width)
		p.f32Buf = make([]float32, width)
	}

	peak, err := p.provider.LatestInto(p.spectrumBuf)
	if err != nil {
		// The width changed between the two calls; the next tick catches up.
		return nil, fmt.Errorf("error getting spectrum: %w", err)
	}
	for i, v := range p.spectrumBuf {
		p.f32Buf[i] = float32(v)
	}

	p.sequenceNum++
	p.packetBuffer.Reset()

	err = binary.Write(p.packetBuffer, binary.BigEndian, p.sequenceNum)
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.now().UnixNano())
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, float32(peak.Frequency))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, uint16(len(p.f32Buf)))
	}
	if err == nil {
		err = binary.Write(p.packetBuffer, binary.BigEndian, p.f32Buf)
	}
	if err != nil {
		return nil, fmt.Errorf("error packing data into binary buffer: %w", err)
	}
	return p.packetBuffer.Bytes(), nil
}

// Packet is a decoded spectrum packet.
type Packet struct {
	Seq       uint32
	Timestamp time.Time
	Peak      float32
	Spectrum  []float32
}

// DecodePacket parses a packet produced by UDPPublisher.
func DecodePacket(data []byte) (Packet, error) {
	var hdr struct {
		Seq   uint32
		Nanos int64
		Peak  float32
		Count uint16
	}
	r := bytes.NewReader(data)
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return Packet{}, fmt.Errorf("short packet header: %w", err)
	}
	spectrum := make([]float32, hdr.Count)
	if err := binary.Read(r, binary.BigEndian, spectrum); err != nil {
		return Packet{}, fmt.Errorf("short packet payload (want %d samples): %w", hdr.Count, err)
	}
	return Packet{
		Seq:       hdr.Seq,
		Timestamp: time.Unix(0, hdr.Nanos),
		Peak:      hdr.Peak,
		Spectrum:  spectrum,
	}, nil
}

// Close implements the io.Closer interface. It gracefully stops the publisher goroutine.
func (p *UDPPublisher) Close() error {
	applog.Debugf("UDPPublisher: Close called, stopping publisher...")
	return p.Stop()
}

var _ io.Closer = (*UDPPublisher)(nil)
