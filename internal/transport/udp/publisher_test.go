// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"spectrumtool/internal/analysis"
	"spectrumtool/internal/config"
)

type captureSender struct {
	mu      sync.Mutex
	packets [][]byte
}

func (c *captureSender) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, append([]byte(nil), data...))
	return nil
}

func (c *captureSender) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.packets)
}

func newMonitor() *analysis.Monitor {
	m := analysis.NewMonitor()
	m.Store(analysis.LogSpectrum{0, 0.25, 1, 0.5}, []float64{20, 200, 440, 2000},
		analysis.PeakInfo{Frequency: 440, Note: "A4"}, analysis.Updated)
	return m
}

func TestNewUDPPublisherValidates(t *testing.T) {
	if _, err := NewUDPPublisher(time.Millisecond, nil, analysis.NewMonitor()); err == nil {
		t.Error("expected error for nil sender")
	}
	if _, err := NewUDPPublisher(time.Millisecond, &captureSender{}, nil); err == nil {
		t.Error("expected error for nil provider")
	}
	p, err := NewUDPPublisher(0, &captureSender{}, analysis.NewMonitor())
	if err != nil {
		t.Fatal(err)
	}
	if p.interval != 16*time.Millisecond {
		t.Errorf("zero interval should default to 16ms, got %v", p.interval)
	}
}

func TestBuildPacketLayout(t *testing.T) {
	p, err := NewUDPPublisher(time.Second, &captureSender{}, newMonitor())
	if err != nil {
		t.Fatal(err)
	}
	stamp := time.Unix(1700000000, 42)
	p.now = func() time.Time { return stamp }

	data, err := p.buildPacket()
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != HeaderSize+4*4 {
		t.Fatalf("packet len = %d, want %d", len(data), HeaderSize+16)
	}

	pkt, err := DecodePacket(data)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Seq != 1 || !pkt.Timestamp.Equal(stamp) || pkt.Peak != 440 {
		t.Errorf("header = %+v", pkt)
	}
	want := []float32{0, 0.25, 1, 0.5}
	for i, v := range want {
		if pkt.Spectrum[i] != v {
			t.Errorf("spectrum[%d] = %g, want %g", i, pkt.Spectrum[i], v)
		}
	}

	data, _ = p.buildPacket()
	if pkt, _ := DecodePacket(data); pkt.Seq != 2 {
		t.Errorf("second seq = %d, want 2", pkt.Seq)
	}
}

func TestBuildPacketWaitsForFirstFrame(t *testing.T) {
	p, _ := NewUDPPublisher(time.Second, &captureSender{}, analysis.NewMonitor())
	data, err := p.buildPacket()
	if data != nil || err != nil {
		t.Errorf("empty monitor: packet %v err %v, want nothing", data, err)
	}
}

func TestBuildPacketHotPath(t *testing.T) {
	p, _ := NewUDPPublisher(time.Second, &captureSender{}, newMonitor())
	p.buildPacket()

	allocs := testing.AllocsPerRun(100, func() {
		p.buildPacket()
	})
	// binary.Write boxes its arguments; the spectrum buffers themselves are reused.
	if allocs > 8 {
		t.Errorf("buildPacket allocations = %.1f, want <= 8", allocs)
	}
}

func monitorOfWidth(n int) *analysis.Monitor {
	m := analysis.NewMonitor()
	m.Store(make(analysis.LogSpectrum, n), make([]float64, n), analysis.PeakInfo{}, analysis.Held)
	return m
}

func TestBuildPacketFitsOneDatagram(t *testing.T) {
	for _, width := range []int{config.MaxDisplayWidth, MaxSpectrumBins} {
		p, _ := NewUDPPublisher(time.Second, &captureSender{}, monitorOfWidth(width))
		data, err := p.buildPacket()
		if err != nil {
			t.Fatalf("width %d: %v", width, err)
		}
		if len(data) > MaxDatagramSize {
			t.Errorf("width %d: packet is %d bytes, limit %d", width, len(data), MaxDatagramSize)
		}
		pkt, err := DecodePacket(data)
		if err != nil {
			t.Fatal(err)
		}
		if len(pkt.Spectrum) != width {
			t.Errorf("decoded count = %d, want %d", len(pkt.Spectrum), width)
		}
	}
}

func TestBuildPacketRejectsOversizedSpectrum(t *testing.T) {
	sender := &captureSender{}
	p, _ := NewUDPPublisher(time.Second, sender, monitorOfWidth(70000))

	data, err := p.buildPacket()
	if !errors.Is(err, ErrSpectrumTooWide) {
		t.Fatalf("err = %v, want ErrSpectrumTooWide", err)
	}
	if data != nil {
		t.Errorf("got %d bytes for an oversized spectrum", len(data))
	}

	p.buildAndSendPacket()
	if sender.count() != 0 {
		t.Error("oversized spectrum must not be sent")
	}
}

func TestDecodePacketRejectsTruncated(t *testing.T) {
	p, _ := NewUDPPublisher(time.Second, &captureSender{}, newMonitor())
	data, _ := p.buildPacket()

	if _, err := DecodePacket(data[:HeaderSize-1]); err == nil {
		t.Error("expected error for short header")
	}
	if _, err := DecodePacket(data[:len(data)-2]); err == nil {
		t.Error("expected error for short payload")
	}
}

func TestPublisherStartStop(t *testing.T) {
	sender := &captureSender{}
	p, _ := NewUDPPublisher(time.Millisecond, sender, newMonitor())

	p.Start()
	p.Start() // no-op
	deadline := time.Now().Add(2 * time.Second)
	for sender.count() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if sender.count() < 3 {
		t.Fatalf("sent %d packets, want at least 3", sender.count())
	}

	n := sender.count()
	time.Sleep(10 * time.Millisecond)
	if sender.count() != n {
		t.Error("publisher kept sending after Stop")
	}
	if err := p.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestUDPSenderRoundTrip(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Skipf("cannot listen on loopback: %v", err)
	}
	defer ln.Close()

	sender, err := NewUDPSender(ln.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	if sender.Target().Port != ln.LocalAddr().(*net.UDPAddr).Port {
		t.Errorf("target = %v", sender.Target())
	}

	p, _ := NewUDPPublisher(time.Second, sender, newMonitor())
	p.buildAndSendPacket()

	buf := make([]byte, 1500)
	ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := ln.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	pkt, err := DecodePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	if pkt.Seq != 1 || len(pkt.Spectrum) != 4 {
		t.Errorf("received %+v", pkt)
	}

	if err := sender.Close(); err != nil {
		t.Fatal(err)
	}
	if err := sender.Send([]byte{1}); err == nil {
		t.Error("Send after Close should fail")
	}
	if sender.LocalAddr() != nil {
		t.Error("closed sender should have no local address")
	}
	if err := sender.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	if _, err := NewUDPSender("not an address"); err == nil {
		t.Error("expected resolve error")
	}
}
