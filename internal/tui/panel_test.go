// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"spectrumtool/internal/analysis"
	"spectrumtool/internal/audio"
	"spectrumtool/internal/control"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPanel(t *testing.T) (PanelModel, *control.Surface, *analysis.Monitor) {
	t.Helper()
	surface, err := control.NewSurface(
		control.Limits{GainMax: 1.2, DistortionMax: 512, ShiftMax: 48},
		control.Parameters{Gain: 0.8, Distortion: 1, Shift: 24, MicEnabled: true},
	)
	require.NoError(t, err)

	monitor := analysis.NewMonitor()
	m := NewPanelModel(PanelOptions{
		Surface: surface,
		Monitor: monitor,
		Notes:   analysis.DefaultNoteTable(),
	})
	return m, surface, monitor
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(m PanelModel, msgs ...tea.Msg) PanelModel {
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(PanelModel)
	}
	return m
}

func TestPanelToggles(t *testing.T) {
	m, surface, _ := newTestPanel(t)

	m = press(m, runes("n"), runes("m"), runes("f"), runes("r"))
	p := surface.Snapshot()
	assert.False(t, p.MicEnabled)
	assert.True(t, p.Mute)
	assert.True(t, p.Freeze)
	assert.True(t, p.Record)
	assert.Equal(t, "Recording...", m.status)

	press(m, runes("N"), runes("M"), runes("F"), runes("R"))
	p = surface.Snapshot()
	assert.True(t, p.MicEnabled)
	assert.False(t, p.Mute)
	assert.False(t, p.Freeze)
	assert.False(t, p.Record)
}

func TestPanelKnobs(t *testing.T) {
	m, surface, _ := newTestPanel(t)
	start := surface.Snapshot()

	m = press(m, runes("w"), runes("d"), runes("]"))
	p := surface.Snapshot()
	assert.Greater(t, p.Gain, start.Gain)
	assert.Greater(t, p.Distortion, start.Distortion)
	assert.Greater(t, p.Shift, start.Shift)

	coarse := p.Shift - start.Shift
	m = press(m, runes("{"))
	fine := p.Shift - surface.Snapshot().Shift
	assert.InDelta(t, coarse/5, fine, 1e-9, "fine steps are a fifth of coarse steps")

	m = press(m, runes("s"), runes("a"), runes("["), runes("S"), runes("A"), runes("W"), runes("D"), runes("}"))

	press(m, runes("0"))
	assert.Equal(t, start, surface.Snapshot(), "reset restores every knob")
}

func TestPanelViewAndCursor(t *testing.T) {
	m, _, _ := newTestPanel(t)
	require.False(t, m.solid)

	m = press(m, runes("v"))
	assert.True(t, m.solid)

	before := m.cursor
	m = press(m, tea.KeyMsg{Type: tea.KeyRight})
	assert.Greater(t, m.cursor, before)
	for range 200 {
		m = press(m, tea.KeyMsg{Type: tea.KeyLeft})
	}
	assert.Equal(t, 0.0, m.cursor)
}

func TestPanelCursorLine(t *testing.T) {
	m, _, monitor := newTestPanel(t)
	m = press(m, tea.WindowSizeMsg{Width: 40, Height: 20})
	assert.Empty(t, m.cursorLine(), "no readout before the first frame")

	monitor.Store(analysis.LogSpectrum{0, 1, 0}, []float64{100, 440, 1000}, analysis.PeakInfo{}, analysis.Held)
	m = press(m, tickMsg(time.Now()))
	assert.Contains(t, m.cursorLine(), "440.0 Hz A4")

	for range 200 {
		m = press(m, tea.KeyMsg{Type: tea.KeyRight})
	}
	line := m.cursorLine()
	assert.Contains(t, line, "1000.0 Hz")
	assert.Equal(t, 39, strings.Index(line, "^"), "cursor stays on the last column")

	for range 200 {
		m = press(m, tea.KeyMsg{Type: tea.KeyLeft})
	}
	assert.Contains(t, m.cursorLine(), "100.0 Hz")
}

func TestPanelQuit(t *testing.T) {
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyEsc}, {Type: tea.KeyCtrlC}} {
		m, _, _ := newTestPanel(t)
		_, cmd := m.Update(msg)
		require.NotNil(t, cmd, "key %q", msg.String())
		assert.Equal(t, tea.Quit(), cmd(), "key %q", msg.String())
	}
}

func TestPanelRefreshReadsMonitor(t *testing.T) {
	m, _, monitor := newTestPanel(t)
	h, err := analysis.NewHistory(4, 3)
	require.NoError(t, err)
	h.Push(analysis.LogSpectrum{0, 1, 0})

	monitor.Store(analysis.LogSpectrum{0, 1, 0}, []float64{100, 440, 1000},
		analysis.PeakInfo{Frequency: 440, Note: "A4"}, analysis.Updated)
	monitor.StoreHistory(h)

	next, cmd := m.Update(tickMsg(time.Now()))
	m = next.(PanelModel)
	assert.NotNil(t, cmd, "tick must reschedule itself")
	assert.Equal(t, 440.0, m.snap.Peak.Frequency)
	assert.Len(t, m.trail, 1)

	m = press(m, tea.WindowSizeMsg{Width: 60, Height: 20})
	view := m.View()
	assert.Contains(t, view, "440.0 Hz A4")
	assert.Contains(t, view, "FREEZE")
	assert.Contains(t, view, "gain 0.80")

	monitor.Store(analysis.LogSpectrum{0, 1, 0}, []float64{100, 20000, 1000},
		analysis.PeakInfo{Frequency: 20000}, analysis.Held)
	m = press(m, tickMsg(time.Now()))
	assert.Contains(t, m.View(), "20000.0 Hz N/A")
}

func TestPanelRecordingEvents(t *testing.T) {
	events := make(chan audio.Event, 2)
	m, _, _ := newTestPanel(t)
	m.opts.Events = events
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	events <- audio.Event{Path: "out/recorded_audio_20240101-000000.wav"}
	msg := m.waitEvent()()
	next, cmd := m.Update(msg)
	m = next.(PanelModel)
	assert.NotNil(t, cmd, "listener must be re-armed")
	assert.Contains(t, m.View(), "Saved file to out/recorded_audio_20240101-000000.wav")

	next, _ = m.Update(eventMsg{Err: errors.New("disk full")})
	m = next.(PanelModel)
	assert.Contains(t, m.View(), "Recording failed: disk full")

	now = now.Add(statusTimeout + time.Second)
	assert.NotContains(t, m.View(), "disk full", "status expires")

	close(events)
	assert.Nil(t, m.waitEvent()(), "closed channel ends the listener")
}

func TestRenderTrail(t *testing.T) {
	// Newest entry peaks in the middle column; older entry sits on the baseline.
	trail := [][]float64{
		{1, 0, 1},
		{1, 1, 1},
	}

	lines := strings.Split(RenderTrail(trail, 3, 4, false), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, " # ", lines[0])
	assert.Equal(t, "#.#", lines[3], "older entries show through as dots")

	lines = strings.Split(RenderTrail(trail, 3, 4, true), "\n")
	for r := range lines {
		assert.Equal(t, '#', rune(lines[r][1]), "solid fills row %d", r)
	}

	assert.Empty(t, RenderTrail(trail, 0, 4, false))
	assert.Equal(t, "   \n   ", RenderTrail(nil, 3, 2, false))
}

func TestColumnTopDownsamples(t *testing.T) {
	ys := []float64{0.9, 0.2, 0.8, 0.7, 0.1, 0.6}
	top, ok := columnTop(ys, 0, 2)
	assert.True(t, ok)
	assert.Equal(t, 0.2, top)
	top, _ = columnTop(ys, 1, 2)
	assert.Equal(t, 0.1, top)

	_, ok = columnTop(nil, 0, 2)
	assert.False(t, ok)
}
