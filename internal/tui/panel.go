// SPDX-License-Identifier: MIT
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"spectrumtool/internal/analysis"
	"spectrumtool/internal/audio"
	"spectrumtool/internal/control"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	spectrumStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	trailStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#1B5E3C"))
	onStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#25A065")).Padding(0, 1)
	offStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777")).Padding(0, 1)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#C0392B")).Padding(0, 1)
)

const (
	defaultRefresh = 33 * time.Millisecond
	statusTimeout  = 4 * time.Second
	chromeRows     = 7 // title, peak, knobs, buttons, status, help and spacing
)

type panelKeyMap struct {
	View, Mic, Mute, Freeze, Record key.Binding
	GainUp, GainDown                key.Binding
	DistUp, DistDown                key.Binding
	ShiftUp, ShiftDown              key.Binding
	FineGainUp, FineGainDown        key.Binding
	FineDistUp, FineDistDown        key.Binding
	FineShiftUp, FineShiftDown      key.Binding
	Reset, CursorLeft, CursorRight  key.Binding
	Quit                            key.Binding
}

func newPanelKeyMap() panelKeyMap {
	return panelKeyMap{
		View:          key.NewBinding(key.WithKeys("v", "V"), key.WithHelp("v", "line/solid")),
		Mic:           key.NewBinding(key.WithKeys("n", "N"), key.WithHelp("n", "mic")),
		Mute:          key.NewBinding(key.WithKeys("m", "M"), key.WithHelp("m", "mute")),
		Freeze:        key.NewBinding(key.WithKeys("f", "F"), key.WithHelp("f", "freeze")),
		Record:        key.NewBinding(key.WithKeys("r", "R"), key.WithHelp("r", "record")),
		GainUp:        key.NewBinding(key.WithKeys("w"), key.WithHelp("w/s", "gain")),
		GainDown:      key.NewBinding(key.WithKeys("s")),
		DistUp:        key.NewBinding(key.WithKeys("d"), key.WithHelp("d/a", "distortion")),
		DistDown:      key.NewBinding(key.WithKeys("a")),
		ShiftUp:       key.NewBinding(key.WithKeys("]"), key.WithHelp("]/[", "shift")),
		ShiftDown:     key.NewBinding(key.WithKeys("[")),
		FineGainUp:    key.NewBinding(key.WithKeys("W"), key.WithHelp("shift", "fine")),
		FineGainDown:  key.NewBinding(key.WithKeys("S")),
		FineDistUp:    key.NewBinding(key.WithKeys("D")),
		FineDistDown:  key.NewBinding(key.WithKeys("A")),
		FineShiftUp:   key.NewBinding(key.WithKeys("}")),
		FineShiftDown: key.NewBinding(key.WithKeys("{")),
		Reset:         key.NewBinding(key.WithKeys("0"), key.WithHelp("0", "reset knobs")),
		CursorLeft:    key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/→", "cursor")),
		CursorRight:   key.NewBinding(key.WithKeys("right", "l")),
		Quit:          key.NewBinding(key.WithKeys("esc", "q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

// ShortHelp implements help.KeyMap.
func (k panelKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{
		k.View, k.Mic, k.Mute, k.Freeze, k.Record,
		k.GainUp, k.DistUp, k.ShiftUp, k.FineGainUp, k.Reset, k.CursorLeft, k.Quit,
	}
}

// FullHelp implements help.KeyMap.
func (k panelKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// PanelOptions wires the control panel to a running engine.
type PanelOptions struct {
	Surface *control.Surface
	Monitor *analysis.Monitor
	Events  <-chan audio.Event // Recording outcomes; may be nil.
	Notes   analysis.NoteTable
	Refresh time.Duration // Redraw interval; zero means ~30 fps.
}

// PanelModel is the Bubble Tea model of the control panel. Key presses
// drive the control surface; the spectrum is redrawn from the monitor.
type PanelModel struct {
	opts PanelOptions
	keys panelKeyMap
	help help.Model

	width, height int
	solid         bool
	cursor        float64 // Cursor position as a fraction of the display width.

	snap  analysis.Snapshot
	trail [][]float64

	status      string
	statusUntil time.Time
	now         func() time.Time
}

type tickMsg time.Time

type eventMsg audio.Event

// NewPanelModel creates the control panel.
func NewPanelModel(opts PanelOptions) PanelModel {
	if opts.Refresh <= 0 {
		opts.Refresh = defaultRefresh
	}
	return PanelModel{
		opts:   opts,
		keys:   newPanelKeyMap(),
		help:   help.New(),
		width:  80,
		height: 24,
		cursor: 0.5,
		now:    time.Now,
	}
}

// Init starts the redraw ticker and the recording event listener.
func (m PanelModel) Init() tea.Cmd {
	return tea.Batch(m.tick(), m.waitEvent())
}

func (m PanelModel) tick() tea.Cmd {
	return tea.Tick(m.opts.Refresh, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m PanelModel) waitEvent() tea.Cmd {
	if m.opts.Events == nil {
		return nil
	}
	events := m.opts.Events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return eventMsg(ev)
	}
}

// Update handles input and refreshes the model.
func (m PanelModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case eventMsg:
		if msg.Err != nil {
			m.setStatus(fmt.Sprintf("Recording failed: %v", msg.Err))
		} else {
			m.setStatus("Saved file to " + msg.Path)
		}
		return m, m.waitEvent()

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *PanelModel) refresh() {
	if m.opts.Monitor == nil {
		return
	}
	m.snap = m.opts.Monitor.Latest()
	m.trail = m.opts.Monitor.Trail(1)
}

func (m PanelModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	s := m.opts.Surface
	k := m.keys

	switch {
	case key.Matches(msg, k.Quit):
		return m, tea.Quit
	case key.Matches(msg, k.View):
		m.solid = !m.solid
	case key.Matches(msg, k.Mic):
		s.ToggleMic()
	case key.Matches(msg, k.Mute):
		s.ToggleMute()
	case key.Matches(msg, k.Freeze):
		s.ToggleFreeze()
	case key.Matches(msg, k.Record):
		if s.ToggleRecord() {
			m.setStatus("Recording...")
		}
	case key.Matches(msg, k.GainUp):
		s.Nudge(control.KnobGain, 1, false)
	case key.Matches(msg, k.GainDown):
		s.Nudge(control.KnobGain, -1, false)
	case key.Matches(msg, k.FineGainUp):
		s.Nudge(control.KnobGain, 1, true)
	case key.Matches(msg, k.FineGainDown):
		s.Nudge(control.KnobGain, -1, true)
	case key.Matches(msg, k.DistUp):
		s.Nudge(control.KnobDistortion, 1, false)
	case key.Matches(msg, k.DistDown):
		s.Nudge(control.KnobDistortion, -1, false)
	case key.Matches(msg, k.FineDistUp):
		s.Nudge(control.KnobDistortion, 1, true)
	case key.Matches(msg, k.FineDistDown):
		s.Nudge(control.KnobDistortion, -1, true)
	case key.Matches(msg, k.ShiftUp):
		s.Nudge(control.KnobShift, 1, false)
	case key.Matches(msg, k.ShiftDown):
		s.Nudge(control.KnobShift, -1, false)
	case key.Matches(msg, k.FineShiftUp):
		s.Nudge(control.KnobShift, 1, true)
	case key.Matches(msg, k.FineShiftDown):
		s.Nudge(control.KnobShift, -1, true)
	case key.Matches(msg, k.Reset):
		s.Reset(control.KnobGain)
		s.Reset(control.KnobDistortion)
		s.Reset(control.KnobShift)
	case key.Matches(msg, k.CursorLeft):
		m.cursor = max(0, m.cursor-m.cursorStep())
	case key.Matches(msg, k.CursorRight):
		m.cursor = min(1, m.cursor+m.cursorStep())
	}
	return m, nil
}

func (m PanelModel) cursorStep() float64 {
	return 1 / float64(max(m.width, 1))
}

func (m *PanelModel) setStatus(s string) {
	m.status = s
	m.statusUntil = m.now().Add(statusTimeout)
}

// View renders the panel.
func (m PanelModel) View() string {
	p := m.opts.Surface.Snapshot()
	rows := max(m.height-chromeRows, 3)

	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Spectrum Tool"))
	sb.WriteString("  ")
	sb.WriteString(m.peakLine())
	sb.WriteString("\n\n")
	sb.WriteString(RenderTrail(m.trail, m.width, rows, m.solid))
	sb.WriteString("\n")
	sb.WriteString(m.cursorLine())
	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render(fmt.Sprintf("gain %.2f  distortion %.1f  shift %+d bins",
		p.Gain, p.Distortion, int(p.Shift-m.opts.Surface.Limits().ShiftMax/2))))
	sb.WriteString("\n")
	sb.WriteString(m.buttons(p))
	sb.WriteString("\n")
	if m.status != "" && m.now().Before(m.statusUntil) {
		sb.WriteString(infoStyle.Render(m.status))
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	return sb.String()
}

func (m PanelModel) peakLine() string {
	peak := m.snap.Peak
	if peak.Frequency == 0 {
		return infoStyle.Render("-- Hz")
	}
	note := peak.Note
	if note == "" {
		note = "N/A"
	}
	line := fmt.Sprintf("%.1f Hz %s", peak.Frequency, note)
	if m.snap.State == analysis.Updated {
		return highlightStyle.Render(line)
	}
	return infoStyle.Render(line)
}

// cursorLine marks the cursor column and names its frequency.
func (m PanelModel) cursorLine() string {
	idx := min(int(m.cursor*float64(len(m.snap.Frequencies))), len(m.snap.Frequencies)-1)
	f, ok := m.snap.FrequencyAt(idx)
	if !ok {
		return ""
	}
	col := min(int(m.cursor*float64(m.width)), m.width-1)
	label := fmt.Sprintf(" %.1f Hz %s", f, m.opts.Notes.NoteFor(f))
	return strings.Repeat(" ", max(col, 0)) + "^" + label
}

func (m PanelModel) buttons(p control.Parameters) string {
	button := func(label string, on bool) string {
		if on {
			return onStyle.Render(label)
		}
		return offStyle.Render(label)
	}
	view := "LINE"
	if m.solid {
		view = "SOLID"
	}
	rec := offStyle.Render("REC")
	if p.Record {
		rec = recStyle.Render("REC")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		button(view, true),
		button("MIC", p.MicEnabled),
		button("MUTE", p.Mute),
		button("FREEZE", p.Freeze),
		rec,
	)
}

// RenderTrail draws a decay trail, as produced by Monitor.Trail with a
// height of 1, into a cols by rows character grid. Entry 0 is the newest and
// is drawn on top. Solid mode fills the newest spectrum down to the
// baseline.
func RenderTrail(trail [][]float64, cols, rows int, solid bool) string {
	if cols < 1 || rows < 1 {
		return ""
	}
	grid := make([][]byte, rows)
	for r := range grid {
		grid[r] = []byte(strings.Repeat(" ", cols))
	}

	// Oldest first so newer entries overwrite them.
	for d := len(trail) - 1; d >= 0; d-- {
		glyph := byte('.')
		if d == 0 {
			glyph = '#'
		}
		for c := range cols {
			y, ok := columnTop(trail[d], c, cols)
			if !ok {
				continue
			}
			row := min(int(y*float64(rows)), rows-1)
			if d == 0 && solid {
				for r := row; r < rows; r++ {
					grid[r][c] = glyph
				}
			} else {
				grid[row][c] = glyph
			}
		}
	}

	var sb strings.Builder
	for r, line := range grid {
		s := string(line)
		s = strings.ReplaceAll(s, "#", spectrumStyle.Render("#"))
		s = strings.ReplaceAll(s, ".", trailStyle.Render("."))
		sb.WriteString(s)
		if r < rows-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// columnTop returns the highest point (smallest y) of the samples that fall
// into column c.
func columnTop(ys []float64, c, cols int) (float64, bool) {
	if len(ys) == 0 {
		return 0, false
	}
	lo := c * len(ys) / cols
	hi := max((c+1)*len(ys)/cols, lo+1)
	hi = min(hi, len(ys))
	if lo >= hi {
		return 0, false
	}
	top := ys[lo]
	for _, y := range ys[lo+1 : hi] {
		top = min(top, y)
	}
	return top, true
}

// RunPanel runs the control panel until the user quits or ctx is cancelled.
func RunPanel(ctx context.Context, opts PanelOptions) error {
	p := tea.NewProgram(
		NewPanelModel(opts),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
