// SPDX-License-Identifier: MIT
package tui

import (
	"fmt"
	"strings"

	"spectrumtool/internal/audio"
	"spectrumtool/pkg/bitint"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#25A065")).Padding(0, 1).Bold(true)
	pickedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#777777"))
)

// Capture rates offered once an input is chosen.
var captureRates = []float64{44100, 48000, 88200, 96000}

// pickerStage is the step of the input picker currently shown.
type pickerStage int

const (
	stageInput pickerStage = iota
	stageRate
)

type pickerKeyMap struct {
	Up, Down, Choose, Back, Quit key.Binding
}

func newPickerKeyMap() pickerKeyMap {
	return pickerKeyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "move")),
		Down:   key.NewBinding(key.WithKeys("down", "j")),
		Choose: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "choose")),
		Back:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k pickerKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Choose, k.Back, k.Quit}
}

func (k pickerKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

// Selection is the capture device and sample rate picked before the engine
// starts.
type Selection struct {
	DeviceID   int
	SampleRate float64
}

// InputPicker is the Bubble Tea model that picks the capture device and rate
// for the `devices` command. Devices without input channels are listed but
// cannot be chosen.
type InputPicker struct {
	devices []audio.Device
	err     error
	stage   pickerStage
	device  int // index into devices
	rate    int // index into captureRates

	keys     pickerKeyMap
	help     help.Model
	viewport viewport.Model
	ready    bool

	selection *Selection
}

// NewInputPicker returns a picker that loads the host devices on Init.
func NewInputPicker() InputPicker {
	return InputPicker{keys: newPickerKeyMap(), help: help.New()}
}

type devicesMsg struct{ devices []audio.Device }

type errMsg struct{ err error }

func loadDevices() tea.Msg {
	devices, err := audio.GetDevices()
	if err != nil {
		return errMsg{err}
	}
	return devicesMsg{devices}
}

// Init loads the device list.
func (m InputPicker) Init() tea.Cmd { return loadDevices }

// Selected returns the confirmed selection, if any.
func (m InputPicker) Selected() (Selection, bool) {
	if m.selection == nil {
		return Selection{}, false
	}
	return *m.selection, true
}

// Update handles input and device loading.
func (m InputPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		if !m.ready {
			m.viewport = viewport.New(msg.Width, msg.Height-4)
			m.ready = true
		} else {
			m.viewport.Width, m.viewport.Height = msg.Width, msg.Height-4
		}
		m.help.Width = msg.Width

	case devicesMsg:
		m.devices = msg.devices
		m.device = max(m.nextInput(-1, 1), 0)

	case errMsg:
		m.err = msg.err

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.stage == stageInput {
			return m.updateInputs(msg)
		}
		return m.updateRates(msg)
	}

	m.refreshViewport()
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m InputPicker) updateInputs(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if i := m.nextInput(m.device, -1); i >= 0 {
			m.device = i
		}
	case key.Matches(msg, m.keys.Down):
		if i := m.nextInput(m.device, 1); i >= 0 {
			m.device = i
		}
	case key.Matches(msg, m.keys.Choose):
		if !m.canCapture(m.device) {
			break
		}
		m.stage = stageRate
		m.rate = 0 // Unlisted defaults start on 44.1 kHz.
		for i, r := range captureRates {
			if r == m.devices[m.device].DefaultSampleRate {
				m.rate = i
			}
		}
	}
	m.refreshViewport()
	return m, nil
}

func (m InputPicker) updateRates(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.rate = max(m.rate-1, 0)
	case key.Matches(msg, m.keys.Down):
		m.rate = min(m.rate+1, len(captureRates)-1)
	case key.Matches(msg, m.keys.Back):
		m.stage = stageInput
	case key.Matches(msg, m.keys.Choose):
		m.selection = &Selection{
			DeviceID:   m.devices[m.device].ID,
			SampleRate: captureRates[m.rate],
		}
		return m, tea.Quit
	}
	m.refreshViewport()
	return m, nil
}

func (m InputPicker) canCapture(i int) bool {
	return i >= 0 && i < len(m.devices) && m.devices[i].MaxInputChannels > 0
}

// nextInput returns the next capture device from i in direction dir, or -1.
func (m InputPicker) nextInput(i, dir int) int {
	for j := i + dir; j >= 0 && j < len(m.devices); j += dir {
		if m.canCapture(j) {
			return j
		}
	}
	return -1
}

func (m *InputPicker) refreshViewport() {
	if !m.ready {
		return
	}
	if m.stage == stageInput {
		m.viewport.SetContent(m.renderInputs())
	} else {
		m.viewport.SetContent(m.renderRates())
	}
}

// View renders the current stage.
func (m InputPicker) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress q to exit.", m.err)
	}
	if !m.ready {
		return "Loading devices..."
	}
	title := "Choose an input"
	if m.stage == stageRate {
		title = "Choose a capture rate"
	}
	return titleStyle.Render(title) + "\n\n" + m.viewport.View() + "\n" + m.help.View(m.keys)
}

func (m InputPicker) renderInputs() string {
	if len(m.devices) == 0 {
		return "No audio devices found."
	}
	var sb strings.Builder
	for i, d := range m.devices {
		line := fmt.Sprintf("[%d] %s (%s), %.0f Hz", d.ID, d.Name, d.Type(), d.DefaultSampleRate)
		switch {
		case !m.canCapture(i):
			line = mutedStyle.Render("  " + line)
		case i == m.device:
			line = pickedStyle.Render("▶ "+line) +
				fmt.Sprintf("\n    %d ch in, latency %.1f-%.1f ms", d.MaxInputChannels,
					d.DefaultLowInputLatency.Seconds()*1000, d.DefaultHighInputLatency.Seconds()*1000)
		default:
			line = "  " + line
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// renderRates lists the capture rates with the FFT length and bin width
// each one gets when analysis.resolution is derived from the rate.
func (m InputPicker) renderRates() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\n", m.devices[m.device].Name)
	for i, rate := range captureRates {
		n := bitint.NextPowerOfTwo(int(rate))
		line := fmt.Sprintf("%.0f Hz  (FFT %d, %.2f Hz bins)", rate, n, rate/float64(n))
		if i == m.rate {
			line = pickedStyle.Render("▶ " + line)
		} else {
			line = "  " + line
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}

// PickInput runs the picker on the alternate screen. ok is false when the
// user quit without choosing.
func PickInput() (sel Selection, ok bool, err error) {
	final, err := tea.NewProgram(NewInputPicker(), tea.WithAltScreen()).Run()
	if err != nil {
		return Selection{}, false, err
	}
	sel, ok = final.(InputPicker).Selected()
	return sel, ok, nil
}
