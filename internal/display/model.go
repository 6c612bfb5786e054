// ABOUTME: Bubbletea model for the gateway status display
// ABOUTME: Renders bus, playback, buffer, upload, and sensor state
package display

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)
)

// StatusMsg carries one snapshot of gateway state into the display.
// Zero-valued fields leave the previous value in place.
type StatusMsg struct {
	Connected *bool
	Mode      string
	File      string
	Volume    *float64

	BufferBytes   int
	BufferDropped uint64

	Uploading    *bool
	UploadBytes  int64
	LastSensor   string
	SensorOnline bool
}

// QuitRequest is sent on the quit channel when the user exits the
// display so the gateway can shut down cleanly.
type QuitRequest struct{}

// Model is the display state.
type Model struct {
	connected bool
	mode      string
	file      string
	volume    float64

	bufferBytes   int
	bufferDropped uint64

	uploading   bool
	uploadBytes int64
	lastSensor  string

	quit chan<- QuitRequest

	width  int
	height int
}

// NewModel creates the display model.
func NewModel(quit chan<- QuitRequest) Model {
	return Model{
		mode:   "idle",
		volume: 0.5,
		quit:   quit,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.quit != nil {
				select {
				case m.quit <- QuitRequest{}:
				default:
				}
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.Mode != "" {
		m.mode = msg.Mode
	}
	if msg.File != "" {
		m.file = msg.File
	}
	if msg.Volume != nil {
		m.volume = *msg.Volume
	}
	m.bufferBytes = msg.BufferBytes
	if msg.BufferDropped != 0 {
		m.bufferDropped = msg.BufferDropped
	}
	if msg.Uploading != nil {
		m.uploading = *msg.Uploading
		m.uploadBytes = msg.UploadBytes
	}
	if msg.LastSensor != "" {
		m.lastSensor = msg.LastSensor
	}
}

// View implements tea.Model.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	bus := warnStyle.Render("disconnected")
	if m.connected {
		bus = okStyle.Render("connected")
	}

	playback := m.mode
	if m.mode == "file" && m.file != "" {
		playback = fmt.Sprintf("file %s", m.file)
	}

	upload := "idle"
	if m.uploading {
		upload = warnStyle.Render(fmt.Sprintf("receiving (%d bytes)", m.uploadBytes))
	}

	sensor := m.lastSensor
	if sensor == "" {
		sensor = "none"
	}

	body := fmt.Sprintf("%s\n\n%s %s\n%s %s\n%s %s\n%s %d bytes (%d dropped)\n%s %s\n%s %s\n\n%s",
		titleStyle.Render("Aurelay Gateway"),
		labelStyle.Render("Bus:     "), bus,
		labelStyle.Render("Playback:"), playback,
		labelStyle.Render("Volume:  "), renderBar(m.volume, 20),
		labelStyle.Render("Buffer:  "), m.bufferBytes, m.bufferDropped,
		labelStyle.Render("Upload:  "), upload,
		labelStyle.Render("Sensor:  "), sensor,
		labelStyle.Render("q: quit"))

	return boxStyle.Render(body)
}

func renderBar(value float64, width int) string {
	if value < 0 {
		value = 0
	}
	if value > 1 {
		value = 1
	}
	filled := int(value * float64(width))
	bar := ""
	for i := 0; i < width; i++ {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("[%s] %d%%", bar, int(value*100))
}
