// ABOUTME: Tests for the display model
// ABOUTME: Drives Update with status and key messages, checks rendered output
package display

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sized(m Model) Model {
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return updated.(Model)
}

func TestViewBeforeSizeShowsLoading(t *testing.T) {
	m := NewModel(nil)
	assert.Equal(t, "Loading...", m.View())
}

func TestStatusUpdatesRender(t *testing.T) {
	m := sized(NewModel(nil))

	connected := true
	vol := 0.8
	updated, _ := m.Update(StatusMsg{
		Connected: &connected,
		Mode:      "file",
		File:      "/sound.mp3",
		Volume:    &vol,
	})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "/sound.mp3")
	assert.Contains(t, view, "80%")
}

func TestUploadStateRenders(t *testing.T) {
	m := sized(NewModel(nil))

	uploading := true
	updated, _ := m.Update(StatusMsg{Uploading: &uploading, UploadBytes: 4096})
	m = updated.(Model)
	assert.Contains(t, m.View(), "receiving (4096 bytes)")

	uploading = false
	updated, _ = m.Update(StatusMsg{Uploading: &uploading})
	m = updated.(Model)
	assert.Contains(t, m.View(), "idle")
}

func TestPartialStatusKeepsPriorValues(t *testing.T) {
	m := sized(NewModel(nil))

	connected := true
	updated, _ := m.Update(StatusMsg{Connected: &connected, Mode: "stream"})
	m = updated.(Model)

	// A later message without those fields must not reset them.
	updated, _ = m.Update(StatusMsg{BufferBytes: 512})
	m = updated.(Model)

	view := m.View()
	assert.Contains(t, view, "connected")
	assert.Contains(t, view, "stream")
	assert.Contains(t, view, "512 bytes")
}

func TestQuitKeySignalsShutdown(t *testing.T) {
	quit := make(chan QuitRequest, 1)
	m := sized(NewModel(quit))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	require.NotNil(t, cmd)

	select {
	case <-quit:
	default:
		t.Fatal("quit request not sent")
	}
}

func TestVolumeBar(t *testing.T) {
	assert.True(t, strings.HasPrefix(renderBar(0, 4), "[░░░░]"))
	assert.True(t, strings.HasPrefix(renderBar(1, 4), "[████]"))
	assert.Contains(t, renderBar(0.5, 4), "50%")
}
