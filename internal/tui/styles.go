// Package tui renders the display and trigger devices in the terminal.
package tui

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
)

var (
	stimulusRed   = lipgloss.Color("#C0392B")
	stimulusGreen = lipgloss.Color("#27AE60")
	panelBorder   = lipgloss.Color("#2D6A80")
	accentPrimary = lipgloss.Color("#50E3C2")
	mutedText     = lipgloss.Color("#8CA1AE")
	warningText   = lipgloss.Color("#FF6B6B")
	okText        = lipgloss.Color("#2ECC71")
	pendingText   = lipgloss.Color("#F6AE2D")
)

var (
	headerStyle = lipgloss.NewStyle().
		Padding(0, 1).
		Bold(true).
		Foreground(accentPrimary)

	stimulusStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FFFFFF")).
		Align(lipgloss.Center, lipgloss.Center)

	drawerStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(panelBorder).
		Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
		Foreground(mutedText)

	warningStyle = lipgloss.NewStyle().
		Foreground(warningText).
		Bold(true)

	helpStyle = lipgloss.NewStyle().
		Foreground(mutedText)
)

const (
	minPanelWidth  = 30
	minPanelHeight = 7
)

// badge renders the connection indicator shared by both devices.
func badge(state channel.State, status string, offline bool) string {
	if offline {
		return lipgloss.NewStyle().Foreground(mutedText).Render("● Offline mode")
	}
	color := warningText
	switch state {
	case channel.Connected:
		color = okText
	case channel.Connecting:
		color = pendingText
	}
	text := "● " + state.String()
	if status != "" && status != "Connected" {
		text = fmt.Sprintf("%s (%s)", text, status)
	}
	return lipgloss.NewStyle().Foreground(color).Render(text)
}

func panelSize(width, height int) (int, int) {
	w, h := width-2, height-8
	if w < minPanelWidth {
		w = minPanelWidth
	}
	if h < minPanelHeight {
		h = minPanelHeight
	}
	return w, h
}
