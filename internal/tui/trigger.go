package tui

import (
	"errors"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chav-jf/speedy-green-flash/internal/channel"
	"github.com/chav-jf/speedy-green-flash/internal/trigger"
)

const refreshInterval = 100 * time.Millisecond

// Firer is the trigger command the model presses.
type Firer interface {
	Fire() error
	CoolingDown() bool
	Sent() int
}

// Link is the channel the trigger device holds.
type Link interface {
	State() channel.State
	Status() string
}

type refreshMsg time.Time

// Trigger is the bubbletea model of the trigger device.
type Trigger struct {
	cmd       Firer
	link      Link
	reconnect func()

	room    string
	warning string
	width   int
	height  int
}

func NewTrigger(cmd Firer, link Link, reconnect func(), room string) Trigger {
	return Trigger{
		cmd:       cmd,
		link:      link,
		reconnect: reconnect,
		room:      room,
		width:     60,
		height:    20,
	}
}

func (m Trigger) Init() tea.Cmd {
	return refresh()
}

func refresh() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func (m Trigger) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case refreshMsg:
		if m.link.State() == channel.Connected {
			m.warning = ""
		}
		return m, refresh()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "enter":
			err := m.cmd.Fire()
			switch {
			case err == nil:
				m.warning = ""
			case errors.Is(err, trigger.ErrNotConnected):
				m.warning = "Not connected to the relay"
			}
		case "c":
			m.warning = ""
			if m.reconnect != nil {
				m.reconnect()
			}
		}
	}
	return m, nil
}

func (m Trigger) View() string {
	var b strings.Builder

	header := headerStyle.Render("Green Flash trigger")
	if m.room != "" {
		header += labelStyle.Render("room " + m.room)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", badge(m.link.State(), m.link.Status(), false)))
	b.WriteString("\n\n")

	label, color := "Send signal", panelBorder
	if m.cmd.CoolingDown() {
		label, color = "Sent!", stimulusGreen
	}
	w, h := panelSize(m.width, m.height)
	b.WriteString(stimulusStyle.Background(color).Width(w).Height(h).Render(label))
	b.WriteString("\n")

	if m.warning != "" {
		b.WriteString(warningStyle.Render(m.warning))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space send • c reconnect • q quit"))
	return b.String()
}
