package tui

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chav-jf/speedy-green-flash/internal/reaction"
	"github.com/chav-jf/speedy-green-flash/internal/session"
)

// historyRows caps how many past reactions the drawer lists.
const historyRows = 10

// DisplaySession is what the display model drives.
type DisplaySession interface {
	Tap()
	Reset()
	ToggleOffline()
	Reconnect()
	Snapshot() session.Snapshot
}

type snapshotMsg session.Snapshot

// Subscribe registers on a session's change feed and returns a channel that
// always holds the latest snapshot. Older unread snapshots are replaced.
func Subscribe(onChange func(func(session.Snapshot))) <-chan session.Snapshot {
	ch := make(chan session.Snapshot, 1)
	onChange(func(s session.Snapshot) {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	})
	return ch
}

// Display is the bubbletea model of the display device.
type Display struct {
	session DisplaySession
	updates <-chan session.Snapshot

	room        string
	snap        session.Snapshot
	showResults bool
	width       int
	height      int
}

func NewDisplay(s DisplaySession, updates <-chan session.Snapshot, room string) Display {
	return Display{
		session:     s,
		updates:     updates,
		room:        room,
		snap:        s.Snapshot(),
		showResults: true,
		width:       60,
		height:      20,
	}
}

func (m Display) Init() tea.Cmd {
	return waitForSnapshot(m.updates)
}

func waitForSnapshot(updates <-chan session.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(s)
	}
}

func (m Display) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case " ", "enter":
			m.session.Tap()
		case "r":
			m.session.Reset()
		case "o":
			m.session.ToggleOffline()
		case "c":
			m.session.Reconnect()
		case "tab":
			m.showResults = !m.showResults
		}
	}
	return m, nil
}

func (m Display) View() string {
	var b strings.Builder

	header := headerStyle.Render("Green Flash")
	if m.room != "" {
		header += labelStyle.Render("room " + m.room)
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", badge(m.snap.Connection, m.snap.Status, m.snap.Offline)))
	b.WriteString("\n\n")

	w, h := panelSize(m.width, m.height)
	if m.showResults {
		h -= drawerHeight(len(m.snap.History))
		if h < minPanelHeight {
			h = minPanelHeight
		}
	}
	b.WriteString(stimulusStyle.
		Background(panelColor(m.snap.State)).
		Width(w).
		Height(h).
		Render(prompt(m.snap)))
	b.WriteString("\n")

	if m.showResults {
		b.WriteString(renderResults(m.snap))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("space tap • r reset • o offline • c reconnect • tab results • q quit"))
	return b.String()
}

func panelColor(s reaction.State) lipgloss.Color {
	if s == reaction.Active {
		return stimulusGreen
	}
	return stimulusRed
}

func prompt(s session.Snapshot) string {
	switch s.State {
	case reaction.Armed:
		return "Wait for green..."
	case reaction.Active:
		return "Tap now!"
	}
	if s.FalseStart {
		return "Too soon! Wait for green.\n\nTap to start"
	}
	if s.LastReaction != nil {
		return fmt.Sprintf("Your reaction time: %d ms\n\nTap to start", *s.LastReaction)
	}
	return "Tap to start"
}

func drawerHeight(history int) int {
	if history > historyRows {
		history = historyRows
	}
	// border, title, two stat lines, blank
	return 5 + history
}

func renderResults(s session.Snapshot) string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Results"))
	b.WriteString("\n")

	avg, best := "-", "-"
	if s.Stats.Average != nil {
		avg = fmt.Sprintf("%d ms", int64(math.Round(*s.Stats.Average)))
	}
	if s.Stats.Best != nil {
		best = fmt.Sprintf("%d ms", *s.Stats.Best)
	}
	fmt.Fprintf(&b, "%s %s   %s %s   %s %d\n",
		labelStyle.Render("Average"), avg,
		labelStyle.Render("Best"), best,
		labelStyle.Render("Tests"), s.Stats.Count)

	if len(s.History) == 0 {
		b.WriteString(labelStyle.Render("No reactions recorded yet."))
		return drawerStyle.Render(b.String())
	}
	for i, sample := range s.History {
		if i == historyRows {
			break
		}
		fmt.Fprintf(&b, "%s  %d ms\n", labelStyle.Render(sample.Timestamp.Format("15:04:05")), sample.ReactionTimeMs)
	}
	return drawerStyle.Render(strings.TrimRight(b.String(), "\n"))
}
