package app

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gmtui/gmtui/internal/faye"
)

const (
	refreshInterval = time.Second
	maxFeed         = 20
)

// Listener is the part of listener.Handle the UI needs.
type Listener interface {
	Stats() faye.Stats
	State() faye.State
	RequestShutdown()
	Done() <-chan struct{}
}

// --- Bubble Tea messages ---

// AlertMsg carries an alert into the feed.
type AlertMsg struct {
	Alert faye.Alert
	At    time.Time
}

// ListenerStoppedMsg is sent when the background listener exits.
type ListenerStoppedMsg struct{}

type tickMsg time.Time

// Model is the root Bubble Tea model.
type Model struct {
	listener Listener

	keys   KeyMap
	width  int
	height int

	stats   faye.Stats
	state   faye.State
	stopped bool
	feed    []AlertMsg
}

// New creates the root model. listener may be nil.
func New(listener Listener) Model {
	return Model{
		listener: listener,
		keys:     DefaultKeyMap(),
	}
}

// Init starts the refresh ticker and watches for the listener exiting.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tick()}
	if m.listener != nil {
		done := m.listener.Done()
		cmds = append(cmds, func() tea.Msg {
			<-done
			return ListenerStoppedMsg{}
		})
	}
	return tea.Batch(cmds...)
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			if m.listener != nil {
				m.listener.RequestShutdown()
			}
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.feed = nil
		}
		return m, nil

	case tickMsg:
		m.refresh()
		return m, tick()

	case AlertMsg:
		m.feed = append([]AlertMsg{msg}, m.feed...)
		if len(m.feed) > maxFeed {
			m.feed = m.feed[:maxFeed]
		}
		m.refresh()
		return m, nil

	case ListenerStoppedMsg:
		m.stopped = true
		m.refresh()
		return m, nil
	}

	return m, nil
}

func (m *Model) refresh() {
	if m.listener == nil {
		return
	}
	m.stats = m.listener.Stats()
	m.state = m.listener.State()
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	sections := []string{
		m.statusBar(),
		styleHeader.Render("=== NOTIFICATIONS ==="),
		m.renderFeed(),
		styleDimmed.Render("  c:clear  q:quit"),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) statusBar() string {
	width := m.width
	if width < 40 {
		width = 40
	}

	var stateStr string
	switch {
	case m.listener == nil:
		stateStr = lipgloss.NewStyle().Foreground(colorDimmed).Render("○ Notifications off")
	case m.stopped:
		stateStr = lipgloss.NewStyle().Foreground(colorDanger).Render("○ Listener stopped")
	default:
		glyph := "○"
		if m.state == faye.StatePolling {
			glyph = "●"
		}
		stateStr = lipgloss.NewStyle().Foreground(stateColor(m.state)).Render(glyph + " " + m.state.String())
	}

	counts := fmt.Sprintf("%d alerts  %d sessions  %d renewals", m.stats.Alerts, m.stats.Handshakes, m.stats.Renewals)

	sep := lipgloss.NewStyle().Foreground(colorBorder).Render(" | ")
	content := stateStr + sep + counts
	if problems := m.stats.SubscribeFailures + m.stats.DeliveryFailures; problems > 0 {
		content += sep + lipgloss.NewStyle().Foreground(colorWarning).Render(
			fmt.Sprintf("%d subscribe failures  %d dropped", m.stats.SubscribeFailures, m.stats.DeliveryFailures),
		)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(colorBorder).
		Render(content)
}

func (m Model) renderFeed() string {
	if len(m.feed) == 0 {
		return styleDimmed.Render("  No notifications yet")
	}
	lines := make([]string, 0, len(m.feed))
	for _, a := range m.feed {
		lines = append(lines, "  "+styleDimmed.Render(a.At.Format("15:04"))+"  "+styleBright.Render(a.Alert.Body))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
