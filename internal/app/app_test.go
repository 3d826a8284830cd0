package app

import (
	"fmt"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gmtui/gmtui/internal/faye"
)

type fakeListener struct {
	stats     faye.Stats
	state     faye.State
	shutdowns int
	done      chan struct{}
}

func (f *fakeListener) Stats() faye.Stats     { return f.stats }
func (f *fakeListener) State() faye.State     { return f.state }
func (f *fakeListener) RequestShutdown()      { f.shutdowns++ }
func (f *fakeListener) Done() <-chan struct{} { return f.done }

func sized(m Model) Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 30})
	return next.(Model)
}

func TestViewBeforeResize(t *testing.T) {
	if v := New(nil).View(); v != "Initializing..." {
		t.Errorf("View() = %q", v)
	}
}

func TestStatusBarReflectsListener(t *testing.T) {
	l := &fakeListener{state: faye.StatePolling, stats: faye.Stats{Alerts: 3, Handshakes: 2}, done: make(chan struct{})}
	m := sized(New(l))
	next, _ := m.Update(tickMsg(time.Now()))
	m = next.(Model)

	v := m.View()
	if !strings.Contains(v, "polling") {
		t.Error("status bar should show polling state")
	}
	if !strings.Contains(v, "3 alerts") {
		t.Errorf("status bar should show alert count:\n%s", v)
	}
	if strings.Contains(v, "subscribe failures") {
		t.Error("no failures should be shown when counters are zero")
	}

	l.stats.SubscribeFailures = 1
	next, _ = m.Update(tickMsg(time.Now()))
	if v := next.(Model).View(); !strings.Contains(v, "1 subscribe failures") {
		t.Errorf("subscribe failure should surface:\n%s", v)
	}
}

func TestFeedNewestFirstAndCapped(t *testing.T) {
	m := sized(New(nil))
	for i := 0; i < maxFeed+5; i++ {
		next, _ := m.Update(AlertMsg{Alert: faye.Alert{Body: fmt.Sprintf("msg-%d", i)}, At: time.Now()})
		m = next.(Model)
	}
	if len(m.feed) != maxFeed {
		t.Fatalf("feed length = %d, want %d", len(m.feed), maxFeed)
	}
	if m.feed[0].Alert.Body != fmt.Sprintf("msg-%d", maxFeed+4) {
		t.Errorf("newest alert should be first, got %q", m.feed[0].Alert.Body)
	}

	next, _ := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("c")})
	if v := next.(Model).View(); !strings.Contains(v, "No notifications yet") {
		t.Error("clear should empty the feed")
	}
}

func TestQuitRequestsShutdown(t *testing.T) {
	l := &fakeListener{done: make(chan struct{})}
	m := sized(New(l))

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit should produce tea.QuitMsg")
	}
	if l.shutdowns != 1 {
		t.Errorf("RequestShutdown called %d times, want 1", l.shutdowns)
	}
}

func TestListenerStopped(t *testing.T) {
	l := &fakeListener{state: faye.StateClosed, done: make(chan struct{})}
	m := sized(New(l))
	next, _ := m.Update(ListenerStoppedMsg{})
	if v := next.(Model).View(); !strings.Contains(v, "Listener stopped") {
		t.Errorf("expected stopped banner:\n%s", v)
	}
}

func TestNoListener(t *testing.T) {
	m := sized(New(nil))
	if v := m.View(); !strings.Contains(v, "Notifications off") {
		t.Errorf("expected notifications-off banner:\n%s", v)
	}
}
