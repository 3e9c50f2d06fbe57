package main

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"dualscribe/event"
)

func update(t *testing.T, m tuiModel, msgs ...tea.Msg) tuiModel {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(tuiModel)
	}
	return m
}

func TestTUIFinalReplacesInterim(t *testing.T) {
	m := newTUIModel("", "", "", true)
	m = update(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		segmentMsg{Text: "hel", Source: event.Mic},
		segmentMsg{Text: "remote", Source: event.System},
	)
	if m.sources[event.Mic].interim != "hel" {
		t.Fatalf("mic interim = %q", m.sources[event.Mic].interim)
	}

	m = update(t, m, segmentMsg{Text: "hello", IsFinal: true, Timestamp: 61, Source: event.Mic})
	if m.sources[event.Mic].interim != "" {
		t.Error("final should clear the interim text of its source")
	}
	if m.sources[event.System].interim != "remote" {
		t.Error("final from mic must not touch system interim")
	}
	if len(m.finals) != 1 {
		t.Fatalf("finals = %d, want 1", len(m.finals))
	}

	view := m.View()
	for _, want := range []string{"[01:01] You: hello", "System Audio: remote"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestTUIStatusAndLevels(t *testing.T) {
	m := newTUIModel("[mode]", "USB Mic", "", false)
	m = update(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		statusMsg{Source: event.System, Status: event.Failed, Error: "system audio capture: not implemented"},
		statusMsg{Source: event.Mic, Status: event.Connected},
		levelMsg{Source: event.Mic, Level: 1},
	)
	if m.sources[event.Mic].status != event.Connected {
		t.Errorf("mic status = %v", m.sources[event.Mic].status)
	}
	if m.sources[event.Mic].level <= 0 {
		t.Error("level should rise after a level event")
	}
	view := m.View()
	for _, want := range []string{"[mode]", "USB Mic", "connected", "failed", "not implemented"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}

	before := m.sources[event.Mic].level
	m = update(t, m, tickMsg(time.Now()))
	if m.sources[event.Mic].level >= before {
		t.Error("level should decay on tick")
	}

	m = update(t, m, statusMsg{Source: event.Mic, Status: event.Disconnected})
	if m.sources[event.Mic].level != 0 {
		t.Error("terminal status should zero the meter")
	}
}

func TestTUIQuitKeys(t *testing.T) {
	for _, key := range []tea.KeyMsg{
		{Type: tea.KeyCtrlC},
		{Type: tea.KeyRunes, Runes: []rune("q")},
	} {
		_, cmd := newTUIModel("", "", "", false).Update(key)
		if cmd == nil {
			t.Fatalf("%v: expected quit command", key)
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Errorf("%v: expected tea.QuitMsg", key)
		}
	}
}

func TestTUIScrollbackShowsNewest(t *testing.T) {
	m := newTUIModel("", "", "", false)
	m = update(t, m, tea.WindowSizeMsg{Width: 60, Height: 12})
	for i := range 30 {
		m = update(t, m, segmentMsg{Text: strings.Repeat("x", i%5+1) + " line", IsFinal: true, Source: event.Mic, Timestamp: float64(i)})
	}
	m = update(t, m, segmentMsg{Text: "newest", IsFinal: true, Source: event.System})
	view := m.View()
	if !strings.Contains(view, "System Audio: newest") {
		t.Errorf("newest line should be visible:\n%s", view)
	}
	if n := len(strings.Split(view, "\n")); n != 12 {
		t.Errorf("view has %d lines, want 12", n)
	}
}

func TestTUIShowsSessionID(t *testing.T) {
	m := newTUIModel("[PCM16 16kHz | deepgram nova-2 (en)]", "", "", false)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, sessionStartedMsg("0b1c2d3e"))
	if !strings.Contains(m.View(), "session 0b1c2d3e") {
		t.Errorf("mode line should carry the session id:\n%s", m.View())
	}
}

func TestTUISessionEndedFreezesClock(t *testing.T) {
	m := newTUIModel("", "", "", false)
	m = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24}, sessionEndedMsg{})
	m = update(t, m, tickMsg(time.Now().Add(time.Hour)))
	if m.elapsed != 0 {
		t.Errorf("elapsed = %v after session end", m.elapsed)
	}
	if !strings.Contains(m.View(), "session ended") {
		t.Error("view should say the session ended")
	}
}

func TestWrapText(t *testing.T) {
	for _, tt := range []struct {
		text  string
		width int
		want  []string
	}{
		{"", 10, []string{""}},
		{"short", 10, []string{"short"}},
		{"hello world again", 11, []string{"hello world", "again"}},
		{"hello world again", 8, []string{"hello", "world", "again"}},
		{"abcdefghij", 4, []string{"abcd", "efgh", "ij"}},
		{"größer als", 6, []string{"größer", "als"}},
	} {
		got := wrapText(tt.text, tt.width)
		if strings.Join(got, "|") != strings.Join(tt.want, "|") {
			t.Errorf("wrapText(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	if got := formatElapsed(75 * time.Second); got != "01:15" {
		t.Errorf("got %q", got)
	}
	if got := formatElapsed(time.Hour + 2*time.Minute + 3*time.Second); got != "1:02:03" {
		t.Errorf("got %q", got)
	}
}

func TestTUIWarnsOnSilentConnectedSource(t *testing.T) {
	m := newTUIModel("", "", "", false)
	m = update(t, m,
		tea.WindowSizeMsg{Width: 80, Height: 24},
		statusMsg{Source: event.Mic, Status: event.Connected},
	)
	now := time.Now()
	for range 80 {
		m = update(t, m, tickMsg(now))
	}
	if !m.sources[event.Mic].noSignal {
		t.Fatal("expected no-signal warning after 8s of silence")
	}
	if m.sources[event.System].noSignal {
		t.Error("disconnected source must not warn")
	}
	if !strings.Contains(m.View(), "no signal") {
		t.Error("view should show the warning")
	}

	for range 20 {
		m = update(t, m, levelMsg{Source: event.Mic, Level: 0.5}, tickMsg(now))
	}
	if m.sources[event.Mic].noSignal {
		t.Error("warning should clear once signal resumes")
	}
}
