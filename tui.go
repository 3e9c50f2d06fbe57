package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dualscribe/event"
	"dualscribe/export"
)

// TUI message types
type segmentMsg event.Segment
type statusMsg event.StatusEvent
type levelMsg event.LevelEvent
type sessionStartedMsg string
type sessionEndedMsg struct{}
type tickMsg time.Time

// maxFinals bounds the scrollback kept in the model; the full transcript
// lives in the export collector.
const maxFinals = 500

const meterWidth = 20

type sourceView struct {
	label     string
	device    string
	status    event.Status
	statusErr string
	level     float64
	interim   string
	silence   *silenceMonitor
	noSignal  bool
}

type tuiModel struct {
	sources    [2]sourceView
	finals     []event.Segment
	modeLine   string
	sessionID  string
	started    time.Time
	elapsed    time.Duration
	timestamps bool
	ended      bool

	width, height int
}

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	micStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	systemStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	interimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))

	statusStyles = map[event.Status]lipgloss.Style{
		event.Disconnected: lipgloss.NewStyle().Foreground(lipgloss.Color("241")),
		event.Connecting:   lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		event.Connected:    lipgloss.NewStyle().Foreground(lipgloss.Color("42")),
		event.Reconnecting: lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		event.Failed:       lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
)

func newTUIModel(modeLine, micDevice, systemDevice string, timestamps bool) tuiModel {
	m := tuiModel{modeLine: modeLine, timestamps: timestamps, started: time.Now()}
	m.sources[event.Mic] = sourceView{label: "You", device: micDevice, silence: newSilenceMonitor()}
	m.sources[event.System] = sourceView{label: "System Audio", device: systemDevice, silence: newSilenceMonitor()}
	return m
}

func NewTUIProgram(m tuiModel) *tea.Program {
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		}

	case tickMsg:
		if !m.ended {
			m.elapsed = time.Time(msg).Sub(m.started)
		}
		// Meters decay between callbacks so a stalled source reads as silent.
		for i := range m.sources {
			src := &m.sources[i]
			src.level *= 0.8
			if src.status != event.Connected {
				src.silence.Reset()
				src.noSignal = false
				continue
			}
			switch src.silence.Tick(src.level > signalThreshold) {
			case silenceWarn:
				src.noSignal = true
			case silenceClear:
				src.noSignal = false
			}
		}
		return m, tuiTick()

	case levelMsg:
		if src, ok := m.source(msg.Source); ok {
			src.level = src.level*0.6 + float64(msg.Level)*0.4
		}

	case statusMsg:
		if src, ok := m.source(msg.Source); ok {
			src.status = msg.Status
			src.statusErr = msg.Error
			if msg.Status.Terminal() {
				src.level = 0
			}
		}

	case segmentMsg:
		seg := event.Segment(msg)
		src, ok := m.source(seg.Source)
		if !ok {
			break
		}
		if !seg.IsFinal {
			src.interim = seg.Text
			break
		}
		src.interim = ""
		m.finals = append(m.finals, seg)
		if len(m.finals) > maxFinals {
			m.finals = append(m.finals[:0], m.finals[len(m.finals)-maxFinals:]...)
		}

	case sessionStartedMsg:
		m.sessionID = string(msg)

	case sessionEndedMsg:
		m.ended = true
	}
	return m, nil
}

func (m *tuiModel) source(s event.Source) (*sourceView, bool) {
	if s < 0 || int(s) >= len(m.sources) {
		return nil, false
	}
	return &m.sources[s], true
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var header []string
	title := labelStyle.Render("● DualScribe") + dimStyle.Render(fmt.Sprintf("  %s", formatElapsed(m.elapsed)))
	if m.ended {
		title = labelStyle.Render("○ DualScribe") + dimStyle.Render("  session ended")
	}
	header = append(header, title)
	if mode := m.modeLine; mode != "" {
		if m.sessionID != "" {
			mode += "  session " + m.sessionID
		}
		header = append(header, dimStyle.Render(mode))
	}
	header = append(header, "")
	for i := range m.sources {
		header = append(header, m.renderSource(event.Source(i))...)
	}
	header = append(header, "")

	footer := helpStyle.Render("q / ctrl+c to stop and export")

	// Transcript pane fills whatever height remains, newest lines last.
	avail := m.height - len(header) - 2
	if avail < 1 {
		avail = 1
	}
	wrapWidth := max(m.width-2, 10)
	lines := m.transcriptLines(wrapWidth)
	if len(lines) > avail {
		lines = lines[len(lines)-avail:]
	}
	if len(lines) == 0 {
		lines = []string{dimStyle.Render("Waiting for speech...")}
	}

	body := append(header, lines...)
	for len(body) < m.height-1 {
		body = append(body, "")
	}
	body = append(body, footer)
	return strings.Join(body, "\n")
}

func (m tuiModel) renderSource(s event.Source) []string {
	src := m.sources[s]
	style := statusStyles[src.status]
	line := fmt.Sprintf("%s %s %s",
		labelStyle.Render(fmt.Sprintf("%-12s", src.label)),
		renderMeter(src.level, src.status == event.Connected),
		style.Render(src.status.String()))
	if src.device != "" {
		line += dimStyle.Render("  " + src.device)
	}
	out := []string{line}
	if src.statusErr != "" && (src.status == event.Failed || src.status == event.Reconnecting) {
		out = append(out, errStyle.Render("  "+src.statusErr))
	}
	if src.noSignal {
		out = append(out, errStyle.Render("  ⚠ no signal"))
	}
	return out
}

func renderMeter(level float64, active bool) string {
	n := int(min(level*3, 1) * meterWidth)
	bar := strings.Repeat("▮", n) + strings.Repeat("▯", meterWidth-n)
	if !active {
		return dimStyle.Render(bar)
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Render(bar)
}

func (m tuiModel) transcriptLines(width int) []string {
	var lines []string
	for _, seg := range m.finals {
		lines = append(lines, m.renderSegment(seg, width, false)...)
	}
	for i := range m.sources {
		if text := m.sources[i].interim; text != "" {
			seg := event.Segment{Text: text, Source: event.Source(i)}
			lines = append(lines, m.renderSegment(seg, width, true)...)
		}
	}
	return lines
}

func (m tuiModel) renderSegment(seg event.Segment, width int, interim bool) []string {
	prefix := m.sources[seg.Source].label + ": "
	if m.timestamps && !interim {
		prefix = "[" + export.FormatTimestamp(seg.Timestamp) + "] " + prefix
	}
	style := micStyle
	if seg.Source == event.System {
		style = systemStyle
	}
	if interim {
		style = interimStyle
	}
	wrapped := wrapText(prefix+seg.Text, width)
	for i, l := range wrapped {
		wrapped[i] = style.Render(l)
	}
	return wrapped
}

func formatElapsed(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	mm := int(d/time.Minute) % 60
	ss := int(d/time.Second) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mm, ss)
	}
	return fmt.Sprintf("%02d:%02d", mm, ss)
}

// wrapText breaks text at spaces so no line exceeds width runes. Words
// longer than width are split.
func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	rs := []rune(text)
	var lines []string
	for len(rs) > width {
		splitAt := width
		for i := width; i > 0; i-- {
			if rs[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, string(rs[:splitAt]))
		rs = []rune(strings.TrimLeft(string(rs[splitAt:]), " "))
	}
	if len(rs) > 0 {
		lines = append(lines, string(rs))
	}
	return lines
}
