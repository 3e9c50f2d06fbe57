package main

import (
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"dualscribe/event"
	"dualscribe/export"
)

// multiSink fans every event out to each member in order.
type multiSink []event.Sink

func (s multiSink) Transcript(seg event.Segment) {
	for _, m := range s {
		m.Transcript(seg)
	}
}

func (s multiSink) Status(ev event.StatusEvent) {
	for _, m := range s {
		m.Status(ev)
	}
}

func (s multiSink) Level(ev event.LevelEvent) {
	for _, m := range s {
		m.Level(ev)
	}
}

// collectorSink keeps segments for export at exit.
type collectorSink struct {
	t *export.Transcript
}

func (c collectorSink) Transcript(seg event.Segment) { c.t.Add(seg) }
func (collectorSink) Status(event.StatusEvent)       {}
func (collectorSink) Level(event.LevelEvent)         {}

// tuiSink forwards events to the bubbletea program.
type tuiSink struct {
	p interface{ Send(tea.Msg) }
}

func (s tuiSink) Transcript(seg event.Segment) { s.p.Send(segmentMsg(seg)) }
func (s tuiSink) Status(ev event.StatusEvent)  { s.p.Send(statusMsg(ev)) }
func (s tuiSink) Level(ev event.LevelEvent)    { s.p.Send(levelMsg(ev)) }

// lineSink prints finals and status changes as plain lines, for -tui=false.
type lineSink struct {
	mu         sync.Mutex
	w          io.Writer
	timestamps bool
}

func (s *lineSink) Transcript(seg event.Segment) {
	if !seg.IsFinal {
		return
	}
	label := "You"
	if seg.Source == event.System {
		label = "System Audio"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timestamps {
		fmt.Fprintf(s.w, "[%s] %s: %s\n", export.FormatTimestamp(seg.Timestamp), label, seg.Text)
		return
	}
	fmt.Fprintf(s.w, "%s: %s\n", label, seg.Text)
}

func (s *lineSink) Status(ev event.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ev.Error != "" {
		fmt.Fprintf(s.w, "* %s %s: %s\n", ev.Source, ev.Status, ev.Error)
		return
	}
	fmt.Fprintf(s.w, "* %s %s\n", ev.Source, ev.Status)
}

func (*lineSink) Level(event.LevelEvent) {}
