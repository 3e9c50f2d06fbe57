// Package export renders the final segments of a session as markdown, plain
// text or JSON. Interim segments never appear in an export.
package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"dualscribe/event"
)

var ErrUnknownFormat = errors.New("unknown export format")

type Format string

const (
	FormatMarkdown Format = "markdown"
	FormatText     Format = "text"
	FormatJSON     Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMarkdown, FormatText, FormatJSON:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	case "txt":
		return FormatText, nil
	}
	return "", fmt.Errorf("%w %q (want markdown, text or json)", ErrUnknownFormat, s)
}

// Extension is the conventional file extension for f, without the dot.
func (f Format) Extension() string {
	switch f {
	case FormatMarkdown:
		return "md"
	case FormatText:
		return "txt"
	}
	return string(f)
}

// FormatTimestamp renders whole seconds as mm:ss, or hh:mm:ss from one hour.
func FormatTimestamp(seconds float64) string {
	total := int64(max(seconds, 0))
	h, m, s := total/3600, total%3600/60, total%60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func finals(segs []event.Segment, src event.Source) []event.Segment {
	var out []event.Segment
	for _, s := range segs {
		if s.IsFinal && s.Source == src {
			out = append(out, s)
		}
	}
	return out
}

// section headings per source, in output order
var (
	markdownHeadings = []struct {
		src   event.Source
		title string
	}{{event.Mic, "## You"}, {event.System, "## System Audio"}}
	textHeadings = []struct {
		src   event.Source
		title string
	}{{event.Mic, "--- You ---"}, {event.System, "--- System Audio ---"}}
)

func Markdown(segs []event.Segment, timestamps bool) string {
	var b strings.Builder
	b.WriteString("# DualScribe Transcript\n\n")
	for _, h := range markdownHeadings {
		group := finals(segs, h.src)
		if len(group) == 0 {
			continue
		}
		b.WriteString(h.title + "\n\n")
		for _, s := range group {
			if timestamps {
				fmt.Fprintf(&b, "**[%s]** ", FormatTimestamp(s.Timestamp))
			}
			b.WriteString(s.Text + "\n\n")
		}
	}
	return b.String()
}

func PlainText(segs []event.Segment, timestamps bool) string {
	var b strings.Builder
	b.WriteString("DualScribe Transcript\n\n")
	for i, h := range textHeadings {
		group := finals(segs, h.src)
		if len(group) == 0 {
			continue
		}
		b.WriteString(h.title + "\n\n")
		for _, s := range group {
			if timestamps {
				fmt.Fprintf(&b, "[%s] ", FormatTimestamp(s.Timestamp))
			}
			b.WriteString(s.Text + "\n")
		}
		// Blank line between the sections, not after the last one.
		if i < len(textHeadings)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// JSON returns the final segments, in arrival order, as an indented array.
func JSON(segs []event.Segment) (string, error) {
	out := make([]event.Segment, 0, len(segs))
	for _, s := range segs {
		if s.IsFinal {
			out = append(out, s)
		}
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Render renders segs in format f.
func Render(f Format, segs []event.Segment, timestamps bool) (string, error) {
	switch f {
	case FormatMarkdown:
		return Markdown(segs, timestamps), nil
	case FormatText:
		return PlainText(segs, timestamps), nil
	case FormatJSON:
		return JSON(segs)
	}
	return "", fmt.Errorf("%w %q", ErrUnknownFormat, f)
}

func Write(w io.Writer, f Format, segs []event.Segment, timestamps bool) error {
	s, err := Render(f, segs, timestamps)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}

// Transcript collects final segments from concurrent sources. Interim
// segments are ignored.
type Transcript struct {
	mu     sync.Mutex
	finals []event.Segment
}

func (t *Transcript) Add(seg event.Segment) {
	if !seg.IsFinal {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.finals = append(t.finals, seg)
}

// Segments returns a copy of the final segments in arrival order.
func (t *Transcript) Segments() []event.Segment {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]event.Segment(nil), t.finals...)
}
