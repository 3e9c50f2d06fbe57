// Package event defines the values the capture pipeline emits toward the
// presentation layer: transcript segments, connection status, and audio levels.
package event

import "fmt"

// Source identifies which capture pipeline produced a value.
type Source int

const (
	Mic Source = iota
	System
)

func (s Source) String() string {
	switch s {
	case Mic:
		return "mic"
	case System:
		return "system"
	}
	return fmt.Sprintf("source(%d)", int(s))
}

func (s Source) MarshalText() ([]byte, error) {
	switch s {
	case Mic, System:
		return []byte(s.String()), nil
	}
	return nil, fmt.Errorf("unknown audio source %d", int(s))
}

func (s *Source) UnmarshalText(b []byte) error {
	switch string(b) {
	case "mic":
		*s = Mic
	case "system":
		*s = System
	default:
		return fmt.Errorf("unknown audio source %q", b)
	}
	return nil
}

// Status is the connection state of one source's transcription client.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Connected
	Reconnecting
	Failed
)

var statusNames = [...]string{"disconnected", "connecting", "connected", "reconnecting", "failed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

func (s Status) MarshalText() ([]byte, error) {
	if s < 0 || int(s) >= len(statusNames) {
		return nil, fmt.Errorf("unknown connection status %d", int(s))
	}
	return []byte(statusNames[s]), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	for i, name := range statusNames {
		if name == string(b) {
			*s = Status(i)
			return nil
		}
	}
	return fmt.Errorf("unknown connection status %q", b)
}

// Terminal reports whether no further status changes follow.
func (s Status) Terminal() bool {
	return s == Disconnected || s == Failed
}

// Segment is one transcript result. Interim segments are superseded by later
// finals from the same source; merging them is up to the consumer.
type Segment struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"is_final"`
	Timestamp  float64 `json:"timestamp"`
	Confidence float64 `json:"confidence"`
	Source     Source  `json:"source"`
}

type StatusEvent struct {
	Source Source `json:"source"`
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

// LevelEvent carries the RMS level of one captured chunk, in [0, 1].
type LevelEvent struct {
	Source Source  `json:"source"`
	Level  float32 `json:"level"`
}

// Sink receives pipeline events. Implementations must be safe for concurrent
// use; the two sources emit from independent goroutines.
type Sink interface {
	Transcript(seg Segment)
	Status(ev StatusEvent)
	Level(ev LevelEvent)
}

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

type discard struct{}

func (discard) Transcript(Segment) {}
func (discard) Status(StatusEvent) {}
func (discard) Level(LevelEvent)   {}
