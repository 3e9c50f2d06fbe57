package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnAfter = 8 * time.Second
	signalThreshold  = 0.01 // RMS below this counts as silence
	signalMinRatio   = 0.10
	signalClearRatio = 0.25 // higher threshold to clear warning (hysteresis)
)

type silenceEvent int

const (
	silenceNone  silenceEvent = iota
	silenceWarn               // no signal on a connected source
	silenceClear              // signal resumed after warning
)

// silenceMonitor tracks the share of recent ticks that carried signal.
type silenceMonitor struct {
	window []bool
	ticks  int
	warned bool
}

func newSilenceMonitor() *silenceMonitor {
	return &silenceMonitor{window: make([]bool, int(silenceWarnAfter/tickInterval))}
}

func (m *silenceMonitor) ratio() float64 {
	n := min(m.ticks, len(m.window))
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := range n {
		if m.window[i] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSignal bool) silenceEvent {
	m.window[m.ticks%len(m.window)] = hasSignal
	m.ticks++

	r := m.ratio()
	if m.ticks >= len(m.window) && r < signalMinRatio && !m.warned {
		m.warned = true
		return silenceWarn
	}
	if m.warned && r >= signalClearRatio {
		m.warned = false
		return silenceClear
	}
	return silenceNone
}

func (m *silenceMonitor) Reset() {
	clear(m.window)
	m.ticks = 0
	m.warned = false
}
