package main

import "testing"

func feedN(m *silenceMonitor, signal bool, n int) silenceEvent {
	var last silenceEvent
	for range n {
		last = m.Tick(signal)
	}
	return last
}

func TestSilenceWarnAfter8s(t *testing.T) {
	m := newSilenceMonitor()
	// 79 ticks of silence: no warning yet
	for i := range 79 {
		if ev := m.Tick(false); ev != silenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	// 80th tick triggers warning (8s)
	if ev := m.Tick(false); ev != silenceWarn {
		t.Fatalf("expected silenceWarn at tick 80, got %d", ev)
	}
	if ev := feedN(m, false, 100); ev != silenceNone {
		t.Fatalf("warning should fire once, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSignal(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80)

	// 25% of the 80-tick window must carry signal
	for i := range 80 {
		if ev := m.Tick(true); ev == silenceClear {
			if i+1 != 20 {
				t.Errorf("cleared after %d ticks, want 20", i+1)
			}
			return
		}
	}
	t.Fatal("expected silenceClear after signal")
}

func TestNoWarnDuringSignal(t *testing.T) {
	m := newSilenceMonitor()
	for i := range 200 {
		if ev := m.Tick(i%5 == 0); ev == silenceWarn {
			t.Fatalf("unexpected warn at tick %d with 20%% signal", i)
		}
	}
}

func TestSilenceReset(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 80)
	m.Reset()
	if ev := feedN(m, false, 79); ev != silenceNone {
		t.Fatalf("reset monitor warned early: %d", ev)
	}
}
