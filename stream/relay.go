package stream

import "dualscribe/event"

const relayQueue = 256

// relay decouples pipeline goroutines from the presentation sink. Transcript
// and status events wait for queue space; level events are dropped when the
// consumer falls behind.
type relay struct {
	sink  event.Sink
	queue chan func(event.Sink)
	done  chan struct{}
}

func newRelay(sink event.Sink) *relay {
	r := &relay{sink: sink, queue: make(chan func(event.Sink), relayQueue), done: make(chan struct{})}
	go r.run()
	return r
}

func (r *relay) run() {
	defer close(r.done)
	for f := range r.queue {
		f(r.sink)
	}
}

func (r *relay) Transcript(seg event.Segment) {
	r.queue <- func(s event.Sink) { s.Transcript(seg) }
}

func (r *relay) Status(ev event.StatusEvent) {
	r.queue <- func(s event.Sink) { s.Status(ev) }
}

func (r *relay) Level(ev event.LevelEvent) {
	select {
	case r.queue <- func(s event.Sink) { s.Level(ev) }:
	default:
	}
}

// close must only be called once every producer has returned. It waits for
// queued events to be delivered.
func (r *relay) close() {
	close(r.queue)
	<-r.done
}
