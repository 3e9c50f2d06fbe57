package stream

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"dualscribe/audio"
	"dualscribe/event"
	"dualscribe/log"
	"dualscribe/metrics"
	"dualscribe/transcriber"
)

const (
	chunkQueue   = 50 // capture -> worker, drops when full
	pcmQueue     = 8  // worker -> client, blocks the worker briefly
	blockMs      = 200
	blockSamples = transcriber.SampleRate * blockMs / 1000
	pollInterval = 100 * time.Millisecond
)

type startResult struct {
	cfg audio.StreamConfig
	err error
}

// pipeline is one source's capture -> resample -> encode -> transcribe chain.
type pipeline struct {
	source   event.Source
	capturer audio.Capturer
	deviceID string
	sink     event.Sink
	metrics  *metrics.Metrics

	chunks chan audio.Chunk
	pcm    chan []byte
	client *transcriber.Client

	stop       atomic.Bool
	clientDone chan struct{}
}

func newPipeline(src event.Source, c audio.Capturer, deviceID string, sink event.Sink, m *metrics.Metrics) *pipeline {
	return &pipeline{
		source:     src,
		capturer:   c,
		deviceID:   deviceID,
		sink:       sink,
		metrics:    m,
		chunks:     make(chan audio.Chunk, chunkQueue),
		pcm:        make(chan []byte, pcmQueue),
		clientDone: make(chan struct{}),
	}
}

// worker owns the capture handle from Start to Stop. Platform stream handles
// are tied to the thread that created them, so the goroutine is pinned.
func (p *pipeline) worker(ready chan<- startResult) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	handle, cfg, err := p.capturer.Start(p.deviceID, p.chunks)
	if err != nil {
		ready <- startResult{err: err}
		return
	}
	rs, err := audio.NewResampler(cfg.SampleRate, transcriber.SampleRate, int(cfg.Channels))
	if err != nil {
		handle.Stop()
		ready <- startResult{err: err}
		return
	}
	if rs.Passthrough() {
		log.Debugf("%s: capturing at %dHz mono, no resampling", p.source, cfg.SampleRate)
	} else {
		log.Debugf("%s: resampling %s to %dHz mono", p.source, cfg, transcriber.SampleRate)
	}
	ready <- startResult{cfg: cfg}

	defer close(p.pcm)
	defer func() {
		handle.Stop()
		dropped := handle.Dropped()
		log.Dropped(p.source.String(), dropped)
		p.metrics.Dropped(p.source, dropped)
	}()

	var pending []int16
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case c := <-p.chunks:
			pending = p.process(c, rs, pending)
		case <-ticker.C:
			if p.stop.Load() {
				if rs.Pending() > 0 || len(pending) > 0 {
					log.Debugf("%s: discarding %d unresampled frames and %d samples short of a block", p.source, rs.Pending(), len(pending))
				}
				return
			}
		}
	}
}

// process handles one captured chunk and returns the samples still short of
// a full block.
func (p *pipeline) process(c audio.Chunk, rs *audio.Resampler, pending []int16) []int16 {
	level := audio.Level(c.Samples)
	p.sink.Level(event.LevelEvent{Source: p.source, Level: level})
	p.metrics.Captured(p.source, level)

	mono, err := rs.Process(c.Samples)
	if err != nil {
		log.Warnf("%s: resample: %v", p.source, err)
		p.metrics.ResampleFailed(p.source)
		return pending
	}
	pending = append(pending, audio.ToLinear16(mono)...)
	for len(pending) >= blockSamples {
		p.send(audio.LittleEndian(pending[:blockSamples]))
		pending = pending[blockSamples:]
	}
	// Compact so the backing array does not grow without bound.
	return append([]int16(nil), pending...)
}

func (p *pipeline) send(block []byte) {
	select {
	case p.pcm <- block:
	case <-p.clientDone:
	}
}

// start launches the worker and waits for it to report the negotiated
// format. On success it returns with capture running; the transcription
// client is started separately by runClient.
func (p *pipeline) start(spawn func(func() error)) (audio.StreamConfig, error) {
	ready := make(chan startResult, 1)
	spawn(func() error {
		p.worker(ready)
		return nil
	})
	r := <-ready
	return r.cfg, r.err
}

func (p *pipeline) runClient(ctx context.Context, cfg transcriber.Config, opts []transcriber.Option) func() error {
	p.client = transcriber.NewClient(cfg, p.source, p.sink, append([]transcriber.Option{transcriber.WithMetrics(p.metrics)}, opts...)...)
	return func() error {
		defer close(p.clientDone)
		if err := p.client.Run(ctx, p.pcm); err != nil {
			log.Errorf("%s: transcription stopped: %v", p.source, err)
		}
		// Nothing consumes audio any more.
		p.stop.Store(true)
		return nil
	}
}

// shutdown asks the client to close the stream gracefully.
func (p *pipeline) shutdown() {
	if p.client != nil {
		p.client.Shutdown()
	}
}
