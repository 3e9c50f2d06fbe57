// Package stream orchestrates the two capture pipelines of a transcription
// session. A Manager owns at most one session at a time.
package stream

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"dualscribe/audio"
	"dualscribe/event"
	"dualscribe/log"
	"dualscribe/metrics"
	"dualscribe/transcriber"
)

var (
	ErrAlreadyRunning = errors.New("a session is already running")
	ErrMicPipeline    = errors.New("microphone pipeline failed")
	errNoCapturer     = fmt.Errorf("system audio capture: %w", audio.ErrNotImplemented)
)

// stopTimeout bounds a graceful stop; after it the session context is
// cancelled and connections are dropped.
const stopTimeout = 5 * time.Second

type StartConfig struct {
	Transcriber    transcriber.Config
	MicDeviceID    string
	SystemDeviceID string
}

type Manager struct {
	mic     audio.Capturer
	system  audio.Capturer
	sink    event.Sink
	metrics *metrics.Metrics
	opts    []transcriber.Option

	mu      sync.Mutex
	session *session
}

type Option func(*Manager)

func WithMetrics(m *metrics.Metrics) Option {
	return func(mg *Manager) { mg.metrics = m }
}

// WithClientOptions passes options to every transcription client, e.g. a
// custom dialer.
func WithClientOptions(opts ...transcriber.Option) Option {
	return func(mg *Manager) { mg.opts = append(mg.opts, opts...) }
}

// NewManager returns a Manager capturing from mic and system. system may be
// nil when the platform has no system audio backend; sessions then report
// Failed for that source.
func NewManager(mic, system audio.Capturer, sink event.Sink, opts ...Option) *Manager {
	if sink == nil {
		sink = event.Discard
	}
	m := &Manager{mic: mic, system: system, sink: sink}
	for _, o := range opts {
		o(m)
	}
	return m
}

type session struct {
	id        string
	started   time.Time
	cancel    context.CancelFunc
	pipelines []*pipeline
	stopping  atomic.Bool
	stopOnce  sync.Once
	done      chan struct{}
}

func (s *session) finished() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// stop signals the clients to close, then the workers to release their
// capture handles. It does not wait.
func (s *session) stop() {
	s.stopOnce.Do(func() {
		s.stopping.Store(true)
		for _, p := range s.pipelines {
			p.shutdown()
		}
		for _, p := range s.pipelines {
			p.stop.Store(true)
		}
		time.AfterFunc(stopTimeout, s.cancel)
	})
}

// Start begins a session. It returns once both capture streams have reported
// their format. A microphone failure aborts Start; a system audio failure is
// reported as a Failed status for that source only.
//
// If a previous session is still tearing down after Stop, Start waits for it
// within ctx.
func (m *Manager) Start(ctx context.Context, cfg StartConfig) error {
	m.mu.Lock()
	for {
		prev := m.session
		if prev == nil || prev.finished() {
			break
		}
		if !prev.stopping.Load() {
			m.mu.Unlock()
			return ErrAlreadyRunning
		}
		// Teardown can take up to stopTimeout; don't block other callers.
		m.mu.Unlock()
		select {
		case <-prev.done:
		case <-ctx.Done():
			return fmt.Errorf("waiting for previous session: %w", ctx.Err())
		}
		m.mu.Lock()
	}
	defer m.mu.Unlock()

	sctx, cancel := context.WithCancel(context.Background())
	s := &session{id: uuid.NewString(), started: time.Now(), cancel: cancel, done: make(chan struct{})}
	out := newRelay(m.sink)
	var g errgroup.Group

	mic := newPipeline(event.Mic, m.mic, cfg.MicDeviceID, out, m.metrics)
	micCfg, err := mic.start(g.Go)
	if err != nil {
		g.Wait()
		out.close()
		cancel()
		return fmt.Errorf("%w: %w", ErrMicPipeline, err)
	}
	log.Pipeline(event.Mic.String(), deviceLabel(cfg.MicDeviceID), micCfg.SampleRate, micCfg.Channels)
	g.Go(mic.runClient(sctx, cfg.Transcriber, m.opts))
	s.pipelines = append(s.pipelines, mic)

	if sys, err := m.startSystem(out, cfg, g.Go); err != nil {
		log.Errorf("system audio unavailable: %v", err)
		out.Status(event.StatusEvent{Source: event.System, Status: event.Failed, Error: err.Error()})
	} else {
		g.Go(sys.runClient(sctx, cfg.Transcriber, m.opts))
		s.pipelines = append(s.pipelines, sys)
	}

	m.session = s
	m.metrics.SessionStarted()
	log.SessionStart(s.id, cfg.Transcriber.Language, cfg.Transcriber.Model, deviceLabel(cfg.MicDeviceID), deviceLabel(cfg.SystemDeviceID))

	go func() {
		g.Wait()
		out.close()
		cancel()
		dur := time.Since(s.started)
		m.metrics.SessionEnded(dur.Seconds())
		log.SessionEnd(s.id, dur)
		close(s.done)
	}()
	return nil
}

func (m *Manager) startSystem(out event.Sink, cfg StartConfig, spawn func(func() error)) (*pipeline, error) {
	if m.system == nil {
		return nil, errNoCapturer
	}
	p := newPipeline(event.System, m.system, cfg.SystemDeviceID, out, m.metrics)
	sc, err := p.start(spawn)
	if err != nil {
		return nil, err
	}
	log.Pipeline(event.System.String(), deviceLabel(cfg.SystemDeviceID), sc.SampleRate, sc.Channels)
	return p, nil
}

// Stop ends the current session, if any. It is idempotent and returns
// without waiting for teardown; use Wait for that.
func (m *Manager) Stop() {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s != nil {
		s.stop()
	}
}

// Wait blocks until the current session has fully shut down.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	s := m.session
	m.mu.Unlock()
	if s == nil {
		return nil
	}
	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a session is active and has not been stopped.
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil && !m.session.finished() && !m.session.stopping.Load()
}

// SessionID returns the id of the current or last session.
func (m *Manager) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.id
}

func deviceLabel(id string) string {
	if id == "" {
		return "default"
	}
	return id
}
