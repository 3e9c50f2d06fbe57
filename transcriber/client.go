package transcriber

import (
	"context"
	"errors"
	"sync"
	"time"

	"dualscribe/event"
	"dualscribe/log"
	"dualscribe/metrics"
)

const (
	keepAliveInterval = 10 * time.Second
	closeGrace        = 2 * time.Second
	// Connections dropped sooner than this are retried after the first
	// backoff step.
	stableConnection = 5 * time.Second
)

var errStopped = errors.New("client stopped")

// Client runs the connection state machine for one audio source:
//
//	Connecting -> Connected -> (drop) -> Connecting ...
//	Connecting -> Connected -> (early drop) -> Reconnecting -> (backoff) -> Connecting ...
//	Connecting -> Reconnecting -> (backoff) -> Connecting ... -> Failed
//	any -> Disconnected on shutdown
//
// Audio arriving while disconnected is kept in a ring buffer and flushed,
// oldest first, once a connection is up.
type Client struct {
	cfg     Config
	source  event.Source
	sink    event.Sink
	dial    Dialer
	metrics *metrics.Metrics

	keepAlive   time.Duration
	closeGrace  time.Duration
	maxAttempts int
	backoff     func(attempt int) time.Duration

	buf *ringBuffer

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

type Option func(*Client)

func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

func WithKeepAlive(d time.Duration) Option {
	return func(c *Client) { c.keepAlive = d }
}

func WithCloseGrace(d time.Duration) Option {
	return func(c *Client) { c.closeGrace = d }
}

func WithBackoff(f func(attempt int) time.Duration) Option {
	return func(c *Client) { c.backoff = f }
}

func NewClient(cfg Config, source event.Source, sink event.Sink, opts ...Option) *Client {
	c := &Client{
		cfg:         cfg.withDefaults(),
		source:      source,
		sink:        sink,
		dial:        Dial,
		keepAlive:   keepAliveInterval,
		closeGrace:  closeGrace,
		maxAttempts: MaxAttempts,
		backoff:     Backoff,
		buf:         newRingBuffer(BufferCapacity),
		shutdown:    make(chan struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Shutdown asks Run to close the stream gracefully. It does not wait.
func (c *Client) Shutdown() {
	c.shutdownOnce.Do(func() { close(c.shutdown) })
}

// Run drives the connection until audio is closed, Shutdown is called, ctx
// is cancelled, or MaxAttempts consecutive connects fail. Only the last case
// returns an error.
func (c *Client) Run(ctx context.Context, audio <-chan []byte) error {
	attempts := 0
	for {
		c.setStatus(event.Connecting, nil)
		conn, err := c.connect(ctx, audio)
		if errors.Is(err, errStopped) {
			c.setStatus(event.Disconnected, nil)
			return nil
		}
		if err != nil {
			attempts++
			if attempts >= c.maxAttempts {
				c.setStatus(event.Failed, err)
				return err
			}
			wait := c.backoff(attempts)
			log.Reconnect(c.source.String(), attempts, wait)
			c.metrics.Reconnect(c.source)
			c.setStatus(event.Reconnecting, err)
			if !c.wait(ctx, wait, audio) {
				c.setStatus(event.Disconnected, nil)
				return nil
			}
			continue
		}

		attempts = 0
		c.setStatus(event.Connected, nil)
		connected := time.Now()
		stop, err := c.serve(ctx, conn, audio)
		if stop {
			c.setStatus(event.Disconnected, nil)
			return nil
		}
		// A server that accepts and immediately hangs up must not turn into
		// a tight dial loop.
		if time.Since(connected) < stableConnection {
			wait := c.backoff(1)
			log.Reconnect(c.source.String(), 1, wait)
			c.metrics.Reconnect(c.source)
			c.setStatus(event.Reconnecting, err)
			if !c.wait(ctx, wait, audio) {
				c.setStatus(event.Disconnected, nil)
				return nil
			}
		}
	}
}

func (c *Client) setStatus(st event.Status, err error) {
	ev := event.StatusEvent{Source: c.source, Status: st}
	if err != nil {
		ev.Error = err.Error()
	}
	log.Status(c.source.String(), st.String(), err)
	c.metrics.Status(c.source, st)
	c.sink.Status(ev)
}

func (c *Client) buffer(pcm []byte) {
	if c.buf.push(pcm) {
		c.metrics.Evicted(c.source)
	}
	c.metrics.Buffered(c.source, c.buf.buffered())
}

type dialResult struct {
	conn Conn
	err  error
}

// connect dials while continuing to buffer incoming audio.
func (c *Client) connect(ctx context.Context, audio <-chan []byte) (Conn, error) {
	dctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan dialResult, 1)
	start := time.Now()
	go func() {
		conn, err := c.dial(dctx, c.cfg)
		results <- dialResult{conn, err}
	}()

	abandon := func() error {
		cancel()
		if r := <-results; r.conn != nil {
			r.conn.Close()
		}
		return errStopped
	}

	for {
		select {
		case r := <-results:
			if ctx.Err() != nil {
				if r.conn != nil {
					r.conn.Close()
				}
				return nil, errStopped
			}
			if r.err != nil {
				return nil, &TransportError{Op: "dial", Err: r.err}
			}
			c.metrics.Dialed(c.source, time.Since(start).Seconds())
			return r.conn, nil
		case pcm, ok := <-audio:
			if !ok {
				return nil, abandon()
			}
			c.buffer(pcm)
		case <-c.shutdown:
			return nil, abandon()
		case <-ctx.Done():
			return nil, abandon()
		}
	}
}

// wait sleeps for d while buffering audio. It returns false if the client
// should stop instead of retrying.
func (c *Client) wait(ctx context.Context, d time.Duration, audio <-chan []byte) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			return true
		case pcm, ok := <-audio:
			if !ok {
				return false
			}
			c.buffer(pcm)
		case <-c.shutdown:
			return false
		case <-ctx.Done():
			return false
		}
	}
}

// serve runs one connected session. It returns true when the client should
// stop, false with the cause when the connection dropped and a reconnect
// should follow.
func (c *Client) serve(ctx context.Context, conn Conn, audio <-chan []byte) (bool, error) {
	rctx, cancel := context.WithCancel(ctx)
	readDone := make(chan struct{})
	var readErr error
	go func() {
		defer close(readDone)
		readErr = c.readLoop(rctx, conn)
	}()
	defer func() {
		cancel()
		conn.Close()
		<-readDone
	}()

	if err := c.flush(ctx, conn); err != nil {
		log.Warnf("%s: flushing buffered audio: %v", c.source, err)
		return ctx.Err() != nil, err
	}

	// Fires when no audio has been sent for a full keepalive interval.
	idle := time.NewTimer(c.keepAlive)
	defer idle.Stop()

	for {
		select {
		case pcm, ok := <-audio:
			if !ok {
				c.closeStream(ctx, conn, readDone)
				return true, nil
			}
			if err := conn.WriteAudio(ctx, pcm); err != nil {
				c.buffer(pcm)
				terr := &TransportError{Op: "send", Err: err}
				log.Warnf("%s: %v", c.source, terr)
				return ctx.Err() != nil, terr
			}
			c.metrics.Sent(c.source, len(pcm))
			idle.Reset(c.keepAlive)
		case <-idle.C:
			if err := conn.WriteControl(ctx, keepAliveMsg); err != nil {
				terr := &TransportError{Op: "keepalive", Err: err}
				log.Warnf("%s: %v", c.source, terr)
				return ctx.Err() != nil, terr
			}
			idle.Reset(c.keepAlive)
		case <-readDone:
			terr := &TransportError{Op: "receive", Err: readErr}
			if ctx.Err() == nil {
				log.Warnf("%s: %v", c.source, terr)
			}
			return ctx.Err() != nil, terr
		case <-c.shutdown:
			c.closeStream(ctx, conn, readDone)
			return true, nil
		case <-ctx.Done():
			return true, nil
		}
	}
}

// flush sends buffered audio oldest first. Blocks that fail to send stay
// buffered.
func (c *Client) flush(ctx context.Context, conn Conn) error {
	for {
		pcm, ok := c.buf.peek()
		if !ok {
			break
		}
		if err := conn.WriteAudio(ctx, pcm); err != nil {
			return &TransportError{Op: "send", Err: err}
		}
		c.buf.pop()
		c.metrics.Sent(c.source, len(pcm))
	}
	c.metrics.Buffered(c.source, 0)
	return nil
}

// closeStream asks the server to finish and waits briefly for it to close
// the connection. Results arriving meanwhile are still delivered.
func (c *Client) closeStream(ctx context.Context, conn Conn, readDone <-chan struct{}) {
	if err := conn.WriteControl(ctx, closeStreamMsg); err != nil {
		log.Warnf("%s: sending CloseStream: %v", c.source, err)
		return
	}
	t := time.NewTimer(c.closeGrace)
	defer t.Stop()
	select {
	case <-readDone:
	case <-t.C:
		log.Debugf("%s: server did not close within %v", c.source, c.closeGrace)
	case <-ctx.Done():
	}
}

func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		resp, err := ParseResponse(data)
		if err != nil {
			log.Warnf("%s: %v", c.source, err)
			c.metrics.ProtocolError(c.source)
			continue
		}
		text, confidence, final, ok := resp.Transcript()
		if !ok {
			continue
		}
		c.metrics.Segment(c.source, final)
		if final {
			log.TranscriptionText(c.source.String(), text)
		}
		c.sink.Transcript(event.Segment{
			Text:       text,
			IsFinal:    final,
			Timestamp:  resp.StartTimestamp(),
			Confidence: confidence,
			Source:     c.source,
		})
	}
}
