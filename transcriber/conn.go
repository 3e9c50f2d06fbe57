package transcriber

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/coder/websocket"

	"dualscribe/log"
)

const readLimit = 1 << 20

// Conn is one duplex connection to the STT backend.
type Conn interface {
	WriteAudio(ctx context.Context, pcm []byte) error
	WriteControl(ctx context.Context, msg []byte) error
	Read(ctx context.Context) ([]byte, error)
	Close() error
}

// Dialer opens a Conn. Dial is the production implementation; tests
// substitute in-memory fakes.
type Dialer func(ctx context.Context, cfg Config) (Conn, error)

// Dial connects to the configured endpoint over WebSocket, authenticating
// with the API key.
func Dial(ctx context.Context, cfg Config) (Conn, error) {
	endpoint, err := cfg.URL()
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+cfg.APIKey)

	var t dialTrace
	ctx = httptrace.WithClientTrace(ctx, t.clientTrace())
	start := time.Now()
	c, resp, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("%w (HTTP %d)", err, resp.StatusCode)
		}
		return nil, err
	}
	c.SetReadLimit(readLimit)
	if u, err := url.Parse(endpoint); err == nil {
		log.Dial(u.Host, t.dns, t.tls, time.Since(start))
	}
	return &wsConn{c: c}, nil
}

// dialTrace records handshake phase timings of one dial.
type dialTrace struct {
	dnsStart, tlsStart time.Time
	dns, tls           time.Duration
}

func (t *dialTrace) clientTrace() *httptrace.ClientTrace {
	return &httptrace.ClientTrace{
		DNSStart:          func(httptrace.DNSStartInfo) { t.dnsStart = time.Now() },
		DNSDone:           func(httptrace.DNSDoneInfo) { t.dns = time.Since(t.dnsStart) },
		TLSHandshakeStart: func() { t.tlsStart = time.Now() },
		TLSHandshakeDone:  func(tls.ConnectionState, error) { t.tls = time.Since(t.tlsStart) },
	}
}

type wsConn struct {
	c *websocket.Conn
}

func (w *wsConn) WriteAudio(ctx context.Context, pcm []byte) error {
	return w.c.Write(ctx, websocket.MessageBinary, pcm)
}

func (w *wsConn) WriteControl(ctx context.Context, msg []byte) error {
	return w.c.Write(ctx, websocket.MessageText, msg)
}

func (w *wsConn) Read(ctx context.Context) ([]byte, error) {
	_, data, err := w.c.Read(ctx)
	return data, err
}

func (w *wsConn) Close() error {
	return w.c.CloseNow()
}
