package transcriber

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"dualscribe/event"
)

// fakeDeepgram answers every audio frame with a final result and hangs up
// after CloseStream.
type fakeDeepgram struct {
	mu         sync.Mutex
	auth       string
	query      string
	audioBytes int
	controls   []string
}

func (f *fakeDeepgram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.query = r.URL.RawQuery
	f.mu.Unlock()

	c, err := websocket.Accept(w, r, nil)
	if err != nil {
		return
	}
	defer c.CloseNow()

	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			return
		}
		if typ == websocket.MessageBinary {
			f.mu.Lock()
			f.audioBytes += len(data)
			f.mu.Unlock()
			msg := `{"type":"Results","channel":{"alternatives":[{"transcript":"hello","confidence":0.9,"words":[{"word":"hello","start":0.1,"end":0.4,"confidence":0.9}]}]},"is_final":true,"speech_final":true}`
			if err := c.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
				return
			}
			continue
		}
		f.mu.Lock()
		f.controls = append(f.controls, string(data))
		f.mu.Unlock()
		if strings.Contains(string(data), "CloseStream") {
			c.Close(websocket.StatusNormalClosure, "")
			return
		}
	}
}

func TestDialAgainstServer(t *testing.T) {
	fd := &fakeDeepgram{}
	srv := httptest.NewServer(fd)
	defer srv.Close()

	rec := newRecorder()
	cfg := Config{
		APIKey:   "test-key",
		Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/listen",
	}
	c := NewClient(cfg, event.Mic, rec)

	audio := make(chan []byte)
	done := make(chan error, 1)
	go func() { done <- c.Run(context.Background(), audio) }()

	rec.waitStatus(t, event.Connected)
	audio <- make([]byte, 6400)

	select {
	case seg := <-rec.segCh:
		if seg.Text != "hello" || !seg.IsFinal || seg.Timestamp != 0.1 || seg.Source != event.Mic {
			t.Errorf("unexpected segment %+v", seg)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no segment from server")
	}

	close(audio)
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("client did not finish")
	}

	fd.mu.Lock()
	defer fd.mu.Unlock()
	if fd.auth != "Token test-key" {
		t.Errorf("Authorization = %q", fd.auth)
	}
	if !strings.Contains(fd.query, "encoding=linear16") || !strings.Contains(fd.query, "sample_rate=16000") {
		t.Errorf("query = %q", fd.query)
	}
	if fd.audioBytes != 6400 {
		t.Errorf("server received %d audio bytes, want 6400", fd.audioBytes)
	}
	if len(fd.controls) == 0 || fd.controls[len(fd.controls)-1] != `{"type":"CloseStream"}` {
		t.Errorf("controls = %v", fd.controls)
	}
}

func TestDialRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := Config{APIKey: "bad", Endpoint: "ws" + strings.TrimPrefix(srv.URL, "http")}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := Dial(ctx, cfg)
	if err == nil {
		t.Fatal("expected dial error")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error %q should mention the HTTP status", err)
	}
}
