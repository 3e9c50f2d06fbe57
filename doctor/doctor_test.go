package doctor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"dualscribe/audio"
	"dualscribe/config"
	"dualscribe/transcriber"
)

type nopConn struct{ closed bool }

func (c *nopConn) WriteAudio(context.Context, []byte) error   { return nil }
func (c *nopConn) WriteControl(context.Context, []byte) error { return nil }
func (c *nopConn) Read(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (c *nopConn) Close() error { c.closed = true; return nil }

func fakeBackend() (audio.Capturer, error) {
	return audio.NewFakeCapturer(nil, audio.StreamConfig{SampleRate: 16000, Channels: 1}, false), nil
}

func healthyEnv(conn *nopConn) Env {
	s := config.Default()
	s.APIKey = "key"
	return Env{
		Settings:  s,
		NewMic:    fakeBackend,
		NewSystem: fakeBackend,
		Dial: func(context.Context, transcriber.Config) (transcriber.Conn, error) {
			return conn, nil
		},
		Clipboard: func() error { return nil },
	}
}

func TestAllChecksPass(t *testing.T) {
	conn := &nopConn{}
	var out bytes.Buffer
	code := Run(context.Background(), &out, Checks(healthyEnv(conn)))
	if code != 0 {
		t.Fatalf("exit code = %d, output:\n%s", code, out.String())
	}
	if !conn.closed {
		t.Error("connection check should close the connection")
	}
	text := out.String()
	if strings.Contains(text, "FAIL") {
		t.Errorf("unexpected failure:\n%s", text)
	}
	for _, want := range []string{"[1/6] Settings", "[6/6] Clipboard", `using "fake" at 16000Hz 1ch`, "connected in", "All checks passed!"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
}

func TestMissingAPIKeySkipsConnection(t *testing.T) {
	env := healthyEnv(&nopConn{})
	env.Settings.APIKey = ""
	dialed := false
	env.Dial = func(context.Context, transcriber.Config) (transcriber.Conn, error) {
		dialed = true
		return nil, errors.New("unreachable")
	}
	var out bytes.Buffer
	if code := Run(context.Background(), &out, Checks(env)); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if dialed {
		t.Error("dialed without an API key")
	}
	text := out.String()
	if !strings.Contains(text, "SKIP: no API key") {
		t.Errorf("expected skipped connection check:\n%s", text)
	}
	if !strings.Contains(text, "1 check(s) failed") {
		t.Errorf("expected exactly one failure:\n%s", text)
	}
}

func TestBackendFailures(t *testing.T) {
	for _, tt := range []struct {
		name     string
		factory  func() (audio.Capturer, error)
		deviceID string
		want     string
	}{
		{"unsupported", nil, "", "not implemented"},
		{"init error", func() (audio.Capturer, error) { return nil, errors.New("pulse: connection refused") }, "", "connection refused"},
		{"unknown device", fakeBackend, "USB Mic", `"USB Mic": device not found`},
		{"stream cannot open", func() (audio.Capturer, error) {
			f := audio.NewFakeCapturer(nil, audio.StreamConfig{SampleRate: 48000, Channels: 1}, false)
			f.StartErr = &audio.StreamInitError{Backend: "screencapturekit", Err: audio.ErrNotImplemented}
			return f, nil
		}, "", "screencapturekit stream: not implemented"},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := checkBackend(tt.factory, tt.deviceID)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %v, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestConnectionFailure(t *testing.T) {
	dial := func(context.Context, transcriber.Config) (transcriber.Conn, error) {
		return nil, errors.New("HTTP 401")
	}
	_, err := checkConnection(context.Background(), dial, transcriber.Config{APIKey: "bad"})
	var te *transcriber.TransportError
	if !errors.As(err, &te) || te.Op != "dial" {
		t.Fatalf("err = %v, want dial TransportError", err)
	}
}

func TestInvalidSettingsListsEveryProblem(t *testing.T) {
	env := healthyEnv(&nopConn{})
	env.Settings.Model = ""
	env.Settings.ExportFormat = "pdf"
	var out bytes.Buffer
	Run(context.Background(), &out, Checks(env)[:1])
	if n := strings.Count(out.String(), "FAIL:"); n != 2 {
		t.Errorf("got %d FAIL lines, want 2:\n%s", n, out.String())
	}
}

func TestCancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	checks := []Check{{Name: "never", Run: func(context.Context) (string, error) {
		ran = true
		return "", nil
	}}}
	var out bytes.Buffer
	if code := Run(ctx, &out, checks); code != 1 {
		t.Errorf("exit code = %d, want 1", code)
	}
	if ran {
		t.Error("check ran after cancellation")
	}
}
