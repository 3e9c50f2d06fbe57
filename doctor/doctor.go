// Package doctor runs non-interactive diagnostics for the capture backends,
// the settings and the STT connection.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dualscribe/audio"
	"dualscribe/clipboard"
	"dualscribe/config"
	"dualscribe/transcriber"
)

const dialTimeout = 10 * time.Second

var errNoAPIKey = fmt.Errorf("no API key; set %s or api_key in the settings file", config.APIKeyEnv)

// Check is one diagnostic. A detail returned by a passing Run is printed
// after PASS.
type Check struct {
	Name string
	Run  func(ctx context.Context) (detail string, err error)
	// Skip reports a reason to skip the check, or "".
	Skip func() string
}

// Env supplies the dependencies the standard checks exercise.
type Env struct {
	Settings  config.Settings
	NewMic    func() (audio.Capturer, error)
	NewSystem func() (audio.Capturer, error)
	Dial      transcriber.Dialer
	Clipboard func() error
}

// Checks returns the standard check list.
func Checks(env Env) []Check {
	if env.Dial == nil {
		env.Dial = transcriber.Dial
	}
	if env.Clipboard == nil {
		env.Clipboard = clipboard.Verify
	}
	return []Check{
		{Name: "Settings", Run: func(context.Context) (string, error) {
			return "", config.Validate(env.Settings)
		}},
		{Name: "Microphone backend", Run: func(context.Context) (string, error) {
			return checkBackend(env.NewMic, env.Settings.MicDeviceID)
		}},
		{Name: "System audio backend", Run: func(context.Context) (string, error) {
			return checkBackend(env.NewSystem, env.Settings.SystemDeviceID)
		}},
		{Name: "API key", Run: func(context.Context) (string, error) {
			if env.Settings.APIKey == "" {
				return "", errNoAPIKey
			}
			return "", nil
		}},
		{
			Name: "STT connection",
			Skip: func() string {
				if env.Settings.APIKey == "" {
					return "no API key"
				}
				return ""
			},
			Run: func(ctx context.Context) (string, error) {
				return checkConnection(ctx, env.Dial, env.Settings.Transcriber())
			},
		},
		{Name: "Clipboard", Run: func(context.Context) (string, error) {
			return "", env.Clipboard()
		}},
	}
}

// Run executes checks in order, writing one PASS/FAIL/SKIP line each, and
// returns an exit code (0 = all passed or skipped, 1 = any failed).
func Run(ctx context.Context, w io.Writer, checks []Check) int {
	fmt.Fprintln(w, "dualscribe doctor - system diagnostics")
	fmt.Fprintln(w, "======================================")

	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if c.Skip != nil {
			if reason := c.Skip(); reason != "" {
				fmt.Fprintf(w, "  SKIP: %s\n", reason)
				continue
			}
		}
		if err := ctx.Err(); err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
			continue
		}
		detail, err := c.Run(ctx)
		if err != nil {
			for _, line := range splitJoined(err) {
				fmt.Fprintf(w, "  FAIL: %s\n", line)
			}
			failed++
			continue
		}
		if detail != "" {
			fmt.Fprintf(w, "  PASS: %s\n", detail)
		} else {
			fmt.Fprintln(w, "  PASS")
		}
	}

	fmt.Fprintln(w)
	if failed > 0 {
		fmt.Fprintf(w, "%d check(s) failed. See details above.\n", failed)
		return 1
	}
	fmt.Fprintln(w, "All checks passed!")
	return 0
}

func checkBackend(newCapturer func() (audio.Capturer, error), deviceID string) (string, error) {
	if newCapturer == nil {
		return "", audio.ErrNotImplemented
	}
	c, err := newCapturer()
	if err != nil {
		return "", err
	}
	defer c.Close()

	devices, err := c.Devices()
	if err != nil {
		return "", fmt.Errorf("list devices: %w", err)
	}
	if len(devices) == 0 {
		return "", errors.New("no devices found")
	}
	selected, err := audio.FindDevice(devices, deviceID)
	if err != nil {
		return "", err
	}
	// Listing can succeed on a backend that cannot open a stream.
	h, sc, err := c.Start(selected.ID, make(chan audio.Chunk, 1))
	if err != nil {
		return "", err
	}
	h.Stop()
	detail := fmt.Sprintf("%d device(s), using %q at %s", len(devices), selected.Name, sc)
	if audio.IsBluetooth(selected.Name) {
		detail += " (Bluetooth: expect narrowband audio)"
	}
	return detail, nil
}

func checkConnection(ctx context.Context, dial transcriber.Dialer, cfg transcriber.Config) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	start := time.Now()
	conn, err := dial(ctx, cfg)
	if err != nil {
		return "", &transcriber.TransportError{Op: "dial", Err: err}
	}
	elapsed := time.Since(start)
	conn.Close()
	return fmt.Sprintf("connected in %dms", elapsed.Milliseconds()), nil
}

// splitJoined flattens an errors.Join tree into one line per error.
func splitJoined(err error) []string {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		var lines []string
		for _, e := range j.Unwrap() {
			lines = append(lines, splitJoined(e)...)
		}
		return lines
	}
	return []string{err.Error()}
}
