// Package transcriber streams linear16 audio for one source to Deepgram and
// turns its responses into transcript segments. The Client keeps the
// connection alive across failures with bounded retries and buffered audio.
package transcriber

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

const (
	DefaultEndpoint = "wss://api.deepgram.com/v1/listen"
	DefaultModel    = "nova-2"
	DefaultLanguage = "en"
	SampleRate      = 16000

	endpointingMs = 300

	// MaxAttempts is the number of consecutive failed connects after which
	// the client gives up.
	MaxAttempts = 5
	maxBackoff  = 30 * time.Second
)

var ErrProtocol = errors.New("malformed message")

// TransportError is a connect, send or receive failure. The client recovers
// from it by reconnecting.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

type Config struct {
	APIKey   string
	Endpoint string
	Language string
	Model    string
}

func (c Config) withDefaults() Config {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

// URL returns the listen endpoint with the streaming query parameters.
func (c Config) URL() (string, error) {
	c = c.withDefaults()
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("endpoint %q: %w", c.Endpoint, err)
	}
	q := u.Query()
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(SampleRate))
	q.Set("channels", "1")
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("interim_results", "true")
	q.Set("vad_events", "true")
	q.Set("endpointing", strconv.Itoa(endpointingMs))
	q.Set("language", c.Language)
	q.Set("model", c.Model)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Backoff returns the wait after the given number of consecutive failed
// connects: 2^attempt seconds, capped at 30s.
func Backoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}
