package transcriber

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestTranscript(t *testing.T) {
	tests := []struct {
		name      string
		msg       string
		wantOK    bool
		wantText  string
		wantConf  float64
		wantFinal bool
		wantStart float64
	}{
		{
			name:      "final result",
			msg:       `{"type":"Results","channel":{"alternatives":[{"transcript":"Hello there.","confidence":0.98,"words":[{"word":"hello","start":1.25,"end":1.5,"confidence":0.99},{"word":"there","start":1.5,"end":1.8,"confidence":0.97}]}]},"is_final":true,"speech_final":true}`,
			wantOK:    true,
			wantText:  "Hello there.",
			wantConf:  0.98,
			wantFinal: true,
			wantStart: 1.25,
		},
		{
			name:     "interim without words",
			msg:      `{"type":"Results","channel":{"alternatives":[{"transcript":"hel","confidence":0.5}]},"is_final":false}`,
			wantOK:   true,
			wantText: "hel",
			wantConf: 0.5,
		},
		{
			name: "empty transcript",
			msg:  `{"type":"Results","channel":{"alternatives":[{"transcript":"","confidence":0}]},"is_final":true}`,
		},
		{
			name:      "whitespace transcript is still a transcript",
			msg:       `{"type":"Results","channel":{"alternatives":[{"transcript":"  ","confidence":0}]},"is_final":true}`,
			wantOK:    true,
			wantText:  "  ",
			wantFinal: true,
		},
		{
			name: "no alternatives",
			msg:  `{"type":"Results","channel":{"alternatives":[]},"is_final":true}`,
		},
		{
			name: "metadata",
			msg:  `{"type":"Metadata","request_id":"abc","channels":1}`,
		},
		{
			name: "utterance end with array channel",
			msg:  `{"type":"UtteranceEnd","channel":[0,1],"last_word_end":2.5}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := ParseResponse([]byte(tt.msg))
			if err != nil {
				t.Fatal(err)
			}
			text, conf, final, ok := r.Transcript()
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if text != tt.wantText || conf != tt.wantConf || final != tt.wantFinal {
				t.Errorf("got (%q, %v, %v), want (%q, %v, %v)", text, conf, final, tt.wantText, tt.wantConf, tt.wantFinal)
			}
			if got := r.StartTimestamp(); got != tt.wantStart {
				t.Errorf("StartTimestamp() = %v, want %v", got, tt.wantStart)
			}
		})
	}
}

func TestParseResponseMalformed(t *testing.T) {
	for _, msg := range []string{
		`not json`,
		`{"type":"Results","channel":{"alternatives":"oops"}}`,
	} {
		if _, err := ParseResponse([]byte(msg)); !errors.Is(err, ErrProtocol) {
			t.Errorf("ParseResponse(%q) error = %v, want ErrProtocol", msg, err)
		}
	}
}

func TestConfigURL(t *testing.T) {
	raw, err := Config{APIKey: "k", Language: "de"}.URL()
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Scheme != "wss" || u.Host != "api.deepgram.com" || u.Path != "/v1/listen" {
		t.Errorf("unexpected endpoint %s", raw)
	}
	want := map[string]string{
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"punctuate":       "true",
		"smart_format":    "true",
		"interim_results": "true",
		"vad_events":      "true",
		"endpointing":     "300",
		"language":        "de",
		"model":           "nova-2",
	}
	q := u.Query()
	for k, v := range want {
		if got := q.Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if q.Has("api_key") || q.Has("token") {
		t.Error("credentials must not appear in the query")
	}
}

func TestBackoff(t *testing.T) {
	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for attempt, w := range want {
		if got := Backoff(attempt); got != w {
			t.Errorf("Backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
	if Backoff(100) != 30*time.Second {
		t.Error("large attempts must stay capped")
	}
}
