package transcriber

import (
	"encoding/json"
	"fmt"
)

var (
	keepAliveMsg   = []byte(`{"type":"KeepAlive"}`)
	closeStreamMsg = []byte(`{"type":"CloseStream"}`)
)

type Word struct {
	Word       string  `json:"word"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

type Alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
	Words      []Word  `json:"words"`
}

type Channel struct {
	Alternatives []Alternative `json:"alternatives"`
}

// Response is one inbound streaming message. Only Results messages are
// decoded beyond their type; the others (Metadata, SpeechStarted,
// UtteranceEnd) carry differently shaped fields.
type Response struct {
	Type        string  `json:"type"`
	Channel     Channel `json:"channel"`
	IsFinal     bool    `json:"is_final"`
	SpeechFinal bool    `json:"speech_final"`
}

func ParseResponse(data []byte) (Response, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	if head.Type != "Results" {
		return Response{Type: head.Type}, nil
	}
	var r Response
	if err := json.Unmarshal(data, &r); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrProtocol, err)
	}
	return r, nil
}

// Transcript returns the first alternative of a Results message. ok is false
// for other message types and for empty transcripts.
func (r Response) Transcript() (text string, confidence float64, isFinal bool, ok bool) {
	if r.Type != "Results" || len(r.Channel.Alternatives) == 0 {
		return "", 0, false, false
	}
	alt := r.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return "", 0, false, false
	}
	return alt.Transcript, alt.Confidence, r.IsFinal, true
}

// StartTimestamp is the start of the first recognized word in seconds, or 0.
func (r Response) StartTimestamp() float64 {
	if len(r.Channel.Alternatives) == 0 || len(r.Channel.Alternatives[0].Words) == 0 {
		return 0
	}
	return r.Channel.Alternatives[0].Words[0].Start
}
