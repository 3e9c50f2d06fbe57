package audio

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-audio/wav"
)

const fakeChunkFrames = 480

// FakeCapturer replays a fixed buffer of samples as if it were a device. In
// realtime mode chunks are paced to the sample rate and delivered like a
// platform callback; otherwise they are handed over as fast as the consumer
// takes them, without drops.
type FakeCapturer struct {
	Samples  []float32
	Config   StreamConfig
	Realtime bool
	// StartErr, when set, is returned by Start.
	StartErr error

	once sync.Once
	done chan struct{}
}

func NewFakeCapturer(samples []float32, cfg StreamConfig, realtime bool) *FakeCapturer {
	return &FakeCapturer{Samples: samples, Config: cfg, Realtime: realtime, done: make(chan struct{})}
}

// NewWAVCapturer replays a 16-bit PCM WAV file in real time.
func NewWAVCapturer(path string) (*FakeCapturer, error) {
	samples, cfg, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	return NewFakeCapturer(samples, cfg, true), nil
}

// Done is closed once all samples have been delivered.
func (f *FakeCapturer) Done() <-chan struct{} {
	f.once.Do(func() {
		if f.done == nil {
			f.done = make(chan struct{})
		}
	})
	return f.done
}

func (f *FakeCapturer) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake", Name: "fake", IsDefault: true}}, nil
}

func (f *FakeCapturer) Close() {}

func (f *FakeCapturer) Start(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error) {
	if f.StartErr != nil {
		return nil, StreamConfig{}, f.StartErr
	}
	if deviceID != "" && deviceID != "fake" {
		return nil, StreamConfig{}, &DeviceError{ID: deviceID, Err: ErrDeviceNotFound}
	}
	f.Done()
	h := &fakeHandle{stop: make(chan struct{}), exited: make(chan struct{})}
	go h.feed(f, out, f.done)
	return h, f.Config, nil
}

type fakeHandle struct {
	stop    chan struct{}
	exited  chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func (h *fakeHandle) feed(f *FakeCapturer, out chan<- Chunk, done chan struct{}) {
	defer close(h.exited)
	channels := int(max(f.Config.Channels, 1))
	step := fakeChunkFrames * channels
	interval := time.Duration(fakeChunkFrames) * time.Second / time.Duration(max(f.Config.SampleRate, 1))

	for pos := 0; pos < len(f.Samples); pos += step {
		end := min(pos+step, len(f.Samples))
		c := Chunk{
			Samples:    append([]float32(nil), f.Samples[pos:end]...),
			SampleRate: f.Config.SampleRate,
			Channels:   uint32(channels),
		}
		if f.Realtime {
			deliver(out, c, &h.dropped)
			select {
			case <-h.stop:
				return
			case <-time.After(interval):
			}
			continue
		}
		select {
		case out <- c:
		case <-h.stop:
			return
		}
	}
	select {
	case <-done:
	default:
		close(done)
	}
}

func (h *fakeHandle) Stop() {
	h.once.Do(func() { close(h.stop) })
	<-h.exited
}

func (h *fakeHandle) Dropped() uint64 { return h.dropped.Load() }

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

var errNotPCM16 = errors.New("only 16-bit PCM WAV is supported")

// LoadWAV reads a 16-bit PCM WAV file and returns its interleaved samples as
// floats together with the stream format.
func LoadWAV(path string) ([]float32, StreamConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, StreamConfig{}, err
	}
	defer f.Close()
	samples, cfg, err := decodeWAV(f)
	if err != nil {
		return nil, StreamConfig{}, fmt.Errorf("%s: %w", path, err)
	}
	return samples, cfg, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, StreamConfig, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		if err := dec.Err(); err != nil {
			return nil, StreamConfig{}, fmt.Errorf("invalid WAV file: %w", err)
		}
		return nil, StreamConfig{}, errors.New("invalid WAV file")
	}
	if dec.BitDepth != 16 || (dec.WavAudioFormat != wavFormatPCM && dec.WavAudioFormat != wavFormatExtensible) {
		return nil, StreamConfig{}, errNotPCM16
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, StreamConfig{}, fmt.Errorf("read PCM: %w", err)
	}
	samples := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = float32(v) / math.MaxInt16
	}
	cfg := StreamConfig{SampleRate: dec.SampleRate, Channels: uint32(dec.NumChans)}
	return samples, cfg, nil
}
