//go:build !linux

package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

const malgoSampleRate = 48000

// malgoCapturer drives one miniaudio device type. Mic capture uses Capture
// devices with 16-bit samples; loopback uses Playback devices as the source
// and float samples.
type malgoCapturer struct {
	ctx      *malgo.AllocatedContext
	kind     malgo.DeviceType // Capture or Loopback
	format   malgo.FormatType
	channels uint32
	backend  string
}

// NewMicCapturer returns a capturer recording from the default miniaudio
// backend's input devices.
func NewMicCapturer() (Capturer, error) {
	return newMalgoCapturer(malgo.Capture, malgo.FormatS16, 1, "miniaudio")
}

func newMalgoCapturer(kind malgo.DeviceType, format malgo.FormatType, channels uint32, backend string) (*malgoCapturer, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, &StreamInitError{Backend: backend, Err: err}
	}
	return &malgoCapturer{ctx: ctx, kind: kind, format: format, channels: channels, backend: backend}, nil
}

func (m *malgoCapturer) enumerate() ([]malgo.DeviceInfo, error) {
	kind := malgo.Capture
	if m.kind == malgo.Loopback {
		kind = malgo.Playback
	}
	devices, err := m.ctx.Devices(kind)
	if err != nil {
		return nil, &DeviceError{Err: fmt.Errorf("malgo devices: %w", err)}
	}
	return devices, nil
}

func (m *malgoCapturer) Devices() ([]DeviceInfo, error) {
	_, infos, err := m.list()
	return infos, err
}

func (m *malgoCapturer) list() ([]malgo.DeviceInfo, []DeviceInfo, error) {
	devices, err := m.enumerate()
	if err != nil {
		return nil, nil, err
	}
	infos := make([]DeviceInfo, 0, len(devices))
	for _, d := range devices {
		infos = append(infos, DeviceInfo{ID: d.Name(), Name: d.Name(), IsDefault: d.IsDefault != 0})
	}
	return devices, infos, nil
}

func (m *malgoCapturer) Start(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error) {
	cfg := malgo.DefaultDeviceConfig(m.kind)
	cfg.Capture.Format = m.format
	cfg.Capture.Channels = m.channels
	cfg.SampleRate = malgoSampleRate

	// An empty id leaves DeviceID nil, which miniaudio resolves to the
	// system default.
	if deviceID != "" {
		devices, infos, err := m.list()
		if err != nil {
			return nil, StreamConfig{}, err
		}
		i, err := deviceIndex(infos, deviceID)
		if err != nil {
			return nil, StreamConfig{}, err
		}
		cfg.Capture.DeviceID = devices[i].ID.Pointer()
	}

	sc := StreamConfig{SampleRate: malgoSampleRate, Channels: m.channels}
	h := &malgoHandle{}
	decode := Int16ToFloat
	if m.format == malgo.FormatF32 {
		decode = float32LE
	}
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			if len(input) == 0 {
				return
			}
			deliver(out, Chunk{Samples: decode(input), SampleRate: sc.SampleRate, Channels: sc.Channels}, &h.dropped)
		},
	}

	dev, err := malgo.InitDevice(m.ctx.Context, cfg, callbacks)
	if err != nil {
		return nil, StreamConfig{}, &StreamInitError{Backend: m.backend, Err: err}
	}
	if err := dev.Start(); err != nil {
		dev.Uninit()
		return nil, StreamConfig{}, &StreamInitError{Backend: m.backend, Err: err}
	}
	h.device = dev
	return h, sc, nil
}

func (m *malgoCapturer) Close() {
	m.ctx.Uninit()
	m.ctx.Free()
}

type malgoHandle struct {
	device  *malgo.Device
	once    sync.Once
	dropped atomic.Uint64
}

func (h *malgoHandle) Stop() {
	h.once.Do(func() {
		h.device.Stop()
		h.device.Uninit()
	})
}

func (h *malgoHandle) Dropped() uint64 { return h.dropped.Load() }

func float32LE(data []byte) []float32 {
	out := make([]float32, len(data)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return out
}
