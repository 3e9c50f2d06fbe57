//go:build linux

package audio

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jfreymuth/pulse"
)

const pulseLatency = 0.05 // seconds

type pulseCapturer struct {
	client *pulse.Client
	system bool
}

// NewMicCapturer returns a capturer recording from PulseAudio sources.
func NewMicCapturer() (Capturer, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("dualscribe"))
	if err != nil {
		return nil, &StreamInitError{Backend: "pulse", Err: err}
	}
	return &pulseCapturer{client: c}, nil
}

// NewSystemCapturer returns a capturer recording the monitor of a PulseAudio
// sink, i.e. whatever the sink is playing.
func NewSystemCapturer() (Capturer, error) {
	c, err := pulse.NewClient(pulse.ClientApplicationName("dualscribe"))
	if err != nil {
		return nil, &StreamInitError{Backend: "pulse monitor", Err: err}
	}
	return &pulseCapturer{client: c, system: true}, nil
}

func (p *pulseCapturer) Devices() ([]DeviceInfo, error) {
	if p.system {
		return p.sinkDevices()
	}
	return p.sourceDevices()
}

func (p *pulseCapturer) sourceDevices() ([]DeviceInfo, error) {
	devices, _, err := p.listSources()
	return devices, err
}

func (p *pulseCapturer) sinkDevices() ([]DeviceInfo, error) {
	devices, _, err := p.listSinks()
	return devices, err
}

// listSources returns the non-monitor sources alongside their DeviceInfo.
func (p *pulseCapturer) listSources() ([]DeviceInfo, []*pulse.Source, error) {
	all, err := p.client.ListSources()
	if err != nil {
		return nil, nil, &DeviceError{Err: fmt.Errorf("pulse list sources: %w", err)}
	}
	var defID string
	if def, err := p.client.DefaultSource(); err == nil && def != nil {
		defID = def.ID()
	}
	var devices []DeviceInfo
	var sources []*pulse.Source
	for _, s := range all {
		// Monitors belong to the system side.
		if strings.HasSuffix(s.ID(), ".monitor") {
			continue
		}
		devices = append(devices, DeviceInfo{ID: s.Name(), Name: s.Name(), IsDefault: s.ID() == defID})
		sources = append(sources, s)
	}
	return devices, sources, nil
}

func (p *pulseCapturer) listSinks() ([]DeviceInfo, []*pulse.Sink, error) {
	sinks, err := p.client.ListSinks()
	if err != nil {
		return nil, nil, &DeviceError{Err: fmt.Errorf("pulse list sinks: %w", err)}
	}
	var defID string
	if def, err := p.client.DefaultSink(); err == nil && def != nil {
		defID = def.ID()
	}
	devices := make([]DeviceInfo, 0, len(sinks))
	for _, s := range sinks {
		devices = append(devices, DeviceInfo{ID: s.Name(), Name: s.Name(), IsDefault: s.ID() == defID})
	}
	return devices, sinks, nil
}

func (p *pulseCapturer) Start(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error) {
	if p.system {
		return p.startMonitor(deviceID, out)
	}
	return p.startSource(deviceID, out)
}

func (p *pulseCapturer) startSource(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error) {
	devices, sources, err := p.listSources()
	if err != nil {
		return nil, StreamConfig{}, err
	}
	i, err := deviceIndex(devices, deviceID)
	if err != nil {
		return nil, StreamConfig{}, err
	}
	source := sources[i]

	cfg := StreamConfig{SampleRate: uint32(source.SampleRate()), Channels: 1}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 48000
	}
	h := &pulseHandle{}
	writer := pulse.Int16Writer(func(buf []int16) (int, error) {
		if len(buf) > 0 {
			deliver(out, Chunk{Samples: int16sToFloat(buf), SampleRate: cfg.SampleRate, Channels: cfg.Channels}, &h.dropped)
		}
		return len(buf), nil
	})
	stream, err := p.client.NewRecord(writer,
		pulse.RecordSource(source),
		pulse.RecordMono,
		pulse.RecordSampleRate(int(cfg.SampleRate)),
		pulse.RecordLatency(pulseLatency),
	)
	if err != nil {
		return nil, StreamConfig{}, &StreamInitError{Backend: "pulse", Err: err}
	}
	h.stream = stream
	stream.Start()
	return h, cfg, nil
}

func (p *pulseCapturer) startMonitor(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error) {
	devices, sinks, err := p.listSinks()
	if err != nil {
		return nil, StreamConfig{}, err
	}
	// An empty id picks the default sink, i.e. @DEFAULT_MONITOR@.
	i, err := deviceIndex(devices, deviceID)
	if err != nil {
		return nil, StreamConfig{}, err
	}
	sink := sinks[i]

	cfg := StreamConfig{SampleRate: 44100, Channels: 1}
	h := &pulseHandle{}
	writer := pulse.Float32Writer(func(buf []float32) (int, error) {
		if len(buf) > 0 {
			samples := make([]float32, len(buf))
			copy(samples, buf)
			deliver(out, Chunk{Samples: samples, SampleRate: cfg.SampleRate, Channels: cfg.Channels}, &h.dropped)
		}
		return len(buf), nil
	})
	stream, err := p.client.NewRecord(writer,
		pulse.RecordMonitor(sink),
		pulse.RecordMono,
		pulse.RecordSampleRate(int(cfg.SampleRate)),
		pulse.RecordLatency(pulseLatency),
	)
	if err != nil {
		return nil, StreamConfig{}, &StreamInitError{Backend: "pulse monitor", Err: err}
	}
	h.stream = stream
	stream.Start()
	return h, cfg, nil
}

func (p *pulseCapturer) Close() {
	p.client.Close()
}

type pulseHandle struct {
	stream  *pulse.RecordStream
	once    sync.Once
	dropped atomic.Uint64
}

func (h *pulseHandle) Stop() {
	h.once.Do(func() {
		h.stream.Stop()
		h.stream.Close()
	})
}

func (h *pulseHandle) Dropped() uint64 { return h.dropped.Load() }
