package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
)

var (
	ErrNotImplemented  = errors.New("not implemented")
	ErrDeviceNotFound  = errors.New("device not found")
	ErrNoDefaultDevice = errors.New("no default device")
)

// DeviceError reports a failure to enumerate or select a device.
type DeviceError struct {
	ID  string
	Err error
}

func (e *DeviceError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("audio device: %v", e.Err)
	}
	return fmt.Sprintf("audio device %q: %v", e.ID, e.Err)
}

func (e *DeviceError) Unwrap() error { return e.Err }

// StreamInitError reports a failure to open or start a platform stream.
type StreamInitError struct {
	Backend string
	Err     error
}

func (e *StreamInitError) Error() string {
	return fmt.Sprintf("%s stream: %v", e.Backend, e.Err)
}

func (e *StreamInitError) Unwrap() error { return e.Err }

// Chunk is one capture callback's worth of interleaved float samples.
type Chunk struct {
	Samples    []float32
	SampleRate uint32
	Channels   uint32
}

// StreamConfig is the format a backend negotiated with the device.
type StreamConfig struct {
	SampleRate uint32
	Channels   uint32
}

func (c StreamConfig) String() string {
	return fmt.Sprintf("%dHz %dch", c.SampleRate, c.Channels)
}

// DeviceInfo describes a capture device. ID is the display name: no portable
// stable identifier exists, so devices with identical names are
// indistinguishable.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// Handle releases a running capture. Stop is idempotent.
type Handle interface {
	Stop()
	// Dropped returns how many chunks were discarded because the output
	// channel was full.
	Dropped() uint64
}

// Capturer is one platform audio source.
type Capturer interface {
	Devices() ([]DeviceInfo, error)
	// Start resolves deviceID (empty selects the platform default) and
	// delivers chunks to out until the handle is stopped. Delivery never
	// blocks: chunks are dropped when out is full.
	Start(deviceID string, out chan<- Chunk) (Handle, StreamConfig, error)
	Close()
}

// deliver is the only way backends hand chunks to the pipeline. It runs on
// the realtime audio thread and must not block.
func deliver(out chan<- Chunk, c Chunk, dropped *atomic.Uint64) {
	select {
	case out <- c:
	default:
		dropped.Add(1)
	}
}

// FindDevice resolves id against devices by name, or returns the default
// entry when id is empty.
func FindDevice(devices []DeviceInfo, id string) (DeviceInfo, error) {
	i, err := deviceIndex(devices, id)
	if err != nil {
		return DeviceInfo{}, err
	}
	return devices[i], nil
}

func deviceIndex(devices []DeviceInfo, id string) (int, error) {
	if id == "" {
		for i, d := range devices {
			if d.IsDefault {
				return i, nil
			}
		}
		return -1, &DeviceError{Err: ErrNoDefaultDevice}
	}
	for i, d := range devices {
		if d.ID == id {
			return i, nil
		}
	}
	return -1, &DeviceError{ID: id, Err: ErrDeviceNotFound}
}

var btKeywords = []string{
	"airpods", "beats", "bose", "wh-1000", "wf-1000",
	"sony wh-", "sony wf-",
	"jabra", "galaxy buds", "pixel buds", "powerbeats",
	"jbl ", "sennheiser momentum", "plantronics",
	"tozo", "anker soundcore", "skullcandy",
	"bluetooth", " bt ", " bt)", " bt]",
}

// IsBluetooth guesses from the display name whether a device is a Bluetooth
// headset, which usually drops to a narrowband profile while the mic is open.
func IsBluetooth(name string) bool {
	lower := strings.ToLower(name)
	for _, kw := range btKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
