//go:build windows

package audio

import "github.com/gen2brain/malgo"

// NewSystemCapturer returns a WASAPI loopback capturer over the output
// devices.
func NewSystemCapturer() (Capturer, error) {
	return newMalgoCapturer(malgo.Loopback, malgo.FormatF32, 2, "wasapi loopback")
}
