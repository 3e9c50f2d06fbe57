//go:build !linux && !windows && !darwin

package audio

// NewSystemCapturer fails: no system audio backend exists for this platform.
func NewSystemCapturer() (Capturer, error) {
	return nil, &StreamInitError{Backend: "system audio", Err: ErrNotImplemented}
}
