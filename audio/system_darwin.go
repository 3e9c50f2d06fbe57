//go:build darwin

package audio

// NewSystemCapturer fails on macOS: ScreenCaptureKit audio capture needs an
// Objective-C bridge this module does not carry yet.
func NewSystemCapturer() (Capturer, error) {
	return nil, &StreamInitError{Backend: "screencapturekit", Err: ErrNotImplemented}
}
