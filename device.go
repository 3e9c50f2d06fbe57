package main

import (
	"fmt"
	"io"

	"dualscribe/audio"
	"dualscribe/log"
)

// capturers holds the two capture backends of a run. system is nil when the
// platform backend could not be opened; the session then reports Failed for
// system audio and keeps the microphone running.
type capturers struct {
	mic    audio.Capturer
	system audio.Capturer
	// replays are set for WAV replay sources, which finish on their own.
	replays []*audio.FakeCapturer
}

func openCapturers(replayMic, replaySystem string) (*capturers, error) {
	c := &capturers{}
	if replayMic != "" {
		f, err := audio.NewWAVCapturer(replayMic)
		if err != nil {
			return nil, fmt.Errorf("replay microphone: %w", err)
		}
		c.mic = f
		c.replays = append(c.replays, f)
	} else {
		mic, err := audio.NewMicCapturer()
		if err != nil {
			return nil, fmt.Errorf("microphone backend: %w", err)
		}
		c.mic = mic
	}

	if replaySystem != "" {
		f, err := audio.NewWAVCapturer(replaySystem)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("replay system audio: %w", err)
		}
		c.system = f
		c.replays = append(c.replays, f)
	} else if sys, err := audio.NewSystemCapturer(); err != nil {
		log.Warnf("system audio backend unavailable: %v", err)
	} else {
		c.system = sys
	}
	return c, nil
}

// replayDone is closed once every replay source has delivered all of its
// samples. It is nil when a live device is in use.
func (c *capturers) replayDone() <-chan struct{} {
	if !c.isReplay(c.mic) || (c.system != nil && !c.isReplay(c.system)) {
		return nil
	}
	done := make(chan struct{})
	go func() {
		for _, r := range c.replays {
			<-r.Done()
		}
		close(done)
	}()
	return done
}

func (c *capturers) close() {
	if c.mic != nil {
		c.mic.Close()
	}
	if c.system != nil {
		c.system.Close()
	}
}

func listDevices(w io.Writer, c *capturers) error {
	if err := printDevices(w, "Microphones", c.mic); err != nil {
		return err
	}
	fmt.Fprintln(w)
	if c.system == nil {
		fmt.Fprintln(w, "System audio: not available on this platform")
		return nil
	}
	return printDevices(w, "System audio", c.system)
}

func printDevices(w io.Writer, title string, c audio.Capturer) error {
	devices, err := c.Devices()
	if err != nil {
		return fmt.Errorf("%s: %w", title, err)
	}
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, d := range devices {
		marker := " "
		if d.IsDefault {
			marker = "*"
		}
		suffix := ""
		if audio.IsBluetooth(d.Name) {
			suffix = " (BT!)"
		}
		if d.ID != d.Name {
			fmt.Fprintf(w, "  %s %s%s  [%s]\n", marker, d.Name, suffix, d.ID)
		} else {
			fmt.Fprintf(w, "  %s %s%s\n", marker, d.Name, suffix)
		}
	}
	return nil
}

// setupDevices runs the interactive picker for each live source and returns
// the chosen ids. Replay sources keep their empty id.
func setupDevices(c *capturers, micID, systemID string) (string, string, error) {
	if !c.isReplay(c.mic) {
		d, err := audio.SelectDevice("Select microphone", c.mic)
		if err != nil {
			return "", "", err
		}
		micID = d.ID
	}
	if c.system != nil && !c.isReplay(c.system) {
		d, err := audio.SelectDevice("Select system audio output", c.system)
		if err != nil {
			return "", "", err
		}
		systemID = d.ID
	}
	return micID, systemID, nil
}

// deviceIDs blanks the configured id of replay sources, which only know
// their own device.
func (c *capturers) deviceIDs(micID, systemID string) (string, string) {
	if c.isReplay(c.mic) {
		micID = ""
	}
	if c.isReplay(c.system) {
		systemID = ""
	}
	return micID, systemID
}

func (c *capturers) isReplay(src audio.Capturer) bool {
	if src == nil {
		return false
	}
	for _, r := range c.replays {
		if audio.Capturer(r) == src {
			return true
		}
	}
	return false
}
