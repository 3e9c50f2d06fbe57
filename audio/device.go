package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

var ErrSelectionCancelled = errors.New("device selection cancelled")

// SelectDevice lets the user pick one of c's devices on the terminal. The
// cursor starts on the default device. With a single device it returns
// without prompting.
func SelectDevice(title string, c Capturer) (DeviceInfo, error) {
	devices, err := c.Devices()
	if err != nil {
		return DeviceInfo{}, err
	}
	switch len(devices) {
	case 0:
		return DeviceInfo{}, &DeviceError{Err: ErrNoDefaultDevice}
	case 1:
		return devices[0], nil
	}

	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return DeviceInfo{}, fmt.Errorf("setting raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	p := picker{title: title, devices: devices}
	for i, d := range devices {
		if d.IsDefault {
			p.cursor = i
		}
	}
	idx, err := p.run(os.Stdin, os.Stdout)
	if err != nil {
		return DeviceInfo{}, err
	}
	return devices[idx], nil
}

type picker struct {
	title   string
	devices []DeviceInfo
	cursor  int
}

func (p *picker) render(w io.Writer) {
	fmt.Fprint(w, "\r\x1b[J")
	fmt.Fprintf(w, "%s (↑/↓, Enter to confirm):\r\n\r\n", p.title)
	for i, d := range p.devices {
		tag := ""
		if d.IsDefault {
			tag += " (default)"
		}
		if IsBluetooth(d.Name) {
			tag += " \x1b[33m[⚠ Lower audio quality]\x1b[0m"
		}
		if i == p.cursor {
			fmt.Fprintf(w, "  \x1b[1;36m▶ %s%s\x1b[0m\r\n", d.Name, tag)
		} else {
			fmt.Fprintf(w, "    %s%s\r\n", d.Name, tag)
		}
	}
}

// run reads keys from r until Enter or Ctrl+C and returns the chosen index.
func (p *picker) run(r io.Reader, w io.Writer) (int, error) {
	p.render(w)
	buf := make([]byte, 3)
	for {
		n, err := r.Read(buf)
		if err != nil {
			return 0, fmt.Errorf("reading input: %w", err)
		}
		if n == 1 {
			switch buf[0] {
			case '\r', '\n':
				fmt.Fprint(w, "\r\n")
				return p.cursor, nil
			case 3, 'q':
				fmt.Fprint(w, "\r\n")
				return 0, ErrSelectionCancelled
			case 'j':
				p.move(1)
			case 'k':
				p.move(-1)
			}
		} else if n == 3 && buf[0] == 0x1b && buf[1] == '[' {
			switch buf[2] {
			case 'A':
				p.move(-1)
			case 'B':
				p.move(1)
			}
		}
		fmt.Fprintf(w, "\x1b[%dA", len(p.devices)+2)
		p.render(w)
	}
}

func (p *picker) move(delta int) {
	p.cursor = min(max(p.cursor+delta, 0), len(p.devices)-1)
}
