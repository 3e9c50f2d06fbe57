// Package clipboard copies exported transcripts to the system clipboard.
package clipboard

import (
	"errors"
	"fmt"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility available")

// Swapped out in tests.
var (
	readAll     = cb.ReadAll
	writeAll    = cb.WriteAll
	unsupported = func() bool { return cb.Unsupported }
)

func Read() (string, error) {
	if unsupported() {
		return "", ErrUnsupported
	}
	return readAll()
}

func Copy(text string) error {
	if unsupported() {
		return ErrUnsupported
	}
	return writeAll(text)
}

// Verify writes a sentinel, reads it back and restores the previous
// contents.
func Verify() error {
	prev, err := Read()
	if err != nil {
		return fmt.Errorf("read clipboard: %w", err)
	}
	defer writeAll(prev)

	const sentinel = "dualscribe-clipboard-check"
	if err := Copy(sentinel); err != nil {
		return fmt.Errorf("write clipboard: %w", err)
	}
	got, err := Read()
	if err != nil {
		return fmt.Errorf("read back clipboard: %w", err)
	}
	if got != sentinel {
		return fmt.Errorf("clipboard returned %q, want %q", got, sentinel)
	}
	return nil
}
