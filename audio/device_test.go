package audio

import (
	"errors"
	"io"
	"testing"
)

// keyReader returns one keystroke per Read, as a raw terminal does.
type keyReader struct{ keys []string }

func (r *keyReader) Read(p []byte) (int, error) {
	if len(r.keys) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.keys[0])
	r.keys = r.keys[1:]
	return n, nil
}

func TestPicker(t *testing.T) {
	devices := []DeviceInfo{{Name: "A"}, {Name: "B", IsDefault: true}, {Name: "C"}}
	tests := []struct {
		name    string
		keys    []string
		want    int
		wantErr error
	}{
		{"enter keeps default", []string{"\r"}, 1, nil},
		{"arrow down", []string{"\x1b[B", "\r"}, 2, nil},
		{"clamped at top", []string{"k", "k", "k", "\r"}, 0, nil},
		{"clamped at bottom", []string{"j", "j", "j", "\r"}, 2, nil},
		{"ctrl-c", []string{"\x03"}, 0, ErrSelectionCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := picker{title: "Select", devices: devices, cursor: 1}
			got, err := p.run(&keyReader{keys: tt.keys}, io.Discard)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
