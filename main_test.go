package main

import (
	"errors"
	"flag"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dualscribe/config"
	"dualscribe/event"
	"dualscribe/export"
)

func TestParseFlagsOverridesOnlyGivenFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-lang", "de", "-timestamps=false", "-mic", "USB Mic"}, io.Discard)
	if err != nil {
		t.Fatal(err)
	}
	s := config.Default()
	s.Model = "nova-3"
	s.SystemDeviceID = "Speakers"
	opts.apply(&s)

	if s.Language != "de" {
		t.Errorf("Language = %q, want de", s.Language)
	}
	if s.Model != "nova-3" {
		t.Errorf("Model = %q, should keep the file value", s.Model)
	}
	if s.MicDeviceID != "USB Mic" {
		t.Errorf("MicDeviceID = %q", s.MicDeviceID)
	}
	if s.SystemDeviceID != "Speakers" {
		t.Errorf("SystemDeviceID = %q, should keep the file value", s.SystemDeviceID)
	}
	if s.TimestampsEnabled {
		t.Error("TimestampsEnabled should be false")
	}
	if !opts.tui {
		t.Error("tui should default to true")
	}
}

func TestExportFormatFromOutExtension(t *testing.T) {
	for _, tt := range []struct {
		args []string
		want string
	}{
		{[]string{"-out", "meeting.json"}, string(export.FormatJSON)},
		{[]string{"-out", "meeting.txt"}, string(export.FormatText)},
		{[]string{"-out", "meeting.log"}, string(export.FormatMarkdown)},
		{[]string{"-out", "meeting.json", "-format", "text"}, "text"},
	} {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			opts, err := parseFlags(tt.args, io.Discard)
			if err != nil {
				t.Fatal(err)
			}
			s := config.Default()
			opts.apply(&s)
			if s.ExportFormat != tt.want {
				t.Errorf("ExportFormat = %q, want %q", s.ExportFormat, tt.want)
			}
		})
	}
}

func TestParseFlagsErrors(t *testing.T) {
	if _, err := parseFlags([]string{"-h"}, io.Discard); !errors.Is(err, flag.ErrHelp) {
		t.Errorf("-h: err = %v, want flag.ErrHelp", err)
	}
	if _, err := parseFlags([]string{"-nope"}, io.Discard); err == nil {
		t.Error("expected error for unknown flag")
	}
	if _, err := parseFlags([]string{"extra"}, io.Discard); err == nil {
		t.Error("expected error for positional argument")
	}
}

func TestLoadSettingsValidatesFlags(t *testing.T) {
	t.Setenv(config.APIKeyEnv, "")
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("language: fr\n"), 0644); err != nil {
		t.Fatal(err)
	}

	opts, _ := parseFlags([]string{"-config", path, "-model", "nova-3"}, io.Discard)
	s, err := loadSettings(opts)
	if err != nil {
		t.Fatal(err)
	}
	if s.Language != "fr" || s.Model != "nova-3" {
		t.Errorf("got language %q model %q", s.Language, s.Model)
	}

	opts, _ = parseFlags([]string{"-config", path, "-format", "pdf"}, io.Discard)
	if _, err := loadSettings(opts); !errors.Is(err, export.ErrUnknownFormat) {
		t.Errorf("err = %v, want ErrUnknownFormat", err)
	}
}

func TestExportTranscriptToFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "t.txt")
	s := config.Default()
	s.ExportFormat = string(export.FormatText)
	s.TimestampsEnabled = false
	segs := []event.Segment{
		{Text: "hello", IsFinal: true, Source: event.Mic},
		{Text: "hi there", IsFinal: true, Timestamp: 2, Source: event.System},
	}
	if err := exportTranscript(options{out: out}, s, segs, "0b1c2d3e-aaaa"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	want, _ := export.Render(export.FormatText, segs, false)
	if string(got) != want {
		t.Errorf("file content:\n%s\nwant:\n%s", got, want)
	}
}

func TestExportTranscriptIntoDirectory(t *testing.T) {
	dir := t.TempDir()
	s := config.Default()
	s.ExportFormat = string(export.FormatMarkdown)
	segs := []event.Segment{{Text: "hello", IsFinal: true, Source: event.Mic}}
	if err := exportTranscript(options{out: dir}, s, segs, "0b1c2d3e-4f50-6172-8394-a5b6c7d8e9f0"); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(filepath.Join(dir, "dualscribe-0b1c2d3e.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), "# DualScribe Transcript") {
		t.Errorf("unexpected content:\n%s", got)
	}
}

func TestOutputPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "notes.txt")
	for _, tt := range []struct {
		out, id string
		format  export.Format
		want    string
	}{
		{"", "abc", export.FormatText, ""},
		{file, "abc", export.FormatText, file},
		{dir, "0123456789", export.FormatJSON, filepath.Join(dir, "dualscribe-01234567.json")},
		{dir, "", export.FormatText, filepath.Join(dir, "dualscribe-transcript.txt")},
	} {
		if got := outputPath(tt.out, tt.id, tt.format); got != tt.want {
			t.Errorf("outputPath(%q, %q) = %q, want %q", tt.out, tt.id, got, tt.want)
		}
	}
}

func TestDeviceLineText(t *testing.T) {
	for _, tt := range []struct {
		id     string
		replay bool
		want   string
	}{
		{"", false, "system default"},
		{"", true, "replay"},
		{"USB Mic", false, "USB Mic"},
		{"AirPods Pro", false, "AirPods Pro (BT!)"},
	} {
		if got := deviceLineText(tt.id, tt.replay); got != tt.want {
			t.Errorf("deviceLineText(%q, %v) = %q, want %q", tt.id, tt.replay, got, tt.want)
		}
	}
}
