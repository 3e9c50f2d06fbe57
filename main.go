package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"dualscribe/audio"
	"dualscribe/clipboard"
	"dualscribe/config"
	"dualscribe/doctor"
	"dualscribe/event"
	"dualscribe/export"
	"dualscribe/log"
	"dualscribe/metrics"
	"dualscribe/shutdown"
	"dualscribe/stream"
)

var version = "dev"

// shutdownTimeout bounds the wait for both pipelines to drain after stop.
const shutdownTimeout = 10 * time.Second

type options struct {
	configPath   string
	lang         string
	model        string
	mic          string
	system       string
	format       string
	out          string
	logPath      string
	logLevel     string
	metricsAddr  string
	replayMic    string
	replaySystem string
	timestamps   bool
	setup        bool
	listDevices  bool
	doctor       bool
	copy         bool
	tui          bool
	version      bool

	// set holds the names of flags given on the command line.
	set map[string]bool
}

func parseFlags(args []string, output io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("dualscribe", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&o.configPath, "config", "", "Settings file (default: user config dir/dualscribe/settings.yaml)")
	fs.StringVar(&o.lang, "lang", "", "Language code for transcription (e.g., en, es, fr)")
	fs.StringVar(&o.model, "model", "", "Transcription model")
	fs.StringVar(&o.mic, "mic", "", "Use named microphone device")
	fs.StringVar(&o.system, "system", "", "Use named output device for system audio")
	fs.StringVar(&o.format, "format", "", "Export format: markdown, text or json")
	fs.StringVar(&o.out, "out", "", "Write the transcript to this file, or a session-named file in this directory, at exit (default: stdout)")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.StringVar(&o.logLevel, "loglevel", "", "Diagnostics log level: debug, info, warn or error")
	fs.StringVar(&o.metricsAddr, "metrics", "", "Serve Prometheus metrics on this address (e.g., localhost:9464)")
	fs.StringVar(&o.replayMic, "replay-mic", "", "Replay a 16-bit PCM WAV file as the microphone")
	fs.StringVar(&o.replaySystem, "replay-system", "", "Replay a 16-bit PCM WAV file as system audio")
	fs.BoolVar(&o.timestamps, "timestamps", true, "Include [mm:ss] timestamps in the export")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone and system audio devices interactively")
	fs.BoolVar(&o.listDevices, "list-devices", false, "List capture devices for both sources and exit")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&o.copy, "copy", false, "Copy the exported transcript to the clipboard at exit")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected argument %q", fs.Arg(0))
	}
	o.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { o.set[f.Name] = true })
	return o, nil
}

// apply overrides settings with the flags given on the command line.
func (o options) apply(s *config.Settings) {
	if o.set["lang"] {
		s.Language = o.lang
	}
	if o.set["model"] {
		s.Model = o.model
	}
	if o.set["mic"] {
		s.MicDeviceID = o.mic
	}
	if o.set["system"] {
		s.SystemDeviceID = o.system
	}
	if o.set["loglevel"] {
		s.LogLevel = o.logLevel
	}
	if o.set["metrics"] {
		s.MetricsAddr = o.metricsAddr
	}
	if o.set["timestamps"] {
		s.TimestampsEnabled = o.timestamps
	}
	switch {
	case o.set["format"]:
		s.ExportFormat = o.format
	case o.out != "":
		if f, err := export.ParseFormat(strings.TrimPrefix(filepath.Ext(o.out), ".")); err == nil {
			s.ExportFormat = string(f)
		}
	}
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	opts, err := parseFlags(args, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	if opts.version {
		fmt.Printf("dualscribe %s\n", version)
		return 0
	}

	// Resolve log directory early
	logPath, err := log.ResolveDir(opts.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		return 1
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	initCrashLog()

	settings, err := loadSettings(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if err := log.SetLevel(settings.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := shutdown.Context(context.Background())
	defer stop()

	if opts.doctor {
		return doctor.Run(ctx, os.Stdout, doctor.Checks(doctor.Env{
			Settings:  settings,
			NewMic:    audio.NewMicCapturer,
			NewSystem: audio.NewSystemCapturer,
		}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()

	caps, err := openCapturers(opts.replayMic, opts.replaySystem)
	if err != nil {
		log.Errorf("capture init error: %v", err)
		fmt.Fprintf(os.Stderr, "Error initializing audio: %v\n", err)
		return 1
	}
	defer caps.close()

	if opts.listDevices {
		if err := listDevices(os.Stdout, caps); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	if opts.setup {
		settings.MicDeviceID, settings.SystemDeviceID, err = setupDevices(caps, settings.MicDeviceID, settings.SystemDeviceID)
		if errors.Is(err, audio.ErrSelectionCancelled) {
			fmt.Println("Cancelled.")
			return 0
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}

	if settings.APIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: no API key; set %s or api_key in the settings file\n", config.APIKeyEnv)
		return 1
	}

	return transcribe(ctx, opts, settings, caps)
}

func loadSettings(opts options) (config.Settings, error) {
	path := opts.configPath
	if path == "" {
		// Without a config dir the defaults apply.
		path, _ = config.DefaultPath()
	}
	s, err := config.Load(path)
	if err != nil {
		return config.Settings{}, err
	}
	opts.apply(&s)
	if err := config.Validate(s); err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

func initCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

// transcribe runs one session until the user quits, a signal arrives, every
// replay source is exhausted, or both pipelines end on their own. The
// transcript is exported afterwards.
func transcribe(ctx context.Context, opts options, settings config.Settings, caps *capturers) int {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	if settings.MetricsAddr != "" {
		srv := serveMetrics(settings.MetricsAddr, reg)
		defer srv.Close()
	}

	transcript := &export.Transcript{}
	sinks := multiSink{collectorSink{transcript}}

	micID, systemID := caps.deviceIDs(settings.MicDeviceID, settings.SystemDeviceID)
	var program *tea.Program
	if opts.tui {
		model := newTUIModel(modeLineText(settings), deviceLineText(micID, caps.isReplay(caps.mic)),
			deviceLineText(systemID, caps.isReplay(caps.system)), settings.TimestampsEnabled)
		program = NewTUIProgram(model)
		sinks = append(sinks, tuiSink{program})
	} else {
		sinks = append(sinks, &lineSink{w: os.Stderr, timestamps: settings.TimestampsEnabled})
	}

	manager := stream.NewManager(caps.mic, caps.system, sinks, stream.WithMetrics(m))
	err := manager.Start(ctx, stream.StartConfig{
		Transcriber:    settings.Transcriber(),
		MicDeviceID:    micID,
		SystemDeviceID: systemID,
	})
	if err != nil {
		log.Errorf("session start: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	id := shortID(manager.SessionID())
	if program != nil {
		go program.Send(sessionStartedMsg(id))
	} else {
		fmt.Fprintf(os.Stderr, "* session %s started\n", id)
	}

	sessionDone := make(chan struct{})
	go func() {
		manager.Wait(context.Background())
		close(sessionDone)
		if program != nil {
			program.Send(sessionEndedMsg{})
		}
	}()
	if done := caps.replayDone(); done != nil {
		go func() {
			select {
			case <-done:
				if manager.Running() {
					log.Info("replay finished")
					manager.Stop()
				}
			case <-sessionDone:
			}
		}()
	}

	if program != nil {
		go func() {
			<-ctx.Done()
			program.Quit()
		}()
		if _, err := program.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
	} else {
		select {
		case <-ctx.Done():
		case <-sessionDone:
		}
	}

	manager.Stop()
	waitCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Wait(waitCtx); err != nil {
		log.Warnf("session teardown: %v", err)
	}

	if err := exportTranscript(opts, settings, transcript.Segments(), manager.SessionID()); err != nil {
		log.Errorf("export: %v", err)
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func serveMetrics(addr string, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Infof("metrics listening on http://%s/metrics", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server: %v", err)
		}
	}()
	return srv
}

func exportTranscript(opts options, settings config.Settings, segs []event.Segment, sessionID string) error {
	if len(segs) == 0 {
		fmt.Fprintln(os.Stderr, "No transcript to export.")
		return nil
	}
	format, err := export.ParseFormat(settings.ExportFormat)
	if err != nil {
		return err
	}

	var copied strings.Builder
	var dest io.Writer = os.Stdout
	var file *os.File
	path := outputPath(opts.out, sessionID, format)
	if path != "" {
		if file, err = os.Create(path); err != nil {
			return fmt.Errorf("write transcript: %w", err)
		}
		dest = file
	}
	if opts.copy {
		dest = io.MultiWriter(dest, &copied)
	}
	err = export.Write(dest, format, segs, settings.TimestampsEnabled)
	if file != nil {
		if cerr := file.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("write transcript: %w", err)
	}
	if path != "" {
		fmt.Fprintf(os.Stderr, "Transcript written to %s (%d segments)\n", path, len(segs))
	}

	if opts.copy {
		if err := clipboard.Copy(copied.String()); err != nil {
			log.Warnf("clipboard copy: %v", err)
			fmt.Fprintf(os.Stderr, "Warning: could not copy transcript: %v\n", err)
		} else {
			fmt.Fprintln(os.Stderr, "Transcript copied to clipboard.")
		}
	}
	return nil
}

// outputPath returns out, or a session-named file inside out when it is a
// directory. An empty result means stdout.
func outputPath(out, sessionID string, format export.Format) string {
	if out == "" {
		return ""
	}
	if fi, err := os.Stat(out); err != nil || !fi.IsDir() {
		return out
	}
	name := "dualscribe-" + shortID(sessionID) + "." + format.Extension()
	return filepath.Join(out, name)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "transcript"
	}
	return id
}

func modeLineText(s config.Settings) string {
	return fmt.Sprintf("[PCM16 16kHz | deepgram %s (%s)]", s.Model, s.Language)
}

func deviceLineText(id string, replay bool) string {
	switch {
	case replay:
		return "replay"
	case id == "":
		return "system default"
	case audio.IsBluetooth(id):
		return id + " (BT!)"
	}
	return id
}
