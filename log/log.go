package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	diagnosticsFile = "diagnostics_log.txt"
	transcriptFile  = "transcript_log.txt"
	timeFormat      = "2006-01-02 15:04:05"
)

var (
	diagLog        zerolog.Logger
	diagFile       *os.File
	transcriptOut  *os.File
	logMu          sync.Mutex
	logReady       atomic.Bool
	pid            int
	dir            string
)

var level = zerolog.InfoLevel

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}

	// Priority 2: DUALSCRIBE_LOG_PATH environment variable
	if envPath := os.Getenv("DUALSCRIBE_LOG_PATH"); envPath != "" {
		return absolute(envPath)
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

// SetLevel sets the minimum diagnostics level. It applies to the next Init.
func SetLevel(name string) error {
	if name == "" {
		level = zerolog.InfoLevel
		return nil
	}
	l, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("log level %q: %w", name, err)
	}
	level = l
	return nil
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error
	diagFile, err = os.OpenFile(filepath.Join(dir, diagnosticsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	transcriptOut, err = os.OpenFile(filepath.Join(dir, transcriptFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: timeFormat,
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).Level(level).With().Timestamp().Int("pid", pid).Logger()

	logReady.Store(true)
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	logReady.Store(false)
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if transcriptOut != nil {
		transcriptOut.Close()
		transcriptOut = nil
	}
}

func Debugf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Debug().Msg(fmt.Sprintf(format, args...))
	}
}

func Info(msg string) {
	if logReady.Load() {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady.Load() {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady.Load() {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady.Load() {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady.Load() {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// TranscriptionText appends one final segment to the transcript log.
func TranscriptionText(source, text string) {
	if !logReady.Load() {
		return
	}
	logMu.Lock()
	defer logMu.Unlock()
	if transcriptOut == nil {
		return
	}
	line := fmt.Sprintf("%s\t[%d]\t[%s]\t%s\n", time.Now().Format(timeFormat), pid, source, text)
	transcriptOut.WriteString(line)
}

func SessionStart(id, language, model, mic, system string) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("language", language).
		Str("model", model).
		Str("mic", mic).
		Str("system", system).
		Msg("session_start")
}

func SessionEnd(id string, dur time.Duration) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("session", id).
		Float64("duration_s", dur.Seconds()).
		Msg("session_end")
}

// Pipeline logs the negotiated capture format of one source.
func Pipeline(source, device string, rate, channels uint32) {
	if !logReady.Load() {
		return
	}
	diagLog.Info().
		Str("source", source).
		Str("device", device).
		Uint32("rate", rate).
		Uint32("channels", channels).
		Msg("pipeline_start")
}

func Status(source, status string, err error) {
	if !logReady.Load() {
		return
	}
	ev := diagLog.Info()
	if err != nil {
		ev = diagLog.Warn().Err(err)
	}
	ev.Str("source", source).Str("status", status).Msg("connection_status")
}

func Reconnect(source string, attempt int, wait time.Duration) {
	if !logReady.Load() {
		return
	}
	diagLog.Warn().
		Str("source", source).
		Int("attempt", attempt).
		Dur("backoff", wait).
		Msg("reconnect")
}

// Dial logs how long the transport handshake of one connection took.
func Dial(host string, dns, tls, total time.Duration) {
	if !logReady.Load() {
		return
	}
	diagLog.Debug().
		Str("host", host).
		Float64("dns_ms", float64(dns.Microseconds())/1000).
		Float64("tls_ms", float64(tls.Microseconds())/1000).
		Float64("total_ms", float64(total.Microseconds())/1000).
		Msg("stt_connect")
}

func Dropped(source string, chunks uint64) {
	if !logReady.Load() || chunks == 0 {
		return
	}
	diagLog.Warn().
		Str("source", source).
		Uint64("chunks", chunks).
		Msg("capture_dropped")
}
