// Package logging provides the supervisor's structured logger: RFC5424
// framed records to a log file, with an optional raw timestamped fallback
// for interactive use, and key-value fields for per-unit context.
package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

type Level int

const (
	OFF Level = iota
	DEBUG
	INFO
	WARN
	ERROR
	CRITICAL
	FATAL
)

func (l Level) String() string {
	switch l {
	case OFF:
		return "OFF"
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case CRITICAL:
		return "CRITICAL"
	case FATAL:
		return "FATAL"
	}
	return "UNKNOWN"
}

func (l Level) Valid() bool { return l >= OFF && l <= FATAL }

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.Daemon | rfc5424.Debug
	case INFO:
		return rfc5424.Daemon | rfc5424.Info
	case WARN:
		return rfc5424.Daemon | rfc5424.Warning
	case ERROR:
		return rfc5424.Daemon | rfc5424.Error
	case CRITICAL:
		return rfc5424.Daemon | rfc5424.Crit
	case FATAL:
		return rfc5424.Daemon | rfc5424.Emergency
	}
	return rfc5424.Daemon | rfc5424.Info
}

func LevelFromString(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "OFF":
		return OFF, nil
	case "DEBUG":
		return DEBUG, nil
	case "INFO":
		return INFO, nil
	case "WARN", "WARNING":
		return WARN, nil
	case "ERROR":
		return ERROR, nil
	case "CRITICAL", "CRIT":
		return CRITICAL, nil
	case "FATAL":
		return FATAL, nil
	}
	return OFF, fmt.Errorf("unknown log level %q", s)
}

// Relay forwards a rendered log line elsewhere (e.g. a remote collector).
// The supervisor does not ship a network relay of its own; the interface
// exists so tests can capture output without touching the filesystem.
type Relay interface {
	WriteLog(ts time.Time, line []byte) error
}

type metadata struct {
	hostname string
	appname  string
}

func guessHostnameAppname() metadata {
	h, _ := os.Hostname()
	app := "sysg"
	if len(os.Args) > 0 {
		base := os.Args[0]
		if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
			base = base[idx+1:]
		}
		if base != "" {
			app = base
		}
	}
	return metadata{hostname: h, appname: app}
}

// Logger is the supervisor-wide structured logger. It is always
// constructed explicitly and passed to components; there is no package
// level singleton.
type Logger struct {
	metadata
	mtx  sync.Mutex
	wtrs []io.WriteCloser
	rls  []Relay
	lvl  Level
	raw  bool
}

// New wraps an already-open writer (typically the supervisor log file).
func New(wtr io.WriteCloser) *Logger {
	l := &Logger{metadata: guessHostnameAppname(), lvl: INFO}
	l.wtrs = append(l.wtrs, wtr)
	return l
}

// NewFile opens (creating if necessary) an append-only log file.
func NewFile(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0660)
	if err != nil {
		return nil, err
	}
	return New(f), nil
}

// NewDiscardLogger returns a logger that drops everything; used when no
// log file is configured.
func NewDiscardLogger() *Logger {
	l := New(discardCloser{})
	l.lvl = OFF
	return l
}

type discardCloser struct{}

func (discardCloser) Write(p []byte) (int, error) { return len(p), nil }
func (discardCloser) Close() error                { return nil }

func (l *Logger) EnableRawMode() { l.mtx.Lock(); l.raw = true; l.mtx.Unlock() }
func (l *Logger) RawMode() bool  { l.mtx.Lock(); defer l.mtx.Unlock(); return l.raw }

func (l *Logger) SetLevel(lvl Level) { l.mtx.Lock(); l.lvl = lvl; l.mtx.Unlock() }
func (l *Logger) GetLevel() Level    { l.mtx.Lock(); defer l.mtx.Unlock(); return l.lvl }

func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	l.SetLevel(lvl)
	return nil
}

func (l *Logger) AddWriter(w io.WriteCloser) { l.mtx.Lock(); l.wtrs = append(l.wtrs, w); l.mtx.Unlock() }
func (l *Logger) AddRelay(r Relay)            { l.mtx.Lock(); l.rls = append(l.rls, r); l.mtx.Unlock() }

func (l *Logger) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	var first error
	for _, w := range l.wtrs {
		if err := w.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

const defaultDepth = 3

func (l *Logger) callLoc(depth int) string {
	_, file, line, ok := runtime.Caller(depth)
	if !ok {
		return "unknown:0"
	}
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) writeOutput(ts time.Time, line string) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	b := []byte(line + "\n")
	for _, w := range l.wtrs {
		w.Write(b)
	}
	for _, r := range l.rls {
		r.WriteLog(ts, b)
	}
}

func (l *Logger) genOutput(depth int, lvl Level, msg string, sds []rfc5424.SDParam) string {
	loc := l.callLoc(depth)
	if l.RawMode() {
		return fmt.Sprintf("%s %s [%s] %s", time.Now().UTC().Format(time.RFC3339), lvl.String(), loc, msg)
	}
	m := rfc5424.Message{
		Priority:  lvl.priority(),
		Timestamp: time.Now().UTC(),
		Hostname:  l.hostname,
		AppName:   l.appname,
		MessageID: loc,
	}
	kvs := append([]rfc5424.SDParam{{Name: "msg", Value: msg}}, sds...)
	m.StructuredData = []rfc5424.StructuredData{{ID: "sysg@0", Params: kvs}}
	b, err := m.MarshalBinary()
	if err != nil {
		return fmt.Sprintf("%s %s [%s] %s", time.Now().UTC().Format(time.RFC3339), lvl.String(), loc, msg)
	}
	return string(b)
}

func (l *Logger) outputf(depth int, lvl Level, format string, args ...interface{}) {
	if lvl < l.GetLevel() {
		return
	}
	l.writeOutput(time.Now(), l.genOutput(depth, lvl, fmt.Sprintf(format, args...), nil))
}

func (l *Logger) outputStructured(depth int, lvl Level, msg string, sds ...rfc5424.SDParam) {
	if lvl < l.GetLevel() {
		return
	}
	l.writeOutput(time.Now(), l.genOutput(depth, lvl, msg, sds))
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.outputf(defaultDepth, DEBUG, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.outputf(defaultDepth, INFO, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.outputf(defaultDepth, WARN, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.outputf(defaultDepth, ERROR, format, args...) }
func (l *Logger) Criticalf(format string, args ...interface{}) {
	l.outputf(defaultDepth, CRITICAL, format, args...)
}

func (l *Logger) Debug(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(defaultDepth, DEBUG, msg, sds...) }
func (l *Logger) Info(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(defaultDepth, INFO, msg, sds...) }
func (l *Logger) Warn(msg string, sds ...rfc5424.SDParam)     { l.outputStructured(defaultDepth, WARN, msg, sds...) }
func (l *Logger) Error(msg string, sds ...rfc5424.SDParam)    { l.outputStructured(defaultDepth, ERROR, msg, sds...) }
func (l *Logger) Critical(msg string, sds ...rfc5424.SDParam) { l.outputStructured(defaultDepth, CRITICAL, msg, sds...) }

// Write implements io.Writer so the logger can back a stdlib *log.Logger
// when third-party code insists on one.
func (l *Logger) Write(p []byte) (int, error) {
	l.outputf(defaultDepth+1, INFO, "%s", strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
