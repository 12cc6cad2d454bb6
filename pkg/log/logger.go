package log

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"
)

// Level is the severity of an entry.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DebugLevel || l > FatalLevel {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// Fields holds the key/value pairs of one entry.
type Fields map[string]interface{}

// Field keys shared across components.
const (
	ComponentKey = "component"
	TenantKey    = "tenant"
	SessionKey   = "session"
	ErrorKey     = "error"
)

// Entry is what a Formatter renders.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger is passed explicitly to every component; there is no global.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	// Fatal logs and exits with status 1.
	Fatal(msg string, fields ...Field)

	With(fields ...Field) Logger
	WithComponent(component string) Logger

	SetLevel(level Level)
	Level() Level
}

// Formatter renders an entry into bytes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output receives every formatted entry.
type Output interface {
	Write(entry *Entry, formatted []byte) error
	Close() error
}

// LoggerOption configures NewLogger.
type LoggerOption func(*pipeline)

func WithLevel(level Level) LoggerOption {
	return func(p *pipeline) { p.level.Set(toSlogLevel(level)) }
}

func WithFormatter(f Formatter) LoggerOption {
	return func(p *pipeline) { p.formatter = f }
}

// WithOutput adds an output. Without any, entries go to stderr.
func WithOutput(o Output) LoggerOption {
	return func(p *pipeline) { p.outputs = append(p.outputs, o) }
}

// WithRedactedKeys masks the values of the given field keys.
func WithRedactedKeys(keys ...string) LoggerOption {
	return func(p *pipeline) {
		for _, k := range keys {
			p.redact[k] = struct{}{}
		}
	}
}

// WithSampling passes the first `initial` entries of each level and message,
// then one in every `thereafter`.
func WithSampling(initial, thereafter int) LoggerOption {
	return func(p *pipeline) {
		if thereafter > 0 {
			p.sampler = newSampler(initial, thereafter)
		}
	}
}

// NewLogger returns a Logger backed by a slog.Handler that feeds the
// configured formatter and outputs.
func NewLogger(options ...LoggerOption) Logger {
	p := &pipeline{
		level:     new(slog.LevelVar),
		formatter: &JSONFormatter{},
		redact:    map[string]struct{}{},
	}
	for _, opt := range options {
		opt(p)
	}
	if len(p.outputs) == 0 {
		p.outputs = []Output{NewConsoleOutput()}
	}
	return &logger{h: &handler{p: p}, p: p}
}

type logger struct {
	h slog.Handler
	p *pipeline
}

func (l *logger) emit(level Level, msg string, fields []Field) {
	sl := toSlogLevel(level)
	ctx := context.Background()
	if !l.h.Enabled(ctx, sl) {
		return
	}
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:]) // skip Callers, emit and the level method
	r := slog.NewRecord(time.Now(), sl, msg, pcs[0])
	r.AddAttrs(toAttrs(fields)...)
	if level == FatalLevel {
		r.AddAttrs(slog.Bool(fatalMarker, true))
	}
	_ = l.h.Handle(ctx, r)
}

func (l *logger) Debug(msg string, fields ...Field) { l.emit(DebugLevel, msg, fields) }
func (l *logger) Info(msg string, fields ...Field)  { l.emit(InfoLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...Field)  { l.emit(WarnLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...Field) { l.emit(ErrorLevel, msg, fields) }

func (l *logger) Fatal(msg string, fields ...Field) {
	l.emit(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *logger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	return &logger{h: l.h.WithAttrs(toAttrs(fields)), p: l.p}
}

func (l *logger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel changes the level of l and every logger derived from it.
func (l *logger) SetLevel(level Level) { l.p.level.Set(toSlogLevel(level)) }

func (l *logger) Level() Level { return fromSlogLevel(l.p.level.Level()) }
