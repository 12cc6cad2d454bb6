package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
)

const (
	redacted = "[REDACTED]"
	// fatalMarker distinguishes FATAL from ERROR, which share a slog level.
	fatalMarker = "__fatal"
)

// pipeline is shared by a logger and all of its children.
type pipeline struct {
	level     *slog.LevelVar
	formatter Formatter
	outputs   []Output
	redact    map[string]struct{}
	sampler   *sampler
}

// handler adapts slog records to Entry values.
type handler struct {
	p     *pipeline
	bound []slog.Attr
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.p.level.Level()
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	if h.p.sampler != nil && !h.p.sampler.allow(r.Level, r.Message) {
		return nil
	}
	e := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    make(Fields, len(h.bound)+r.NumAttrs()),
		Timestamp: r.Time,
		Caller:    callerOf(r.PC),
	}
	add := func(a slog.Attr) bool {
		switch {
		case a.Key == fatalMarker:
			e.Level = FatalLevel
		case h.masked(a.Key):
			e.Fields[a.Key] = redacted
		default:
			v := a.Value.Any()
			if err, ok := v.(error); ok && a.Key == ErrorKey {
				e.Error = err
			}
			e.Fields[a.Key] = v
		}
		return true
	}
	for _, a := range h.bound {
		add(a)
	}
	r.Attrs(add)

	b, err := h.p.formatter.Format(e)
	if err != nil {
		return err
	}
	var firstErr error
	for _, o := range h.p.outputs {
		if err := o.Write(e, b); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(append(bound, h.bound...), attrs...)
	return &handler{p: h.p, bound: bound}
}

// WithGroup is a no-op; entries are flat.
func (h *handler) WithGroup(string) slog.Handler { return h }

func (h *handler) masked(key string) bool {
	_, ok := h.p.redact[key]
	return ok
}

func callerOf(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	f, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if f.File == "" {
		return ""
	}
	return f.File + ":" + strconv.Itoa(f.Line)
}

type sampler struct {
	mu         sync.Mutex
	initial    int
	thereafter int
	seen       map[string]int
}

func newSampler(initial, thereafter int) *sampler {
	if initial < 0 {
		initial = 0
	}
	return &sampler{initial: initial, thereafter: thereafter, seen: map[string]int{}}
}

func (s *sampler) allow(level slog.Level, msg string) bool {
	key := level.String() + "|" + msg
	s.mu.Lock()
	n := s.seen[key]
	s.seen[key] = n + 1
	s.mu.Unlock()
	return n < s.initial || (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(l Level) slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
	}
	return slog.LevelInfo
}

func fromSlogLevel(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return DebugLevel
	case l < slog.LevelWarn:
		return InfoLevel
	case l < slog.LevelError:
		return WarnLevel
	}
	return ErrorLevel
}

func toAttrs(fields []Field) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	out := make([]slog.Attr, len(fields))
	for i, f := range fields {
		out[i] = slog.Any(f.Key, f.Value)
	}
	return out
}
