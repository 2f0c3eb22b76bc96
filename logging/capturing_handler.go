package logging

import (
	"context"
	"log/slog"
)

// CapturingHandler copies records at or above minLevel into a LogCollector under
// one run ID, then hands every record the underlying handler accepts to it.
// Captured attribute keys are qualified by the open groups ("group.key").
type CapturingHandler struct {
	next      slog.Handler
	collector *LogCollector
	runID     string
	minLevel  slog.Level
	attrs     map[string]any
	prefix    string
}

// NewCapturingHandler creates a handler capturing records of minLevel and above.
func NewCapturingHandler(next slog.Handler, collector *LogCollector, runID string, minLevel slog.Level) *CapturingHandler {
	return &CapturingHandler{
		next:      next,
		collector: collector,
		runID:     runID,
		minLevel:  minLevel,
	}
}

// Enabled is true for captured levels even when next would drop them.
func (h *CapturingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel || h.next.Enabled(ctx, level)
}

func (h *CapturingHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= h.minLevel {
		attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
		for k, v := range h.attrs {
			attrs[k] = v
		}
		r.Attrs(func(a slog.Attr) bool {
			addAttr(attrs, h.prefix, a)
			return true
		})
		h.collector.Add(h.runID, LogEntry{
			Time:       r.Time,
			Level:      r.Level.String(),
			Message:    r.Message,
			Attributes: attrs,
		})
	}

	if !h.next.Enabled(ctx, r.Level) {
		return nil
	}
	return h.next.Handle(ctx, r)
}

func (h *CapturingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.next = h.next.WithAttrs(attrs)
	clone.attrs = make(map[string]any, len(h.attrs)+len(attrs))
	for k, v := range h.attrs {
		clone.attrs[k] = v
	}
	for _, a := range attrs {
		addAttr(clone.attrs, h.prefix, a)
	}
	return &clone
}

func (h *CapturingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.next = h.next.WithGroup(name)
	clone.prefix = h.prefix + name + "."
	return &clone
}

// addAttr flattens a into dst. Credential-like keys are stored redacted.
func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		inner := prefix
		if a.Key != "" {
			inner += a.Key + "."
		}
		for _, ga := range v.Group() {
			addAttr(dst, inner, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	key := prefix + a.Key
	if isSensitive(a.Key) {
		dst[key] = redacted
		return
	}
	dst[key] = plainValue(v)
}

// plainValue converts v to something encoding/json renders usefully.
func plainValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		if s, ok := v.Any().(interface{ String() string }); ok {
			return s.String()
		}
		return v.Any()
	default:
		return v.Any()
	}
}
