package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
)

const redacted = "[REDACTED]"

// handler adapts slog to the BaseLogger pipeline: records become Entries that
// are rendered by the logger's formatter and fanned out to its outputs.
// Groups are flattened into dotted key prefixes.
type handler struct {
	logger  *BaseLogger
	prefix  string
	base    Fields
	redact  map[string]struct{}
	sampler *sampler
}

func newHandler(logger *BaseLogger) *handler {
	return &handler{logger: logger}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return levelOf(level) >= h.logger.level
}

func (h *handler) Handle(_ context.Context, r slog.Record) error {
	if h.sampler != nil && !h.sampler.allow(r.Level, r.Message) {
		return nil
	}
	fields := make(Fields, len(h.base)+r.NumAttrs())
	for k, v := range h.base {
		fields[k] = v
	}
	r.Attrs(func(a slog.Attr) bool {
		h.put(fields, h.prefix, a)
		return true
	})
	entry := &Entry{
		Level:     levelOf(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
		Caller:    callerOf(r.PC),
	}
	out, err := h.logger.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, o := range h.logger.outputs {
		_ = o.Write(entry, out)
	}
	return nil
}

// put stores a under prefix, expanding nested groups and applying redaction
// to the leaf key.
func (h *handler) put(dst Fields, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range v.Group() {
			h.put(dst, p, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	if _, ok := h.redact[a.Key]; ok {
		dst[prefix+a.Key] = redacted
		return
	}
	dst[prefix+a.Key] = v.Any()
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	nh := *h
	nh.base = make(Fields, len(h.base)+len(attrs))
	for k, v := range h.base {
		nh.base[k] = v
	}
	for _, a := range attrs {
		h.put(nh.base, h.prefix, a)
	}
	return &nh
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	nh := *h
	nh.prefix = h.prefix + name + "."
	return &nh
}

// redacting masks the values of keys wherever they appear.
func (h *handler) redacting(keys []string) *handler {
	if len(keys) == 0 {
		return h
	}
	nh := *h
	nh.redact = make(map[string]struct{}, len(keys))
	for _, k := range keys {
		nh.redact[k] = struct{}{}
	}
	return &nh
}

// sampling keeps the first initial records per level and message in each
// second, then every thereafter-th one.
func (h *handler) sampling(initial, thereafter int) *handler {
	if thereafter <= 0 {
		return h
	}
	nh := *h
	nh.sampler = newSampler(initial, thereafter)
	return &nh
}

func callerOf(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return frame.File + ":" + strconv.Itoa(frame.Line)
}
