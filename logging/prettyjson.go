package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// PrettyJSONHandler is a slog.Handler that prints one indented JSON object
// per record. The time, level and msg keys always come first; attributes
// follow in key order.
//
// It is meant for reading logs by eye, not for throughput.
type PrettyJSONHandler struct {
	w         io.Writer
	mu        *sync.Mutex
	level     slog.Leveler
	addSource bool

	attrs  []slog.Attr
	groups []string
}

func NewPrettyJSONHandler(w io.Writer, opts *slog.HandlerOptions) *PrettyJSONHandler {
	h := &PrettyJSONHandler{
		w:     w,
		mu:    &sync.Mutex{},
		level: slog.LevelInfo,
	}
	if opts != nil {
		if opts.Level != nil {
			h.level = opts.Level
		}
		h.addSource = opts.AddSource
	}
	return h
}

func (h *PrettyJSONHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *PrettyJSONHandler) Handle(_ context.Context, r slog.Record) error {
	when := r.Time
	if when.IsZero() {
		when = time.Now()
	}

	fields := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		putAttr(fields, a)
	}
	if r.NumAttrs() > 0 {
		nested := fields
		for _, g := range h.groups {
			child, ok := nested[g].(map[string]any)
			if !ok {
				child = map[string]any{}
				nested[g] = child
			}
			nested = child
		}
		r.Attrs(func(a slog.Attr) bool {
			putAttr(nested, a)
			return true
		})
	}

	var buf bytes.Buffer
	buf.WriteString("{\n")
	writeField(&buf, "time", when.Format(time.RFC3339Nano), true)
	writeField(&buf, "level", r.Level.String(), false)
	writeField(&buf, "msg", r.Message, false)
	if h.addSource {
		if src := sourceFromPC(r.PC); src != "" {
			writeField(&buf, "source", src, false)
		}
	}

	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(&buf, k, fields[k], false)
	}
	buf.WriteString("\n}\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *PrettyJSONHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	// Attrs added inside a group are stored already nested in it.
	for i := len(h.groups) - 1; i >= 0; i-- {
		attrs = []slog.Attr{{Key: h.groups[i], Value: slog.GroupValue(attrs...)}}
	}
	clone := *h
	clone.attrs = append(append([]slog.Attr(nil), h.attrs...), attrs...)
	return &clone
}

func (h *PrettyJSONHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}

func writeField(buf *bytes.Buffer, key string, v any, first bool) {
	if !first {
		buf.WriteString(",\n")
	}
	buf.WriteString("  ")
	buf.WriteString(strconv.Quote(key))
	buf.WriteString(": ")

	b, err := json.MarshalIndent(v, "  ", "  ")
	if err != nil {
		// Unencodable values are logged as their string form.
		b = []byte(strconv.Quote(err.Error()))
	}
	buf.Write(b)
}

func putAttr(dst map[string]any, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		group := v.Group()
		if len(group) == 0 {
			return
		}
		// Inline groups with an empty key.
		target := dst
		if a.Key != "" {
			child, ok := dst[a.Key].(map[string]any)
			if !ok {
				child = map[string]any{}
				dst[a.Key] = child
			}
			target = child
		}
		for _, ga := range group {
			putAttr(target, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	dst[a.Key] = plainValue(v)
}

func plainValue(v slog.Value) any {
	switch v.Kind() {
	case slog.KindString:
		return v.String()
	case slog.KindInt64:
		return v.Int64()
	case slog.KindUint64:
		return v.Uint64()
	case slog.KindFloat64:
		return v.Float64()
	case slog.KindBool:
		return v.Bool()
	case slog.KindDuration:
		return v.Duration().String()
	case slog.KindTime:
		return v.Time().Format(time.RFC3339Nano)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return err.Error()
		}
		return v.Any()
	default:
		return v.String()
	}
}

func sourceFromPC(pc uintptr) string {
	if pc == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	file := frame.File
	if idx := strings.LastIndexByte(file, '/'); idx >= 0 {
		file = file[idx+1:]
	}
	return file + ":" + strconv.Itoa(frame.Line)
}
