package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeLayout = "2006-01-02T15:04:05.000Z07:00"
)

type field struct {
	key string
	val any
}

// record holds a line's fields in insertion order. A later set replaces the
// value of an existing key in place.
type record []field

func (r *record) set(key string, val any) {
	for i := range *r {
		if (*r)[i].key == key {
			(*r)[i].val = val
			return
		}
	}
	*r = append(*r, field{key, val})
}

func (r *record) setDefault(key string, val any) {
	if s, ok := val.(string); ok && s == "" {
		return
	}
	if _, ok := r.get(key); !ok {
		*r = append(*r, field{key, val})
	}
}

func (r record) get(key string) (any, bool) {
	for _, f := range r {
		if f.key == key {
			return f.val, true
		}
	}
	return nil, false
}

func (r record) str(key string) string {
	v, _ := r.get(key)
	s, _ := v.(string)
	return s
}

// handler is a slog.Handler writing one JSON object or key=value line per
// record. Correlation values from the context are added to every line.
type handler struct {
	level  slog.Leveler
	out    *sink
	format logFormat
	rank   map[string]int
	attrs  []slog.Attr
	groups []string
}

func newHandler(level slog.Leveler, out *sink, format logFormat, order []string) *handler {
	if level == nil {
		level = slog.LevelInfo
	}
	if len(order) == 0 {
		order = defaultKeyOrder
	}
	rank := make(map[string]int, len(order))
	for i, k := range order {
		rank[k] = i
	}
	return &handler{level: level, out: out, format: format, rank: rank}
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	rec := make(record, 0, 16)
	ts := r.Time.UTC()
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	rec.set("ts", ts.Truncate(time.Millisecond).Format(timeLayout))
	rec.set("level", levelName(r.Level))

	for _, a := range h.attrs {
		addAttr(&rec, "", a)
	}
	prefix := strings.Join(h.groups, ".")
	r.Attrs(func(a slog.Attr) bool {
		addAttr(&rec, prefix, a)
		return true
	})
	metaFrom(ctx).fields(&rec)

	if rec.str("event") == "" {
		event := r.Message
		if event == "" {
			event = "unknown"
		}
		rec.set("event", event)
	}
	if rec.str("component") == "" {
		rec.set("component", "app")
	}
	if s := rec.str("status"); s != "" {
		rec.set("status", normalizeStatus(s))
	}
	if rid := rec.str("rid"); rid != "" {
		if short := shortRID(rid); short != rid {
			rec.set("rid", short)
			if h.format == formatJSON {
				rec.setDefault("rid_full", rid)
			}
		}
	}

	line, err := h.encode(rec)
	if err != nil {
		return err
	}
	return h.out.write(append(line, '\n'), r.Level >= slog.LevelError)
}

// WithAttrs binds attrs under the groups open at the time of the call.
func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(h.groups) > 0 {
		attrs = []slog.Attr{{Key: strings.Join(h.groups, "."), Value: slog.GroupValue(attrs...)}}
	}
	clone := *h
	clone.attrs = append(slices.Clip(h.attrs), attrs...)
	return &clone
}

func (h *handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clip(h.groups), name)
	return &clone
}

func addAttr(rec *record, prefix string, a slog.Attr) {
	key := a.Key
	if prefix != "" && key != "" {
		key = prefix + "." + key
	} else if key == "" {
		key = prefix
	}
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		for _, child := range v.Group() {
			addAttr(rec, key, child)
		}
		return
	}
	if key == "" {
		return
	}
	if k, val, ok := fieldValue(key, v); ok {
		rec.set(k, val)
	}
}

// fieldValue converts an attribute to its logged form. Durations are logged
// in milliseconds under a key ending in "_ms"; empty strings are dropped.
func fieldValue(key string, v slog.Value) (string, any, bool) {
	switch v.Kind() {
	case slog.KindString:
		s := strings.TrimSpace(v.String())
		return key, s, s != ""
	case slog.KindBool:
		return key, v.Bool(), true
	case slog.KindInt64:
		return key, v.Int64(), true
	case slog.KindUint64:
		return key, v.Uint64(), true
	case slog.KindFloat64:
		return key, v.Float64(), true
	case slog.KindDuration:
		return msKey(key), RoundMS(v.Duration()).Milliseconds(), true
	case slog.KindTime:
		return key, v.Time().UTC().Format(time.RFC3339Nano), true
	}
	switch x := v.Any().(type) {
	case nil:
		return key, nil, false
	case error:
		return key, x.Error(), true
	case time.Duration:
		return msKey(key), RoundMS(x).Milliseconds(), true
	case fmt.Stringer:
		s := x.String()
		return key, s, s != ""
	default:
		return key, fmt.Sprint(x), true
	}
}

func msKey(key string) string {
	switch {
	case key == "duration", key == "took":
		return "duration_ms"
	case strings.HasSuffix(key, "_ms"):
		return key
	default:
		return strings.TrimSuffix(key, "_duration") + "_ms"
	}
}

// ordered sorts the record by the configured key order, then by name.
func (h *handler) ordered(rec record) record {
	out := slices.Clone(rec)
	slices.SortStableFunc(out, func(a, b field) int {
		ra, oka := h.rank[a.key]
		rb, okb := h.rank[b.key]
		switch {
		case oka && okb:
			return ra - rb
		case oka:
			return -1
		case okb:
			return 1
		default:
			return strings.Compare(a.key, b.key)
		}
	})
	return out
}

func (h *handler) encode(rec record) ([]byte, error) {
	rec = h.ordered(rec)
	var b strings.Builder
	if h.format == formatJSON {
		b.WriteByte('{')
		for i, f := range rec {
			data, err := json.Marshal(f.val)
			if err != nil {
				return nil, fmt.Errorf("logger: encode %s: %w", f.key, err)
			}
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Quote(f.key))
			b.WriteByte(':')
			b.Write(data)
		}
		b.WriteByte('}')
		return []byte(b.String()), nil
	}
	for i, f := range rec {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(f.key)
		b.WriteByte('=')
		b.WriteString(kvValue(f.val))
	}
	return []byte(b.String()), nil
}

func kvValue(v any) string {
	s, ok := v.(string)
	if !ok {
		s = fmt.Sprint(v)
	}
	if strings.IndexFunc(s, func(r rune) bool { return r <= ' ' || r == '=' || r == '"' }) >= 0 {
		return strconv.Quote(s)
	}
	return s
}
