// Package logging builds the slog loggers used by the command line and the
// build pipeline.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mode controls the handler style used when constructing a logger.
type Mode int

const (
	// ModeCLI renders log records in a terse text-oriented format.
	ModeCLI Mode = iota
	// ModeJSON renders log records as JSON.
	ModeJSON
	// ModeCargo renders records as text and prefixes warnings and errors with
	// the cargo:warning= directive so the enclosing build surfaces them.
	ModeCargo
)

func (m Mode) String() string {
	switch m {
	case ModeJSON:
		return "json"
	case ModeCargo:
		return "cargo"
	default:
		return "cli"
	}
}

// ParseMode maps a --log-format value to a Mode.
func ParseMode(value string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "cli", "text":
		return ModeCLI, nil
	case "json":
		return ModeJSON, nil
	case "cargo":
		return ModeCargo, nil
	default:
		return ModeCLI, fmt.Errorf("unknown log format %q (want cli, json or cargo)", value)
	}
}

// ParseLevel maps a --log-level value to a slog level.
func ParseLevel(value string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", value)
	}
}

// New constructs a logger targeting the provided writer using the requested mode.
// If level is nil, slog.LevelInfo is used.
func New(mode Mode, w io.Writer, level slog.Leveler) *slog.Logger {
	if w == nil {
		panic("logging: writer must not be nil")
	}
	if level == nil {
		level = slog.LevelInfo
	}

	switch mode {
	case ModeJSON:
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	case ModeCargo:
		return slog.New(newTextHandler(w, level, cargoPrefix, false))
	default:
		return slog.New(newTextHandler(w, level, nil, true))
	}
}

// NewCLI constructs a logger that emits human-readable records suitable for CLI use.
func NewCLI(w io.Writer, level slog.Leveler) *slog.Logger {
	return New(ModeCLI, w, level)
}

// Ensure returns the provided logger or the process default if nil.
func Ensure(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func cargoPrefix(level slog.Level) string {
	if level >= slog.LevelWarn {
		return "cargo:warning="
	}
	return ""
}

// textHandler writes one line per record: LEVEL [time] | message key=value...
type textHandler struct {
	writer     io.Writer
	level      slog.Leveler
	prefix     func(slog.Level) string
	timestamps bool

	mu     *sync.Mutex
	attrs  []boundAttr
	groups []string
}

// boundAttr remembers the groups that were open when the attr was added.
type boundAttr struct {
	groups []string
	attr   slog.Attr
}

func newTextHandler(w io.Writer, level slog.Leveler, prefix func(slog.Level) string, timestamps bool) *textHandler {
	return &textHandler{
		writer:     w,
		level:      level,
		prefix:     prefix,
		timestamps: timestamps,
		mu:         &sync.Mutex{},
	}
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= currentLevel(h.level)
}

func (h *textHandler) Handle(_ context.Context, record slog.Record) error {
	var builder strings.Builder
	if h.prefix != nil {
		builder.WriteString(h.prefix(record.Level))
	}
	builder.WriteString(strings.ToUpper(record.Level.String()))
	if h.timestamps {
		timestamp := record.Time
		if timestamp.IsZero() {
			timestamp = time.Now()
		}
		builder.WriteByte(' ')
		builder.WriteString(timestamp.UTC().Format(time.RFC3339))
	}
	builder.WriteString(" | ")
	// A directive ends at the newline; keep multi-line messages on one line.
	builder.WriteString(strings.ReplaceAll(record.Message, "\n", " "))

	for _, bound := range h.attrs {
		h.appendAttr(&builder, bound.groups, bound.attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		h.appendAttr(&builder, h.groups, attr)
		return true
	})
	builder.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, builder.String())
	return err
}

func (h *textHandler) clone() *textHandler {
	return &textHandler{
		writer:     h.writer,
		level:      h.level,
		prefix:     h.prefix,
		timestamps: h.timestamps,
		mu:         h.mu,
		attrs:      append([]boundAttr(nil), h.attrs...),
		groups:     append([]string(nil), h.groups...),
	}
}

func (h *textHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cloned := h.clone()
	for _, attr := range attrs {
		cloned.attrs = append(cloned.attrs, boundAttr{groups: h.groups, attr: attr})
	}
	return cloned
}

func (h *textHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cloned := h.clone()
	cloned.groups = append(cloned.groups, name)
	return cloned
}

func (h *textHandler) appendAttr(builder *strings.Builder, groups []string, attr slog.Attr) {
	value := resolveValue(attr.Value)
	if value.Kind() == slog.KindGroup {
		nested := append(append([]string(nil), groups...), attr.Key)
		for _, a := range value.Group() {
			h.appendAttr(builder, nested, a)
		}
		return
	}
	if attr.Equal(slog.Attr{}) {
		return
	}

	key := attr.Key
	if len(groups) > 0 {
		key = strings.Join(append(append([]string(nil), groups...), key), ".")
	}

	builder.WriteByte(' ')
	builder.WriteString(key)
	builder.WriteByte('=')
	builder.WriteString(formatValue(value))
}

func formatValue(value slog.Value) string {
	switch value.Kind() {
	case slog.KindString:
		s := value.String()
		if s == "" || strings.ContainsAny(s, " \t\n\"=") {
			return strconv.Quote(s)
		}
		return s
	case slog.KindInt64:
		return strconv.FormatInt(value.Int64(), 10)
	case slog.KindUint64:
		return strconv.FormatUint(value.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.FormatFloat(value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.FormatBool(value.Bool())
	case slog.KindDuration:
		return value.Duration().String()
	case slog.KindTime:
		return value.Time().UTC().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := value.Any().(error); ok && err != nil {
			return strconv.Quote(err.Error())
		}
		return fmt.Sprint(value.Any())
	default:
		return value.String()
	}
}

func currentLevel(level slog.Leveler) slog.Level {
	if level == nil {
		return slog.LevelInfo
	}
	return level.Level()
}

func resolveValue(value slog.Value) slog.Value {
	for i := 0; i < 4; i++ {
		if value.Kind() != slog.KindLogValuer {
			return value
		}
		value = value.Resolve()
	}
	return value
}
