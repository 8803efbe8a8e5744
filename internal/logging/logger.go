package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// Level represents the severity of a log message.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelFatal Level = "fatal"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelFatal: 4,
}

// Logger writes structured JSON log lines with correlation-ID support.
type Logger struct {
	mu        sync.Mutex
	out       io.Writer
	level     Level
	service   string
	component string
}

// Option configures a Logger.
type Option func(*Logger)

// WithOutput sets the output writer.
func WithOutput(w io.Writer) Option {
	return func(l *Logger) { l.out = w }
}

// WithLevel sets the minimum level that will be written.
func WithLevel(level Level) Option {
	return func(l *Logger) { l.level = level }
}

// WithComponent tags every line with a component name.
func WithComponent(name string) Option {
	return func(l *Logger) { l.component = name }
}

// New creates a Logger writing to stdout at info level unless configured
// otherwise.
func New(opts ...Option) *Logger {
	l := &Logger{
		out:     os.Stdout,
		level:   LevelInfo,
		service: "xerolink",
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Component returns a copy of the logger tagged with a component name.
func (l *Logger) Component(name string) *Logger {
	return &Logger{
		out:       l.out,
		level:     l.level,
		service:   l.service,
		component: name,
	}
}

type line struct {
	Timestamp     string         `json:"ts"`
	Level         Level          `json:"level"`
	Service       string         `json:"service"`
	Component     string         `json:"component,omitempty"`
	Message       string         `json:"msg"`
	CorrelationID string         `json:"correlation_id,omitempty"`
	Fields        map[string]any `json:"fields,omitempty"`
}

func (l *Logger) write(level Level, msg, correlationID string, fields map[string]any) {
	if levelRank[level] < levelRank[l.level] {
		return
	}

	entry := line{
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
		Level:         level,
		Service:       l.service,
		Component:     l.component,
		Message:       msg,
		CorrelationID: correlationID,
		Fields:        fields,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		log.Printf("failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	fmt.Fprintln(l.out, string(data))
	l.mu.Unlock()

	if level == LevelFatal {
		os.Exit(1)
	}
}

// Debug logs at debug level. Fields are alternating key/value pairs.
func (l *Logger) Debug(msg string, fields ...any) {
	cid, fm := collectFields(fields)
	l.write(LevelDebug, msg, cid, fm)
}

// Info logs at info level.
func (l *Logger) Info(msg string, fields ...any) {
	cid, fm := collectFields(fields)
	l.write(LevelInfo, msg, cid, fm)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string, fields ...any) {
	cid, fm := collectFields(fields)
	l.write(LevelWarn, msg, cid, fm)
}

// Error logs at error level.
func (l *Logger) Error(msg string, fields ...any) {
	cid, fm := collectFields(fields)
	l.write(LevelError, msg, cid, fm)
}

// Fatal logs at fatal level and exits.
func (l *Logger) Fatal(msg string, fields ...any) {
	cid, fm := collectFields(fields)
	l.write(LevelFatal, msg, cid, fm)
}

// InfoCtx logs at info level with the correlation ID taken from ctx.
func (l *Logger) InfoCtx(ctx context.Context, msg string, fields ...any) {
	_, fm := collectFields(fields)
	l.write(LevelInfo, msg, CorrelationID(ctx), fm)
}

// WarnCtx logs at warn level with the correlation ID taken from ctx.
func (l *Logger) WarnCtx(ctx context.Context, msg string, fields ...any) {
	_, fm := collectFields(fields)
	l.write(LevelWarn, msg, CorrelationID(ctx), fm)
}

// ErrorCtx logs at error level with the correlation ID taken from ctx.
func (l *Logger) ErrorCtx(ctx context.Context, msg string, fields ...any) {
	_, fm := collectFields(fields)
	l.write(LevelError, msg, CorrelationID(ctx), fm)
}

// collectFields turns alternating key/value pairs into a map. A
// "correlation_id" key is lifted out of the map into the dedicated slot.
func collectFields(fields []any) (string, map[string]any) {
	if len(fields) == 0 {
		return "", nil
	}

	correlationID := ""
	fm := make(map[string]any, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		if key == "correlation_id" {
			if id, ok := fields[i+1].(string); ok {
				correlationID = id
			}
			continue
		}
		fm[key] = fields[i+1]
	}
	if len(fm) == 0 {
		fm = nil
	}
	return correlationID, fm
}
