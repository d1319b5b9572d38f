package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with typed structured fields. Warn/Error entries are
// mirrored into the collector when one is attached.
type Logger struct {
	zl        zerolog.Logger
	collector *Collector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var output io.Writer
	switch cfg.Output {
	case "stdout", "":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		file, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		output = file
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat}
	}

	zl := zerolog.New(output).With().Timestamp().Logger()
	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) { l.emit(l.zl.Debug(), "", msg, fields) }
func (l *Logger) Info(msg string, fields ...Field)  { l.emit(l.zl.Info(), "", msg, fields) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.emit(l.zl.Warn(), "warn", msg, fields) }
func (l *Logger) Error(msg string, fields ...Field) { l.emit(l.zl.Error(), "error", msg, fields) }

func (l *Logger) emit(event *zerolog.Event, collectLevel, msg string, fields []Field) {
	for _, f := range fields {
		f.AddTo(event)
	}
	event.Msg(msg)

	if l.collector != nil && collectLevel != "" {
		m := make(map[string]interface{}, len(fields))
		for _, f := range fields {
			k, v := f.KeyValue()
			m[k] = v
		}
		l.collector.Add(collectLevel, msg, m)
	}
}

// AttachCollector keeps the most recent warn/error entries in memory for the
// admin API.
func (l *Logger) AttachCollector(capacity int) {
	l.collector = NewCollector(capacity)
}

// Recent returns collected entries, newest last. Nil without a collector.
func (l *Logger) Recent() []Entry {
	if l.collector == nil {
		return nil
	}
	return l.collector.Recent()
}

// Field is one typed structured logging field.
type Field interface {
	AddTo(event *zerolog.Event)
	KeyValue() (string, interface{})
}

type stringField struct {
	key, value string
}

func (f stringField) AddTo(e *zerolog.Event)          { e.Str(f.key, f.value) }
func (f stringField) KeyValue() (string, interface{}) { return f.key, f.value }

type intField struct {
	key   string
	value int
}

func (f intField) AddTo(e *zerolog.Event)          { e.Int(f.key, f.value) }
func (f intField) KeyValue() (string, interface{}) { return f.key, f.value }

type int64Field struct {
	key   string
	value int64
}

func (f int64Field) AddTo(e *zerolog.Event)          { e.Int64(f.key, f.value) }
func (f int64Field) KeyValue() (string, interface{}) { return f.key, f.value }

type floatField struct {
	key   string
	value float64
}

func (f floatField) AddTo(e *zerolog.Event)          { e.Float64(f.key, f.value) }
func (f floatField) KeyValue() (string, interface{}) { return f.key, f.value }

type boolField struct {
	key   string
	value bool
}

func (f boolField) AddTo(e *zerolog.Event)          { e.Bool(f.key, f.value) }
func (f boolField) KeyValue() (string, interface{}) { return f.key, f.value }

type errorField struct {
	value error
}

func (f errorField) AddTo(e *zerolog.Event) { e.Err(f.value) }
func (f errorField) KeyValue() (string, interface{}) {
	if f.value == nil {
		return "error", nil
	}
	return "error", f.value.Error()
}

type anyField struct {
	key   string
	value interface{}
}

func (f anyField) AddTo(e *zerolog.Event)          { e.Interface(f.key, f.value) }
func (f anyField) KeyValue() (string, interface{}) { return f.key, f.value }

// Field constructors.

func String(key, value string) Field         { return stringField{key, value} }
func Strings(key string, v []string) Field   { return stringField{key, strings.Join(v, ", ")} }
func Int(key string, value int) Field        { return intField{key, value} }
func Int64(key string, value int64) Field    { return int64Field{key, value} }
func Float64(key string, v float64) Field    { return floatField{key, v} }
func Bool(key string, value bool) Field      { return boolField{key, value} }
func Error(err error) Field                  { return errorField{err} }
func Any(key string, value interface{}) Field { return anyField{key, value} }
func Duration(key string, d time.Duration) Field {
	return int64Field{key, int64(d / time.Millisecond)}
}
