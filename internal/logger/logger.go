// Package logger is the zerolog front end shared by the providers, the API
// and the CLI. Field maps passed to the *With helpers are scrubbed so that
// credential material never reaches a log sink.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Redacted replaces the value of any field whose key names a secret.
const Redacted = "[REDACTED]"

// Logger wraps zerolog with the fields cloudbox attaches to every event
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration
type Config struct {
	Level  string // trace, debug, info, warn, error
	Format string // json, console
	Output io.Writer
}

// DefaultConfig logs JSON at info to stderr so CLI output on stdout stays
// machine readable.
func DefaultConfig() *Config {
	return &Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

// New builds a logger from cfg; nil means DefaultConfig.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	zlog := zerolog.New(out).With().Timestamp().Logger()
	return &Logger{zlog: zlog.Level(ParseLevel(cfg.Level))}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop()}
}

// ForBox returns a child logger tagged with a data box name.
func (l *Logger) ForBox(box string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("box", box).Logger()}
}

// WithProvider returns a child logger tagged with a provider name.
func (l *Logger) WithProvider(provider string) *Logger {
	return &Logger{zlog: l.zlog.With().Str("provider", provider).Logger()}
}

// WithContext stores l in ctx.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return l.zlog.WithContext(ctx)
}

// FromContext returns the logger stored in ctx, or the global one.
func FromContext(ctx context.Context) *Logger {
	zlog := zerolog.Ctx(ctx)
	if zlog.GetLevel() == zerolog.Disabled {
		return L()
	}
	return &Logger{zlog: *zlog}
}

// Zerolog exposes the underlying logger for integrations such as HTTP middleware.
func (l *Logger) Zerolog() *zerolog.Logger {
	return &l.zlog
}

func (l *Logger) Debug(msg string) { l.zlog.Debug().Msg(msg) }
func (l *Logger) Info(msg string)  { l.zlog.Info().Msg(msg) }
func (l *Logger) Warn(msg string)  { l.zlog.Warn().Msg(msg) }
func (l *Logger) Error(msg string) { l.zlog.Error().Msg(msg) }

func (l *Logger) DebugWith(msg string, fields map[string]interface{}) {
	emit(l.zlog.Debug(), msg, fields)
}

func (l *Logger) InfoWith(msg string, fields map[string]interface{}) {
	emit(l.zlog.Info(), msg, fields)
}

// WarnWith logs at warn with err attached when non-nil.
func (l *Logger) WarnWith(msg string, err error, fields map[string]interface{}) {
	emit(l.zlog.Warn().Err(err), msg, fields)
}

func (l *Logger) ErrorWith(msg string, err error, fields map[string]interface{}) {
	emit(l.zlog.Error().Err(err), msg, fields)
}

// Exchange records one completed HTTP exchange with a provider.
func (l *Logger) Exchange(provider, method, host string, status int, took time.Duration, requestID string) {
	ev := l.zlog.Debug()
	if !ev.Enabled() {
		return
	}
	ev.Str("provider", provider).
		Str("method", method).
		Str("host", host).
		Int("status", status).
		Dur("took", took)
	if requestID != "" {
		ev.Str("request_id", requestID)
	}
	ev.Msg("provider request")
}

func emit(ev *zerolog.Event, msg string, fields map[string]interface{}) {
	if !ev.Enabled() {
		return
	}
	for k, v := range fields {
		if IsSecretKey(k) {
			ev.Str(k, Redacted)
			continue
		}
		ev.Interface(k, v)
	}
	ev.Msg(msg)
}

var secretMarkers = []string{
	"secret", "password", "passphrase", "privatekey", "accountkey",
	"sastoken", "connectionstring", "signature", "token", "authorization",
}

// IsSecretKey reports whether a field key names credential material.
// Matching ignores case and separators, so "secret_access_key" and
// "secretAccessKey" are both caught. Pagination cursors ("nextToken",
// "continuation_token") are not secrets.
func IsSecretKey(key string) bool {
	k := strings.ToLower(strings.NewReplacer("_", "", "-", "", ".", "").Replace(key))
	if strings.HasSuffix(k, "nexttoken") || strings.HasPrefix(k, "continuation") {
		return false
	}
	for _, m := range secretMarkers {
		if strings.Contains(k, m) {
			return true
		}
	}
	return false
}

// ParseLevel maps a config level to zerolog. Empty or unknown levels
// mean info; "warning" is accepted for warn.
func ParseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "":
		return zerolog.InfoLevel
	case "warning":
		return zerolog.WarnLevel
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// SetTimeFormat sets the timestamp encoding for every logger in the
// process: rfc3339 (default), unix, unixms or unixmicro. zerolog keeps this
// as package state, so call it once during startup before logging begins.
func SetTimeFormat(format string) {
	zerolog.TimeFieldFormat = timeFormat(format)
}

func timeFormat(format string) string {
	switch format {
	case "unix":
		return zerolog.TimeFormatUnix
	case "unixms":
		return zerolog.TimeFormatUnixMs
	case "unixmicro":
		return zerolog.TimeFormatUnixMicro
	}
	return time.RFC3339
}

var global atomic.Pointer[Logger]

func init() {
	SetTimeFormat("rfc3339")
	global.Store(New(nil))
}

// L returns the process-wide logger.
func L() *Logger {
	return global.Load()
}

// SetGlobal replaces the process-wide logger; nil is ignored.
func SetGlobal(l *Logger) {
	if l != nil {
		global.Store(l)
	}
}
