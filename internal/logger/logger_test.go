package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	buf := &bytes.Buffer{}
	return New(&Config{Level: level, Format: "json", Output: buf}), buf
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestNew_Formats(t *testing.T) {
	for _, cfg := range []*Config{nil, {Format: "json"}, {Format: "console", Output: io.Discard}} {
		assert.NotNil(t, New(cfg))
	}

	log, buf := capture(t, "info")
	log.Info("box store ready")
	entry := lastEntry(t, buf)
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "box store ready", entry["message"])
	assert.NotEmpty(t, entry["time"])
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"debug", zerolog.DebugLevel},
		{" DEBUG ", zerolog.DebugLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"trace", zerolog.TraceLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestIsSecretKey(t *testing.T) {
	tests := []struct {
		key  string
		want bool
	}{
		{"secretAccessKey", true},
		{"secret_access_key", true},
		{"accountKey", true},
		{"sasToken", true},
		{"connection-string", true},
		{"password", true},
		{"privateKey", true},
		{"Authorization", true},
		{"X-Amz-Signature", true},
		{"nextToken", false},
		{"continuation_token", false},
		{"accessKeyId", false},
		{"bucket", false},
		{"host", false},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSecretKey(tt.key))
		})
	}
}

func TestWith_RedactsSecrets(t *testing.T) {
	log, buf := capture(t, "debug")
	log.WarnWith("resolution failed", errors.New("missing region"), map[string]interface{}{
		"accessKeyId":     "AKIDEXAMPLE",
		"secretAccessKey": "wJalrXUtnFEMI",
		"nextToken":       "page-2",
	})

	entry := lastEntry(t, buf)
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "missing region", entry["error"])
	assert.Equal(t, "AKIDEXAMPLE", entry["accessKeyId"])
	assert.Equal(t, Redacted, entry["secretAccessKey"])
	assert.Equal(t, "page-2", entry["nextToken"])
	assert.NotContains(t, buf.String(), "wJalrXUtnFEMI")
}

func TestErrorWith(t *testing.T) {
	log, buf := capture(t, "error")
	log.ErrorWith("provider unreachable", errors.New("dial tcp: connection refused"), map[string]interface{}{
		"host":   "s3.eu-west-1.amazonaws.com",
		"status": 0,
	})

	entry := lastEntry(t, buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "dial tcp: connection refused", entry["error"])
	assert.Equal(t, "s3.eu-west-1.amazonaws.com", entry["host"])
	assert.Equal(t, float64(0), entry["status"])
}

func TestForBox(t *testing.T) {
	log, buf := capture(t, "info")
	log.ForBox("reports").WithProvider("azure").InfoWith("listing", map[string]interface{}{"prefix": "2024/"})

	entry := lastEntry(t, buf)
	assert.Equal(t, "reports", entry["box"])
	assert.Equal(t, "azure", entry["provider"])
	assert.Equal(t, "2024/", entry["prefix"])
}

func TestExchange(t *testing.T) {
	log, buf := capture(t, "debug")
	log.Exchange("gcs", "GET", "storage.googleapis.com", 200, 15*time.Millisecond, "req-1")
	entry := lastEntry(t, buf)
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "gcs", entry["provider"])
	assert.Equal(t, "storage.googleapis.com", entry["host"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "req-1", entry["request_id"])

	log.Exchange("sftp", "STAT", "sftp.example.com", 0, time.Millisecond, "")
	_, present := lastEntry(t, buf)["request_id"]
	assert.False(t, present)

	quiet, qbuf := capture(t, "info")
	quiet.Exchange("s3", "PUT", "s3.amazonaws.com", 200, time.Millisecond, "r")
	assert.Empty(t, qbuf.String())
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level string
		emit  func(*Logger)
		logs  bool
	}{
		{"debug", func(l *Logger) { l.Debug("d") }, true},
		{"info", func(l *Logger) { l.Debug("d") }, false},
		{"info", func(l *Logger) { l.DebugWith("d", map[string]interface{}{"k": 1}) }, false},
		{"warn", func(l *Logger) { l.Warn("w") }, true},
		{"error", func(l *Logger) { l.Info("i") }, false},
		{"error", func(l *Logger) { l.Error("e") }, true},
	}
	for _, tt := range tests {
		log, buf := capture(t, tt.level)
		tt.emit(log)
		assert.Equal(t, tt.logs, buf.Len() > 0, "level %s", tt.level)
	}
}

func TestContextAndGlobal(t *testing.T) {
	log, buf := capture(t, "info")
	FromContext(log.WithContext(context.Background())).Info("from context")
	assert.Equal(t, "from context", lastEntry(t, buf)["message"])

	orig := L()
	defer SetGlobal(orig)
	SetGlobal(nil)
	assert.Same(t, orig, L())
	SetGlobal(log)
	assert.Same(t, log, FromContext(context.Background()))
}

func TestNew_LeavesTimeFormatAlone(t *testing.T) {
	before := zerolog.TimeFieldFormat
	New(&Config{Format: "json", Output: io.Discard})
	New(&Config{Format: "console", Output: io.Discard})
	assert.Equal(t, before, zerolog.TimeFieldFormat)
}

func TestSetTimeFormat(t *testing.T) {
	defer SetTimeFormat("rfc3339")

	SetTimeFormat("unixms")
	assert.Equal(t, zerolog.TimeFormatUnixMs, zerolog.TimeFieldFormat)
	log, buf := capture(t, "info")
	log.Info("stamped")
	_, isNumber := lastEntry(t, buf)["time"].(float64)
	assert.True(t, isNumber)

	SetTimeFormat("bogus")
	assert.Equal(t, time.RFC3339, zerolog.TimeFieldFormat)
}

func TestGlobal_ConcurrentSwap(t *testing.T) {
	orig := L()
	defer SetGlobal(orig)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			SetGlobal(New(&Config{Format: "json", Output: io.Discard}))
		}()
		go func() {
			defer wg.Done()
			assert.NotNil(t, L())
			assert.NotNil(t, FromContext(context.Background()))
		}()
	}
	wg.Wait()
	assert.NotNil(t, L())
}

func TestNop(t *testing.T) {
	assert.NotPanics(t, func() {
		Nop().ErrorWith("nothing", errors.New("x"), nil)
		Nop().ForBox("b").WithProvider("s3").Exchange("s3", "GET", "h", 200, 0, "")
	})
}

func BenchmarkWith_Redaction(b *testing.B) {
	log := New(&Config{Level: "info", Format: "json", Output: io.Discard})
	fields := map[string]interface{}{"bucket": "reports", "sasToken": "sv=2021", "status": 200}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.InfoWith("provider request", fields)
	}
}
