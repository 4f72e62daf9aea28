package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureOutput(t *testing.T, level string, format OutputFormat, fn func()) string {
	t.Helper()
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger(level, format)
	fn()
	return buf.String()
}

func TestLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		logFn    func()
		contains []string
		excludes []string
	}{
		{
			name:     "info log",
			level:    "info",
			logFn:    func() { Info("tile saved") },
			contains: []string{"tile saved", "level=INFO"},
		},
		{
			name:     "debug hidden at info level",
			level:    "info",
			logFn:    func() { Debug("sending request") },
			excludes: []string{"sending request"},
		},
		{
			name:     "debug shown at debug level",
			level:    "debug",
			logFn:    func() { Debugf("state %s", "Redirecting") },
			contains: []string{"state Redirecting", "level=DEBUG"},
		},
		{
			name:     "warn with fields",
			level:    "warn",
			logFn:    func() { Warn("no data file", Fields{"tile": "SRTM1N11W009V3", "status": 404}) },
			contains: []string{"no data file", "level=WARN", "tile=SRTM1N11W009V3", "status=404"},
		},
		{
			name:     "error filtered above",
			level:    "error",
			logFn:    func() { Info("login ok"); Error("login failed") },
			contains: []string{"login failed"},
			excludes: []string{"login ok"},
		},
		{
			name:     "success marker",
			level:    "info",
			logFn:    func() { Success("batch finished") },
			contains: []string{"batch finished", "status=success"},
		},
		{
			name:     "formatted debug with fields",
			level:    "debug",
			logFn:    func() { DebugfWithFields(Fields{"url": "http://x/y"}, "attempt %d", 2) },
			contains: []string{"attempt 2", "url=http://x/y"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := captureOutput(t, tt.level, FormatText, tt.logFn)
			for _, want := range tt.contains {
				assert.Contains(t, out, want)
			}
			for _, notWant := range tt.excludes {
				assert.NotContains(t, out, notWant)
			}
		})
	}
}

func TestGetLogger_InitializesIfNil(t *testing.T) {
	mu.Lock()
	logger = nil
	mu.Unlock()
	assert.NotPanics(t, func() {
		lg := GetLogger()
		assert.NotNil(t, lg)
	})
}

func TestSetOutputFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	SetTestOutput(buf)
	defer UnsetTestOutput()

	InitLogger("debug", FormatText)
	Info("first")
	assert.Contains(t, buf.String(), "msg=first")

	buf.Reset()
	SetOutputFormat(FormatJSON)
	Debug("second")
	assert.Contains(t, buf.String(), `"msg":"second"`)
	assert.Contains(t, buf.String(), `"level":"DEBUG"`)
}

func TestSetGlobalFields(t *testing.T) {
	defer SetGlobalFields(nil)

	out := captureOutput(t, "info", FormatJSON, func() {
		SetGlobalFields(Fields{"run_id": "abc"})
		Info("batch started", Fields{"tiles": 4})
	})
	assert.Contains(t, out, `"run_id":"abc"`)
	assert.Contains(t, out, `"tiles":4`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestMergeFields(t *testing.T) {
	attrs := mergeFields(Fields{"key1": "value1"}, Fields{"key2": 123})
	result := make(map[string]interface{})
	for i := 0; i < len(attrs); i += 2 {
		result[attrs[i].(string)] = attrs[i+1]
	}
	assert.Equal(t, map[string]interface{}{"key1": "value1", "key2": 123}, result)
}
