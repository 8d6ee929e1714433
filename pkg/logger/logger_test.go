package logger

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talksync/pkg/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.LoggingConfig
		wantErr bool
	}{
		{"console info", &config.LoggingConfig{Level: "info"}, false},
		{"console debug", &config.LoggingConfig{Level: "debug"}, false},
		{"invalid level", &config.LoggingConfig{Level: "invalid"}, true},
		{"file output", &config.LoggingConfig{Level: "info", Dir: t.TempDir(), Tag: "talksync"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
			if c, ok := l.(interface{ Close() error }); ok {
				assert.NoError(t, c.Close())
			}
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected zerolog.Level
		wantErr  bool
	}{
		{"debug", zerolog.DebugLevel, false},
		{"DEBUG", zerolog.DebugLevel, false},
		{"info", zerolog.InfoLevel, false},
		{"warn", zerolog.WarnLevel, false},
		{"warning", zerolog.WarnLevel, false},
		{"error", zerolog.ErrorLevel, false},
		{"disabled", zerolog.Disabled, false},
		{"invalid", zerolog.InfoLevel, true},
		{"", zerolog.InfoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			level, err := parseLogLevel(tt.level)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.expected, level)
		})
	}
}

func TestFileOutputs(t *testing.T) {
	dir := t.TempDir()
	day := time.Date(2023, 5, 1, 10, 0, 0, 0, time.Local)
	cfg := &config.LoggingConfig{Level: "info", Dir: dir, Tag: "DownMessage"}

	var console bytes.Buffer
	l, err := newLogger(cfg, &console, day)
	require.NoError(t, err)

	l.WithField("member", "alpha").Info("message saved")
	l.WithError(errors.New("connection reset")).Error("fetch failed")
	l.Debug("below threshold")
	require.NoError(t, l.(*zerologLogger).Close())

	dailyPath := DailyLogPath(dir, "DownMessage", day)
	assert.True(t, strings.HasSuffix(dailyPath, "20230501_DownMessagelog.log"))
	daily, err := os.ReadFile(dailyPath)
	require.NoError(t, err)
	assert.Contains(t, string(daily), "message saved")
	assert.Contains(t, string(daily), `"member":"alpha"`)
	assert.Contains(t, string(daily), "fetch failed")
	assert.NotContains(t, string(daily), "below threshold")

	errorLog, err := os.ReadFile(ErrorLogPath(dir, "DownMessage"))
	require.NoError(t, err)
	assert.Contains(t, string(errorLog), "fetch failed")
	assert.Contains(t, string(errorLog), "connection reset")
	assert.NotContains(t, string(errorLog), "message saved")

	// console disabled once a directory is configured
	assert.Empty(t, console.String())
}

func TestFileOutputsAppend(t *testing.T) {
	dir := t.TempDir()
	day := time.Now()
	cfg := &config.LoggingConfig{Level: "info", Dir: dir, Tag: "t"}

	for _, msg := range []string{"first run", "second run"} {
		l, err := newLogger(cfg, &bytes.Buffer{}, day)
		require.NoError(t, err)
		l.Info(msg)
		require.NoError(t, l.(*zerologLogger).Close())
	}

	daily, err := os.ReadFile(DailyLogPath(dir, "t", day))
	require.NoError(t, err)
	assert.Contains(t, string(daily), "first run")
	assert.Contains(t, string(daily), "second run")
}

func TestConsoleOutput(t *testing.T) {
	var console bytes.Buffer
	l, err := newLogger(&config.LoggingConfig{Level: "debug", Console: true}, &console, time.Now())
	require.NoError(t, err)

	l.DebugWithFields("token acquired", map[string]interface{}{"group": "nogi"})
	out := console.String()
	assert.Contains(t, out, "token acquired")
	assert.Contains(t, out, "nogi")
}

func TestWithFieldsDoesNotLeak(t *testing.T) {
	var buf bytes.Buffer
	zlog := zerolog.New(&buf)
	base := &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}

	child := base.WithFields(map[string]interface{}{"group": "saku", "position": 3})
	child.Info("child")
	base.Info("parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"group":"saku"`)
	assert.Contains(t, lines[0], `"position":3`)
	assert.NotContains(t, lines[1], "group")
}

func TestWithErrorNil(t *testing.T) {
	zlog := zerolog.Nop()
	base := &zerologLogger{logger: &zlog, fields: map[string]interface{}{}}
	assert.Same(t, base, base.WithError(nil))
}

func TestNewRunID(t *testing.T) {
	a := NewRunID()
	b := NewRunID()
	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestLogRequest(t *testing.T) {
	tl := NewTestLogger()
	LogRequest(tl, "GET", "https://example.test/timeline", 200, time.Millisecond)
	LogRequest(tl, "GET", "https://example.test/timeline", 404, time.Millisecond)
	LogRequest(tl, "POST", "https://example.test/update_token", 500, time.Millisecond)

	assert.Len(t, tl.GetMessagesByLevel("DEBUG"), 1)
	assert.Len(t, tl.GetMessagesByLevel("WARN"), 1)
	errs := tl.GetMessagesByLevel("ERROR")
	require.Len(t, errs, 1)
	assert.Equal(t, "POST", errs[0].Fields["method"])
}

func TestTestLoggerDerivedLoggersShareCapture(t *testing.T) {
	tl := NewTestLogger()
	tl.WithField("group", "hina").WithError(errors.New("boom")).Warn("member skipped")

	msgs := tl.FindMessages("skipped")
	require.Len(t, msgs, 1)
	assert.Equal(t, "WARN", msgs[0].Level)
	assert.Equal(t, "hina", msgs[0].Fields["group"])
	assert.EqualError(t, msgs[0].Error, "boom")
	assert.Contains(t, tl.String(), "member skipped")

	tl.Clear()
	assert.Empty(t, tl.GetMessages())
}
