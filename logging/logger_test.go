package logging

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LogLevelDebug.String())
	assert.Equal(t, "INFO", LogLevelInfo.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "ERROR", LogLevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}

func TestDeskMeshLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	l.Info("not visible")
	assert.Empty(t, buf.String())

	l.Warn("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestDeskMeshLoggerContextualAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.WithComponent("orchestrator").WithRequest("req-1").Info("dispatching")

	out := buf.String()
	assert.Contains(t, out, `"component":"orchestrator"`)
	assert.Contains(t, out, `"request_id":"req-1"`)
}

func TestDeskMeshLoggerDomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelInfo, Format: "json", Output: &buf})

	l.LogBackendCall("classify", 5*time.Millisecond, false, errors.New("quota"))
	assert.Contains(t, buf.String(), "Backend call failed")

	buf.Reset()
	l.LogSearchCall("nginx config", 2, 10*time.Millisecond, true, nil)
	assert.Contains(t, buf.String(), "Search call completed")

	buf.Reset()
	l.LogDispatch("knowledge", "knowledge", time.Millisecond, true)
	assert.Contains(t, buf.String(), `"agent":"knowledge"`)
}

func TestZapAdapter(t *testing.T) {
	var l Logger = NewZapAdapter(zap.NewNop())
	// Must not panic with structured args.
	l.Debug("d", "k", "v")
	l.Info("i", "k", "v")
	l.Warn("w", "k", "v")
	l.Error("e", "k", "v")
}

func TestNoOpLogger(t *testing.T) {
	var l Logger = NoOpLogger{}
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	l.Error("e")
}
