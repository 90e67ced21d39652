package log

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger()

	logger.Debug("test")
	logger.Infof("test %s", "arg")
	logger.Errorf("test %s", "arg")

	_, ok := logger.WithField("key", "value").(NopLogger)
	assert.True(t, ok)
	_, ok = logger.WithError(nil).(NopLogger)
	assert.True(t, ok)
	_, ok = logger.WithContext(context.Background()).(NopLogger)
	assert.True(t, ok)
}

// mockTestingT 模拟 testing.T
type mockTestingT struct {
	logs []string
}

func (m *mockTestingT) Log(args ...interface{}) {
	m.logs = append(m.logs, fmt.Sprint(args...))
}

func (m *mockTestingT) Logf(format string, args ...interface{}) {
	m.logs = append(m.logs, fmt.Sprintf(format, args...))
}

func TestTestLogger_Fields(t *testing.T) {
	mt := &mockTestingT{}
	logger := NewTestLogger(mt).WithField("queue", "views")

	logger.Warnf("retry %d", 2)

	require.Len(t, mt.logs, 1)
	assert.Contains(t, mt.logs[0], "[WARN] retry 2")
	assert.Contains(t, mt.logs[0], "queue=views")
}

func TestLogrusLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	l := logrus.New()
	l.SetOutput(&buf)
	l.SetFormatter(&logrus.JSONFormatter{})

	logger := NewLogrusLogger(l).WithFields(map[string]interface{}{"channel": "user.created"})
	logger.Info("dispatched")

	out := buf.String()
	assert.Contains(t, out, `"channel":"user.created"`)
	assert.Contains(t, out, `"msg":"dispatched"`)
}

func TestSetup(t *testing.T) {
	prev := Default()
	defer SetDefault(prev)

	file := filepath.Join(t.TempDir(), "logs", "folio.log")
	logger, err := Setup(Options{Level: "debug", Format: "json", File: file})
	require.NoError(t, err)
	assert.Equal(t, logger, Default())

	_, err = Setup(Options{Level: "loud"})
	assert.Error(t, err)

	_, err = Setup(Options{Format: "xml"})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "xml"))
}

func TestOrDefault(t *testing.T) {
	assert.Equal(t, Default(), OrDefault(nil))
	nop := NewNopLogger()
	assert.Equal(t, nop, OrDefault(nop))
}
