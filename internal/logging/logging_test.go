package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_ConsoleLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Out: &buf})

	log.Debug("hidden")
	log.Info("installing driver")
	log.Warn("no archive found")
	require.NoError(t, log.Sync())

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "installing driver")
	assert.Contains(t, out, "WARNING:")
	assert.Contains(t, out, "no archive found")
}

func TestNew_VerboseShowsDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Out: &buf, Verbose: true})

	log.Debug("management command", zap.String("label", "Adding module"))
	require.NoError(t, log.Sync())

	assert.Contains(t, buf.String(), "management command")
	assert.Contains(t, buf.String(), "Adding module")
}

func TestNew_FileCoreGetsDebugJSON(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "buildpack.log")
	log := New(Config{Out: &buf, File: path})

	log.Debug("only in file")
	require.NoError(t, log.Sync())

	assert.NotContains(t, buf.String(), "only in file")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"only in file"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestTopic(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	Topic(zap.New(core), "Installing PostgreSQL driver")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "-----> Installing PostgreSQL driver", logs.All()[0].Message)
}
