package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "walletd.log")
	require.NoError(t, Init(Config{Level: "debug", OutputFile: path, MaxSize: 1, Quiet: true}))

	Infof("[wallet] connected %s", "0xabc")
	WithField("component", "test").Warn("mismatch")
	Debugf("debug %d", 1)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "[wallet] connected 0xabc")
	assert.Contains(t, out, "component=test")
	assert.Contains(t, out, "debug 1")
	assert.Equal(t, path, GetCurrentLogFile())
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestInitJSONAndBadLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init(Config{Level: "nope", Format: "json", OutputFile: path, Quiet: true}))
	assert.Equal(t, logrus.InfoLevel, Logger.GetLevel())

	Debugf("hidden")
	Infof("shown")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(b), "hidden"))
	assert.Contains(t, string(b), `"msg":"shown"`)
}
