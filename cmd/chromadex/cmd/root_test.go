package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chromadex/chromadex/internal/config"
)

func TestRootCmd_ShowsHelp(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--help"})

	err := cmd.Execute()

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "chromadex")
	assert.Contains(t, output, "index")
	assert.Contains(t, output, "check")
	assert.Contains(t, output, "version")
	assert.Contains(t, output, "--debug")
}

func TestRootCmd_VersionFlag(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--version"})

	err := cmd.Execute()

	require.NoError(t, err)
	assert.Contains(t, buf.String(), "chromadex version")
}

// Bare invocation runs an index of the enclosing project; without an
// API key that fails fast before any I/O.
func TestRootCmd_BareInvocationRequiresAPIKey(t *testing.T) {
	t.Setenv(config.EnvAPIKey, "")

	cmd := NewRootCmd()
	stderr := &bytes.Buffer{}
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(stderr)
	cmd.SetArgs([]string{})

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, stderr.String(), config.EnvAPIKey)
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	cmd := NewRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"frobnicate"})

	err := cmd.Execute()

	assert.Error(t, err)
}

func TestNewRunLogger_HonorsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newRunLogger(buf, "error")

	logger.Info("quiet")
	logger.Error("loud")

	output := buf.String()
	assert.NotContains(t, output, "quiet")
	assert.Contains(t, output, "loud")
}

func TestNewRunLogger_DefaultsToInfo(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := newRunLogger(buf, "info")

	logger.Debug("hidden")
	logger.Info("shown")

	output := buf.String()
	assert.NotContains(t, output, "hidden")
	assert.Contains(t, output, "shown")
}
