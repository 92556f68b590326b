package config_test

import (
	"flag"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/linkchat/internal/config"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestLoadClient_Defaults(t *testing.T) {
	t.Setenv("CHAT_USERNAME", "alice")

	cfg, err := config.LoadClient(newFlagSet(), nil)
	require.NoError(t, err)

	assert.Equal(t, "ws://localhost:8080/", cfg.ServerURL)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, 16, cfg.SendQueue)
	assert.Equal(t, 10*time.Second, cfg.DialTimeout)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Empty(t, cfg.LogFile)
}

func TestLoadClient_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("CHAT_USERNAME", "alice")
	t.Setenv("CHAT_SERVER_URL", "ws://env:1/")
	t.Setenv("CHAT_LOG_LEVEL", "warn")

	cfg, err := config.LoadClient(newFlagSet(), []string{"-username", "bob", "-log-level", "debug"})
	require.NoError(t, err)

	assert.Equal(t, "bob", cfg.Username)
	assert.Equal(t, "ws://env:1/", cfg.ServerURL)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestLoadClient_MissingUsername(t *testing.T) {
	t.Setenv("CHAT_USERNAME", "  ")

	_, err := config.LoadClient(newFlagSet(), nil)
	assert.ErrorIs(t, err, config.ErrMissingUsername)
}

func TestLoadClient_BadEnv(t *testing.T) {
	t.Setenv("CHAT_USERNAME", "alice")
	t.Setenv("CHAT_DIAL_TIMEOUT", "soon")

	_, err := config.LoadClient(newFlagSet(), nil)
	assert.Error(t, err)
}

func TestLoadServer(t *testing.T) {
	t.Setenv("CHAT_TCP_ADDR", "")
	t.Setenv("CHAT_MAX_PARTICIPANTS", "3")

	cfg, err := config.LoadServer(newFlagSet(), []string{"-addr", "127.0.0.1:0"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:0", cfg.ListenAddr)
	assert.Equal(t, 3, cfg.MaxParticipants)
	assert.Empty(t, cfg.TCPAddr)

	t.Setenv("CHAT_TCP_ADDR", ":9000")
	cfg, err = config.LoadServer(newFlagSet(), nil)
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.TCPAddr)

	_, err = config.LoadServer(newFlagSet(), []string{"-max-participants", "-1"})
	assert.Error(t, err)
}

func TestOpenLog(t *testing.T) {
	w, closeFn, err := config.OpenLog("")
	require.NoError(t, err)
	assert.Equal(t, io.Discard, w)
	assert.NoError(t, closeFn())

	path := filepath.Join(t.TempDir(), "client.log")
	w, closeFn, err = config.OpenLog(path)
	require.NoError(t, err)
	config.NewLogger(w, slog.LevelInfo).Info("hello")
	assert.NoError(t, closeFn())
	assert.FileExists(t, path)
}
