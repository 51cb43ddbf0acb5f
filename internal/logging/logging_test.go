package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/jask/flowbit/internal/config"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "flowbit.log")
	log, closer, err := New(config.LogConfig{Path: path, Level: "debug"})
	require.NoError(t, err)
	require.Equal(t, logrus.DebugLevel, log.GetLevel())

	log.WithField("epoch", 3).Info("reloading shell")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "reloading shell")
	require.Contains(t, string(data), "epoch=3")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log, closer, err := New(config.LogConfig{Path: "-", Level: "chatty"})
	require.NoError(t, err)
	defer closer.Close()
	require.Equal(t, logrus.InfoLevel, log.GetLevel())
}
