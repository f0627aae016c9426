package logging_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mesa-digital/api/internal/logging"
)

func TestSetup_ReplacesGlobals(t *testing.T) {
	logger, err := logging.Setup(logging.Options{Level: "debug"})
	require.NoError(t, err)
	assert.Same(t, logger, zap.L())
}

func TestSetup_InvalidLevel(t *testing.T) {
	_, err := logging.Setup(logging.Options{Level: "loud"})
	assert.Error(t, err)
}

func TestSetup_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "api.log")
	logger, err := logging.Setup(logging.Options{Production: true, Filename: path})
	require.NoError(t, err)

	logger.Info("table opened", zap.Int("number", 100))
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"table opened"`)
}
