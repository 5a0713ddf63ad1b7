package logging_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/voxmemo/internal/logging"
)

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := logging.New(logging.Options{Level: "chatty"})
	assert.Error(t, err)
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxmemo.log")

	logger, err := logging.New(logging.Options{Level: "info", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logger.Infow("recording started", "generation", 3)
	logger.Debugw("filtered out")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"msg":"recording started"`)
	assert.Contains(t, out, `"generation":3`)
	assert.False(t, strings.Contains(out, "filtered out"), "debug must be below info threshold")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, logging.OrNop(nil))
	l := logging.Nop()
	assert.Same(t, l, logging.OrNop(l))
}
