package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	log, err := New("warn")
	require.NoError(t, err)
	assert.False(t, log.Desugar().Core().Enabled(zapcore.InfoLevel))
	assert.True(t, log.Desugar().Core().Enabled(zapcore.WarnLevel))

	_, err = New("chatty")
	assert.Error(t, err)
}
