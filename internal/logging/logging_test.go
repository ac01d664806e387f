package logging

import (
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"INFO", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{" warn ", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseLevel("trace")
	assert.Error(t, err)
}

func TestNewHonoursLevel(t *testing.T) {
	for _, json := range []bool{true, false} {
		logger, err := New("warn", json)
		require.NoError(t, err)
		assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
	}

	_, err := New("verbose", false)
	assert.Error(t, err)
}

func TestErrorType(t *testing.T) {
	f := ErrorType(&net.OpError{Op: "dial", Err: errors.New("refused")})
	assert.Equal(t, "error_type", f.Key)
	assert.Equal(t, "*net.OpError", f.String)

	assert.Equal(t, zapcore.SkipType, ErrorType(nil).Type)
}
