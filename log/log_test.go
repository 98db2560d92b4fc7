package log

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	tests := []struct {
		name        string
		level       string
		development bool
		enabled     zapcore.Level
		disabled    zapcore.Level
		wantErr     require.ErrorAssertionFunc
	}{
		{"info production", "info", false, zapcore.InfoLevel, zapcore.DebugLevel, require.NoError},
		{"debug development", "debug", true, zapcore.DebugLevel, zapcore.DebugLevel - 1, require.NoError},
		{"warn", "WARN", false, zapcore.WarnLevel, zapcore.InfoLevel, require.NoError},
		{"bogus", "loud", false, 0, 0, require.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.level, tt.development)
			tt.wantErr(t, err)
			if err != nil {
				return
			}

			require.True(t, l.Core().Enabled(tt.enabled))
			require.False(t, l.Core().Enabled(tt.disabled))
			require.Equal(t, l, zap.L())
		})
	}
}

func TestProductionAndDevelopment(t *testing.T) {
	defer zap.ReplaceGlobals(zap.NewNop())

	l := Production()
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))
	require.Equal(t, l, zap.L())

	l = Development()
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))
	require.Equal(t, l, zap.L())
}
