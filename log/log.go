package log

import (
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Production builds a JSON logger and installs it globally.
func Production(opts ...zap.Option) *zap.Logger {
	l, err := zap.NewProduction(opts...)
	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(l)

	return zap.L()
}

func Development(opts ...zap.Option) *zap.Logger {
	opts = append(opts, zap.WithCaller(true))
	l, err := zap.NewDevelopment(
		opts...,
	)

	if err != nil {
		panic(err)
	}

	zap.ReplaceGlobals(l)

	return zap.L()
}

// New builds a logger at level and installs it globally.
func New(level string, development bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.WithCaller(development))
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(l)

	return zap.L(), nil
}
