// Package logging builds the structured logger shared by axond and its
// components, following the zap setup pattern used across the pack's
// service-shaped repos (e.g. object-store daemons that take a
// *zap.Logger in their constructor, defaulting to zap.NewNop()).
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-profile zap.Logger. When debug is true, it
// switches to zap's development profile (console encoding, debug level,
// caller info) for local runs of axond.
func New(debug bool) (*zap.Logger, error) {
	var cfg zap.Config

	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("logging: build logger: %w", err)
	}

	return logger, nil
}

// Nop returns a logger that discards everything, used as the default
// for components constructed without an explicit logger (tests,
// library callers that don't care about axond's own log stream).
func Nop() *zap.Logger {
	return zap.NewNop()
}
