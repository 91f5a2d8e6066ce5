package logging

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the process logger. "release" gives JSON output, anything
// else a colored console encoder.
func New(mode string) (*zap.Logger, error) {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	return config.Build()
}

// StdLogger adapts a zap logger for libraries that want a *log.Logger
func StdLogger(logger *zap.Logger, prefix string) *log.Logger {
	return zap.NewStdLog(logger.Named(prefix))
}
