package logger

import (
	"go.uber.org/zap"
)

var defaultLogger = zap.NewNop()

func Get() *zap.Logger {
	return defaultLogger
}

// Set builds the process logger: console output in development, JSON otherwise
func Set(environment string) {
	cfg := zap.NewProductionConfig()
	if environment == "development" {
		cfg = zap.Config{
			Level:            zap.NewAtomicLevelAt(zap.DebugLevel),
			Development:      true,
			Encoding:         "console",
			EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
			OutputPaths:      []string{"stderr"},
			ErrorOutputPaths: []string{"stderr"},
		}
	}

	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	defaultLogger = l
	zap.ReplaceGlobals(l)
}

func Flush() {
	_ = defaultLogger.Sync()
}
