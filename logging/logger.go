package logging

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger at the given level. When logPath is non-empty
// the logger tees JSON output to that file in addition to stderr.
func New(logPath, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleEncoder := zapcore.NewConsoleEncoder(encoderCfg)
	stderrCore := zapcore.NewCore(consoleEncoder, zapcore.AddSync(os.Stderr), lvl)

	core := stderrCore
	if logPath != "" {
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return nil, err
		}
		jsonEncoder := zapcore.NewJSONEncoder(encoderCfg)
		fileCore := zapcore.NewCore(jsonEncoder, zapcore.AddSync(file), lvl)
		core = zapcore.NewTee(fileCore, stderrCore)
	}

	logger := zap.New(core,
		zap.Fields(zap.Int("pid", os.Getpid())),
	)

	return logger, nil
}
