package logging

import (
	"io"

	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// DefaultMaxLogFileMB is the size a log file may grow to before it is rotated.
const DefaultMaxLogFileMB = 64

// NewFileCore returns a core writing JSON lines to path. The file is rotated once it reaches
// maxSizeMB megabytes and two compressed backups are kept. Close the returned closer when done.
func NewFileCore(path string, maxSizeMB int) (zapcore.Core, io.Closer) {
	if maxSizeMB <= 0 {
		maxSizeMB = DefaultMaxLogFileMB
	}
	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: 2,
		Compress:   true,
	}
	encoderCfg := NewLoggerConfig().EncoderConfig
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(rotator), zapcore.DebugLevel)
	return core, rotator
}

// Tee returns a logger with the same name and level as logger that also writes to core.
func Tee(logger Logger, core zapcore.Core) Logger {
	base := logger.Desugar().Core()
	if imp, ok := logger.(*impl); ok {
		base = imp.core
	}
	return newImpl(logger.Name(), NewAtomicLevelAt(logger.GetLevel()), zapcore.NewTee(base, core))
}
