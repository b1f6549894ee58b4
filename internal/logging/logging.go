// Package logging builds the zap logger shared by every command.
package logging

import (
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for the repeated -v flag.
const (
	VerbosityNormal = 0 // progress and errors
	VerbosityDebug  = 1 // -v: + cache hits, skipped headers, timings
)

// VerbosityToLevel maps the -v count to a zap level.
func VerbosityToLevel(verbosity int) zapcore.Level {
	if verbosity >= VerbosityDebug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}

// New returns a logger writing to w. jsonOutput selects structured JSON
// lines; otherwise output is a plain console format without colors.
func New(w io.Writer, jsonOutput bool, verbosity int) *zap.SugaredLogger {
	var encoder zapcore.Encoder
	if jsonOutput {
		encoder = zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	} else {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		cfg.CallerKey = ""
		encoder = zapcore.NewConsoleEncoder(cfg)
	}

	core := zapcore.NewCore(encoder, zapcore.Lock(zapcore.AddSync(w)), VerbosityToLevel(verbosity))
	return zap.New(core).Sugar()
}
