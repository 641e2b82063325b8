package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/kingrea/crewflow/internal/config"
)

// Logger appends structured lines to .crewflow/logs/crewflow.log so users can
// inspect routing decisions and failures after a run ends.
type Logger struct {
	zl     *zap.Logger
	sugar  *zap.SugaredLogger
	writer *lumberjack.Logger
}

// Options mirror the logging section of the project config.
type Options struct {
	Level      string
	Format     string
	MaxSizeMB  int
	MaxBackups int
	// Console additionally mirrors log lines to stderr.
	Console bool
}

// New creates (or reuses) the log file for the current project directory.
func New(projectDir string, opts Options) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.ProjectDirName, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	writer := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "crewflow.log"),
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
	}
	level, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.RFC3339TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
	}
	var encoder zapcore.Encoder
	if strings.EqualFold(opts.Format, "json") {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}
	cores := []zapcore.Core{zapcore.NewCore(encoder, zapcore.AddSync(writer), level)}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), level))
	}
	zl := zap.New(zapcore.NewTee(cores...))
	return &Logger{zl: zl, sugar: zl.Sugar(), writer: writer}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	zl := zap.NewNop()
	return &Logger{zl: zl, sugar: zl.Sugar()}
}

func parseLevel(value string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("logging: unknown level %q", value)
	}
}

// Close flushes and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.zl == nil {
		return nil
	}
	_ = l.zl.Sync()
	if l.writer == nil {
		return nil
	}
	return l.writer.Close()
}

// Printf writes a single informational line.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Info(strings.TrimRight(fmt.Sprintf(format, args...), "\n"))
}

// Log implements telemetry.Sink. A key named "error" raises the entry to
// error level.
func (l *Logger) Log(msg string, keysAndValues ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok && key == "error" {
			l.sugar.Errorw(msg, keysAndValues...)
			return
		}
	}
	l.sugar.Infow(msg, keysAndValues...)
}

// Debugw writes a debug entry.
func (l *Logger) Debugw(msg string, keysAndValues ...any) {
	if l == nil || l.sugar == nil {
		return
	}
	l.sugar.Debugw(msg, keysAndValues...)
}
