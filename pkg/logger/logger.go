package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

const (
	INFO = iota
	DEBUG
)

// Logger is a leveled logger that can be handed to components that need
// their own sink.
type Logger struct {
	zl zerolog.Logger
}

var (
	std     = New(os.Stdout)
	logFile *os.File
)

// New returns a Logger writing JSON lines to w.
func New(w io.Writer) *Logger {
	return &Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger that adds key=value to every line.
func (l *Logger) With(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

func (l *Logger) Debugf(format string, v ...interface{}) {
	l.zl.Debug().Msgf(format, v...)
}

func (l *Logger) Infof(format string, v ...interface{}) {
	l.zl.Info().Msgf(format, v...)
}

func (l *Logger) Warnf(format string, v ...interface{}) {
	l.zl.Warn().Msgf(format, v...)
}

func (l *Logger) Errorf(format string, v ...interface{}) {
	l.zl.Error().Msgf(format, v...)
}

// InitLogger points the default logger at stdout and filename.
func InitLogger(filename string, level int) error {
	var w io.Writer = os.Stdout
	if filename != "" {
		f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return err
		}
		logFile = f
		w = io.MultiWriter(os.Stdout, zerolog.SyncWriter(f))
	}

	zl := zerolog.New(w).With().Timestamp().Logger().Level(zerolog.InfoLevel)
	if level == DEBUG {
		zl = zl.Level(zerolog.DebugLevel)
	}
	std = &Logger{zl: zl}
	return nil
}

// ParseLevel maps a LOG_LEVEL value onto INFO or DEBUG.
func ParseLevel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return INFO, nil
	case "debug":
		return DEBUG, nil
	default:
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
}

func Close() {
	if logFile != nil {
		logFile.Close()
	}
}

// Default returns the process-wide logger used by the helpers below.
func Default() *Logger {
	return std
}

func Info(format string, v ...interface{}) {
	std.Infof(format, v...)
}

func Infof(format string, v ...interface{}) {
	Info(format, v...)
}

func Error(format string, v ...interface{}) {
	std.Errorf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	Error(format, v...)
}

func Warn(format string, v ...interface{}) {
	std.Warnf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	Warn(format, v...)
}
