//go:build !tinygo

package diag

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

func init() {
	globalLogger = NewLogrus(os.Stderr, logrus.InfoLevel)
}

// Options selects the host log backend settings.
type Options struct {
	// Level is one of the logrus level names ("debug", "info", "warn", "error").
	// Defaults to "info".
	Level string `yaml:"level"`
	// File, when set, sends log output to a size-rotated file instead of stderr.
	File string `yaml:"file"`
	// MaxSizeMB is the size at which File is rotated. Defaults to 10.
	MaxSizeMB int `yaml:"maxSizeMb"`
	// MaxBackups is the number of rotated files kept. Defaults to 3.
	MaxBackups int `yaml:"maxBackups"`
}

// logrusLogger adapts a logrus.Logger to the Logger interface.
type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrus returns a Logger writing text records to w at the given level.
func NewLogrus(w io.Writer, level logrus.Level) Logger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetLevel(level)
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return &logrusLogger{l: l}
}

func (l *logrusLogger) Debug(msg string) { l.l.Debug(msg) }
func (l *logrusLogger) Info(msg string)  { l.l.Info(msg) }
func (l *logrusLogger) Warn(msg string)  { l.l.Warn(msg) }
func (l *logrusLogger) Error(msg string) { l.l.Error(msg) }

// Configure replaces the global logger according to o.
func Configure(o Options) error {
	level := logrus.InfoLevel
	if o.Level != "" {
		lvl, err := logrus.ParseLevel(o.Level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", o.Level, err)
		}
		level = lvl
	}

	var w io.Writer = os.Stderr
	if o.File != "" {
		if o.MaxSizeMB == 0 {
			o.MaxSizeMB = 10
		}
		if o.MaxBackups == 0 {
			o.MaxBackups = 3
		}
		w = &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    o.MaxSizeMB,
			MaxBackups: o.MaxBackups,
		}
	}

	SetLogger(NewLogrus(w, level))
	return nil
}
