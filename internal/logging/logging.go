// Package logging configures process-wide structured logging with
// hourly file rotation.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
	log "github.com/sirupsen/logrus"
)

// Formatter renders entries as "2006/01/02 15:04:05 [LEVEL] message".
type Formatter struct {
	TimestampFormat string
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *log.Entry) ([]byte, error) {
	ts := entry.Time.Format(f.TimestampFormat)
	msg := fmt.Sprintf("%s [%s] %s\n", ts, levelTag(entry.Level), entry.Message)
	return []byte(msg), nil
}

func levelTag(l log.Level) string {
	switch l {
	case log.PanicLevel:
		return "PANIC"
	case log.FatalLevel:
		return "FATAL"
	case log.ErrorLevel:
		return "ERROR"
	case log.WarnLevel:
		return "WARN"
	case log.DebugLevel:
		return "DEBUG"
	case log.TraceLevel:
		return "TRACE"
	default:
		return "INFO"
	}
}

// Setup installs the formatter, level, and rotating file output. An empty
// dir leaves output on stderr (useful for tests and foreground runs).
func Setup(level string, dir string) error {
	log.SetFormatter(&Formatter{TimestampFormat: "2006/01/02 15:04:05"})

	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level: %w", err)
	}
	log.SetLevel(lvl)

	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}

	rl, err := rotatelogs.New(
		filepath.Join(dir, "monitor.%Y-%m-%d-%H.log"),
		rotatelogs.WithLinkName(filepath.Join(dir, "monitor.log")),
		rotatelogs.WithRotationTime(time.Hour),
		rotatelogs.WithMaxAge(7*24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("init log rotation: %w", err)
	}
	log.SetOutput(rl)
	return nil
}
