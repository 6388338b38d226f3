package logger

import (
	"io"
	"os"
	"time"

	"github.com/natefinch/lumberjack"
	logrus "github.com/sirupsen/logrus"
	gormlogger "gorm.io/gorm/logger"
)

// Options controls where and how verbosely the service logs.
type Options struct {
	File   string
	Level  string
	Stdout bool
}

// Setup initializes Logrus, writing through a rotating file unless Stdout is
// set, and returns the writer so the HTTP access log can share it.
func Setup(opts Options) io.Writer {
	var out io.Writer = os.Stdout
	if !opts.Stdout {
		out = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // megabytes
			MaxBackups: 7,
			MaxAge:     7, // days
			Compress:   true,
		}
	}

	logrus.SetOutput(out)
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.DebugLevel
	}
	logrus.SetLevel(level)
	return out
}

// GormLogger routes GORM's SQL logging into the standard Logrus logger.
func GormLogger() gormlogger.Interface {
	return gormlogger.New(logrus.StandardLogger(), gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}
