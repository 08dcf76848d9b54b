// Package log builds the process logger.
package log

import (
	"io"
	"os"

	runtime "github.com/banzaicloud/logrus-runtime-formatter"
	"github.com/bombsimon/logrusr/v4"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
)

type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Format selects the child formatter.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// NewLogrusLogger will generate a new logrus logger instance
func NewLogrusLogger(logLevel string, format Format, out io.Writer) *logrus.Logger {
	logger := logrus.New()

	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	switch Level(logLevel) {
	case LevelDebug:
		logger.Level = logrus.DebugLevel
	case LevelTrace:
		logger.Level = logrus.TraceLevel
	case LevelInfo, "":
		logger.Level = logrus.InfoLevel
	case LevelWarn:
		logger.Level = logrus.WarnLevel
	case LevelError:
		logger.Level = logrus.ErrorLevel
	default:
		logger.Level = logrus.InfoLevel
		logger.WithField("logLevel", logLevel).Warn("Unknown log level, defaulting to info")
	}

	var child logrus.Formatter = &logrus.JSONFormatter{}
	if format == FormatText {
		child = &logrus.TextFormatter{FullTimestamp: true}
	}

	runtimeFormatter := &runtime.Formatter{
		ChildFormatter: child,
		File:           true,
		Line:           true,
		BaseNameOnly:   true,
	}

	logger.SetFormatter(runtimeFormatter)

	return logger
}

// RouteOpenTelemetry sends OpenTelemetry's internal logging to logger.
func RouteOpenTelemetry(logger *logrus.Logger) {
	otel.SetLogger(logrusr.New(logger))
}
