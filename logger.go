package main

import (
	"fmt"
	"io"
	"path"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger()

func callerPrettyfier(f *runtime.Frame) (string, string) {
	filename := path.Base(f.File)
	return "", fmt.Sprintf("%s:%d", filename, f.Line)
}

// newLogger builds the process logger writing to out. format is "text" for
// humans or "json" for log shippers.
func newLogger(out io.Writer, level, format string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetOutput(out)
	logger.SetLevel(lvl)
	switch format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:    true,
			TimestampFormat:  "2006-01-02 15:04:05",
			CallerPrettyfier: callerPrettyfier,
		})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat:  time.RFC3339Nano,
			CallerPrettyfier: callerPrettyfier,
		})
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	logger.SetReportCaller(true)
	return logger, nil
}
