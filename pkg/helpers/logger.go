package helpers

import (
	"context"
	"fmt"
	"io"
	"path"
	"runtime"

	formatter "github.com/antonfisher/nested-logrus-formatter"
	"github.com/jakehl/goid"
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/sirupsen/logrus"
)

const CtxSource = "REQ_SOURCE"
const CtxRequestID = "REQ_ID"

var LogFormatter = &formatter.Formatter{
	TimestampFormat: "2006-01-02 15:04:05",
	HideKeys:        true,
	FieldsOrder:     []string{"src", "req-id", "service", "subsystem", "subsystem-provider"},
	CallerFirst:     true,
	CustomCallerFormatter: func(f *runtime.Frame) string {
		filename := path.Base(f.File)
		return fmt.Sprintf(" [%s %s():%d]", filename, f.Function, f.Line)
	},
}

// SetupLogger builds the per-subsystem entry. A config.None level routes
// the subsystem output to io.Discard instead of silencing logrus globally.
func SetupLogger(currentLevel config.LogLevel, serviceID string, subsystem string) *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(LogFormatter)
	lSubsystem := logger.WithFields(logrus.Fields{
		"service":   serviceID,
		"subsystem": subsystem,
	})

	if currentLevel == config.None {
		lSubsystem.Logger.SetOutput(io.Discard)
		return lSubsystem
	}

	level := logrus.GetLevel()
	if currentLevel != "" {
		parsed, err := logrus.ParseLevel(string(currentLevel))
		if err != nil {
			logrus.Warnf("'%s' invalid '%s' log level. Defaulting to global log level", subsystem, currentLevel)
		} else {
			level = parsed
		}
	} else {
		logrus.Warnf("'%s' log level not set. Defaulting to global log level", subsystem)
	}

	lSubsystem.Logger.SetLevel(level)
	lSubsystem.Infof("log level set to '%s'", level)
	return lSubsystem
}

// ConfigureLogger annotates the entry with the request metadata carried
// in ctx. Request IDs are only attached at debug level and below.
func ConfigureLogger(ctx context.Context, logger *logrus.Entry) *logrus.Entry {
	source := ""
	if src, ok := ctx.Value(CtxSource).(string); ok {
		source = src
	}
	logger = logger.WithField("src", source)

	if logger.Logger.Level < logrus.DebugLevel {
		return logger
	}

	if reqID, ok := ctx.Value(CtxRequestID).(string); ok {
		return logger.WithField("req-id", reqID)
	}

	return logger.WithField("req-id", fmt.Sprintf("unset.%s", goid.NewV4UUID()))
}

// InitContext builds a context for service-internal calls (jobs,
// startup tasks) so their log lines carry a traceable request ID.
func InitContext() context.Context {
	ctx := context.Background()
	ctx = context.WithValue(ctx, CtxRequestID, fmt.Sprintf("internal.%s", goid.NewV4UUID()))
	return ctx
}
