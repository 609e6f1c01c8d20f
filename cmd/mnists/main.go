// Command mnists is a standalone CLI for the mnists package. It downloads,
// verifies and inspects the MNIST-family datasets.
//
// Configuration is taken from environment variables:
//   - MNISTS_DIR: override for the cache root directory (optional)
//   - MNISTS_LOG_LEVEL: debug, info, warn or error (default warn)
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pczarnik/mnists"
)

// CLI exit codes for standardized error reporting.
const (
	// ExitSuccess indicates the operation completed successfully.
	ExitSuccess = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError = 1

	// ExitInvalidArgs indicates invalid command line arguments or an
	// invalid descriptor file.
	ExitInvalidArgs = 2

	// ExitUnknownDataset indicates the named dataset variant does not exist.
	ExitUnknownDataset = 3

	// ExitNotCached indicates a required file is not cached and downloads
	// are disabled.
	ExitNotCached = 4

	// ExitNetworkError indicates every mirror failed.
	ExitNetworkError = 5

	// ExitChecksumError indicates MD5 verification failed.
	ExitChecksumError = 6

	// ExitStorageError indicates a filesystem operation failed.
	ExitStorageError = 7

	// ExitFormatError indicates a file is not valid IDX data.
	ExitFormatError = 8
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetLevel(logLevel())

	cmd := mnists.NewCommand(mnists.WithLogger(&logrusLogger{log: log}))
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCodeFromError(err))
	}
}

func logLevel() logrus.Level {
	switch strings.ToLower(os.Getenv("MNISTS_LOG_LEVEL")) {
	case "debug", "trace":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.WarnLevel
	}
}

// exitCodeFromError maps error types to exit codes.
func exitCodeFromError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	switch {
	case errors.Is(err, mnists.ErrUnknownDataset):
		return ExitUnknownDataset
	case errors.Is(err, mnists.ErrDescriptor):
		return ExitInvalidArgs
	case errors.Is(err, mnists.ErrNotCached):
		return ExitNotCached
	case errors.Is(err, mnists.ErrDownload):
		return ExitNetworkError
	case errors.Is(err, mnists.ErrIntegrity):
		return ExitChecksumError
	case errors.Is(err, mnists.ErrFormat):
		return ExitFormatError
	case errors.Is(err, mnists.ErrStorage):
		return ExitStorageError
	default:
		return ExitGeneralError
	}
}

// logrusLogger adapts a logrus logger to the mnists.Logger interface.
type logrusLogger struct {
	log *logrus.Logger
}

func (l *logrusLogger) Debug(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *logrusLogger) Info(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *logrusLogger) Warn(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *logrusLogger) Error(msg string, keysAndValues ...any) {
	l.log.WithFields(fields(keysAndValues)).Error(msg)
}

// fields converts alternating key/value pairs into logrus fields. A
// trailing key without a value is kept with a nil value.
func fields(kvs []any) logrus.Fields {
	f := make(logrus.Fields, len(kvs)/2)
	for i := 0; i < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			key = fmt.Sprint(kvs[i])
		}
		if i+1 < len(kvs) {
			f[key] = kvs[i+1]
		} else {
			f[key] = nil
		}
	}
	return f
}
