package mcpserver

import (
	"fmt"
	"os"

	mcp "trpc.group/trpc-go/trpc-mcp-go"

	"github.com/hession/calcmate/internal/logger"
)

var _ mcp.Logger = Logger{}

// Logger routes trpc-mcp-go library logs into the calcmate log file
type Logger struct{}

// Debug logs to DEBUG log. Arguments are handled in the manner of fmt.Print.
func (Logger) Debug(args ...any) { logger.Debug("%s", fmt.Sprint(args...)) }

// Debugf logs to DEBUG log. Arguments are handled in the manner of fmt.Printf.
func (Logger) Debugf(format string, args ...any) { logger.Debug(format, args...) }

// Info logs to INFO log. Arguments are handled in the manner of fmt.Print.
func (Logger) Info(args ...any) { logger.Info("%s", fmt.Sprint(args...)) }

// Infof logs to INFO log. Arguments are handled in the manner of fmt.Printf.
func (Logger) Infof(format string, args ...any) { logger.Info(format, args...) }

// Warn logs to WARN log. Arguments are handled in the manner of fmt.Print.
func (Logger) Warn(args ...any) { logger.Warn("%s", fmt.Sprint(args...)) }

// Warnf logs to WARN log. Arguments are handled in the manner of fmt.Printf.
func (Logger) Warnf(format string, args ...any) { logger.Warn(format, args...) }

// Error logs to ERROR log. Arguments are handled in the manner of fmt.Print.
func (Logger) Error(args ...any) { logger.Error("%s", fmt.Sprint(args...)) }

// Errorf logs to ERROR log. Arguments are handled in the manner of fmt.Printf.
func (Logger) Errorf(format string, args ...any) { logger.Error(format, args...) }

// Fatal logs to ERROR log, flushes it and exits the process.
func (l Logger) Fatal(args ...any) {
	l.Error(args...)
	logger.Close()
	os.Exit(1)
}

// Fatalf logs to ERROR log, flushes it and exits the process.
func (l Logger) Fatalf(format string, args ...any) {
	l.Errorf(format, args...)
	logger.Close()
	os.Exit(1)
}
