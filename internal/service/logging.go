package service

import (
	"context"

	"studyroom/internal/privacy"
	"studyroom/internal/tracing"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx so message text may appear in logs.
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// SanitizeContent hides message text unless ctx is verbose.
func SanitizeContent(ctx context.Context, content string) string {
	if content == "" || IsVerboseLogging(ctx) {
		return content
	}
	return "[hidden]"
}

// LogWithContext returns an entry carrying the request, trace and (masked)
// user ids found on ctx.
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	fields := logrus.Fields{}
	if requestID := tracing.GetRequestID(ctx); requestID != "" {
		fields[LogFieldRequestID] = requestID
	}
	if traceID := tracing.TraceID(ctx); traceID != "" {
		fields[LogFieldTraceID] = traceID
	}
	if userID := tracing.GetUserID(ctx); userID != "" {
		fields[LogFieldUserID] = privacy.MaskUserID(userID)
	}
	return logger.WithFields(fields)
}
