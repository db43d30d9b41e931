package service

import (
	"bytes"
	"context"
	"testing"

	"studyroom/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestIsVerboseLogging(t *testing.T) {
	assert.False(t, IsVerboseLogging(context.Background()))
	assert.True(t, IsVerboseLogging(WithVerbose(context.Background(), true)))
	assert.False(t, IsVerboseLogging(WithVerbose(context.Background(), false)))
	assert.False(t, IsVerboseLogging(context.WithValue(context.Background(), VerboseContextKey, "yes")))
}

func TestSanitizeContent(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, "", SanitizeContent(ctx, ""))
	assert.Equal(t, "[hidden]", SanitizeContent(ctx, "my secret notes"))
	assert.Equal(t, "my secret notes", SanitizeContent(WithVerbose(ctx, true), "my secret notes"))
}

func TestLogWithContext(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	ctx := tracing.WithRequestID(context.Background(), "req_abc")
	ctx = tracing.WithUserID(ctx, "user-123456789")

	LogWithContext(ctx, logger).Info("hello")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"req_abc"`)
	assert.Contains(t, out, `"user_id":"`)
	assert.NotContains(t, out, "user-123456789")
	assert.NotContains(t, out, LogFieldTraceID)
}

func TestLogWithContext_Empty(t *testing.T) {
	logger := logrus.New()
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	LogWithContext(context.Background(), logger).Info("bare")
	assert.NotContains(t, buf.String(), LogFieldRequestID)
}
