package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBufferLogger() (*Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger()
	l.SetOutput(&buf)
	return l, &buf
}

func TestLogger_LogErrorIncludesAppErrorContext(t *testing.T) {
	l, buf := newBufferLogger()

	err := New(ErrCodeUploadFailed, "upload failed").WithContext("room_id", "r1")
	l.LogError(err, "send failed", logrus.Fields{"attempt": 2})

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "UPLOAD_FAILED", entry["error_code"])
	assert.Equal(t, "r1", entry["room_id"])
	assert.Equal(t, float64(2), entry["attempt"])
}

func TestLogger_LogRetryableErrorLevels(t *testing.T) {
	l, buf := newBufferLogger()

	l.LogRetryableError(WrapRetryable(errors.New("eof"), ErrCodeSubscription, "dropped"), "reconnecting")
	assert.Contains(t, buf.String(), `"level":"warning"`)

	buf.Reset()
	l.LogRetryableError(errors.New("fatal"), "gave up")
	assert.Contains(t, buf.String(), `"level":"error"`)
}

func TestWrapLogger_Nil(t *testing.T) {
	assert.NotNil(t, WrapLogger(nil).Logger)
}
