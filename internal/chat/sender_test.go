package chat

import (
	"context"
	"testing"

	"studyroom/internal/constants"
	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
	"studyroom/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type senderFixture struct {
	log      *fakeLog
	uploader *mockUploader
	notices  *noticeRecorder
	buffer   *Buffer
	sender   *Sender
}

func newSenderFixture(t *testing.T) *senderFixture {
	t.Helper()
	f := &senderFixture{
		log:      &fakeLog{},
		uploader: &mockUploader{},
		notices:  &noticeRecorder{},
		buffer:   NewBuffer(WithBufferClock(newMockClock())),
	}
	sess := newTestSession(t, f.notices)
	f.sender = NewSender("room-1", f.buffer, f.log, f.uploader, sess)
	return f
}

func TestSender_SendText(t *testing.T) {
	f := newSenderFixture(t)

	tempID, err := f.sender.SendText(context.Background(), "  hello  ")
	require.NoError(t, err)

	msg, ok := f.buffer.Get(tempID)
	require.True(t, ok)
	assert.Equal(t, models.StatusPending, msg.Status)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, "user-1", msg.AuthorID)
	assert.Equal(t, "Ada", msg.AuthorName)

	appends := f.log.Appends()
	require.Len(t, appends, 1)
	assert.Equal(t, tempID, appends[0].ClientID)
	assert.Zero(t, f.notices.Len())
}

func TestSender_SendTextRejectsEmpty(t *testing.T) {
	f := newSenderFixture(t)

	_, err := f.sender.SendText(context.Background(), " \n\t ")
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
	assert.Zero(t, f.buffer.Len())
	assert.Empty(t, f.log.Appends())

	notices := f.notices.All()
	require.Len(t, notices, 1)
	assert.Equal(t, session.NoticeError, notices[0].Level)
	assert.Equal(t, "Message cannot be empty", notices[0].Message)
}

func TestSender_RequiresSignedInUser(t *testing.T) {
	notices := &noticeRecorder{}
	sess := newTestSession(t, notices)
	sess.Identity = session.NewStaticProvider("", "", "")
	log := &fakeLog{}
	uploader := &mockUploader{}
	buffer := NewBuffer()
	sender := NewSender("room-1", buffer, log, uploader, sess)

	_, err := sender.SendText(context.Background(), "hello")
	assert.Equal(t, apperrors.ErrCodeAuthentication, apperrors.GetCode(err))

	_, err = sender.SendAttachment(context.Background(), payloadFile("a.png", 10))
	assert.Equal(t, apperrors.ErrCodeAuthentication, apperrors.GetCode(err))

	assert.Zero(t, buffer.Len())
	assert.Empty(t, log.Appends())
	uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 2, notices.Len())
}

func TestSender_WriteFailureMarksFailed(t *testing.T) {
	f := newSenderFixture(t)
	f.log.setAppendErr(apperrors.NewAPIError("/api/rooms/room-1/messages", 503, "", assert.AnError))

	tempID, err := f.sender.SendText(context.Background(), "hello")
	require.Error(t, err)
	require.NotEmpty(t, tempID)
	assert.Equal(t, apperrors.ErrCodeLogWriteFailed, apperrors.GetCode(err))
	assert.True(t, apperrors.IsRetryable(err))

	msg, ok := f.buffer.Get(tempID)
	require.True(t, ok)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Equal(t, "Request failed (503)", msg.FailureReason)

	notices := f.notices.All()
	require.Len(t, notices, 1)
	assert.Equal(t, "Request failed (503)", notices[0].Message)
}

func TestSender_ServerRejectionSurfacedVerbatim(t *testing.T) {
	f := newSenderFixture(t)
	f.log.setAppendErr(apperrors.NewAPIError("/api/rooms/room-1/messages", 403, "You are muted in this room", nil))

	tempID, err := f.sender.SendText(context.Background(), "hello")
	require.Error(t, err)

	msg, _ := f.buffer.Get(tempID)
	assert.Equal(t, "You are muted in this room", msg.FailureReason)
	assert.Equal(t, "You are muted in this room", f.notices.All()[0].Message)
}

func TestSender_SendAttachment(t *testing.T) {
	f := newSenderFixture(t)
	f.uploader.On("Upload", mock.Anything, "room-1", mock.MatchedBy(func(file File) bool {
		return file.Name == "notes.pdf" && file.MIMEType == "application/pdf"
	})).Return(&models.Upload{URL: "http://media/abc.pdf", Filename: "notes.pdf"}, nil).Once()

	tempID, err := f.sender.SendAttachment(context.Background(), payloadFile("/home/ada/notes.pdf", 2048))
	require.NoError(t, err)

	msg, ok := f.buffer.Get(tempID)
	require.True(t, ok)
	assert.Equal(t, models.KindFile, msg.Kind)
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "http://media/abc.pdf", msg.Attachment.URL)
	assert.Equal(t, "notes.pdf", msg.Attachment.Filename)
	assert.Equal(t, int64(2048), msg.Attachment.Size)

	require.Len(t, f.log.Appends(), 1)
	f.uploader.AssertExpectations(t)
}

func TestSender_ImageKindFromMIME(t *testing.T) {
	f := newSenderFixture(t)
	f.uploader.On("Upload", mock.Anything, "room-1", mock.Anything).
		Return(&models.Upload{URL: "http://media/x.png", Filename: "x.png"}, nil).Once()

	tempID, err := f.sender.SendAttachment(context.Background(), payloadFile("x.PNG", 10))
	require.NoError(t, err)

	msg, _ := f.buffer.Get(tempID)
	assert.Equal(t, models.KindImage, msg.Kind)
	assert.Equal(t, "image/png", msg.Attachment.MIMEType)
}

func TestSender_OversizedAttachmentRejectedBeforeUpload(t *testing.T) {
	f := newSenderFixture(t)

	size := int64(11 * constants.BytesPerMegabyte)
	_, err := f.sender.SendAttachment(context.Background(), payloadFile("lecture.mp4", size))

	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
	f.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, f.log.Appends())
	assert.Zero(t, f.buffer.Len())

	notices := f.notices.All()
	require.Len(t, notices, 1)
	assert.Equal(t, session.NoticeError, notices[0].Level)
	assert.Contains(t, notices[0].Message, "lecture.mp4")
	assert.Contains(t, notices[0].Message, "10 MiB")
}

func TestSender_AttachmentAtCeilingAllowed(t *testing.T) {
	f := newSenderFixture(t)
	f.uploader.On("Upload", mock.Anything, "room-1", mock.Anything).
		Return(&models.Upload{URL: "http://media/big.zip"}, nil).Once()

	_, err := f.sender.SendAttachment(context.Background(), payloadFile("big.zip", 10*constants.BytesPerMegabyte))
	require.NoError(t, err)
	assert.Equal(t, 1, f.buffer.Len())
}

func TestSender_EmptyAttachmentRejected(t *testing.T) {
	f := newSenderFixture(t)

	_, err := f.sender.SendAttachment(context.Background(), File{Name: "empty.txt"})
	assert.Equal(t, apperrors.ErrCodeValidationFailed, apperrors.GetCode(err))
	f.uploader.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, 1, f.notices.Len())
}

func TestSender_UploadFailureLeavesBufferUntouched(t *testing.T) {
	f := newSenderFixture(t)
	f.uploader.On("Upload", mock.Anything, "room-1", mock.Anything).
		Return(nil, apperrors.NewAPIError("/api/upload", 415, "Unsupported file type", nil)).Once()

	_, err := f.sender.SendAttachment(context.Background(), payloadFile("a.exe", 100))
	assert.Equal(t, apperrors.ErrCodeUploadFailed, apperrors.GetCode(err))
	assert.Zero(t, f.buffer.Len())
	assert.Empty(t, f.log.Appends())

	notices := f.notices.All()
	require.Len(t, notices, 1)
	assert.Equal(t, "Unsupported file type", notices[0].Message)
}

func TestSender_RetryReusesUploadedURL(t *testing.T) {
	f := newSenderFixture(t)
	f.uploader.On("Upload", mock.Anything, "room-1", mock.Anything).
		Return(&models.Upload{URL: "http://media/scan.jpg", Filename: "scan.jpg"}, nil).Once()
	f.log.setAppendErr(assert.AnError)

	tempID, err := f.sender.SendAttachment(context.Background(), payloadFile("scan.jpg", 500))
	require.Error(t, err)
	msg, _ := f.buffer.Get(tempID)
	require.Equal(t, models.StatusFailed, msg.Status)

	f.log.setAppendErr(nil)
	require.NoError(t, f.sender.Retry(context.Background(), tempID))

	msg, _ = f.buffer.Get(tempID)
	assert.Equal(t, models.StatusPending, msg.Status)

	appends := f.log.Appends()
	require.Len(t, appends, 2)
	assert.Equal(t, "http://media/scan.jpg", appends[1].Attachment.URL)
	assert.Equal(t, tempID, appends[1].ClientID)
	f.uploader.AssertNumberOfCalls(t, "Upload", 1)
}

func TestSender_RetryRepeatedFailureReturnsToFailed(t *testing.T) {
	f := newSenderFixture(t)
	f.log.setAppendErr(assert.AnError)

	tempID, err := f.sender.SendText(context.Background(), "hello")
	require.Error(t, err)

	require.Error(t, f.sender.Retry(context.Background(), tempID))
	msg, _ := f.buffer.Get(tempID)
	assert.Equal(t, models.StatusFailed, msg.Status)
	assert.Len(t, f.log.Appends(), 2)
	assert.Equal(t, 2, f.notices.Len())
}

func TestSender_RetryRejectsPendingRecord(t *testing.T) {
	f := newSenderFixture(t)

	tempID, err := f.sender.SendText(context.Background(), "hello")
	require.NoError(t, err)

	err = f.sender.Retry(context.Background(), tempID)
	assert.Equal(t, apperrors.ErrCodeConflict, apperrors.GetCode(err))
	assert.Len(t, f.log.Appends(), 1)
}

func TestKindForMIME(t *testing.T) {
	assert.Equal(t, models.KindImage, KindForMIME("image/jpeg"))
	assert.Equal(t, models.KindImage, KindForMIME("IMAGE/PNG"))
	assert.Equal(t, models.KindFile, KindForMIME("application/pdf"))
	assert.Equal(t, models.KindFile, KindForMIME(""))
}

func TestDetectMIMEType(t *testing.T) {
	assert.Equal(t, "image/jpeg", DetectMIMEType("photo.JPG"))
	assert.Equal(t, "application/pdf", DetectMIMEType("notes.pdf"))
	assert.Equal(t, constants.DefaultMimeType, DetectMIMEType("blob"))
}
