package models

import (
	"strings"
	"time"
)

type MessageKind string

const (
	KindText   MessageKind = "text"
	KindImage  MessageKind = "image"
	KindFile   MessageKind = "file"
	KindSystem MessageKind = "system"
)

// Valid reports whether k is one of the known kinds.
func (k MessageKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindFile, KindSystem:
		return true
	}
	return false
}

// HasAttachment reports whether messages of this kind carry an Attachment.
func (k MessageKind) HasAttachment() bool {
	return k == KindImage || k == KindFile
}

type MessageStatus string

const (
	StatusPending   MessageStatus = "pending"
	StatusConfirmed MessageStatus = "confirmed"
	StatusFailed    MessageStatus = "failed"
)

// TempIDPrefix marks ids generated locally before the log assigns one.
const TempIDPrefix = "temp-"

// IsTempID reports whether id was generated locally.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

// Attachment is the durable reference to an uploaded image or file.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	MIMEType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// Message is one entry of a room's chat log, either confirmed by the log or
// still local (pending/failed).
type Message struct {
	ID            string        `json:"id"`
	ClientID      string        `json:"clientId,omitempty"`
	RoomID        string        `json:"roomId"`
	AuthorID      string        `json:"authorId"`
	AuthorName    string        `json:"authorName,omitempty"`
	Kind          MessageKind   `json:"kind"`
	Text          string        `json:"text,omitempty"`
	Attachment    *Attachment   `json:"attachment,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	Status        MessageStatus `json:"status,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
}

// Clone returns a deep copy so callers cannot alias buffer state.
func (m Message) Clone() Message {
	if m.Attachment != nil {
		a := *m.Attachment
		m.Attachment = &a
	}
	return m
}

// SamePayload reports whether two messages carry identical content.
func (m Message) SamePayload(other Message) bool {
	if m.Kind != other.Kind || m.Text != other.Text {
		return false
	}
	if (m.Attachment == nil) != (other.Attachment == nil) {
		return false
	}
	if m.Attachment == nil {
		return true
	}
	return m.Attachment.URL == other.Attachment.URL
}

// AppendRequest is the body a client sends to add a record to a room's log.
type AppendRequest struct {
	ClientID   string      `json:"clientId"`
	Kind       MessageKind `json:"kind"`
	Text       string      `json:"text,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	AuthorName string      `json:"authorName,omitempty"`
}

// AppendResponse carries the id the log assigned.
type AppendResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
}

// Snapshot is one full, ordered delivery of a room's log.
type Snapshot struct {
	RoomID   string    `json:"roomId"`
	Messages []Message `json:"messages"`
}
