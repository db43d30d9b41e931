package models

import "time"

type Room struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description"`
	CreatorID    string    `json:"creatorId"`
	Participants []string  `json:"participants"`
	CreatedAt    time.Time `json:"createdAt"`
}

// IsOwner reports whether userID created the room.
func (r *Room) IsOwner(userID string) bool {
	return r != nil && userID != "" && r.CreatorID == userID
}

// RoomUpdate is a partial update; nil fields are left unchanged.
type RoomUpdate struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u RoomUpdate) Empty() bool {
	return u.Name == nil && u.Description == nil
}

type CreateRoomRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Upload is the upload endpoint's success response.
type Upload struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// StoredUpload is the server-side record of an uploaded file.
type StoredUpload struct {
	Name       string
	RoomID     string
	OwnerID    string
	Filename   string
	MIMEType   string
	Size       int64
	UploadedAt time.Time
}
