package backend

import (
	"context"
	"net/url"

	apperrors "studyroom/internal/errors"
	"studyroom/internal/models"
)

// Rooms is the room metadata endpoint.
type Rooms struct {
	c *Client
}

func NewRooms(c *Client) *Rooms {
	return &Rooms{c: c}
}

func roomPath(roomID string) string {
	return "/api/rooms/" + url.PathEscape(roomID)
}

func (r *Rooms) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("room_id", "", "room id is required")
	}
	var room models.Room
	if err := r.c.doJSON(ctx, "GET", roomPath(roomID), nil, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

func (r *Rooms) CreateRoom(ctx context.Context, req models.CreateRoomRequest) (*models.Room, error) {
	if req.Name == "" {
		return nil, apperrors.NewValidationError("name", "", "room name is required")
	}
	var room models.Room
	if err := r.c.doJSON(ctx, "POST", "/api/rooms", req, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// UpdateRoom sends a partial update; fields left nil are unchanged.
func (r *Rooms) UpdateRoom(ctx context.Context, roomID string, update models.RoomUpdate) (*models.Room, error) {
	if roomID == "" {
		return nil, apperrors.NewValidationError("room_id", "", "room id is required")
	}
	if update.Empty() {
		return nil, apperrors.NewValidationError("update", "", "nothing to update")
	}
	var room models.Room
	if err := r.c.doJSON(ctx, "PUT", roomPath(roomID), update, &room); err != nil {
		return nil, err
	}
	return &room, nil
}

// DeleteRoom removes a room. Ownership is enforced by the server.
func (r *Rooms) DeleteRoom(ctx context.Context, roomID string) error {
	if roomID == "" {
		return apperrors.NewValidationError("room_id", "", "room id is required")
	}
	return r.c.doJSON(ctx, "DELETE", roomPath(roomID), nil, nil)
}

// DeleteOwnedRoom refuses locally when userID is not room's creator, and
// otherwise deletes it.
func (r *Rooms) DeleteOwnedRoom(ctx context.Context, room *models.Room, userID string) error {
	if room == nil {
		return apperrors.NewNotFoundError("room", "")
	}
	if !room.IsOwner(userID) {
		return apperrors.NewForbiddenError("delete room").WithContext("room_id", room.ID)
	}
	return r.DeleteRoom(ctx, room.ID)
}
