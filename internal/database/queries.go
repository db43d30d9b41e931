package database

// Room queries
const (
	InsertRoomQuery = `
		INSERT INTO rooms (id, name, description, creator_id, created_at_ns, updated_at_ns)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	SelectRoomQuery = `
		SELECT id, name, description, creator_id, created_at_ns
		FROM rooms
		WHERE id = ?
	`

	RoomExistsQuery = `SELECT COUNT(*) FROM rooms WHERE id = ?`

	UpdateRoomQuery = `
		UPDATE rooms
		SET name = COALESCE(?, name),
			description = COALESCE(?, description),
			updated_at_ns = ?
		WHERE id = ?
	`

	DeleteRoomQuery = `DELETE FROM rooms WHERE id = ?`
)

// Participant queries
const (
	InsertParticipantQuery = `
		INSERT OR IGNORE INTO room_participants (room_id, user_id, joined_at_ns)
		VALUES (?, ?, ?)
	`

	SelectParticipantsQuery = `
		SELECT user_id
		FROM room_participants
		WHERE room_id = ?
		ORDER BY joined_at_ns, user_id
	`
)

// Message queries
const (
	InsertMessageQuery = `
		INSERT INTO messages (
			id, room_id, client_id, author_id, author_name, kind, text,
			attachment_url, attachment_name, attachment_mime, attachment_size,
			upload_name, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	messageColumns = `
		id, room_id, client_id, author_id, author_name, kind, text,
		attachment_url, attachment_name, attachment_mime, attachment_size,
		created_at_ns
	`

	SelectMessageByClientIDQuery = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = ? AND author_id = ? AND client_id = ?
	`

	SelectRoomMessagesQuery = `
		SELECT ` + messageColumns + `
		FROM messages
		WHERE room_id = ?
		ORDER BY created_at_ns, seq
	`
)

// Upload queries
const (
	InsertUploadQuery = `
		INSERT INTO uploads (name, room_id, owner_id, filename, mime_type, size, uploaded_at_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	SelectUploadQuery = `
		SELECT name, room_id, owner_id, filename, mime_type, size, uploaded_at_ns
		FROM uploads
		WHERE name = ?
	`

	SelectOrphanUploadsQuery = `
		SELECT u.name, u.room_id, u.owner_id, u.filename, u.mime_type, u.size, u.uploaded_at_ns
		FROM uploads u
		WHERE u.uploaded_at_ns < ?
		  AND NOT EXISTS (SELECT 1 FROM messages m WHERE m.upload_name = u.name)
		ORDER BY u.uploaded_at_ns
	`

	DeleteUploadQuery = `DELETE FROM uploads WHERE name = ?`
)
