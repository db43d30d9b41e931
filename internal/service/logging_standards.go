package service

// Standard log field names. Use these exact keys so server, client and
// sweeper logs can be queried the same way.
const (
	// Core identifiers
	LogFieldRoomID    = "room_id"
	LogFieldMessageID = "message_id"
	LogFieldClientID  = "client_id"
	LogFieldUserID    = "user_id"
	LogFieldRequestID = "request_id"
	LogFieldTraceID   = "trace_id"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"
	LogFieldMethod    = "method"
	LogFieldRoute     = "route"

	// Message fields
	LogFieldKind    = "kind"
	LogFieldCreated = "created"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldCount    = "count"
	LogFieldSize     = "size_bytes"

	// Network
	LogFieldURL        = "url"
	LogFieldStatusCode = "status_code"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"

	// Files and uploads
	LogFieldFileName = "file_name"
	LogFieldMIMEType = "mime_type"
	LogFieldUpload   = "upload"

	// Errors and retries
	LogFieldErrorCode = "error_code"
	LogFieldAttempt   = "attempt"
	LogFieldDelayMs   = "delay_ms"
)

// Log levels
//
// DEBUG: per-request and per-snapshot detail.
// INFO: startup, shutdown, room lifecycle, sweeper runs.
// WARN: retryable failures, rate limiting, rejected uploads.
// ERROR: failed operations that reach the caller as 5xx.
