package constants

import "time"

// Chat synchronization defaults
const (
	DefaultMaxAttachmentMB    = 10
	DefaultReconnectInitialMs = 1000
	DefaultReconnectMaxMs     = 30000
	DefaultReconnectFactor    = 2.0
	DefaultMatchWindowSec     = 300
	BytesPerMegabyte          = 1024 * 1024
)

// Client defaults
const (
	DefaultAPIBaseURL         = "http://localhost:8084"
	DefaultHTTPTimeoutSec     = 30
	DefaultBreakerMaxFailures = 5
	DefaultBreakerCooldownSec = 15
)

// Server defaults
const (
	DefaultServerAddr            = ":8084"
	DefaultRatePerSecond         = 5.0
	DefaultRateBurst             = 20
	DefaultRetentionDays         = 30
	DefaultSweepCron             = "0 3 * * *"
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 500
	DefaultMaxBackoffMs          = 5000
	DefaultGracefulShutdownSec   = 15
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultUploadSlackBytes      = 1024 * 1024
	DefaultWebsocketWriteTimeout = 10 * time.Second
	MaxSnapshotBytes             = 32 << 20
	DefaultDatabasePath          = "studyroom.db"
	DefaultMediaDir              = "media"
	DefaultConfigPollInterval    = 5 * time.Second
	DefaultLogLevel              = "info"
)

// Validation limits
const (
	MaxRoomIDLength      = 128
	MaxMessageTextLength = 4000
	MaxFilenameLength    = 255
	MaxRoomNameLength    = 120
	MaxDescriptionLength = 2000
)

// Encryption settings for data at rest
const (
	EncryptionSalt       = "studyroom-message-salt-v1"
	EncryptionKeySize    = 32
	EncryptionNonceSize  = 12
	EncryptionIterations = 100000
)
