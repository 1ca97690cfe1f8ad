package config

const (
	EnvMongoURI          = "LANEDESK_MONGO_URI"
	EnvMongoDatabaseName = "LANEDESK_MONGO_DATABASE"
	EnvMongoConnTimeout  = "LANEDESK_MONGO_CONN_TIMEOUT"

	EnvPort = "LANEDESK_PORT"

	EnvLogLevel = "LANEDESK_LOG_LEVEL"

	EnvKioskAppSecret = "LANEDESK_KIOSK_APP_SECRET"
	EnvAdminPIN       = "LANEDESK_ADMIN_PIN"

	EnvRateLimitRequests = "LANEDESK_RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "LANEDESK_RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "LANEDESK_REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "LANEDESK_IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "LANEDESK_MAX_REQUEST_SIZE"

	EnvReadTimeout     = "LANEDESK_READ_TIMEOUT"
	EnvWriteTimeout    = "LANEDESK_WRITE_TIMEOUT"
	EnvIdleTimeout     = "LANEDESK_IDLE_TIMEOUT"
	EnvShutdownTimeout = "LANEDESK_SHUTDOWN_TIMEOUT"

	EnvInitialStayDuration = "LANEDESK_INITIAL_STAY_DURATION"
	EnvMaxVisitDuration    = "LANEDESK_MAX_VISIT_DURATION"
	EnvBlockRounding       = "LANEDESK_BLOCK_ROUNDING"
	EnvWaitlistETABuffer   = "LANEDESK_WAITLIST_ETA_BUFFER"
	EnvLaneLockTTL         = "LANEDESK_LANE_LOCK_TTL"
)
