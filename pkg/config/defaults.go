package config

import "time"

const (
	DefaultMongoURI          = "mongodb://localhost:27017"
	DefaultMongoDatabaseName = "lanedesk"
	DefaultMongoConnTimeout  = 10 * time.Second

	DefaultPort = "8080"

	DefaultLogLevel = "info"

	DefaultRateLimitRequests = 60
	DefaultRateLimitWindow   = time.Minute

	DefaultRequestTimeout = 15 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 1 << 20

	DefaultReadTimeout     = 10 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	// Domain reference values. An initial check-in block runs six hours
	// rounded up to the quarter hour; a visit may never exceed fourteen
	// hours of contiguous blocks.
	DefaultInitialStayDuration = 6 * time.Hour
	DefaultMaxVisitDuration    = 14 * time.Hour
	DefaultBlockRounding       = 15 * time.Minute
	DefaultWaitlistETABuffer   = 15 * time.Minute

	// Advisory lane locks auto-expire so a crashed transaction cannot
	// wedge auto-selection for its tier.
	DefaultLaneLockTTL = 10 * time.Second
)
