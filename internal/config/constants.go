package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 10
	DBMaxIdleConns    = 2
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 120 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// LINE delivers each webhook event at most a few times within this window.
const WebhookEventDedupTTL = 10 * time.Minute

const UserRateLimitWindow = time.Minute

// Admin API brute-force guard
const (
	AdminMaxAttempts   = 10
	AdminAttemptWindow = 15 * time.Minute
)
