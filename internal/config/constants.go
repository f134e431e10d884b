package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts
const (
	ServerRequestTimeout  = 60 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const (
	SweepJobInterval = 5 * time.Minute
	// UnpaidGameGrace is how long an unpaid game may exist before the sweep
	// deletes it. Payment normally follows creation within milliseconds.
	UnpaidGameGrace = 10 * time.Minute
)

// Change relay listener reconnect bounds (pq.Listener)
const (
	ListenerMinReconnect = 2 * time.Second
	ListenerMaxReconnect = time.Minute
)

// Join endpoint rate limit window
const JoinRateLimitWindow = time.Minute
