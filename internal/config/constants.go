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

// Redis connection settings. Redis only backs the rate limiter, so the
// pool stays small.
const (
	RedisPoolSize     = 10
	RedisMinIdleConns = 2
	RedisPingTimeout  = 5 * time.Second
)

// Request body cap. Chat messages are the largest client payload and stay
// well under this.
const MaxRequestBodyBytes = 64 << 10

// Background job intervals
const ReaperJobInterval = 5 * time.Minute

// How often the client countdown flushes locally spent seconds to the
// time ledger.
const CountdownFlushInterval = 15 * time.Second

// Default rate limiting
const DefaultRateLimitPerMin = 60
