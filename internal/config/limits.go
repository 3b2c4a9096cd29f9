package config

import "time"

// Tunables is the §6.4 set of implementer-configurable constants, all
// expressed in seconds per the Open Question decision recorded in
// DESIGN.md (the original source mixed ms/s units for the cleanup cutoff;
// this implementation standardizes on seconds everywhere and converts to
// time.Duration only at package boundaries).
type Tunables struct {
	StreamEventQueueSize        int
	StreamEventPersistChars     int
	StreamEventPersistIntervalS float64
	StreamEventPollIntervalS    float64
	StreamEventFetchLimit       int
	StreamEventTTLS             float64
	StreamEventCleanupIntervalS float64
	SessionLockTTLS             float64
	SessionLockPollIntervalS    float64
	SessionLockBusyRetryS       float64
	SessionLockMaxActivePerUser int64
	DefaultLLMTimeoutS          float64
	DefaultToolTimeoutS         float64
	MinToolTimeoutS             float64
	MCPTimeoutS                 float64
	A2ATimeoutS                 float64
	SandboxTimeoutS             float64
	SandboxEnabled              bool
	MaxRounds                   int
	LLMMaxRetryAttempts         int
	SystemRequestsPerSecond     float64
	SystemBurst                 int
}

func LoadTunables() Tunables {
	return Tunables{
		StreamEventQueueSize:        getEnvInt("STREAM_EVENT_QUEUE_SIZE", 256),
		StreamEventPersistChars:     getEnvInt("STREAM_EVENT_PERSIST_CHARS", 200),
		StreamEventPersistIntervalS: getEnvFloat("STREAM_EVENT_PERSIST_INTERVAL_MS", 500) / 1000,
		StreamEventPollIntervalS:    getEnvFloat("STREAM_EVENT_POLL_INTERVAL_S", 0.25),
		StreamEventFetchLimit:       getEnvInt("STREAM_EVENT_FETCH_LIMIT", 100),
		StreamEventTTLS:             getEnvFloat("STREAM_EVENT_TTL_S", 86400),
		StreamEventCleanupIntervalS: getEnvFloat("STREAM_EVENT_CLEANUP_INTERVAL_S", 300),
		SessionLockTTLS:             getEnvFloat("SESSION_LOCK_TTL_S", 120),
		SessionLockPollIntervalS:    getEnvFloat("SESSION_LOCK_POLL_INTERVAL_S", 1),
		SessionLockBusyRetryS:       getEnvFloat("SESSION_LOCK_BUSY_RETRY_S", 10),
		SessionLockMaxActivePerUser: int64(getEnvInt("SESSION_LOCK_MAX_ACTIVE_PER_USER", 3)),
		DefaultLLMTimeoutS:          getEnvFloat("DEFAULT_LLM_TIMEOUT_S", 90),
		DefaultToolTimeoutS:         getEnvFloat("DEFAULT_TOOL_TIMEOUT_S", 30),
		MinToolTimeoutS:             getEnvFloat("MIN_TOOL_TIMEOUT_S", 1),
		MCPTimeoutS:                 getEnvFloat("MCP_TIMEOUT_S", 0),
		A2ATimeoutS:                 getEnvFloat("A2A_TIMEOUT_S", 60),
		SandboxTimeoutS:             getEnvFloat("SANDBOX_TIMEOUT_S", 0),
		SandboxEnabled:              getEnvBool("SANDBOX_ENABLED", false),
		MaxRounds:                   getEnvInt("MAX_ROUNDS", 12),
		LLMMaxRetryAttempts:         getEnvInt("LLM_MAX_RETRY_ATTEMPTS", 3),
		SystemRequestsPerSecond:     getEnvFloat("SYSTEM_REQUESTS_PER_SECOND", 50),
		SystemBurst:                 getEnvInt("SYSTEM_BURST", 100),
	}
}

// StreamPersistInterval and the helpers below convert the stream tunables
// into the time.Duration values internal/stream.Config takes.
func (t Tunables) StreamPersistInterval() time.Duration {
	return time.Duration(t.StreamEventPersistIntervalS * float64(time.Second))
}

func (t Tunables) StreamPollInterval() time.Duration {
	return time.Duration(t.StreamEventPollIntervalS * float64(time.Second))
}

func (t Tunables) StreamEventTTL() time.Duration {
	return time.Duration(t.StreamEventTTLS * float64(time.Second))
}

func (t Tunables) StreamCleanupInterval() time.Duration {
	return time.Duration(t.StreamEventCleanupIntervalS * float64(time.Second))
}
