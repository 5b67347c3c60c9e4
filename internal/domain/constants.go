package domain

const (
	// Cache TTLs in seconds. A TTL of 0 means the entry never expires.
	DefaultServersTTLSeconds = 300
	DefaultToolsTTLSeconds   = 600
	DefaultPromptsTTLSeconds = 0

	DefaultConnectTimeoutSeconds = 30
	DefaultReconnectAttempts     = 3
	DefaultReconnectDelaySeconds = 1

	DefaultRouteTimeoutSeconds = 30

	DefaultCommandTimeoutSeconds = 30
	DefaultCommandRetries        = 3
	DefaultCommandRetryDelaySecs = 1

	DefaultStartConcurrency = 4

	DefaultCatalog = "docker-mcp"

	DefaultObservabilityListenAddress = "127.0.0.1:9464"
)

// ToolConflictPolicy controls what happens when a server registers a tool
// name already owned by a different server.
type ToolConflictPolicy string

const (
	// ConflictReplace reassigns ownership to the most recent registration.
	ConflictReplace ToolConflictPolicy = "replace"
	// ConflictReject keeps the prior owner and fails the registration.
	ConflictReject ToolConflictPolicy = "reject"

	DefaultToolConflictPolicy = ConflictReplace
)

func (p ToolConflictPolicy) Valid() bool {
	switch p {
	case ConflictReplace, ConflictReject:
		return true
	default:
		return false
	}
}
