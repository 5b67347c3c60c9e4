package telemetry

import (
	"time"

	"go.uber.org/zap"
)

const (
	FieldEvent      = "event"
	FieldServer     = "server"
	FieldTool       = "tool"
	FieldCatalog    = "catalog"
	FieldCacheKey   = "cache_key"
	FieldNamespace  = "namespace"
	FieldAttempt    = "attempt"
	FieldAttempts   = "attempts"
	FieldCallID     = "call_id"
	FieldDurationMs = "duration_ms"
)

const (
	EventCacheHit         = "cache_hit"
	EventCacheMiss        = "cache_miss"
	EventConnectAttempt   = "connect_attempt"
	EventConnectSuccess   = "connect_success"
	EventConnectFailure   = "connect_failure"
	EventConnectionDead   = "connection_dead"
	EventReconnectSuccess = "reconnect_success"
	EventReconnectFailure = "reconnect_failure"
	EventCallError        = "call_error"
	EventCallRetry        = "call_retry"
	EventToolsRegistered  = "tools_registered"
	EventServerUnregister = "server_unregister"
)

func EventField(event string) zap.Field {
	return zap.String(FieldEvent, event)
}

func ServerField(server string) zap.Field {
	return zap.String(FieldServer, server)
}

func ToolField(tool string) zap.Field {
	return zap.String(FieldTool, tool)
}

func CatalogField(catalog string) zap.Field {
	return zap.String(FieldCatalog, catalog)
}

func CacheKeyField(key string) zap.Field {
	return zap.String(FieldCacheKey, key)
}

func NamespaceField(namespace string) zap.Field {
	return zap.String(FieldNamespace, namespace)
}

func AttemptField(attempt int) zap.Field {
	return zap.Int(FieldAttempt, attempt)
}

func AttemptsField(attempts int) zap.Field {
	return zap.Int(FieldAttempts, attempts)
}

func CallIDField(id string) zap.Field {
	return zap.String(FieldCallID, id)
}

func DurationField(duration time.Duration) zap.Field {
	return zap.Int64(FieldDurationMs, duration.Milliseconds())
}
