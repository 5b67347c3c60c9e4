package domain

import "time"

// Metrics is implemented by the telemetry layer; components receive it by
// interface so tests can run without a registry.
type Metrics interface {
	ObserveCacheLookup(namespace string, hit bool)
	ObserveConnect(server string, duration time.Duration, err error)
	ObserveReconnect(server string, attempts int, err error)
	ObserveToolCall(server, tool string, duration time.Duration, err error)
	SetRegisteredTools(server string, count int)
}
