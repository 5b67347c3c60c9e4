package telemetry

import (
	"time"

	"mcpod/internal/domain"
)

type NoopMetrics struct{}

func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (n *NoopMetrics) ObserveCacheLookup(_ string, _ bool) {}

func (n *NoopMetrics) ObserveConnect(_ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) ObserveReconnect(_ string, _ int, _ error) {}

func (n *NoopMetrics) ObserveToolCall(_, _ string, _ time.Duration, _ error) {}

func (n *NoopMetrics) SetRegisteredTools(_ string, _ int) {}

var _ domain.Metrics = (*NoopMetrics)(nil)
