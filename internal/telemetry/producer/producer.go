// Package producer defines the interface for publishing workflow events to a stream (e.g. Kafka).
package producer

import (
	"context"

	"attribute-change-control/backend/internal/telemetry"
)

// Producer publishes workflow events. Callers use it best-effort: log and ignore errors.
type Producer interface {
	Emit(ctx context.Context, event *telemetry.Event) error
	// Close releases resources (e.g. Kafka writer). Safe to call if already closed.
	Close() error
}
