// Package telemetry fans recorded audit events out to external sinks (Kafka, OpenTelemetry logs).
package telemetry

import (
	"context"
	"errors"
	"time"
)

// Event is the wire envelope for one audit entry leaving the process. Kafka messages carry it as JSON
// and the Loki worker reads the same shape back.
type Event struct {
	ID            string            `json:"id"`
	IdentityID    string            `json:"identityId"`
	EventKind     string            `json:"eventKind"`
	FailureReason string            `json:"failureReason,omitempty"`
	UserAgent     string            `json:"userAgent,omitempty"`
	IP            string            `json:"ip,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Source        string            `json:"source"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// EventEmitter emits events to one sink. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *Event) error
}

// MultiEmitter emits to every non-nil emitter and joins their errors.
type MultiEmitter []EventEmitter

// Emit implements EventEmitter.
func (m MultiEmitter) Emit(ctx context.Context, event *Event) error {
	var errs []error
	for _, e := range m {
		if e == nil {
			continue
		}
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
