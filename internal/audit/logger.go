// Package audit records every ceremony, OTP and authorization outcome to an append-only log.
package audit

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"passkey-gate/internal/audit/domain"
	auditrepo "passkey-gate/internal/audit/repository"
	"passkey-gate/internal/logger"
	"passkey-gate/internal/metrics"
	"passkey-gate/internal/telemetry"
)

// Source tags events emitted by this service.
const Source = "passkey-gate"

const writeTimeout = 3 * time.Second

// Event is one outcome to record. Reason is empty for successes.
type Event struct {
	IdentityID string
	Kind       domain.EventKind
	Reason     string
	Client     domain.Client
	Metadata   map[string]string
}

// Recorder records audit events. Record is best-effort and never fails the caller.
type Recorder interface {
	Record(ctx context.Context, ev Event)
}

// Logger implements Recorder by appending to a repository and fanning out to an optional emitter.
type Logger struct {
	repo    auditrepo.Repository
	emitter telemetry.EventEmitter
	log     *zap.Logger
	nowF    func() time.Time
}

// NewLogger returns a Logger that persists to repo. emitter may be nil.
func NewLogger(repo auditrepo.Repository, emitter telemetry.EventEmitter, log *zap.Logger) *Logger {
	return &Logger{
		repo:    repo,
		emitter: emitter,
		log:     logger.OrNop(log),
		nowF:    func() time.Time { return time.Now().UTC() },
	}
}

// Record writes one entry. Persistence runs on a context detached from request cancellation;
// failures are logged and counted, not returned.
func (l *Logger) Record(ctx context.Context, ev Event) {
	entry := &domain.Entry{
		ID:         ulid.Make().String(),
		IdentityID: ev.IdentityID,
		EventKind:  ev.Kind,
		UserAgent:  ev.Client.UserAgent,
		IP:         ev.Client.IP,
		Metadata:   ev.Metadata,
		CreatedAt:  l.nowF(),
	}
	if ev.Reason != "" {
		reason := ev.Reason
		entry.FailureReason = &reason
	}
	metrics.AuditEventsTotal.WithLabelValues(string(ev.Kind)).Inc()

	if l.repo != nil {
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
		err := l.repo.Append(writeCtx, entry)
		cancel()
		if err != nil {
			metrics.AuditWriteFailuresTotal.Inc()
			l.log.Error("audit: failed to append entry",
				zap.String("event_kind", string(ev.Kind)),
				zap.String("identity_id", ev.IdentityID),
				zap.Error(err))
		}
	}
	telemetry.EmitAsync(l.log, l.emitter, toEvent(entry))
}

func toEvent(e *domain.Entry) *telemetry.Event {
	ev := &telemetry.Event{
		ID:         e.ID,
		IdentityID: e.IdentityID,
		EventKind:  string(e.EventKind),
		UserAgent:  e.UserAgent,
		IP:         e.IP,
		Metadata:   e.Metadata,
		Source:     Source,
		CreatedAt:  e.CreatedAt,
	}
	if e.FailureReason != nil {
		ev.FailureReason = *e.FailureReason
	}
	return ev
}

// Nop discards every event.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(context.Context, Event) {}
