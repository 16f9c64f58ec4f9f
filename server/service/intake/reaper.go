package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/mindgate/intake/store"
)

// Reaper expires idle, incomplete sessions in the background. Completed
// sessions are never touched.
type Reaper struct {
	service     *Service
	idleTimeout time.Duration
	interval    time.Duration
}

// NewReaper creates a session reaper sweeping at the given interval.
func NewReaper(service *Service, idleTimeout, interval time.Duration) *Reaper {
	if idleTimeout <= 0 {
		idleTimeout = 30 * time.Minute
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Reaper{
		service:     service,
		idleTimeout: idleTimeout,
		interval:    interval,
	}
}

// Run starts the background sweep loop. It returns when ctx is done.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(ctx)
		case <-ctx.Done():
			slog.Info("session reaper stopped")
			return
		}
	}
}

// RunOnce performs a single sweep (exposed for manual trigger and tests).
func (r *Reaper) RunOnce(ctx context.Context) {
	cutoff := r.service.now().Add(-r.idleTimeout).Unix()
	incomplete := false
	candidates, err := r.service.store.ListSessions(ctx, &store.FindSession{
		IsComplete:         &incomplete,
		LastActivityBefore: &cutoff,
	})
	if err != nil {
		slog.Error("failed to list expired sessions", "error", err)
		return
	}

	reaped := 0
	for _, session := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// Take the per-session lock briefly so a session is never deleted
		// mid-mutation, and re-check under the lock.
		r.service.locks.Lock(session.ID)
		fresh, err := r.service.store.GetSession(ctx, session.ID)
		if err == nil && fresh != nil && !fresh.IsComplete && fresh.LastActivityTs < cutoff {
			if err := r.service.store.DeleteSession(ctx, &store.DeleteSession{ID: session.ID}); err != nil {
				slog.Error("failed to delete expired session", "session_id", session.ID, "error", err)
			} else {
				r.service.dropSuggestion(session.ID)
				reaped++
			}
		}
		r.service.locks.Unlock(session.ID)
	}

	if reaped > 0 {
		slog.Info("reaped expired sessions", "count", reaped)
	}
}
