// Package workers holds the background jobs that run alongside the HTTP
// server.
package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/gatehouse-dev/gatehouse/internal/session"
)

const purgeTimeout = 30 * time.Second

// SessionCleaner purges expired session rows on a cron schedule. The auth
// flow never deletes sessions itself; this is the only reaper.
type SessionCleaner struct {
	sessions *session.Manager
	logger   zerolog.Logger
	spec     string
	cron     *cron.Cron
}

// NewSessionCleaner creates a cleaner running on the given cron spec
func NewSessionCleaner(sessions *session.Manager, logger zerolog.Logger, spec string) *SessionCleaner {
	return &SessionCleaner{
		sessions: sessions,
		logger:   logger,
		spec:     spec,
	}
}

// Start schedules the purge and runs it once immediately
func (w *SessionCleaner) Start() error {
	w.cron = cron.New()
	if _, err := w.cron.AddFunc(w.spec, w.purge); err != nil {
		return fmt.Errorf("invalid session cleanup spec %q: %w", w.spec, err)
	}

	w.purge()
	w.cron.Start()

	w.logger.Info().Str("spec", w.spec).Msg("Session cleanup worker started")
	return nil
}

// Stop halts the schedule and waits for a running purge to finish
func (w *SessionCleaner) Stop() {
	if w.cron == nil {
		return
	}
	<-w.cron.Stop().Done()
	w.logger.Info().Msg("Session cleanup worker stopped")
}

func (w *SessionCleaner) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()

	purged, err := w.sessions.PurgeExpired(ctx)
	if err != nil {
		w.logger.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}

	if purged > 0 {
		w.logger.Info().Int64("purged", purged).Msg("Purged expired sessions")
	}
}
