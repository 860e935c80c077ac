package cron

import (
	"context"
	"log/slog"

	"github.com/livecap/livecap/internal/keys"
	"github.com/livecap/livecap/internal/session"
)

// KeyExpiryJob revokes API keys whose expiration date has passed, so a
// leaked expired key stops validating even if no request ever touches it.
type KeyExpiryJob struct {
	Keys         keys.Store
	Logger       *slog.Logger
	ScheduleExpr string // empty = default hourly
}

var _ Job = (*KeyExpiryJob)(nil)

// Name implements Job.
func (j *KeyExpiryJob) Name() string { return "key_expiry" }

// Schedule implements Job.
func (j *KeyExpiryJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 * * * *"
}

// Run revokes expired keys.
func (j *KeyExpiryJob) Run(ctx context.Context) error {
	revoked, err := j.Keys.PruneExpired(ctx)
	if err != nil {
		return err
	}
	if revoked > 0 {
		j.Logger.Info("cron: revoked expired api keys", "count", revoked)
	}
	return nil
}

// SessionReportJob logs a periodic summary of relay activity: live session
// count and cumulative caption counters.
type SessionReportJob struct {
	Sessions     *session.Store
	Logger       *slog.Logger
	ScheduleExpr string // empty = default every 15 minutes
}

var _ Job = (*SessionReportJob)(nil)

// Name implements Job.
func (j *SessionReportJob) Name() string { return "session_report" }

// Schedule implements Job.
func (j *SessionReportJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "*/15 * * * *"
}

// Run logs the current session totals.
func (j *SessionReportJob) Run(_ context.Context) error {
	var sessions, sent, failed int64
	j.Sessions.Range(func(s *session.Session) bool {
		sessions++
		sent += s.CaptionsSent
		failed += s.CaptionsFailed
		return true
	})

	j.Logger.Info("cron: relay activity",
		"sessions", sessions,
		"captions_sent", sent,
		"captions_failed", failed)
	return nil
}
